package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints describing
// Tachyon-Tex's HTTP surface:
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>tachyon-tex — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "tachyon-tex", "version": "v1" },
  "paths": {
    "/": { "get": { "summary": "Browser editor", "responses": { "200": { "description": "HTML editor" } } } },
    "/packages": { "get": { "summary": "List bundled TeX packages", "responses": { "200": { "description": "package index" } } } },
    "/validate": {
      "post": {
        "summary": "Structural LaTeX lint, never invokes the engine",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object"} } } },
        "responses": { "200": { "description": "validator result JSON, even for invalid input" } }
      }
    },
    "/compile": {
      "post": {
        "summary": "Compile a LaTeX project to PDF",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object"} } } },
        "responses": {
          "200": { "description": "application/pdf" },
          "400": { "description": "ingestion or validation error" },
          "503": { "description": "backpressure rejection" },
          "504": { "description": "compile timed out" },
          "500": { "description": "engine error, body carries engine log" }
        }
      }
    },
    "/webhooks": {
      "get": { "summary": "List webhook subscriptions", "responses": { "200": { "description": "subscriptions" } } },
      "post": { "summary": "Subscribe to compile events", "responses": { "201": { "description": "subscription created" }, "401": { "description": "missing or invalid bearer token" } } }
    },
    "/webhooks/{id}": {
      "delete": { "summary": "Unsubscribe", "responses": { "204": { "description": "deleted" }, "401": { "description": "missing or invalid bearer token" } } }
    },
    "/ws": { "get": { "summary": "Upgrade to a persistent bidirectional compile session", "responses": { "101": { "description": "switching protocols" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition format" } } } }
  }
}`
