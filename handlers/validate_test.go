package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyontex/tachyon-tex/internal/ingestion"
)

func TestValidateHandlerReportsIssues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewValidateHandler(ingestion.DefaultLimits(32))
	r := gin.New()
	r.POST("/validate", h.Handle)

	body, contentType := multipartBody(t, "main.tex", `\documentclass{article}\begin{document}\begin{itemize}x\end{enumerate}\end{document}`)
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestValidateHandlerValidDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewValidateHandler(ingestion.DefaultLimits(32))
	r := gin.New()
	r.POST("/validate", h.Handle)

	body, contentType := multipartBody(t, "main.tex", `\documentclass{article}\begin{document}hello\end{document}`)
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)
}
