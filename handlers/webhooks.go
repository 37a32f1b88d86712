package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/webhook"
)

// WebhookHandler serves POST /webhooks and DELETE /webhooks/{id}, both
// protected by webhookauth.Middleware.
type WebhookHandler struct {
	repo webhook.Repository
}

// NewWebhookHandler builds a WebhookHandler over repo.
func NewWebhookHandler(repo webhook.Repository) *WebhookHandler {
	return &WebhookHandler{repo: repo}
}

type subscribeRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// Subscribe handles POST /webhooks.
func (h *WebhookHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	sub := webhook.NewSubscription(req.URL, req.Events)
	if err := h.repo.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /webhooks/{id}.
func (h *WebhookHandler) Unsubscribe(c *gin.Context) {
	id := c.Param("id")
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unsubscribe_failed", "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /webhooks, a convenience read alongside the rest of the
// subscription CRUD surface.
func (h *WebhookHandler) List(c *gin.Context) {
	subs, err := h.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}
