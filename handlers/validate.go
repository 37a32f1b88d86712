package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/ingestion"
	"github.com/tachyontex/tachyon-tex/internal/rootdetect"
	"github.com/tachyontex/tachyon-tex/internal/validator"
)

// ValidateHandler serves POST /validate: runs the structural LaTeX lint
// against the submission's root file and always answers 200, even when
// the document is invalid. Validation failures are a normal result, never
// an HTTP error.
type ValidateHandler struct {
	limits ingestion.Limits
}

// NewValidateHandler builds a ValidateHandler bounded by limits.
func NewValidateHandler(limits ingestion.Limits) *ValidateHandler {
	return &ValidateHandler{limits: limits}
}

// Handle implements gin.HandlerFunc.
func (h *ValidateHandler) Handle(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_files", "message": "expected a multipart/form-data submission"})
		return
	}

	p, err := ingestion.FromMultipart(form, h.limits)
	if err != nil {
		writeClassifiedError(c, err)
		return
	}

	rootName, err := rootdetect.Resolve(p)
	if err != nil {
		writeClassifiedError(c, err)
		return
	}

	result := validator.Validate(string(p.Files[rootName].Bytes))
	c.JSON(http.StatusOK, result)
}
