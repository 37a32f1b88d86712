package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/ingestion"
	"github.com/tachyontex/tachyon-tex/internal/orchestrator"
)

// CompileHandler serves POST /compile: ingests a multipart submission,
// runs it through the orchestrator, and returns the resulting PDF with
// the cache/timing headers.
type CompileHandler struct {
	orch   *orchestrator.Orchestrator
	limits ingestion.Limits
}

// NewCompileHandler builds a CompileHandler bounded by limits (derived from
// MAX_PROJECT_SIZE_MB).
func NewCompileHandler(orch *orchestrator.Orchestrator, limits ingestion.Limits) *CompileHandler {
	return &CompileHandler{orch: orch, limits: limits}
}

// Handle implements gin.HandlerFunc.
func (h *CompileHandler) Handle(c *gin.Context) {
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

	outcome, err := h.orch.Compile(c.Request.Context(), p, nil)
	if err != nil {
		writeClassifiedError(c, err)
		return
	}

	c.Header("X-Compile-Time-Ms", strconv.FormatInt(outcome.CompileMs, 10))
	c.Header("X-Cache", outcome.CacheStatus)
	if outcome.CacheStatus == "HIT" {
		c.Header("X-Original-Compile-Time-Ms", strconv.FormatInt(outcome.OriginalCompileMs, 10))
	}
	c.Header("X-Files-Received", strconv.Itoa(outcome.FilesReceived))
	if outcome.PreambleConsulted {
		c.Header("X-Preamble-Hash", fmt.Sprintf("%x", outcome.PreambleHash))
		hmr := "MISS"
		if outcome.PreambleHit {
			hmr = "HIT"
		}
		c.Header("X-HMR", hmr)
	}

	c.Data(http.StatusOK, "application/pdf", outcome.PDF)
}
