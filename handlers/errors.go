package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/project"
)

// statusForKind maps a classified compile error to its HTTP status code.
// Engine and timeout/overload conditions are 5xx; everything about the
// submission itself is 4xx.
func statusForKind(err error) int {
	switch {
	case errors.Is(err, project.ErrInvalidPath),
		errors.Is(err, project.ErrNoFiles),
		errors.Is(err, project.ErrNoRootFound),
		errors.Is(err, project.ErrUnresolvedBlob),
		errors.Is(err, project.ErrProjectTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrOverloaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, project.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, project.ErrEngineError):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// kindName returns the short kind identifier for a classified error, or
// "error" when err carries no recognized kind.
func kindName(err error) string {
	var ke *project.KindError
	if errors.As(err, &ke) {
		return ke.Kind.Error()
	}
	return "error"
}

// writeClassifiedError renders err as a short JSON diagnostic for
// ingestion/validation errors, or the raw engine log body for EngineError.
func writeClassifiedError(c *gin.Context, err error) {
	status := statusForKind(err)
	if errors.Is(err, project.ErrEngineError) {
		c.Data(status, "text/plain; charset=utf-8", []byte(err.Error()))
		return
	}
	c.JSON(status, gin.H{"error": kindName(err), "message": err.Error()})
}
