package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tachyontex/tachyon-tex/internal/bundle"
)

// PackagesHandler serves GET /packages, listing the bundled TeX package
// index built at boot by the Bundle Cache.
type PackagesHandler struct {
	bundle *bundle.Bundle
}

// NewPackagesHandler builds a PackagesHandler over the process-wide bundle.
func NewPackagesHandler(b *bundle.Bundle) *PackagesHandler {
	return &PackagesHandler{bundle: b}
}

// Handle implements gin.HandlerFunc.
func (h *PackagesHandler) Handle(c *gin.Context) {
	packages := h.bundle.Packages()
	c.JSON(http.StatusOK, gin.H{"count": len(packages), "packages": packages})
}
