package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timmy/memetag/internal/api/middleware"
	"github.com/timmy/memetag/internal/domain"
	"github.com/timmy/memetag/internal/service"
)

// AssetHandler serves images behind signed references.
type AssetHandler struct {
	assets *service.AssetService
	now    func() time.Time
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(assets *service.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets, now: time.Now}
}

// Serve handles GET /a/:ref.
func (h *AssetHandler) Serve(c *gin.Context) {
	asset, err := h.assets.Fetch(c.Request.Context(), c.Param("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer asset.Body.Close()

	maxAge := int(asset.ExpiresAt.Sub(h.now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.DataFromReader(http.StatusOK, -1, asset.ContentType, asset.Body, map[string]string{
		"Cache-Control":          fmt.Sprintf("private, max-age=%d", maxAge),
		"X-Content-Type-Options": "nosniff",
	})
}

func (h *AssetHandler) fail(c *gin.Context, err error) {
	log := middleware.GetLogger(c)

	var verr *domain.VerificationError
	if errors.As(err, &verr) {
		status := http.StatusForbidden
		if verr.Reason == domain.ReasonNotFound {
			status = http.StatusNotFound
		}
		log.WithField("reason", string(verr.Reason)).Debug("Rejected asset reference")
		c.JSON(status, gin.H{"error": string(verr.Reason)})
		return
	}

	log.WithError(err).Error("Failed to serve asset")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read asset"})
}
