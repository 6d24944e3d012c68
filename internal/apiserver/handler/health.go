package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/pkg/version"
)

// Healthz reports liveness plus database reachability.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Get(),
	})
}
