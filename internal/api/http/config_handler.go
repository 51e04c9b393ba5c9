package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kingchu-bridge/internal/config"
)

// RelayConfigHandler reports the effective relay settings. Redis
// credentials stay out; only whether the bridge is on.
func RelayConfigHandler(cfg config.Config, bridged bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"maxPlayers":       cfg.MaxPlayers,
			"stateTTLHours":    int(cfg.StateTTL.Hours()),
			"resyncIntervalMs": cfg.ResyncInterval.Milliseconds(),
			"bridge":           bridged,
		})
	}
}
