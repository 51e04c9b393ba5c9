package http

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"kingchu-bridge/internal/api/ws"
	"kingchu-bridge/internal/config"
	"kingchu-bridge/internal/store"
)

func SetupRouter(cfg config.Config, st store.Store, hub *ws.Hub, bridged bool) *gin.Engine {
	r := gin.Default()

	// Realtime channel
	r.GET("/ws", hub.HandleWS(cfg.ResyncInterval))

	// --- LOBBY ENDPOINTS ---
	r.GET("/rooms", ListRoomsHandler(st))

	// --- OPS ENDPOINTS ---
	r.GET("/healthz", HealthHandler(bridged))
	r.GET("/config/relay", RelayConfigHandler(cfg, bridged))

	// Static client assets served from the root, index.html at /.
	// Static("/") would collide with the routes above, so unmatched
	// paths fall through to a plain file server.
	if info, err := os.Stat(cfg.PublicDir); err == nil && info.IsDir() {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.PublicDir))))
	}

	return r
}
