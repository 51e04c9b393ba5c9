package http

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"kingchu-bridge/internal/relay"
	"kingchu-bridge/internal/store"
)

// ListRoomsHandler is the REST mirror of the getRooms event: the lobby
// projection only, never game snapshots.
func ListRoomsHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := st.Rooms(c.Request.Context())
		if err != nil {
			log.Printf("http: list rooms: %v", err)
			rooms = relay.Registry{}
		}
		c.JSON(http.StatusOK, gin.H{"rooms": relay.Project(rooms)})
	}
}

func HealthHandler(bridged bool) gin.HandlerFunc {
	mode := "memory"
	if bridged {
		mode = "redis"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "mode": mode})
	}
}
