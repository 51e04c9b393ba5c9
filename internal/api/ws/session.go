package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kingchu-bridge/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
	maxMessage = 256 * 1024 // registry pushes carry whole room documents
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type inbound struct {
	Event    string          `json:"event"`
	RoomID   string          `json:"roomId,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
	Rooms    json.RawMessage `json:"rooms,omitempty"`
	Type     string          `json:"type,omitempty"`
	Message  json.RawMessage `json:"message,omitempty"`
}

// Client is one websocket session. It binds to at most one room at a
// time and owns nothing beyond that binding and the player ID supplied
// on join.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	closed   bool
	roomID   string
	playerID string

	resyncEvery time.Duration
	resyncStop  chan struct{}

	closeOnce sync.Once
}

// HandleWS upgrades the connection and runs the session until the
// client goes away. resyncEvery > 0 enables the periodic re-join tick.
func (h *Hub) HandleWS(resyncEvery time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("ws: upgrade: %v", err)
			return
		}

		client := &Client{
			id:          uuid.NewString(),
			hub:         h,
			conn:        conn,
			send:        make(chan []byte, 64),
			resyncEvery: resyncEvery,
			resyncStop:  make(chan struct{}),
		}

		h.register(client)
		if resyncEvery > 0 {
			go client.resyncLoop()
		}
		go client.writeLoop()
		client.readLoop()
	}
}

func (c *Client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			return
		}
		var evt inbound
		if err := json.Unmarshal(raw, &evt); err != nil {
			// A malformed event never costs the client its session.
			log.Printf("ws: dropping malformed event from %s: %v", c.id, err)
			continue
		}
		c.handleEvent(evt)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleEvent(evt inbound) {
	ctx := context.Background()
	switch evt.Event {
	case "getRooms":
		c.hub.SendRooms(ctx, c)
	case "saveRooms":
		var doc relay.Registry
		if err := json.Unmarshal(evt.Rooms, &doc); err != nil {
			log.Printf("ws: dropping unreadable registry push from %s: %v", c.id, err)
			return
		}
		c.hub.SaveRooms(ctx, doc)
	case "joinRoom":
		if evt.RoomID == "" {
			return
		}
		if first := c.bindRoom(evt.RoomID, evt.PlayerID); first {
			log.Printf("ws: session %s joined room %s as %q", c.id, evt.RoomID, c.player())
		}
		c.hub.Join(ctx, c, evt.RoomID)
	case "leaveRoom":
		if evt.RoomID == "" {
			return
		}
		c.unbindRoom(evt.RoomID)
		c.hub.Leave(c, evt.RoomID)
	case "stateUpdate":
		c.hub.UpdateState(ctx, c, evt.RoomID, relay.Snapshot(evt.State))
	case "chat":
		var msg string
		if err := json.Unmarshal(evt.Message, &msg); err != nil {
			// Message must be a JSON string; anything else is a no-op.
			return
		}
		c.hub.Chat(ctx, c, evt.RoomID, evt.Type, msg)
	default:
		log.Printf("ws: unknown event %q from %s", evt.Event, c.id)
	}
}

// bindRoom moves the session onto a room. One room per session: joining
// a second room leaves the first. Reports whether this is a new binding
// rather than a re-announcement of the current one.
func (c *Client) bindRoom(roomID, playerID string) bool {
	c.mu.Lock()
	prev := c.roomID
	c.roomID = roomID
	if playerID != "" {
		c.playerID = playerID
	}
	c.mu.Unlock()

	if prev != "" && prev != roomID {
		c.hub.Leave(c, prev)
	}
	return prev != roomID
}

func (c *Client) player() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *Client) unbindRoom(roomID string) {
	c.mu.Lock()
	if c.roomID == roomID {
		c.roomID = ""
	}
	c.mu.Unlock()
}

// resyncLoop re-announces the session's join on a fixed interval as a
// liveness/resync mechanism. Join only reads, so the tick is idempotent.
// Torn down with the session.
func (c *Client) resyncLoop() {
	ticker := time.NewTicker(c.resyncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-c.resyncStop:
			return
		case <-ticker.C:
			c.mu.Lock()
			roomID := c.roomID
			c.mu.Unlock()
			if roomID != "" {
				c.hub.Join(context.Background(), c, roomID)
			}
		}
	}
}

func (c *Client) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Slow consumer: drop the oldest message to make room.
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (c *Client) enqueueJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal outbound: %v", err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.resyncStop)
		c.hub.unregister(c)
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
