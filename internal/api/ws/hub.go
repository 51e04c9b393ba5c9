package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"kingchu-bridge/internal/relay"
	"kingchu-bridge/internal/store"
)

// Publisher relays locally accepted events to other relay processes.
// Nil when the bridge is disabled.
type Publisher interface {
	PublishState(ctx context.Context, roomID string, state relay.Snapshot)
	PublishChat(ctx context.Context, roomID string, payload relay.ChatPayload)
}

type outbound struct {
	Event string                      `json:"event"`
	Rooms map[string]relay.PublicView `json:"rooms,omitempty"`
	State relay.Snapshot              `json:"state,omitempty"`
	// Message is a pointer so a chat with an empty string still carries
	// the field on the wire, while non-chat events omit it.
	Type    string  `json:"type,omitempty"`
	Message *string `json:"message,omitempty"`
	TS      int64   `json:"ts,omitempty"`
}

// roomGroup is one room's broadcast set. writeMu serializes the
// persist-then-broadcast section so every local member observes state
// updates in the order they were accepted, and a stalled store call
// holds up only this room.
type roomGroup struct {
	writeMu sync.Mutex
	members map[*Client]struct{}
}

// Hub is the fanout engine: it owns room membership and dispatches
// state, chat and lobby events between sessions, the store and the
// optional cross-process bridge.
type Hub struct {
	store      store.Store
	maxPlayers int

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]*roomGroup

	publisher Publisher
}

func NewHub(s store.Store, maxPlayers int) *Hub {
	return &Hub{
		store:      s,
		maxPlayers: maxPlayers,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]*roomGroup),
	}
}

// SetPublisher wires the bridge in after construction. The bridge needs
// the hub as its local dispatcher, so the hub is built first. Call
// before the hub starts serving connections.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// Lobby list straight away, matching what the browser expects on connect.
	h.SendRooms(context.Background(), c)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	for roomID, g := range h.rooms {
		if _, ok := g.members[c]; ok {
			delete(g.members, c)
			if len(g.members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()
}

// Join subscribes the connection to a room and answers with the latest
// snapshot, or the empty-document sentinel when there is none. Only the
// joining connection receives the reply. Read-only on the store, so
// repeated joins are harmless.
func (h *Hub) Join(ctx context.Context, c *Client, roomID string) {
	h.mu.Lock()
	g, ok := h.rooms[roomID]
	if !ok {
		g = &roomGroup{members: make(map[*Client]struct{})}
		h.rooms[roomID] = g
	}
	g.members[c] = struct{}{}
	h.mu.Unlock()

	snap, ok, err := h.store.LastState(ctx, roomID)
	if err != nil {
		log.Printf("hub: last state for room %s: %v", roomID, err)
		ok = false
	}
	if !ok {
		snap = relay.EmptySnapshot
	}
	c.enqueueJSON(outbound{Event: "stateUpdate", State: snap})
}

// Leave drops the connection from a room's broadcast set. The stored
// snapshot is untouched.
func (h *Hub) Leave(c *Client, roomID string) {
	h.mu.Lock()
	if g, ok := h.rooms[roomID]; ok {
		delete(g.members, c)
		if len(g.members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()
}

// UpdateState persists the snapshot (last write wins) and fans it out
// to every other member of the room. The sender never hears its own
// update back. A failed persist is logged and the broadcast still runs.
func (h *Hub) UpdateState(ctx context.Context, sender *Client, roomID string, state relay.Snapshot) {
	// A JSON null decodes to the bytes "null", not an empty slice; both
	// mean the client sent no state.
	if roomID == "" || len(state) == 0 || string(state) == "null" {
		return
	}

	h.mu.RLock()
	g := h.rooms[roomID]
	h.mu.RUnlock()

	if g == nil {
		// No local members; still persist and relay for other processes.
		if err := h.store.SetLastState(ctx, roomID, state); err != nil {
			log.Printf("hub: persist state for room %s: %v", roomID, err)
		}
		h.publishState(ctx, roomID, state)
		return
	}

	g.writeMu.Lock()
	if err := h.store.SetLastState(ctx, roomID, state); err != nil {
		log.Printf("hub: persist state for room %s: %v", roomID, err)
	}
	h.broadcast(g, outbound{Event: "stateUpdate", State: state}, sender)
	g.writeMu.Unlock()

	h.publishState(ctx, roomID, state)

	if phase := relay.SnapshotPhase(state); phase != "" {
		log.Printf("hub: room %s entered phase %q", roomID, phase)
	}
}

// Chat stamps and fans out a chat message to the whole room, sender
// included. Chat is informational, so unlike state updates the sender
// gets the echo. Never persisted.
func (h *Hub) Chat(ctx context.Context, sender *Client, roomID, chatType, message string) {
	if roomID == "" {
		return
	}
	if chatType == "" {
		chatType = "player"
	}
	payload := relay.ChatPayload{Type: chatType, Message: message, TS: relay.NowMillis()}

	h.mu.RLock()
	g := h.rooms[roomID]
	h.mu.RUnlock()

	if g != nil {
		g.writeMu.Lock()
		h.broadcast(g, chatOutbound(payload), nil)
		g.writeMu.Unlock()
	}
	h.publishChat(ctx, roomID, payload)
}

// SaveRooms replaces the registry from a client push and tells every
// connected session about the new lobby.
func (h *Hub) SaveRooms(ctx context.Context, doc relay.Registry) {
	rooms := relay.Normalize(doc, h.maxPlayers)
	if err := h.store.SaveRooms(ctx, rooms); err != nil {
		log.Printf("hub: save rooms: %v", err)
		return
	}
	h.broadcastRooms(ctx)
}

// SendRooms answers one connection with the current lobby projection.
func (h *Hub) SendRooms(ctx context.Context, c *Client) {
	rooms, err := h.store.Rooms(ctx)
	if err != nil {
		log.Printf("hub: list rooms: %v", err)
		rooms = relay.Registry{}
	}
	c.enqueueJSON(outbound{Event: "roomsList", Rooms: relay.Project(rooms)})
}

func (h *Hub) broadcastRooms(ctx context.Context) {
	rooms, err := h.store.Rooms(ctx)
	if err != nil {
		log.Printf("hub: list rooms: %v", err)
		return
	}
	payload, err := json.Marshal(outbound{Event: "roomsList", Rooms: relay.Project(rooms)})
	if err != nil {
		log.Printf("hub: marshal rooms list: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(payload)
	}
}

// DispatchState delivers a remote process's state update to all local
// members of the room. No exclusion (the sender lives elsewhere) and no
// republish (that would loop).
func (h *Hub) DispatchState(roomID string, state relay.Snapshot) {
	h.mu.RLock()
	g := h.rooms[roomID]
	h.mu.RUnlock()
	if g == nil {
		return
	}
	g.writeMu.Lock()
	h.broadcast(g, outbound{Event: "stateUpdate", State: state}, nil)
	g.writeMu.Unlock()
}

func (h *Hub) DispatchChat(roomID string, payload relay.ChatPayload) {
	h.mu.RLock()
	g := h.rooms[roomID]
	h.mu.RUnlock()
	if g == nil {
		return
	}
	g.writeMu.Lock()
	h.broadcast(g, chatOutbound(payload), nil)
	g.writeMu.Unlock()
}

func chatOutbound(payload relay.ChatPayload) outbound {
	return outbound{Event: "chat", Type: payload.Type, Message: &payload.Message, TS: payload.TS}
}

// broadcast enqueues a message for every member of the group except
// exclude. Caller holds the group's writeMu.
func (h *Hub) broadcast(g *roomGroup, msg outbound, exclude *Client) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("hub: marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(g.members))
	for c := range g.members {
		if c == exclude {
			continue
		}
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(payload)
	}
}

func (h *Hub) publishState(ctx context.Context, roomID string, state relay.Snapshot) {
	if h.publisher != nil {
		h.publisher.PublishState(ctx, roomID, state)
	}
}

func (h *Hub) publishChat(ctx context.Context, roomID string, payload relay.ChatPayload) {
	if h.publisher != nil {
		h.publisher.PublishChat(ctx, roomID, payload)
	}
}

// roomSize reports the current local membership of a room.
func (h *Hub) roomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if g, ok := h.rooms[roomID]; ok {
		return len(g.members)
	}
	return 0
}
