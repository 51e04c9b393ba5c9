package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kingchu-bridge/internal/relay"
	"kingchu-bridge/internal/store"
)

type testEvent struct {
	Event   string                      `json:"event"`
	Rooms   map[string]relay.PublicView `json:"rooms"`
	State   json.RawMessage             `json:"state"`
	Type    string                      `json:"type"`
	Message string                      `json:"message"`
	TS      int64                       `json:"ts"`
}

type recordingPublisher struct {
	mu     sync.Mutex
	states []string
	chats  []string
}

func (p *recordingPublisher) PublishState(_ context.Context, roomID string, _ relay.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, roomID)
}

func (p *recordingPublisher) PublishChat(_ context.Context, roomID string, _ relay.ChatPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chats = append(p.chats, roomID)
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:         "test-" + time.Now().Format("150405.000000000"),
		hub:        hub,
		send:       make(chan []byte, 32),
		resyncStop: make(chan struct{}),
	}
}

func recv(t *testing.T, c *Client) testEvent {
	t.Helper()
	select {
	case raw := <-c.send:
		var evt testEvent
		require.NoError(t, json.Unmarshal(raw, &evt))
		return evt
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no message received")
		return testEvent{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected message: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func setupHub(t *testing.T) (*Hub, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewHub(st, 4), st
}

func joinQuiet(t *testing.T, h *Hub, c *Client, roomID string) {
	t.Helper()
	h.Join(context.Background(), c, roomID)
	recv(t, c) // swallow the join snapshot
}

func TestJoinWithoutSnapshotSendsEmptyDocument(t *testing.T) {
	h, _ := setupHub(t)
	c := newTestClient(h)

	h.Join(context.Background(), c, "room1")

	evt := recv(t, c)
	assert.Equal(t, "stateUpdate", evt.Event)
	assert.JSONEq(t, `{}`, string(evt.State))
}

func TestRepeatedJoinIsIdempotent(t *testing.T) {
	h, st := setupHub(t)
	require.NoError(t, st.SetLastState(context.Background(), "room1", relay.Snapshot(`{"phase":"bidding","turn":1}`)))
	c := newTestClient(h)

	for i := 0; i < 3; i++ {
		h.Join(context.Background(), c, "room1")
		evt := recv(t, c)
		assert.Equal(t, "stateUpdate", evt.Event)
		assert.JSONEq(t, `{"phase":"bidding","turn":1}`, string(evt.State))
	}
	assert.Equal(t, 1, h.roomSize("room1"))
}

func TestUpdateStateExcludesSenderAndPersists(t *testing.T) {
	h, st := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`{"phase":"bidding","turn":1}`))

	evt := recv(t, peer)
	assert.Equal(t, "stateUpdate", evt.Event)
	assert.JSONEq(t, `{"phase":"bidding","turn":1}`, string(evt.State))
	assertSilent(t, sender)

	snap, ok, err := st.LastState(context.Background(), "room1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"phase":"bidding","turn":1}`, string(snap))

	// Sender re-joining gets the same object back.
	h.Join(context.Background(), sender, "room1")
	evt = recv(t, sender)
	assert.JSONEq(t, `{"phase":"bidding","turn":1}`, string(evt.State))
}

func TestUpdateStatePreservesOrder(t *testing.T) {
	h, _ := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`{"seq":1}`))
	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`{"seq":2}`))

	first := recv(t, peer)
	second := recv(t, peer)
	assert.JSONEq(t, `{"seq":1}`, string(first.State))
	assert.JSONEq(t, `{"seq":2}`, string(second.State))
}

func TestUpdateStateMissingArgsIsNoop(t *testing.T) {
	h, st := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	h.UpdateState(context.Background(), sender, "", relay.Snapshot(`{"x":1}`))
	h.UpdateState(context.Background(), sender, "room1", nil)

	assertSilent(t, peer)
	_, ok, err := st.LastState(context.Background(), "room1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStateNullSnapshotIsNoop(t *testing.T) {
	h, st := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	require.NoError(t, st.SetLastState(context.Background(), "room1", relay.Snapshot(`{"turn":1}`)))

	// A JSON null decodes to RawMessage("null"), which must not clobber
	// the last good snapshot or reach any peer.
	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`null`))

	assertSilent(t, peer)
	snap, ok, err := st.LastState(context.Background(), "room1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"turn":1}`, string(snap))

	h.Join(context.Background(), sender, "room1")
	evt := recv(t, sender)
	assert.JSONEq(t, `{"turn":1}`, string(evt.State))
}

func TestChatEchoesToSenderWithDefaults(t *testing.T) {
	h, _ := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	before := relay.NowMillis()
	h.Chat(context.Background(), sender, "room1", "", "hello")

	for _, c := range []*Client{sender, peer} {
		evt := recv(t, c)
		assert.Equal(t, "chat", evt.Event)
		assert.Equal(t, "player", evt.Type)
		assert.Equal(t, "hello", evt.Message)
		assert.GreaterOrEqual(t, evt.TS, before)
	}
}

func TestChatEmptyMessageKeepsFieldOnWire(t *testing.T) {
	h, _ := setupHub(t)
	sender := newTestClient(h)
	joinQuiet(t, h, sender, "room1")

	h.Chat(context.Background(), sender, "room1", "player", "")

	select {
	case raw := <-sender.send:
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &fields))
		require.Contains(t, fields, "message")
		assert.Equal(t, `""`, string(fields["message"]))
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no chat received")
	}
}

func TestSaveRoomsBroadcastsProjectionToAllClients(t *testing.T) {
	h, _ := setupHub(t)
	a := newTestClient(h)
	b := newTestClient(h)
	h.register(a)
	h.register(b)
	recv(t, a) // initial roomsList on connect
	recv(t, b)

	doc := relay.Registry{
		"abc123": {
			Host:    "p1",
			Players: []relay.Player{{ID: "p1", Name: "Alice", Index: 0}},
		},
	}
	h.SaveRooms(context.Background(), doc)

	for _, c := range []*Client{a, b} {
		evt := recv(t, c)
		require.Equal(t, "roomsList", evt.Event)
		require.Contains(t, evt.Rooms, "abc123")
		view := evt.Rooms["abc123"]
		assert.Equal(t, "abc123", view.ID)
		assert.Equal(t, "p1", view.Host)
		assert.Equal(t, []relay.Player{{ID: "p1", Name: "Alice", Index: 0}}, view.Players)
		assert.False(t, view.GameStarted)
		assert.NotZero(t, view.Created)
	}
}

func TestLeaveStopsDeliveryAndPrunesRoom(t *testing.T) {
	h, _ := setupHub(t)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	h.Leave(peer, "room1")
	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`{"x":1}`))
	assertSilent(t, peer)

	h.Leave(sender, "room1")
	assert.Equal(t, 0, h.roomSize("room1"))
}

func TestUpdateStatePublishesToBridgeButDispatchDoesNot(t *testing.T) {
	h, _ := setupHub(t)
	pub := &recordingPublisher{}
	h.SetPublisher(pub)
	sender := newTestClient(h)
	peer := newTestClient(h)
	joinQuiet(t, h, sender, "room1")
	joinQuiet(t, h, peer, "room1")

	h.UpdateState(context.Background(), sender, "room1", relay.Snapshot(`{"x":1}`))
	recv(t, peer)
	assert.Equal(t, []string{"room1"}, pub.states)

	// Remote events fan out locally to everyone and never republish.
	h.DispatchState("room1", relay.Snapshot(`{"x":2}`))
	for _, c := range []*Client{sender, peer} {
		evt := recv(t, c)
		assert.JSONEq(t, `{"x":2}`, string(evt.State))
	}
	assert.Equal(t, []string{"room1"}, pub.states)

	h.DispatchChat("room1", relay.ChatPayload{Type: "system", Message: "hi", TS: 1})
	for _, c := range []*Client{sender, peer} {
		evt := recv(t, c)
		assert.Equal(t, "chat", evt.Event)
		assert.Equal(t, "system", evt.Type)
	}
	assert.Empty(t, pub.chats)
}

func TestChatPublishesToBridge(t *testing.T) {
	h, _ := setupHub(t)
	pub := &recordingPublisher{}
	h.SetPublisher(pub)
	sender := newTestClient(h)
	joinQuiet(t, h, sender, "room1")

	h.Chat(context.Background(), sender, "room1", "player", "hi")
	recv(t, sender)
	assert.Equal(t, []string{"room1"}, pub.chats)
}

func TestUpdateStateWithoutLocalMembersStillPersists(t *testing.T) {
	h, st := setupHub(t)
	pub := &recordingPublisher{}
	h.SetPublisher(pub)
	sender := newTestClient(h)

	h.UpdateState(context.Background(), sender, "ghost", relay.Snapshot(`{"x":1}`))

	snap, ok, err := st.LastState(context.Background(), "ghost")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(snap))
	assert.Equal(t, []string{"ghost"}, pub.states)
}
