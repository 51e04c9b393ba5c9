package bridge

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"kingchu-bridge/internal/relay"
)

const (
	stateChannel = "kingchu:bridge:state"
	chatChannel  = "kingchu:bridge:chat"
)

// LocalDispatcher rebroadcasts a remote event to this process's own
// room subscribers. It must not publish back to the bridge.
type LocalDispatcher interface {
	DispatchState(roomID string, state relay.Snapshot)
	DispatchChat(roomID string, payload relay.ChatPayload)
}

type stateEnvelope struct {
	Origin string         `json:"origin"`
	RoomID string         `json:"roomId"`
	State  relay.Snapshot `json:"state"`
}

type chatEnvelope struct {
	Origin  string            `json:"origin"`
	RoomID  string            `json:"roomId"`
	Payload relay.ChatPayload `json:"payload"`
}

// Bridge mirrors state and chat events between relay processes over
// Redis pub/sub. Redis echoes published messages back to the publisher,
// so every envelope carries the origin instance ID and the subscriber
// drops its own.
type Bridge struct {
	rdb      *redis.Client
	origin   string
	dispatch LocalDispatcher
	cancel   context.CancelFunc
}

// New connects the bridge and starts its subscribe loop. A subscribe
// failure at startup returns an error; the caller runs local-only.
func New(ctx context.Context, rdb *redis.Client, dispatch LocalDispatcher) (*Bridge, error) {
	b := &Bridge{
		rdb:      rdb,
		origin:   uuid.NewString(),
		dispatch: dispatch,
	}

	sub := rdb.Subscribe(ctx, stateChannel, chatChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.run(runCtx, sub)
	return b, nil
}

func (b *Bridge) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *Bridge) run(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				log.Printf("bridge: subscription closed, continuing local-only")
				return
			}
			b.handleMessage(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *Bridge) handleMessage(channel string, payload []byte) {
	switch channel {
	case stateChannel:
		var env stateEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("bridge: bad state envelope: %v", err)
			return
		}
		if env.Origin == b.origin || env.RoomID == "" {
			return
		}
		b.dispatch.DispatchState(env.RoomID, env.State)
	case chatChannel:
		var env chatEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			log.Printf("bridge: bad chat envelope: %v", err)
			return
		}
		if env.Origin == b.origin || env.RoomID == "" {
			return
		}
		b.dispatch.DispatchChat(env.RoomID, env.Payload)
	}
}

// PublishState relays a snapshot to other processes. Failures are
// logged and swallowed; the local broadcast has already happened.
func (b *Bridge) PublishState(ctx context.Context, roomID string, state relay.Snapshot) {
	raw, err := json.Marshal(stateEnvelope{Origin: b.origin, RoomID: roomID, State: state})
	if err != nil {
		log.Printf("bridge: marshal state envelope: %v", err)
		return
	}
	if err := b.rdb.Publish(ctx, stateChannel, raw).Err(); err != nil {
		log.Printf("bridge: publish state for room %s: %v", roomID, err)
	}
}

func (b *Bridge) PublishChat(ctx context.Context, roomID string, payload relay.ChatPayload) {
	raw, err := json.Marshal(chatEnvelope{Origin: b.origin, RoomID: roomID, Payload: payload})
	if err != nil {
		log.Printf("bridge: marshal chat envelope: %v", err)
		return
	}
	if err := b.rdb.Publish(ctx, chatChannel, raw).Err(); err != nil {
		log.Printf("bridge: publish chat for room %s: %v", roomID, err)
	}
}
