package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"kingchu-bridge/internal/relay"
)

const (
	roomsKey       = "kingchu:rooms"
	statePrefix    = "kingchu:state:"
	defaultCallTTL = 5 * time.Second
)

// RedisStore keeps the registry and per-room snapshots in Redis so that
// several relay processes share one view. Snapshots expire after the
// configured window; the registry lives until the next overwrite.
type RedisStore struct {
	rdb      *redis.Client
	stateTTL time.Duration
}

func NewRedisStore(ctx context.Context, url string, stateTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, defaultCallTTL)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisStore{rdb: rdb, stateTTL: stateTTL}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Client exposes the underlying connection so the bridge can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func (s *RedisStore) Rooms(ctx context.Context) (relay.Registry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTTL)
	defer cancel()
	raw, err := s.rdb.Get(ctx, roomsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return relay.Registry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms relay.Registry
	if err := json.Unmarshal(raw, &rooms); err != nil {
		// Corrupt registry bytes count as an empty registry, never an error.
		log.Printf("store: discarding unreadable rooms document: %v", err)
		return relay.Registry{}, nil
	}
	return rooms, nil
}

func (s *RedisStore) SaveRooms(ctx context.Context, rooms relay.Registry) error {
	raw, err := json.Marshal(rooms)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultCallTTL)
	defer cancel()
	return s.rdb.Set(ctx, roomsKey, raw, 0).Err()
}

func (s *RedisStore) LastState(ctx context.Context, roomID string) (relay.Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTTL)
	defer cancel()
	raw, err := s.rdb.Get(ctx, statePrefix+roomID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !json.Valid(raw) {
		log.Printf("store: discarding unreadable snapshot for room %s", roomID)
		return nil, false, nil
	}
	return relay.Snapshot(raw), true, nil
}

func (s *RedisStore) SetLastState(ctx context.Context, roomID string, state relay.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, defaultCallTTL)
	defer cancel()
	return s.rdb.Set(ctx, statePrefix+roomID, []byte(state), s.stateTTL).Err()
}
