package store

import (
	"context"
	"sync"

	"kingchu-bridge/internal/relay"
)

type MemoryStore struct {
	mu        sync.RWMutex
	rooms     relay.Registry
	lastState map[string]relay.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     relay.Registry{},
		lastState: map[string]relay.Snapshot{},
	}
}

func (m *MemoryStore) Rooms(ctx context.Context) (relay.Registry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(relay.Registry, len(m.rooms))
	for id, r := range m.rooms {
		out[id] = r
	}
	return out, nil
}

func (m *MemoryStore) SaveRooms(ctx context.Context, rooms relay.Registry) error {
	next := make(relay.Registry, len(rooms))
	for id, r := range rooms {
		next[id] = r
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = next
	return nil
}

func (m *MemoryStore) LastState(ctx context.Context, roomID string) (relay.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.lastState[roomID]
	if !ok {
		return nil, false, nil
	}
	out := make(relay.Snapshot, len(s))
	copy(out, s)
	return out, true, nil
}

func (m *MemoryStore) SetLastState(ctx context.Context, roomID string, state relay.Snapshot) error {
	cp := make(relay.Snapshot, len(state))
	copy(cp, state)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastState[roomID] = cp
	return nil
}
