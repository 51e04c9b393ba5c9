package store

import (
	"context"

	"kingchu-bridge/internal/relay"
)

// Store persists the room registry and the latest snapshot per room.
// Implementations may be backed by memory or Redis; call sites never
// branch on which one they got.
type Store interface {
	// Rooms returns the current registry, empty when nothing is registered.
	Rooms(ctx context.Context) (relay.Registry, error)

	// SaveRooms replaces the whole registry. Full overwrite, not a merge.
	SaveRooms(ctx context.Context, rooms relay.Registry) error

	// LastState returns the latest snapshot for a room. ok is false when
	// no snapshot was ever written or the stored bytes are unusable.
	LastState(ctx context.Context, roomID string) (relay.Snapshot, bool, error)

	// SetLastState overwrites the room's snapshot unconditionally.
	SetLastState(ctx context.Context, roomID string, state relay.Snapshot) error
}
