// Package adapter defines the raw backend contract used by tagcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key (no
// prepended/appended metadata, no re-encoding, no mutation). If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed so that the bytes returned by Get are identical to the bytes
// provided to Set.
//
// The "rec:" and "tag:" keyspaces are owned by tagcache's storage wrapper and
// tag store; the lock keyspace is owned by the adapter itself. External code
// MUST NOT write under these prefixes - foreign writes may be treated as
// corruption by the envelope validation and deleted.
package adapter

import (
	"context"
	"time"
)

// Status reports whether the backend behind an adapter is reachable.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Adapter is the raw byte store every backend must expose. All methods must
// be safe for concurrent use.
type Adapter interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key and reports whether it existed.
	Del(ctx context.Context, key string) (bool, error)

	// MGet returns the present subset of keys; absent keys are simply
	// missing from the result map.
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// MSet stores all items with one shared TTL (best-effort per item).
	MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// AcquireLock takes the exclusive lock for key with the given TTL.
	// Returns false when another holder owns it.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ReleaseLock drops the lock for key and reports whether it was held.
	ReleaseLock(ctx context.Context, key string) (bool, error)

	// IsLockExists reports whether the lock for key is currently held.
	IsLockExists(ctx context.Context, key string) (bool, error)

	// Status is a cheap, local view of connectivity.
	Status() Status

	// OnConnect registers a callback fired on every disconnected ->
	// connected transition.
	OnConnect(fn func())

	// Close releases resources.
	Close(ctx context.Context) error
}
