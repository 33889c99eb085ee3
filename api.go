package tagcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tagcache/adapter"
	"github.com/unkn0wn-root/tagcache/bloom"
	c "github.com/unkn0wn-root/tagcache/codec"
	ts "github.com/unkn0wn-root/tagcache/tagstore"
)

// Executor is the caller-supplied thunk that produces a fresh value on a
// miss or stale read. It may block; it may fail.
type Executor[V any] func(ctx context.Context) (V, error)

// Strategy selects the contention behavior when another caller holds the
// recompute lock for a key.
type Strategy int

const (
	// StrategyDefault defers to the cache-level default (waitForResult).
	StrategyDefault Strategy = iota
	// StrategyWaitForResult polls the store with backoff until the winner's
	// record appears, up to a bounded wait, then falls through to the
	// executor.
	StrategyWaitForResult
	// StrategyRunExecutor computes immediately and returns the result
	// without writing, leaving the store to the lock holder.
	StrategyRunExecutor
)

// GetOptions tune a single read. The zero value is valid.
type GetOptions struct {
	ExpiresIn time.Duration // TTL for a recomputed record; 0 => cache default
	Tags      []string
	TagsFunc  func() []string // wins over Tags; resolved at write-back time
	Manager   string          // manager name; "" => cache default
	Strategy  Strategy
}

// SetOptions tune a single write. The zero value is valid.
type SetOptions struct {
	ExpiresIn time.Duration
	Tags      []string
	TagsFunc  func() []string
	Manager   string
	Permanent bool // disable time-based expiry; tag invalidation still applies
}

// Manager is a caching discipline. Implementations: ReadThrough,
// WriteThrough, RefreshAhead (single tier) and MultiLevel (tiered).
type Manager[V any] interface {
	Name() string
	Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error)
	Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error)
}

// Deleter is optionally implemented by managers that own their backends
// (e.g. MultiLevel). The façade forwards Del to it when present.
type Deleter interface {
	Del(ctx context.Context, key string) (bool, error)
}

// Cache is the façade: it owns the default storage, a registry of managers,
// and the per-cache defaults every operation inherits.
type Cache[V any] interface {
	Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error)
	Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error)
	Del(ctx context.Context, key string) (bool, error)
	Touch(ctx context.Context, tags ...string) error

	// Register adds m under m.Name(). Duplicate names are refused: the
	// already-registered manager is returned instead of being overwritten.
	Register(m Manager[V]) Manager[V]
	Manager(name string) (Manager[V], bool)

	// ManagerConfig returns the cache defaults (storage, logger, hooks,
	// bloom filter, lock strategy) prefilled for manager constructors.
	ManagerConfig() ManagerConfig[V]

	// Storage exposes the default storage for direct touch/lock access.
	Storage() Storage[V]

	Close(ctx context.Context) error
}

// Options construct a Cache. Adapter and Codec are required; everything else
// has defaults.
type Options[V any] struct {
	// Required
	Adapter adapter.Adapter
	Codec   c.Codec[V]

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// TagStore overrides where tag versions live; nil => tagstore.NewAdapter
	// over Adapter (versions colocated with the data).
	TagStore ts.TagStore

	DefaultManager string        // "" => read-through
	DefaultTTL     time.Duration // 0 => 10m
	Prefix         string        // prepended to every key with ":"
	HashKeys       bool          // digest keys before storage

	OperationTimeout time.Duration // per storage call; 0 => 150ms
	LockExpire       time.Duration // per-key lock TTL; 0 => 20s
	LockWaitMax      time.Duration // waitForResult bound; 0 => 5s
	Strategy         Strategy      // default contention behavior

	EnableBloomFilter bool
	BloomFilter       bloom.Config

	// CloseAdapter makes Cache.Close close the adapter too. Set it only if
	// the cache exclusively owns the adapter.
	CloseAdapter bool
}

// New builds a Cache with a read-through manager pre-registered as the
// default discipline.
func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
