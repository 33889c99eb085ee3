package tagcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/tagcache/bloom"
	ts "github.com/unkn0wn-root/tagcache/tagstore"
)

type cache[V any] struct {
	storage Storage[V]
	log     Logger
	hooks   Hooks
	bloom   *bloom.Filter

	defaultManager string
	strategy       Strategy
	lockWaitMax    time.Duration

	mu       sync.RWMutex
	managers map[string]Manager[V]
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Adapter == nil {
		return nil, errRequired("adapter")
	}
	if opts.Codec == nil {
		return nil, errRequired("codec")
	}

	c := &cache[V]{
		defaultManager: coalesce(opts.DefaultManager, ReadThroughName),
		strategy:       coalesce[Strategy](opts.Strategy, StrategyWaitForResult),
		lockWaitMax:    coalesce[time.Duration](opts.LockWaitMax, defaultLockWaitMax),
		managers:       make(map[string]Manager[V]),
	}
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.EnableBloomFilter {
		bf, err := bloom.New(opts.BloomFilter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		c.bloom = bf
	}

	tags := opts.TagStore
	if tags == nil {
		tags = ts.NewAdapter(opts.Adapter)
	}

	st, err := NewStorage[V](StorageConfig[V]{
		Adapter:          opts.Adapter,
		Codec:            opts.Codec,
		Tags:             tags,
		Logger:           c.log,
		Hooks:            c.hooks,
		Prefix:           opts.Prefix,
		HashKeys:         opts.HashKeys,
		DefaultTTL:       opts.DefaultTTL,
		OperationTimeout: opts.OperationTimeout,
		LockExpire:       opts.LockExpire,
		CloseAdapter:     opts.CloseAdapter,
	})
	if err != nil {
		return nil, err
	}
	c.storage = st

	rt, err := NewReadThrough[V](c.ManagerConfig())
	if err != nil {
		return nil, err
	}
	c.managers[rt.Name()] = rt

	return c, nil
}

// ManagerConfig returns the cache defaults prefilled for manager
// constructors, so registration reads
//
//	wt, _ := tagcache.NewWriteThrough(tagcache.WriteThroughConfig[User]{ManagerConfig: c.ManagerConfig()})
//	c.Register(wt)
func (c *cache[V]) ManagerConfig() ManagerConfig[V] {
	return ManagerConfig[V]{
		Storage:     c.storage,
		Logger:      c.log,
		Hooks:       c.hooks,
		Bloom:       c.bloom,
		Strategy:    c.strategy,
		LockWaitMax: c.lockWaitMax,
	}
}

func (c *cache[V]) Register(m Manager[V]) Manager[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.managers[m.Name()]; ok {
		c.log.Warn("manager already registered; keeping existing", Fields{"name": m.Name()})
		return existing
	}
	c.managers[m.Name()] = m
	return m
}

func (c *cache[V]) Manager(name string) (Manager[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[name]
	return m, ok
}

func (c *cache[V]) resolve(name string) (Manager[V], error) {
	if name == "" {
		name = c.defaultManager
	}
	c.mu.RLock()
	m, ok := c.managers[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown manager %q", ErrInvalidConfig, name)
	}
	return m, nil
}

func (c *cache[V]) Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error) {
	m, err := c.resolve(opts.Manager)
	if err != nil {
		var zero V
		return zero, err
	}
	return m.Get(ctx, key, exec, opts)
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	m, err := c.resolve(opts.Manager)
	if err != nil {
		return nil, err
	}
	return m.Set(ctx, key, value, opts)
}

func (c *cache[V]) Touch(ctx context.Context, tags ...string) error {
	return c.storage.Touch(ctx, tags...)
}

// Del forwards to the default manager when it owns deletion (multi-level),
// otherwise to the default storage.
func (c *cache[V]) Del(ctx context.Context, key string) (bool, error) {
	m, err := c.resolve("")
	if err != nil {
		return false, err
	}
	if d, ok := m.(Deleter); ok {
		return d.Del(ctx, key)
	}
	return c.storage.Del(ctx, key)
}

func (c *cache[V]) Storage() Storage[V] { return c.storage }

func (c *cache[V]) Close(ctx context.Context) error {
	return c.storage.Close(ctx)
}
