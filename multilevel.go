package tagcache

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tagcache/adapter"
	"github.com/unkn0wn-root/tagcache/bloom"
	c "github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/internal/util"
)

const MultiLevelName = "multi-level"

// FallbackStrategy selects what a multi-level Get does when every level
// missed.
type FallbackStrategy int

const (
	// FallbackExecutor runs the executor and seeds every enabled level.
	FallbackExecutor FallbackStrategy = iota
	// FallbackNextLevel behaves like FallbackExecutor today; reserved for a
	// chained-loader extension.
	FallbackNextLevel
	// FallbackFail returns ErrCacheMiss without running the executor.
	FallbackFail
)

// Level describes one storage tier. Levels are walked in ascending Priority;
// the first enabled hit wins and warms every level above it.
type Level struct {
	Name     string
	Adapter  adapter.Adapter
	Priority int
	// TTL overrides the caller's ExpiresIn for writes to this level. A
	// level TTL wins even over Permanent writes.
	TTL      time.Duration
	Disabled bool // initial state; toggle at runtime by name
}

// LevelInfo is a read-only snapshot of a configured level.
type LevelInfo struct {
	Name     string
	Priority int
	TTL      time.Duration
	Enabled  bool
}

// LevelMetrics are per-level operation counters, eventually consistent under
// concurrent readers.
type LevelMetrics struct {
	Hits   uint64
	Misses uint64
	Sets   uint64
	Dels   uint64
}

type mlLevel struct {
	name     string
	adapter  adapter.Adapter
	priority int
	ttl      time.Duration

	enabled atomic.Bool

	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
	dels   atomic.Uint64
}

// MultiLevel composes ordered storage tiers over the raw adapter interface.
// Values cross tiers as codec bytes only: no record envelope, so tag
// metadata does not propagate between levels and staleness within a tier is
// that tier's (TTL) responsibility.
type MultiLevel[V any] struct {
	levels []*mlLevel // sorted by ascending priority
	codec  c.Codec[V]
	log    Logger
	hooks  Hooks
	bloom  *bloom.Filter

	prefix   string
	hashKeys bool

	ttl       time.Duration
	opTimeout time.Duration
	fallback  FallbackStrategy
}

var _ Manager[string] = (*MultiLevel[string])(nil)
var _ Deleter = (*MultiLevel[string])(nil)

type MultiLevelConfig[V any] struct {
	// Required
	Levels []Level
	Codec  c.Codec[V]

	Logger Logger
	Hooks  Hooks
	Bloom  *bloom.Filter // one pre-check for the whole manager, not per tier

	Prefix   string
	HashKeys bool

	DefaultTTL       time.Duration // 0 => 10m
	OperationTimeout time.Duration // per adapter call; 0 => 150ms
	Fallback         FallbackStrategy
}

func NewMultiLevel[V any](cfg MultiLevelConfig[V]) (*MultiLevel[V], error) {
	if len(cfg.Levels) == 0 {
		return nil, fmt.Errorf("%w: multi-level needs at least one level", ErrInvalidConfig)
	}
	if cfg.Codec == nil {
		return nil, errRequired("codec")
	}

	m := &MultiLevel[V]{
		codec:     cfg.Codec,
		log:       coalesce[Logger](cfg.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](cfg.Hooks, NopHooks{}),
		bloom:     cfg.Bloom,
		prefix:    cfg.Prefix,
		hashKeys:  cfg.HashKeys,
		ttl:       coalesce[time.Duration](cfg.DefaultTTL, defaultTTL),
		opTimeout: coalesce[time.Duration](cfg.OperationTimeout, defaultOpTimeout),
		fallback:  cfg.Fallback,
	}

	seen := make(map[string]struct{}, len(cfg.Levels))
	for _, lc := range cfg.Levels {
		if lc.Name == "" {
			return nil, fmt.Errorf("%w: level name is required", ErrInvalidConfig)
		}
		if lc.Adapter == nil {
			return nil, fmt.Errorf("%w: level %q has no adapter", ErrInvalidConfig, lc.Name)
		}
		if _, dup := seen[lc.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate level name %q", ErrInvalidConfig, lc.Name)
		}
		seen[lc.Name] = struct{}{}

		lvl := &mlLevel{
			name:     lc.Name,
			adapter:  lc.Adapter,
			priority: lc.Priority,
			ttl:      lc.TTL,
		}
		lvl.enabled.Store(!lc.Disabled)
		m.levels = append(m.levels, lvl)
	}
	sort.SliceStable(m.levels, func(i, j int) bool {
		return m.levels[i].priority < m.levels[j].priority
	})
	return m, nil
}

func (m *MultiLevel[V]) Name() string { return MultiLevelName }

func (m *MultiLevel[V]) key(key string) string {
	return util.CacheKey(m.prefix, key, m.hashKeys)
}

func (m *MultiLevel[V]) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.opTimeout)
}

func (m *MultiLevel[V]) Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error) {
	var zero V

	skip := false
	if m.bloom != nil && !m.bloom.MightContain(key) {
		m.hooks.BloomSkip(key)
		skip = true
	}

	if !skip {
		k := m.key(key)
		for i, lvl := range m.levels {
			if !lvl.enabled.Load() {
				continue
			}

			octx, cancel := m.opCtx(ctx)
			raw, ok, err := lvl.adapter.Get(octx, k)
			cancel()
			if err != nil || !ok {
				lvl.misses.Add(1)
				if err != nil {
					m.log.Debug("level read failed", Fields{"level": lvl.name, "key": key, "err": err})
				}
				continue
			}

			v, derr := m.codec.Decode(raw)
			if derr != nil {
				lvl.misses.Add(1)
				m.log.Debug("level payload decode failed", Fields{"level": lvl.name, "key": key, "err": derr})
				continue
			}

			lvl.hits.Add(1)
			m.warm(ctx, i, key, raw, opts.ExpiresIn)
			return v, nil
		}
	}

	switch m.fallback {
	case FallbackFail:
		return zero, ErrCacheMiss
	default: // FallbackExecutor and, for now, FallbackNextLevel
		v, err := exec(ctx)
		if err != nil {
			return zero, &ExecutorError{Key: key, Err: err}
		}
		if _, serr := m.Set(ctx, key, v, SetOptions{ExpiresIn: opts.ExpiresIn, Tags: opts.Tags, TagsFunc: opts.TagsFunc}); serr != nil {
			m.log.Warn("post-fallback set failed", Fields{"key": key, "err": serr})
		}
		return v, nil
	}
}

// warm copies the hit's raw bytes into every enabled level above hitIdx,
// using each level's own TTL when set.
func (m *MultiLevel[V]) warm(ctx context.Context, hitIdx int, key string, raw []byte, expiresIn time.Duration) {
	k := m.key(key)
	for j := 0; j < hitIdx; j++ {
		lvl := m.levels[j]
		if !lvl.enabled.Load() {
			continue
		}
		ttl := lvl.ttl
		if ttl == 0 {
			ttl = coalesce[time.Duration](expiresIn, m.ttl)
		}

		octx, cancel := m.opCtx(ctx)
		ok, err := lvl.adapter.Set(octx, k, raw, ttl)
		cancel()
		if err != nil || !ok {
			m.hooks.LevelSetFailed(lvl.name, key, err)
			m.log.Warn("level warm-up failed", Fields{"level": lvl.name, "key": key, "err": err})
			continue
		}
		lvl.sets.Add(1)
	}
}

// Set writes to every enabled level. Individual failures are logged and do
// not abort the operation. A level TTL wins even when the caller asked for a
// permanent record. Returns a synthesized record whose tags are snapshotted
// at now.
func (m *MultiLevel[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	payload, err := m.codec.Encode(value)
	if err != nil {
		return nil, &SerializationError{Key: key, Err: err}
	}

	now := time.Now()
	k := m.key(key)
	for _, lvl := range m.levels {
		if !lvl.enabled.Load() {
			continue
		}
		ttl := lvl.ttl
		if ttl == 0 {
			if opts.Permanent {
				ttl = 0
			} else {
				ttl = coalesce[time.Duration](opts.ExpiresIn, m.ttl)
			}
		}

		octx, cancel := m.opCtx(ctx)
		ok, werr := lvl.adapter.Set(octx, k, payload, ttl)
		cancel()
		if werr != nil || !ok {
			m.hooks.LevelSetFailed(lvl.name, key, werr)
			m.log.Warn("level set failed", Fields{"level": lvl.name, "key": key, "err": werr})
			continue
		}
		lvl.sets.Add(1)
	}

	if m.bloom != nil {
		m.bloom.Add(key)
	}

	names := resolveTags(opts.Tags, opts.TagsFunc)
	var tags []Tag
	if len(names) > 0 {
		tags = make([]Tag, len(names))
		for i, n := range names {
			tags[i] = Tag{Name: n, Version: now.UnixMilli()}
		}
	}
	return &Record[V]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresIn: coalesce[time.Duration](opts.ExpiresIn, m.ttl),
		Permanent: opts.Permanent,
		Tags:      tags,
	}, nil
}

// Del removes the key from every enabled level; true when at least one level
// held it.
func (m *MultiLevel[V]) Del(ctx context.Context, key string) (bool, error) {
	k := m.key(key)
	deleted := false
	for _, lvl := range m.levels {
		if !lvl.enabled.Load() {
			continue
		}
		octx, cancel := m.opCtx(ctx)
		ok, err := lvl.adapter.Del(octx, k)
		cancel()
		if err != nil {
			m.log.Warn("level delete failed", Fields{"level": lvl.name, "key": key, "err": err})
			continue
		}
		if ok {
			lvl.dels.Add(1)
			deleted = true
		}
	}
	return deleted, nil
}

// Levels lists the configured levels in priority order.
func (m *MultiLevel[V]) Levels() []LevelInfo {
	out := make([]LevelInfo, len(m.levels))
	for i, lvl := range m.levels {
		out[i] = LevelInfo{
			Name:     lvl.name,
			Priority: lvl.priority,
			TTL:      lvl.ttl,
			Enabled:  lvl.enabled.Load(),
		}
	}
	return out
}

func (m *MultiLevel[V]) EnableLevel(name string) error  { return m.setEnabled(name, true) }
func (m *MultiLevel[V]) DisableLevel(name string) error { return m.setEnabled(name, false) }

func (m *MultiLevel[V]) setEnabled(name string, enabled bool) error {
	for _, lvl := range m.levels {
		if lvl.name == name {
			lvl.enabled.Store(enabled)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown level %q", ErrInvalidConfig, name)
}

// Metrics snapshots the per-level counters.
func (m *MultiLevel[V]) Metrics() map[string]LevelMetrics {
	out := make(map[string]LevelMetrics, len(m.levels))
	for _, lvl := range m.levels {
		out[lvl.name] = LevelMetrics{
			Hits:   lvl.hits.Load(),
			Misses: lvl.misses.Load(),
			Sets:   lvl.sets.Load(),
			Dels:   lvl.dels.Load(),
		}
	}
	return out
}
