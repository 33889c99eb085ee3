package tagcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tagcache/bloom"
)

const (
	defaultLockWaitMax = 5 * time.Second
	defaultBackoff     = 20 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// ManagerConfig carries the capabilities shared by the single-tier managers.
// Obtain a prefilled one from Cache.ManagerConfig().
type ManagerConfig[V any] struct {
	Storage Storage[V] // required
	Logger  Logger
	Hooks   Hooks
	Bloom   *bloom.Filter // optional pre-check; nil disables

	Strategy    Strategy      // default contention behavior
	LockWaitMax time.Duration // waitForResult bound; 0 => 5s
	Backoff     time.Duration // initial poll backoff; 0 => 20ms
}

// managerCore is the minimal capability set the shared recompute path needs;
// the single-tier managers embed it.
type managerCore[V any] struct {
	storage Storage[V]
	log     Logger
	hooks   Hooks
	bloom   *bloom.Filter

	strategy    Strategy
	lockWaitMax time.Duration
	backoff     time.Duration
}

func newManagerCore[V any](cfg ManagerConfig[V]) (managerCore[V], error) {
	if cfg.Storage == nil {
		return managerCore[V]{}, errRequired("storage")
	}
	return managerCore[V]{
		storage:     cfg.Storage,
		log:         coalesce[Logger](cfg.Logger, NopLogger{}),
		hooks:       coalesce[Hooks](cfg.Hooks, NopHooks{}),
		bloom:       cfg.Bloom,
		strategy:    coalesce[Strategy](cfg.Strategy, StrategyWaitForResult),
		lockWaitMax: coalesce[time.Duration](cfg.LockWaitMax, defaultLockWaitMax),
		backoff:     coalesce[time.Duration](cfg.Backoff, defaultBackoff),
	}, nil
}

// bloomMiss reports a definite miss: the filter is enabled and has never
// seen key, so the storage read can be skipped entirely.
func (m *managerCore[V]) bloomMiss(key string) bool {
	if m.bloom == nil {
		return false
	}
	if m.bloom.MightContain(key) {
		return false
	}
	m.hooks.BloomSkip(key)
	return true
}

func (m *managerCore[V]) bloomAdd(key string) {
	if m.bloom != nil {
		m.bloom.Add(key)
	}
}

// fresh reports whether rec passes both validity checks right now. Tag-store
// errors count against freshness: the caller recomputes instead of serving a
// possibly-stale value.
func (m *managerCore[V]) fresh(ctx context.Context, rec *Record[V]) bool {
	if rec == nil || !rec.TimeValid(time.Now()) {
		return false
	}
	outdated, err := m.storage.IsOutdated(ctx, rec)
	if err != nil {
		m.log.Warn("tag check failed; treating record as stale", Fields{"key": rec.Key, "err": err})
		return false
	}
	return !outdated
}

func (m *managerCore[V]) resolveStrategy(s Strategy) Strategy {
	if s == StrategyDefault {
		return m.strategy
	}
	return s
}

func setOptionsFrom(opts GetOptions) SetOptions {
	return SetOptions{
		ExpiresIn: opts.ExpiresIn,
		Tags:      opts.Tags,
		TagsFunc:  opts.TagsFunc,
	}
}

// recompute is the stampede-protected miss path shared by every single-tier
// manager: at most one executor per key holds the lock and writes back;
// losers either wait for the winner's record or compute without writing.
func recompute[V any](ctx context.Context, m *managerCore[V], key string, exec Executor[V], opts GetOptions) (V, error) {
	var zero V

	locked, err := m.storage.LockKey(ctx, key)
	if err != nil {
		// lock store unreachable; degrade to an unguarded compute and write-back
		m.log.Warn("key lock failed; computing without stampede protection", Fields{"key": key, "err": err})
		v, eerr := exec(ctx)
		if eerr != nil {
			return zero, &ExecutorError{Key: key, Err: eerr}
		}
		if _, serr := m.storage.Set(ctx, key, v, setOptionsFrom(opts)); serr != nil {
			m.log.Warn("write-back failed", Fields{"key": key, "err": serr})
		} else {
			m.bloomAdd(key)
		}
		return v, nil
	}

	if locked {
		v, eerr := exec(ctx)
		if eerr != nil {
			m.release(ctx, key)
			return zero, &ExecutorError{Key: key, Err: eerr}
		}
		if _, serr := m.storage.Set(ctx, key, v, setOptionsFrom(opts)); serr != nil {
			m.log.Warn("write-back failed", Fields{"key": key, "err": serr})
		} else {
			m.bloomAdd(key)
		}
		m.release(ctx, key)
		return v, nil
	}

	// another caller is computing
	if m.resolveStrategy(opts.Strategy) == StrategyRunExecutor {
		v, eerr := exec(ctx)
		if eerr != nil {
			return zero, &ExecutorError{Key: key, Err: eerr}
		}
		// no write: the lock holder owns the store for this key
		return v, nil
	}

	// waitForResult: poll with exponential backoff until the winner's record
	// lands or the wait bound expires.
	deadline := time.Now().Add(m.lockWaitMax)
	backoff := m.backoff
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}

		rec, gerr := m.storage.Get(ctx, key)
		if gerr == nil && rec != nil && m.fresh(ctx, rec) {
			return rec.Value, nil
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	m.hooks.LockWaitExhausted(key)
	m.log.Debug("lock wait exhausted; running executor", Fields{"key": key})
	v, eerr := exec(ctx)
	if eerr != nil {
		return zero, &ExecutorError{Key: key, Err: eerr}
	}
	return v, nil
}

func (m *managerCore[V]) release(ctx context.Context, key string) {
	if _, err := m.storage.ReleaseKey(ctx, key); err != nil {
		m.log.Warn("lock release failed (TTL will reap it)", Fields{"key": key, "err": err})
	}
}
