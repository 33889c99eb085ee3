package tagcache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const RefreshAheadName = "refresh-ahead"

const defaultRefreshFactor = 0.8

// RefreshAhead behaves like ReadThrough but, when a still-fresh record has
// aged past ExpiresIn * Factor, it kicks off an asynchronous refresh guarded
// by a separate derived lock. The synchronous caller always gets the
// currently-fresh value; background failures are logged and swallowed.
type RefreshAhead[V any] struct {
	managerCore[V]
	factor float64

	wg sync.WaitGroup
}

var _ Manager[string] = (*RefreshAhead[string])(nil)

type RefreshAheadConfig[V any] struct {
	ManagerConfig[V]

	// Factor in (0, 1); a record is "expire-soon" after
	// CreatedAt + ExpiresIn * Factor. 0 => 0.8.
	Factor float64
}

func NewRefreshAhead[V any](cfg RefreshAheadConfig[V]) (*RefreshAhead[V], error) {
	core, err := newManagerCore(cfg.ManagerConfig)
	if err != nil {
		return nil, err
	}
	factor := cfg.Factor
	if factor == 0 {
		factor = defaultRefreshFactor
	}
	if factor <= 0 || factor >= 1 {
		return nil, fmt.Errorf("%w: refresh-ahead factor must be in (0, 1), got %v", ErrInvalidConfig, factor)
	}
	return &RefreshAhead[V]{managerCore: core, factor: factor}, nil
}

func (m *RefreshAhead[V]) Name() string { return RefreshAheadName }

func (m *RefreshAhead[V]) Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error) {
	if !m.bloomMiss(key) {
		rec, err := m.storage.Get(ctx, key)
		if err != nil {
			m.log.Warn("storage read failed; treating as miss", Fields{"key": key, "err": err})
		}
		if rec != nil && m.fresh(ctx, rec) {
			if m.expireSoon(rec) {
				m.wg.Add(1)
				go m.refresh(key, exec, opts)
			}
			return rec.Value, nil
		}
	}
	return recompute(ctx, &m.managerCore, key, exec, opts)
}

func (m *RefreshAhead[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	rec, err := m.storage.Set(ctx, key, value, opts)
	if err == nil {
		m.bloomAdd(key)
	}
	return rec, err
}

// Wait blocks until in-flight background refreshes finish. Intended for
// shutdown paths and tests.
func (m *RefreshAhead[V]) Wait() { m.wg.Wait() }

func (m *RefreshAhead[V]) expireSoon(rec *Record[V]) bool {
	if rec.Permanent {
		return false
	}
	window := time.Duration(float64(rec.ExpiresIn) * m.factor)
	return time.Now().After(rec.CreatedAt.Add(window))
}

// refresh recomputes the record under the derived refresh lock. The lock is
// held for the whole refresh, so at most one refresh per key runs at a time;
// it is released on return, and its TTL only reaps a holder that never
// returns. A successful write restarts the record's refresh window.
func (m *RefreshAhead[V]) refresh(key string, exec Executor[V], opts GetOptions) {
	defer m.wg.Done()

	// the caller's ctx dies when its request returns; refresh on its own
	ctx := context.Background()
	derived := "refreshahead:" + key

	locked, err := m.storage.LockKey(ctx, derived)
	if err != nil || !locked {
		return
	}
	defer m.release(ctx, derived)

	v, err := exec(ctx)
	if err != nil {
		m.hooks.RefreshFailed(key, err)
		m.log.Warn("background refresh executor failed", Fields{"key": key, "err": err})
		return
	}
	if _, err := m.storage.Set(ctx, key, v, setOptionsFrom(opts)); err != nil {
		m.hooks.RefreshFailed(key, err)
		m.log.Warn("background refresh write failed", Fields{"key": key, "err": err})
	}
}
