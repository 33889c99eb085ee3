package tagcache

import (
	"context"
)

const ReadThroughName = "read-through"

// ReadThrough serves reads from the store when the record is both time-valid
// and tag-valid, and recomputes through the stampede-protected path
// otherwise. This is the default discipline.
type ReadThrough[V any] struct {
	managerCore[V]
}

var _ Manager[string] = (*ReadThrough[string])(nil)

func NewReadThrough[V any](cfg ManagerConfig[V]) (*ReadThrough[V], error) {
	core, err := newManagerCore(cfg)
	if err != nil {
		return nil, err
	}
	return &ReadThrough[V]{managerCore: core}, nil
}

func (m *ReadThrough[V]) Name() string { return ReadThroughName }

func (m *ReadThrough[V]) Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error) {
	if !m.bloomMiss(key) {
		rec, err := m.storage.Get(ctx, key)
		if err != nil {
			m.log.Warn("storage read failed; treating as miss", Fields{"key": key, "err": err})
		}
		if rec != nil && m.fresh(ctx, rec) {
			return rec.Value, nil
		}
	}
	return recompute(ctx, &m.managerCore, key, exec, opts)
}

func (m *ReadThrough[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	rec, err := m.storage.Set(ctx, key, value, opts)
	if err == nil {
		m.bloomAdd(key)
	}
	return rec, err
}
