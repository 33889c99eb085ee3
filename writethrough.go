package tagcache

import (
	"context"
)

const WriteThroughName = "write-through"

// WriteThrough assumes the application keeps the cache current through
// explicit Set and Touch calls. Set always writes permanent records; Get is
// a passive accessor that returns whatever is stored without a freshness
// check and only recomputes on a true miss.
type WriteThrough[V any] struct {
	managerCore[V]
	strict bool
}

var _ Manager[string] = (*WriteThrough[string])(nil)

type WriteThroughConfig[V any] struct {
	ManagerConfig[V]

	// StrictGet adds time/tag validation to Get. Off by default: the
	// historical behavior can return values whose tags were touched since
	// the write.
	StrictGet bool
}

func NewWriteThrough[V any](cfg WriteThroughConfig[V]) (*WriteThrough[V], error) {
	core, err := newManagerCore(cfg.ManagerConfig)
	if err != nil {
		return nil, err
	}
	return &WriteThrough[V]{managerCore: core, strict: cfg.StrictGet}, nil
}

func (m *WriteThrough[V]) Name() string { return WriteThroughName }

func (m *WriteThrough[V]) Get(ctx context.Context, key string, exec Executor[V], opts GetOptions) (V, error) {
	if !m.bloomMiss(key) {
		rec, err := m.storage.Get(ctx, key)
		if err != nil {
			m.log.Warn("storage read failed; treating as miss", Fields{"key": key, "err": err})
		}
		if rec != nil {
			if !m.strict || m.fresh(ctx, rec) {
				return rec.Value, nil
			}
		}
	}
	return recompute(ctx, &m.managerCore, key, exec, opts)
}

// Set writes an authoritative, permanent record; the backend never expires
// it by time and only Touch or Del can retire it.
func (m *WriteThrough[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	opts.Permanent = true
	rec, err := m.storage.Set(ctx, key, value, opts)
	if err == nil {
		m.bloomAdd(key)
	}
	return rec, err
}
