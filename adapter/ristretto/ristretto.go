package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

// Adapter wraps a ristretto cache. Cost is the value length; ristretto has no
// lock primitive, so locks come from an in-process lock table.
type Adapter struct {
	c     *rc.Cache
	locks *ad.LockTable
	conn  *ad.ConnState
}

var _ ad.Adapter = (*Adapter)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Adapter, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto adapter: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		c:     c,
		locks: ad.NewLockTable(),
		conn:  ad.NewConnState(ad.StatusConnected),
	}, nil
}

func (a *Adapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := a.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		a.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (a *Adapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	if ttl <= 0 {
		return a.c.Set(key, value, cost), nil
	}
	return a.c.SetWithTTL(key, value, cost, ttl), nil
}

func (a *Adapter) Del(_ context.Context, key string) (bool, error) {
	_, existed := a.c.Get(key)
	a.c.Del(key)
	return existed, nil
}

func (a *Adapter) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := a.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (a *Adapter) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for k, v := range items {
		if _, err := a.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return a.locks.Acquire(key, ttl), nil
}

func (a *Adapter) ReleaseLock(_ context.Context, key string) (bool, error) {
	return a.locks.Release(key), nil
}

func (a *Adapter) IsLockExists(_ context.Context, key string) (bool, error) {
	return a.locks.Held(key), nil
}

func (a *Adapter) Status() ad.Status { return a.conn.Status() }

func (a *Adapter) OnConnect(fn func()) { a.conn.OnConnect(fn) }

func (a *Adapter) Close(_ context.Context) error {
	a.conn.MarkDisconnected()
	a.c.Wait()
	a.c.Close()
	return nil
}

// Metrics exposes ristretto's own metrics (not part of the adapter contract).
func (a *Adapter) Metrics() *rc.Metrics { return a.c.Metrics }
