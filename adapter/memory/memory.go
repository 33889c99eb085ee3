// Package memory provides the in-process reference adapter. It is the
// default backend for tests and single-process deployments; entries expire
// lazily on access.
package memory

import (
	"context"
	"sync"
	"time"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Adapter struct {
	mu    sync.Mutex
	m     map[string]entry
	locks *ad.LockTable
	conn  *ad.ConnState
}

var _ ad.Adapter = (*Adapter)(nil)

func New() *Adapter {
	return &Adapter{
		m:     make(map[string]entry),
		locks: ad.NewLockTable(),
		conn:  ad.NewConnState(ad.StatusConnected),
	}
}

func (a *Adapter) Get(_ context.Context, key string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(a.m, key)
		return nil, false, nil
	}
	return e.v, true, nil
}

func (a *Adapter) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	a.mu.Lock()
	a.m[key] = entry{v: value, exp: exp}
	a.mu.Unlock()
	return true, nil
}

func (a *Adapter) Del(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.m[key]
	delete(a.m, key)
	return ok, nil
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
	a.mu.Lock()
	a.m = make(map[string]entry)
	a.mu.Unlock()
	a.conn.MarkDisconnected()
	return nil
}

// Len reports live (non-expired) entries; test helper.
func (a *Adapter) Len() int {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.m {
		if e.exp.IsZero() || e.exp.After(now) {
			n++
		}
	}
	return n
}
