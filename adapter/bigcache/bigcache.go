package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

// Adapter wraps bigcache. BigCache has no per-entry TTL: the global
// LifeWindow applies to every entry, so the per-call TTL is ignored here and
// record freshness falls back to the envelope timestamps.
type Adapter struct {
	c     *bc.BigCache
	locks *ad.LockTable
	conn  *ad.ConnState
}

var _ ad.Adapter = (*Adapter)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Adapter, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(context.Background(), conf)
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
	b, err := a.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (a *Adapter) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	return true, a.c.Set(key, value)
}

func (a *Adapter) Del(_ context.Context, key string) (bool, error) {
	err := a.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		return false, nil
	}
	return err == nil, err
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
	return a.c.Close()
}
