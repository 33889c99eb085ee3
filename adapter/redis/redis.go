package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

var ErrNilClient = errors.New("redis adapter: nil client")

const lockPrefix = "lock:"

// Redis adapts a go-redis client to the tagcache adapter contract. Locks are
// SET NX PX records under "lock:"; MGet is a single MGET command and MSet is
// pipelined.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	conn        *ad.ConnState
}

var _ ad.Adapter = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this adapter exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		conn:        ad.NewConnState(ad.StatusConnected),
	}, nil
}

// track folds an operation outcome into the connection state.
func (a *Redis) track(err error) error {
	if err != nil {
		a.conn.MarkDisconnected()
		return err
	}
	a.conn.MarkConnected()
	return nil
}

func (a *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := a.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		a.conn.MarkConnected()
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, a.track(err)
	}
	a.conn.MarkConnected()
	return b, true, nil
}

func (a *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 0 // non-positive TTL means "no expiry" per adapter contract
	}
	if err := a.track(a.rdb.Set(ctx, key, value, ttl).Err()); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Redis) Del(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Del(ctx, key).Result()
	if err := a.track(err); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Redis) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	vals, err := a.rdb.MGet(ctx, keys...).Result()
	if err := a.track(err); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[keys[i]] = []byte(vv)
		case []byte:
			out[keys[i]] = vv
		}
	}
	return out, nil
}

func (a *Redis) MSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = 0
	}
	_, err := a.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			p.Set(ctx, k, v, ttl)
		}
		return nil
	})
	return a.track(err)
}

func (a *Redis) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, lockPrefix+key, "1", ttl).Result()
	if err := a.track(err); err != nil {
		return false, err
	}
	return ok, nil
}

func (a *Redis) ReleaseLock(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Del(ctx, lockPrefix+key).Result()
	if err := a.track(err); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Redis) IsLockExists(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Exists(ctx, lockPrefix+key).Result()
	if err := a.track(err); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *Redis) Status() ad.Status { return a.conn.Status() }

func (a *Redis) OnConnect(fn func()) { a.conn.OnConnect(fn) }

// Close releases the underlying redis client only when this adapter owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (a *Redis) Close(context.Context) error {
	a.conn.MarkDisconnected()
	if a.closeClient {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
