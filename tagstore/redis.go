package tagstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares tag versions across processes and survives restarts.
// Optionally, a TTL can be applied to tag keys to prevent unbounded growth.
// If a tag key expires, readers observe version 0 and records self-validate.
type Redis struct {
	rdb redis.UniversalClient
	ns  string        // logical namespace; use one per cache instance
	ttl time.Duration // optional TTL for tag keys; 0 disables expiry
}

var _ TagStore = (*Redis)(nil)

// NewRedis creates a Redis-backed tag store without TTL.
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

// NewRedisWithTTL creates a Redis-backed tag store with TTL.
// If ttl <= 0, keys do not expire.
func NewRedisWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

func (s *Redis) key(name string) string { return "tag:" + s.ns + ":" + name }

// Versions returns current tag versions; missing keys map to 0.
func (s *Redis) Versions(ctx context.Context, names []string) (map[string]int64, error) {
	if len(names) == 0 {
		return map[string]int64{}, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.key(n)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(names))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
			out[names[i]] = 0
		case string:
			u, err := strconv.ParseInt(vv, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag parse at %s: %w", names[i], err)
			}
			out[names[i]] = u
		case []byte:
			u, err := strconv.ParseInt(string(vv), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag parse at %s: %w", names[i], err)
			}
			out[names[i]] = u
		default:
			str := fmt.Sprint(vv)
			u, err := strconv.ParseInt(str, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redis tag parse at %s: %w", names[i], err)
			}
			out[names[i]] = u
		}
	}
	return out, nil
}

// touchScript writes a tag version only when it advances the stored one, so
// a delayed or reordered Touch can never move a version backwards.
var touchScript = redis.NewScript(`
local v = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
for i = 1, #KEYS do
	local cur = tonumber(redis.call('GET', KEYS[i]))
	if cur == nil or v > cur then
		if ttl > 0 then
			redis.call('SET', KEYS[i], ARGV[1], 'PX', ttl)
		else
			redis.call('SET', KEYS[i], ARGV[1])
		end
	end
end
return 1
`)

// Touch advances all named tags in a single atomic round-trip.
func (s *Redis) Touch(ctx context.Context, names []string, version int64) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.key(n)
	}
	return touchScript.Run(ctx, s.rdb,
		keys,
		strconv.FormatInt(version, 10),
		strconv.FormatInt(s.ttl.Milliseconds(), 10),
	).Err()
}

// Close closes the underlying Redis client.
func (s *Redis) Close(ctx context.Context) error { return s.rdb.Close() }
