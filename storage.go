package tagcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tagcache/adapter"
	c "github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/internal/util"
	"github.com/unkn0wn-root/tagcache/internal/wire"
	ts "github.com/unkn0wn-root/tagcache/tagstore"
)

const (
	defaultTTL       = 10 * time.Minute
	defaultOpTimeout = 150 * time.Millisecond
	defaultLockTTL   = 20 * time.Second

	recordPrefix = "rec:"
)

// Storage is the uniform contract the managers consume. The wrapper built by
// NewStorage enforces the record discipline over a raw adapter: values are
// serialized through the codec, current tag versions are captured on write,
// and reads validate the envelope and self-heal corrupt entries.
type Storage[V any] interface {
	// Get returns the stored record or (nil, nil) on miss. Corrupt or
	// undecodable entries are deleted and reported as a miss.
	Get(ctx context.Context, key string) (*Record[V], error)

	// Set serializes value, captures current tag versions for the resolved
	// tag list, and writes the envelope. Returns the record actually written.
	Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error)

	Del(ctx context.Context, key string) (bool, error)

	// Touch advances every named tag's version to now.
	Touch(ctx context.Context, names ...string) error

	// GetTags snapshots current versions for the given names; missing => 0.
	GetTags(ctx context.Context, names []string) ([]Tag, error)

	// IsOutdated reports whether any tag on the record has a current version
	// strictly greater than the captured one.
	IsOutdated(ctx context.Context, rec *Record[V]) (bool, error)

	// Best-effort exclusive per-key lock with the configured TTL.
	LockKey(ctx context.Context, key string) (bool, error)
	ReleaseKey(ctx context.Context, key string) (bool, error)
	KeyIsLocked(ctx context.Context, key string) (bool, error)

	Status() adapter.Status

	Close(ctx context.Context) error
}

// StorageConfig builds a storage wrapper. Adapter and Codec are required.
type StorageConfig[V any] struct {
	Adapter adapter.Adapter
	Codec   c.Codec[V]
	Tags    ts.TagStore // nil => tagstore.NewAdapter(Adapter)
	Logger  Logger
	Hooks   Hooks

	Prefix   string
	HashKeys bool

	DefaultTTL       time.Duration
	OperationTimeout time.Duration
	LockExpire       time.Duration

	// CloseAdapter makes Close close the adapter too.
	CloseAdapter bool
}

type storage[V any] struct {
	a     adapter.Adapter
	codec c.Codec[V]
	tags  ts.TagStore
	log   Logger
	hooks Hooks

	prefix   string
	hashKeys bool

	ttl        time.Duration
	opTimeout  time.Duration
	lockExpire time.Duration

	closeAdapter bool
}

var _ Storage[string] = (*storage[string])(nil)

func NewStorage[V any](cfg StorageConfig[V]) (Storage[V], error) {
	if cfg.Adapter == nil {
		return nil, errRequired("adapter")
	}
	if cfg.Codec == nil {
		return nil, errRequired("codec")
	}
	s := &storage[V]{
		a:            cfg.Adapter,
		codec:        cfg.Codec,
		prefix:       cfg.Prefix,
		hashKeys:     cfg.HashKeys,
		closeAdapter: cfg.CloseAdapter,
	}
	s.tags = cfg.Tags
	if s.tags == nil {
		s.tags = ts.NewAdapter(cfg.Adapter)
	}
	s.log = coalesce[Logger](cfg.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](cfg.Hooks, NopHooks{})
	s.ttl = coalesce[time.Duration](cfg.DefaultTTL, defaultTTL)
	s.opTimeout = coalesce[time.Duration](cfg.OperationTimeout, defaultOpTimeout)
	s.lockExpire = coalesce[time.Duration](cfg.LockExpire, defaultLockTTL)
	return s, nil
}

// storageKey maps a caller key into the wrapper-owned keyspace.
func (s *storage[V]) storageKey(key string) string {
	return recordPrefix + util.CacheKey(s.prefix, key, s.hashKeys)
}

// lockName is the adapter-level lock identity for a caller key; the adapter
// keeps locks in its own keyspace.
func (s *storage[V]) lockName(key string) string {
	return util.CacheKey(s.prefix, key, s.hashKeys)
}

// opCtx bounds a single adapter call.
func (s *storage[V]) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *storage[V]) selfHeal(ctx context.Context, storageKey, reason string) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	_, _ = s.a.Del(octx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
	s.log.Debug("self-healed bad record", Fields{"key": storageKey, "reason": reason})
}

func (s *storage[V]) Get(ctx context.Context, key string) (*Record[V], error) {
	k := s.storageKey(key)

	octx, cancel := s.opCtx(ctx)
	raw, ok, err := s.a.Get(octx, k)
	cancel()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	env, err := wire.Decode(raw)
	if err != nil {
		s.selfHeal(ctx, k, "corrupt")
		return nil, nil
	}
	v, err := s.codec.Decode(env.Payload)
	if err != nil {
		s.selfHeal(ctx, k, "decode")
		return nil, nil
	}

	rec := &Record[V]{
		Key:       key,
		Value:     v,
		CreatedAt: time.UnixMilli(env.CreatedAt),
		ExpiresIn: time.Duration(env.ExpiresIn) * time.Millisecond,
		Permanent: env.Permanent,
	}
	if len(env.Tags) > 0 {
		rec.Tags = make([]Tag, len(env.Tags))
		for i, t := range env.Tags {
			rec.Tags[i] = Tag{Name: t.Name, Version: t.Version}
		}
	}
	return rec, nil
}

func (s *storage[V]) Set(ctx context.Context, key string, value V, opts SetOptions) (*Record[V], error) {
	now := time.Now()
	names := resolveTags(opts.Tags, opts.TagsFunc)

	var tags []Tag
	if len(names) > 0 {
		captured, err := s.captureTags(ctx, names, now)
		if err != nil {
			return nil, err
		}
		tags = captured
	}

	payload, err := s.codec.Encode(value)
	if err != nil {
		return nil, &SerializationError{Key: key, Err: err}
	}

	ttl := opts.ExpiresIn
	if ttl == 0 && !opts.Permanent {
		ttl = s.ttl
	}

	env := wire.Envelope{
		CreatedAt: now.UnixMilli(),
		ExpiresIn: ttl.Milliseconds(),
		Permanent: opts.Permanent,
		Payload:   payload,
	}
	if len(tags) > 0 {
		env.Tags = make([]wire.TagVersion, len(tags))
		for i, t := range tags {
			env.Tags[i] = wire.TagVersion{Name: t.Name, Version: t.Version}
		}
	}

	k := s.storageKey(key)
	blobTTL := ttl
	if opts.Permanent {
		blobTTL = 0 // no backend expiry
	}

	octx, cancel := s.opCtx(ctx)
	ok, err := s.a.Set(octx, k, wire.Encode(env), blobTTL)
	cancel()
	if err != nil {
		return nil, err
	}
	if !ok {
		s.hooks.AdapterSetRejected(k)
		s.log.Debug("set rejected by adapter (pressure)", Fields{"key": key})
	}

	return &Record[V]{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresIn: ttl,
		Permanent: opts.Permanent,
		Tags:      tags,
	}, nil
}

// captureTags snapshots current versions for names, vacuum-filling any tag
// that has never been touched at version = now.
func (s *storage[V]) captureTags(ctx context.Context, names []string, now time.Time) ([]Tag, error) {
	octx, cancel := s.opCtx(ctx)
	vers, err := s.tags.Versions(octx, names)
	cancel()
	if err != nil {
		return nil, err
	}

	nowMs := now.UnixMilli()
	out := make([]Tag, 0, len(names))
	var missing []string
	for _, n := range names {
		v := vers[n]
		if v == 0 {
			v = nowMs
			missing = append(missing, n)
		}
		out = append(out, Tag{Name: n, Version: v})
	}
	if len(missing) > 0 {
		octx, cancel := s.opCtx(ctx)
		err := s.tags.Touch(octx, missing, nowMs)
		cancel()
		if err != nil {
			s.log.Warn("tag vacuum-fill failed", Fields{"tags": missing, "err": err})
		}
	}
	return out, nil
}

func (s *storage[V]) Del(ctx context.Context, key string) (bool, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.a.Del(octx, s.storageKey(key))
}

func (s *storage[V]) Touch(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.tags.Touch(octx, names, time.Now().UnixMilli())
}

func (s *storage[V]) GetTags(ctx context.Context, names []string) ([]Tag, error) {
	octx, cancel := s.opCtx(ctx)
	vers, err := s.tags.Versions(octx, names)
	cancel()
	if err != nil {
		return nil, err
	}
	out := make([]Tag, len(names))
	for i, n := range names {
		out[i] = Tag{Name: n, Version: vers[n]}
	}
	return out, nil
}

func (s *storage[V]) IsOutdated(ctx context.Context, rec *Record[V]) (bool, error) {
	if rec == nil || len(rec.Tags) == 0 {
		return false, nil
	}
	octx, cancel := s.opCtx(ctx)
	vers, err := s.tags.Versions(octx, rec.TagNames())
	cancel()
	if err != nil {
		return false, err
	}
	for _, t := range rec.Tags {
		if vers[t.Name] > t.Version {
			return true, nil
		}
	}
	return false, nil
}

func (s *storage[V]) LockKey(ctx context.Context, key string) (bool, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.a.AcquireLock(octx, s.lockName(key), s.lockExpire)
}

func (s *storage[V]) ReleaseKey(ctx context.Context, key string) (bool, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.a.ReleaseLock(octx, s.lockName(key))
}

func (s *storage[V]) KeyIsLocked(ctx context.Context, key string) (bool, error) {
	octx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.a.IsLockExists(octx, s.lockName(key))
}

func (s *storage[V]) Status() adapter.Status { return s.a.Status() }

func (s *storage[V]) Close(ctx context.Context) error {
	if s.tags != nil {
		_ = s.tags.Close(ctx)
	}
	if s.closeAdapter {
		return s.a.Close(ctx)
	}
	return nil
}

// resolveTags evaluates the tag producer eagerly; TagsFunc wins over Tags.
func resolveTags(tags []string, fn func() []string) []string {
	if fn != nil {
		return fn()
	}
	return tags
}
