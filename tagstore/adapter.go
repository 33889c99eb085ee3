package tagstore

import (
	"context"
	"strconv"
	"time"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

// Adapter persists tag versions beside the data in any tagcache backend,
// under the "tag:" keyspace. Versions are decimal unix-ms strings with no
// expiry (unless built with NewAdapterWithTTL), so every backend gets
// cross-restart tags for free when the backend itself is durable.
type Adapter struct {
	a   ad.Adapter
	ttl time.Duration // optional expiry for tag keys; 0 disables
}

var _ TagStore = (*Adapter)(nil)

func NewAdapter(a ad.Adapter) *Adapter {
	return &Adapter{a: a}
}

// NewAdapterWithTTL bounds tag key lifetime. If a tag key expires, readers
// observe version 0 and previously captured records validate clean.
func NewAdapterWithTTL(a ad.Adapter, ttl time.Duration) *Adapter {
	return &Adapter{a: a, ttl: ttl}
}

func tagKey(name string) string { return "tag:" + name }

func (s *Adapter) Versions(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = tagKey(n)
	}
	got, err := s.a.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i, n := range names {
		raw, ok := got[keys[i]]
		if !ok {
			out[n] = 0
			continue
		}
		v, perr := strconv.ParseInt(string(raw), 10, 64)
		if perr != nil {
			// foreign write under "tag:"; treat as never-touched
			out[n] = 0
			continue
		}
		out[n] = v
	}
	return out, nil
}

// Touch writes only tags whose stored version is below the new one, so a
// delayed or reordered Touch can never move a version backwards. The
// read-then-write is not atomic across processes; concurrent touches still
// converge on the highest version because both writers carry wall-clock
// epochs.
func (s *Adapter) Touch(ctx context.Context, names []string, version int64) error {
	if len(names) == 0 {
		return nil
	}
	cur, err := s.Versions(ctx, names)
	if err != nil {
		return err
	}
	items := make(map[string][]byte, len(names))
	raw := []byte(strconv.FormatInt(version, 10))
	for _, n := range names {
		if version > cur[n] {
			items[tagKey(n)] = raw
		}
	}
	if len(items) == 0 {
		return nil
	}
	return s.a.MSet(ctx, items, s.ttl)
}

// Close is a no-op: the adapter's lifecycle belongs to whoever built it.
func (s *Adapter) Close(context.Context) error { return nil }
