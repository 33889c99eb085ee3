package tagcache

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/tagcache/adapter/memory"
	c "github.com/unkn0wn-root/tagcache/codec"
)

func newTestStorage(t *testing.T, mp *memory.Adapter) Storage[user] {
	t.Helper()
	s, err := NewStorage[user](StorageConfig[user]{
		Adapter: mp,
		Codec:   c.JSON[user]{},
	})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

func TestStorageRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := newTestStorage(t, mp)

	want := user{ID: "1", Name: "A"}
	written, err := s.Set(ctx, "k", want, SetOptions{ExpiresIn: time.Minute, Tags: []string{"users"}})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if written.Value != want || written.ExpiresIn != time.Minute || written.Permanent {
		t.Fatalf("written record: %+v", written)
	}

	rec, err := s.Get(ctx, "k")
	if err != nil || rec == nil {
		t.Fatalf("Get: rec=%v err=%v", rec, err)
	}
	if rec.Value != want || rec.Permanent || rec.ExpiresIn != time.Minute {
		t.Fatalf("read record: %+v", rec)
	}
	if len(rec.Tags) != 1 || rec.Tags[0].Name != "users" || rec.Tags[0].Version != written.Tags[0].Version {
		t.Fatalf("tags not carried through the envelope: %+v", rec.Tags)
	}
	if !rec.TimeValid(time.Now()) {
		t.Fatalf("fresh record must be time-valid")
	}
}

func TestStorageMissIsNilNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, memory.New())
	rec, err := s.Get(ctx, "absent")
	if rec != nil || err != nil {
		t.Fatalf("miss: rec=%v err=%v", rec, err)
	}
}

func TestIsOutdatedSemantics(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := newTestStorage(t, mp)

	rec, err := s.Set(ctx, "k", user{ID: "1"}, SetOptions{Tags: []string{"users"}})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	// captured version equals the current one: not outdated
	if out, err := s.IsOutdated(ctx, rec); err != nil || out {
		t.Fatalf("freshly captured record outdated: out=%v err=%v", out, err)
	}

	time.Sleep(2 * time.Millisecond)
	if err := s.Touch(ctx, "users"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if out, err := s.IsOutdated(ctx, rec); err != nil || !out {
		t.Fatalf("touched record must be outdated: out=%v err=%v", out, err)
	}

	// records without tags never go stale by tag
	plain, _ := s.Set(ctx, "p", user{ID: "2"}, SetOptions{})
	if out, _ := s.IsOutdated(ctx, plain); out {
		t.Fatalf("untagged record reported outdated")
	}
	if out, _ := s.IsOutdated(ctx, nil); out {
		t.Fatalf("nil record reported outdated")
	}
}

func TestGetTagsVacuumFill(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := newTestStorage(t, mp)

	// writing with a never-touched tag fills its version at write time
	rec, err := s.Set(ctx, "k", user{ID: "1"}, SetOptions{Tags: []string{"fresh-tag"}})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if rec.Tags[0].Version == 0 {
		t.Fatalf("vacuum fill missing: %+v", rec.Tags)
	}

	tags, err := s.GetTags(ctx, []string{"fresh-tag", "never-touched"})
	if err != nil {
		t.Fatalf("GetTags: %v", err)
	}
	if tags[0].Version != rec.Tags[0].Version {
		t.Fatalf("persisted fill mismatch: %+v vs %+v", tags[0], rec.Tags[0])
	}
	if tags[1].Version != 0 {
		t.Fatalf("untouched tag must be 0: %+v", tags[1])
	}
}

func TestPermanentRecordsSkipBackendTTL(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := newTestStorage(t, mp)

	if _, err := s.Set(ctx, "k", user{ID: "1"}, SetOptions{Permanent: true, ExpiresIn: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	rec, err := s.Get(ctx, "k")
	if err != nil || rec == nil {
		t.Fatalf("permanent record dropped by backend: rec=%v err=%v", rec, err)
	}
	if !rec.Permanent || !rec.TimeValid(time.Now()) {
		t.Fatalf("permanent record: %+v", rec)
	}
}

func TestLockPrimitivesForward(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, memory.New())

	if ok, _ := s.LockKey(ctx, "k"); !ok {
		t.Fatalf("first lock must win")
	}
	if ok, _ := s.LockKey(ctx, "k"); ok {
		t.Fatalf("second lock must lose")
	}
	if held, _ := s.KeyIsLocked(ctx, "k"); !held {
		t.Fatalf("lock must report held")
	}
	if ok, _ := s.ReleaseKey(ctx, "k"); !ok {
		t.Fatalf("release must report true")
	}
	if held, _ := s.KeyIsLocked(ctx, "k"); held {
		t.Fatalf("lock must be free after release")
	}
}
