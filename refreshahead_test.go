package tagcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/tagcache/adapter/memory"
)

func newRefreshAhead(t *testing.T, cc Cache[user], factor float64) *RefreshAhead[user] {
	t.Helper()
	ra, err := NewRefreshAhead[user](RefreshAheadConfig[user]{
		ManagerConfig: cc.ManagerConfig(),
		Factor:        factor,
	})
	if err != nil {
		t.Fatalf("NewRefreshAhead: %v", err)
	}
	return ra
}

func TestRefreshAheadFactorValidation(t *testing.T) {
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(context.Background())

	for _, factor := range []float64{-0.1, 1.0, 1.5} {
		_, err := NewRefreshAhead[user](RefreshAheadConfig[user]{
			ManagerConfig: cc.ManagerConfig(),
			Factor:        factor,
		})
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("factor %v: want ErrInvalidConfig, got %v", factor, err)
		}
	}

	// zero means default
	ra := newRefreshAhead(t, cc, 0)
	if ra.factor != defaultRefreshFactor {
		t.Fatalf("default factor: %v", ra.factor)
	}
}

func TestRefreshAheadTriggersBackgroundRefresh(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)

	ra := newRefreshAhead(t, cc, 0.5)
	cc.Register(ra)

	v1 := user{ID: "1", Name: "v1"}
	v2 := user{ID: "1", Name: "v2"}
	opts := GetOptions{Manager: RefreshAheadName, ExpiresIn: 200 * time.Millisecond}

	if got, err := cc.Get(ctx, "k", staticExec(v1), opts); err != nil || got != v1 {
		t.Fatalf("initial get: got=%v err=%v", got, err)
	}
	before, err := cc.Storage().Get(ctx, "k")
	if err != nil || before == nil {
		t.Fatalf("record missing after initial get: %v", err)
	}

	// into the refresh window (past 100ms, before 200ms)
	time.Sleep(130 * time.Millisecond)

	got, err := cc.Get(ctx, "k", staticExec(v2), opts)
	if err != nil || got != v1 {
		t.Fatalf("windowed get must serve the current value: got=%v err=%v", got, err)
	}
	ra.Wait()

	after, err := cc.Storage().Get(ctx, "k")
	if err != nil || after == nil {
		t.Fatalf("record missing after refresh: %v", err)
	}
	if after.Value != v2 {
		t.Fatalf("refresh did not overwrite: %+v", after)
	}
	if !after.CreatedAt.After(before.CreatedAt) {
		t.Fatalf("refresh must advance CreatedAt: before=%v after=%v", before.CreatedAt, after.CreatedAt)
	}
}

func TestRefreshAheadQuietBeforeWindow(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)

	ra := newRefreshAhead(t, cc, 0.8)
	cc.Register(ra)

	v1 := user{ID: "1", Name: "v1"}
	opts := GetOptions{Manager: RefreshAheadName, ExpiresIn: time.Minute}

	if _, err := cc.Get(ctx, "k", staticExec(v1), opts); err != nil {
		t.Fatalf("initial get: %v", err)
	}
	// well inside the fresh zone: no background work may start
	if got, err := cc.Get(ctx, "k", failingExec(t), opts); err != nil || got != v1 {
		t.Fatalf("get: got=%v err=%v", got, err)
	}
	ra.Wait()
}

func TestRefreshAheadSwallowsBackgroundFailure(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)

	ra := newRefreshAhead(t, cc, 0.5)
	cc.Register(ra)

	v1 := user{ID: "1", Name: "v1"}
	opts := GetOptions{Manager: RefreshAheadName, ExpiresIn: 100 * time.Millisecond}

	if _, err := cc.Get(ctx, "k", staticExec(v1), opts); err != nil {
		t.Fatalf("initial get: %v", err)
	}
	time.Sleep(70 * time.Millisecond)

	boom := func(context.Context) (user, error) { return user{}, errors.New("backend down") }
	got, err := cc.Get(ctx, "k", boom, opts)
	if err != nil || got != v1 {
		t.Fatalf("windowed get with failing refresh: got=%v err=%v", got, err)
	}
	ra.Wait()

	// record untouched by the failed refresh
	rec, err := cc.Storage().Get(ctx, "k")
	if err != nil || rec == nil || rec.Value != v1 {
		t.Fatalf("record after failed refresh: rec=%v err=%v", rec, err)
	}
}

func TestRefreshAheadPermanentRecordsNeverRefresh(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	cc := newTestCache(t, mp, nil)
	defer cc.Close(ctx)

	ra := newRefreshAhead(t, cc, 0.5)
	cc.Register(ra)

	v1 := user{ID: "1"}
	if _, err := cc.Set(ctx, "k", v1, SetOptions{Manager: RefreshAheadName, Permanent: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if got, err := cc.Get(ctx, "k", failingExec(t), GetOptions{Manager: RefreshAheadName}); err != nil || got != v1 {
		t.Fatalf("get: got=%v err=%v", got, err)
	}
	ra.Wait()
}
