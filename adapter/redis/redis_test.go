package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	ad "github.com/unkn0wn-root/tagcache/adapter"
)

func newTestAdapter(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	a, err := New(Config{Client: client, CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, mr
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err != ErrNilClient {
		t.Fatalf("want ErrNilClient, got %v", err)
	}
}

func TestGetSetDel(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	if _, ok, err := a.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if ok, err := a.Set(ctx, "k", []byte("v"), 0); !ok || err != nil {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	if v, ok, _ := a.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("get: ok=%v v=%q", ok, v)
	}
	if ok, _ := a.Del(ctx, "k"); !ok {
		t.Fatalf("del of existing must report true")
	}
	if ok, _ := a.Del(ctx, "k"); ok {
		t.Fatalf("del of absent must report false")
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestAdapter(t)

	if _, err := a.Set(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(100 * time.Millisecond)
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("entry must expire after TTL")
	}
}

func TestMGetMSet(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAdapter(t)

	items := map[string][]byte{"a": []byte("1"), "b": []byte("2")}
	if err := a.MSet(ctx, items, time.Minute); err != nil {
		t.Fatalf("mset: %v", err)
	}
	out, err := a.MGet(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("mget: %v", err)
	}
	if len(out) != 2 || string(out["a"]) != "1" || string(out["b"]) != "2" {
		t.Fatalf("mget result: %v", out)
	}
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestAdapter(t)

	if ok, _ := a.AcquireLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("first acquire must win")
	}
	if ok, _ := a.AcquireLock(ctx, "k", time.Minute); ok {
		t.Fatalf("second acquire must lose")
	}
	if held, _ := a.IsLockExists(ctx, "k"); !held {
		t.Fatalf("lock must report held")
	}
	if ok, _ := a.ReleaseLock(ctx, "k"); !ok {
		t.Fatalf("release must report true")
	}
	if held, _ := a.IsLockExists(ctx, "k"); held {
		t.Fatalf("lock must be free after release")
	}

	// TTL reaps a crashed holder
	if ok, _ := a.AcquireLock(ctx, "k", 50*time.Millisecond); !ok {
		t.Fatalf("reacquire: lost")
	}
	mr.FastForward(100 * time.Millisecond)
	if ok, _ := a.AcquireLock(ctx, "k", time.Minute); !ok {
		t.Fatalf("expired lock must be reacquirable")
	}
}

func TestStatusTracksOutcomes(t *testing.T) {
	ctx := context.Background()
	a, mr := newTestAdapter(t)

	if a.Status() != ad.StatusConnected {
		t.Fatalf("fresh adapter must report connected")
	}

	mr.SetError("server down")
	if _, _, err := a.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error from broken server")
	}
	if a.Status() != ad.StatusDisconnected {
		t.Fatalf("failed op must flip status to disconnected")
	}

	reconnected := false
	a.OnConnect(func() { reconnected = true })

	mr.SetError("")
	if _, _, err := a.Get(ctx, "k"); err != nil {
		t.Fatalf("get after recovery: %v", err)
	}
	if a.Status() != ad.StatusConnected || !reconnected {
		t.Fatalf("recovery must mark connected and fire OnConnect")
	}
}
