package tagstore_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tagcache/tagstore"
)

func newRedisStore(t *testing.T) *tagstore.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return tagstore.NewRedis(client, "test")
}

func TestRedisStoreVersionsAndTouch(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	out, err := s.Versions(ctx, []string{"users", "orders"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["users"] != 0 || out["orders"] != 0 {
		t.Fatalf("untouched tags: %v", out)
	}

	if err := s.Touch(ctx, []string{"users", "orders"}, 1700000000000); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, err = s.Versions(ctx, []string{"users", "orders", "other"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["users"] != 1700000000000 || out["orders"] != 1700000000000 || out["other"] != 0 {
		t.Fatalf("versions after touch: %v", out)
	}
}

func TestRedisStoreTouchNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)

	if err := s.Touch(ctx, []string{"users"}, 100); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	// a delayed Touch with an older epoch must not rewind the version
	if err := s.Touch(ctx, []string{"users"}, 50); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, _ := s.Versions(ctx, []string{"users"})
	if out["users"] != 100 {
		t.Fatalf("version moved backwards: %v", out)
	}

	if err := s.Touch(ctx, []string{"users"}, 200); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, _ = s.Versions(ctx, []string{"users"})
	if out["users"] != 200 {
		t.Fatalf("version did not advance: %v", out)
	}
}
