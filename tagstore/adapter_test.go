package tagstore_test

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/tagcache/adapter/memory"
	"github.com/unkn0wn-root/tagcache/tagstore"
)

func TestAdapterStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := tagstore.NewAdapter(mp)
	defer s.Close(ctx)

	out, err := s.Versions(ctx, []string{"users"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["users"] != 0 {
		t.Fatalf("untouched tag must be 0: %v", out)
	}

	if err := s.Touch(ctx, []string{"users", "orders"}, 1234); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, err = s.Versions(ctx, []string{"users", "orders", "other"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["users"] != 1234 || out["orders"] != 1234 || out["other"] != 0 {
		t.Fatalf("versions: %v", out)
	}
}

func TestAdapterStoreTouchNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := tagstore.NewAdapter(mp)
	defer s.Close(ctx)

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

func TestAdapterStoreIgnoresForeignValues(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s := tagstore.NewAdapter(mp)

	// non-numeric foreign write under the tag keyspace
	if _, err := mp.Set(ctx, "tag:users", []byte("garbage"), 0); err != nil {
		t.Fatalf("raw set: %v", err)
	}
	out, err := s.Versions(ctx, []string{"users"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["users"] != 0 {
		t.Fatalf("foreign value must read as never-touched: %v", out)
	}
}
