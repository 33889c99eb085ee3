package tagstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalVersionsZeroForMissing(t *testing.T) {
	s := NewLocal(0, 0)
	defer s.Close(context.Background())

	out, err := s.Versions(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if out["a"] != 0 || out["b"] != 0 {
		t.Fatalf("missing tags must map to 0: %v", out)
	}
}

func TestLocalTouchAdvancesVersions(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	defer s.Close(ctx)

	if err := s.Touch(ctx, []string{"users", "orders"}, 100); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, _ := s.Versions(ctx, []string{"users", "orders"})
	if out["users"] != 100 || out["orders"] != 100 {
		t.Fatalf("versions after touch: %v", out)
	}

	// versions never move backwards
	if err := s.Touch(ctx, []string{"users"}, 50); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	out, _ = s.Versions(ctx, []string{"users"})
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

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(0, 0)
	defer s.Close(ctx)

	_ = s.Touch(ctx, []string{"old"}, 1)
	time.Sleep(15 * time.Millisecond)
	_ = s.Touch(ctx, []string{"new"}, 2)

	s.Cleanup(10 * time.Millisecond)

	out, _ := s.Versions(ctx, []string{"old", "new"})
	if out["old"] != 0 {
		t.Fatalf("old tag not pruned: %v", out)
	}
	if out["new"] != 2 {
		t.Fatalf("recent tag pruned: %v", out)
	}
}

func TestLocalCloseStopsCleanupLoop(t *testing.T) {
	s := NewLocal(time.Millisecond, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// idempotent
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
