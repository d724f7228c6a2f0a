package cache

import (
	"fmt"
	"testing"
	"time"

	"budgetgrid/internal/core"
)

func snap(planned int64) core.MonthSnapshot {
	return core.MonthSnapshot{UserID: "u1", Year: 2025, Month: 6, PlannedCents: planned}
}

func TestGetPut(t *testing.T) {
	c := NewSnapshotCache(10, time.Minute)
	key := Key("u1", 2025, 6)

	if _, ok := c.Get(key, 1); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(key, 1, snap(30000))
	got, ok := c.Get(key, 1)
	if !ok {
		t.Fatal("expected hit")
	}
	if got.PlannedCents != 30000 {
		t.Fatalf("planned %d, want 30000", got.PlannedCents)
	}
}

func TestGetVersionMismatchEvicts(t *testing.T) {
	c := NewSnapshotCache(10, time.Minute)
	key := Key("u1", 2025, 6)
	c.Put(key, 1, snap(30000))

	// The plan moved to version 2: the version-1 snapshot is stale and must
	// not be served, even to a later version-1 lookup.
	if _, ok := c.Get(key, 2); ok {
		t.Fatal("stale version must miss")
	}
	if _, ok := c.Get(key, 1); ok {
		t.Fatal("stale entry should have been evicted")
	}
	if c.Size() != 0 {
		t.Fatalf("size %d, want 0", c.Size())
	}
}

func TestPutReplacesOlderVersion(t *testing.T) {
	c := NewSnapshotCache(10, time.Minute)
	key := Key("u1", 2025, 6)
	c.Put(key, 1, snap(30000))
	c.Put(key, 2, snap(45000))

	got, ok := c.Get(key, 2)
	if !ok || got.PlannedCents != 45000 {
		t.Fatalf("got %+v ok=%v, want version-2 snapshot", got, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("size %d, want 1", c.Size())
	}
}

func TestInvalidate(t *testing.T) {
	c := NewSnapshotCache(10, time.Minute)
	key := Key("u1", 2025, 6)
	c.Put(key, 1, snap(30000))

	c.Invalidate(key)
	if _, ok := c.Get(key, 1); ok {
		t.Fatal("invalidated entry must miss")
	}
	// Invalidating a missing key is a no-op.
	c.Invalidate("u9|2025-01")
}

func TestSizeEviction(t *testing.T) {
	c := NewSnapshotCache(3, time.Minute)
	for i := 1; i <= 4; i++ {
		c.Put(Key(fmt.Sprintf("u%d", i), 2025, 6), 1, snap(int64(i)))
	}
	if c.Size() != 3 {
		t.Fatalf("size %d, want 3", c.Size())
	}
	// u1 went in first and was never touched again: it is the evicted one.
	if _, ok := c.Get(Key("u1", 2025, 6), 1); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get(Key("u4", 2025, 6), 1); !ok {
		t.Fatal("newest entry should survive")
	}
}

func TestLRUTouchOnGet(t *testing.T) {
	c := NewSnapshotCache(2, time.Minute)
	c.Put(Key("u1", 2025, 6), 1, snap(1))
	c.Put(Key("u2", 2025, 6), 1, snap(2))

	// Touch u1 so u2 becomes the eviction candidate.
	if _, ok := c.Get(Key("u1", 2025, 6), 1); !ok {
		t.Fatal("expected hit for u1")
	}
	c.Put(Key("u3", 2025, 6), 1, snap(3))

	if _, ok := c.Get(Key("u1", 2025, 6), 1); !ok {
		t.Fatal("recently used entry evicted")
	}
	if _, ok := c.Get(Key("u2", 2025, 6), 1); ok {
		t.Fatal("least recently used entry should be gone")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewSnapshotCache(10, 10*time.Millisecond)
	key := Key("u1", 2025, 6)
	c.Put(key, 1, snap(30000))

	time.Sleep(25 * time.Millisecond)
	if _, ok := c.Get(key, 1); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestCleanExpired(t *testing.T) {
	c := NewSnapshotCache(10, 10*time.Millisecond)
	c.Put(Key("u1", 2025, 6), 1, snap(1))
	c.Put(Key("u2", 2025, 6), 1, snap(2))

	time.Sleep(25 * time.Millisecond)
	c.Put(Key("u3", 2025, 6), 1, snap(3))

	if removed := c.CleanExpired(); removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	if c.Size() != 1 {
		t.Fatalf("size %d, want 1", c.Size())
	}
}

func TestKey(t *testing.T) {
	if got := Key("u1", 2025, 6); got != "u1|2025-06" {
		t.Fatalf("Key = %q", got)
	}
}
