package cache

import (
	"testing"
	"time"
)

func TestSafeStore_EvictsLRU(t *testing.T) {
	t.Parallel()

	s, err := newSafeStore(2)
	if err != nil {
		t.Fatalf("newSafeStore: %v", err)
	}

	k1 := Key{NodeKey: "/k1"}
	k2 := Key{NodeKey: "/k2"}
	k3 := Key{NodeKey: "/k3"}

	s.Set(k1, Entry{InsertedAt: time.Now()})
	s.Set(k2, Entry{InsertedAt: time.Now()})
	if evicted := s.Set(k3, Entry{InsertedAt: time.Now()}); !evicted {
		t.Error("Set should report eviction once capacity is exceeded")
	}

	if _, ok := s.Get(k1); ok {
		t.Error("k1 should have been evicted as least-recently-used")
	}
	if _, ok := s.Get(k2); !ok {
		t.Error("k2 should still be present")
	}
	if _, ok := s.Get(k3); !ok {
		t.Error("k3 should still be present")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestSafeStore_GetMovesToMRU(t *testing.T) {
	t.Parallel()

	s, err := newSafeStore(2)
	if err != nil {
		t.Fatalf("newSafeStore: %v", err)
	}

	k1 := Key{NodeKey: "/k1"}
	k2 := Key{NodeKey: "/k2"}
	k3 := Key{NodeKey: "/k3"}

	s.Set(k1, Entry{})
	s.Set(k2, Entry{})
	s.Get(k1) // touch k1, making k2 the LRU entry
	s.Set(k3, Entry{})

	if _, ok := s.Get(k2); ok {
		t.Error("k2 should have been evicted after k1 was touched")
	}
	if _, ok := s.Get(k1); !ok {
		t.Error("k1 should still be present")
	}
}

func TestFastStore_NoEvictionNoBound(t *testing.T) {
	t.Parallel()

	s := newFastStore()
	for i := 0; i < 1000; i++ {
		if evicted := s.Set(Key{NodeKey: "k"}, Entry{}); evicted {
			t.Fatal("fast store must never report eviction")
		}
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (same key repeated)", s.Len())
	}
}

func TestFastStore_RemoveAndGet(t *testing.T) {
	t.Parallel()

	s := newFastStore()
	k := Key{NodeKey: "/k"}
	s.Set(k, Entry{DepthScanned: 3})

	if e, ok := s.Get(k); !ok || e.DepthScanned != 3 {
		t.Fatalf("Get(%v) = (%v, %v), want (DepthScanned=3, true)", k, e, ok)
	}

	s.Remove(k)
	if _, ok := s.Get(k); ok {
		t.Error("Get after Remove should report absent")
	}
}
