package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRU[string, string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string, string](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUEviction(t *testing.T) {
	c, _ := newTestLRU(3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Get("key1") // key2 is now least recently used
	c.Set("key4", "value4")

	if _, ok := c.Get("key2"); ok {
		t.Error("key2 should have been evicted")
	}
	for _, k := range []string{"key1", "key3", "key4"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still exist", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLRUTTLExpiration(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("key1", "value1")

	if v, ok := c.Get("key1"); !ok || v != "value1" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}
	clock.t = clock.t.Add(2 * time.Minute)
	if _, ok := c.Get("key1"); ok {
		t.Error("key1 should have expired")
	}
}

func TestLRUZeroTTLNeverExpires(t *testing.T) {
	c, clock := newTestLRU(10, 0)
	c.Set("k", "v")
	clock.t = clock.t.Add(24 * 365 * time.Hour)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry without ttl should not expire")
	}
}

func TestLRUCleanExpiredAndPurge(t *testing.T) {
	c, clock := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("c", "3")
	clock.t = clock.t.Add(45 * time.Second)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("CleanExpired() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after Purge = %d", c.Len())
	}
}

func TestLRUStats(t *testing.T) {
	c, _ := newTestLRU(2, time.Hour)
	c.Set("a", "1")
	c.Get("a")
	c.Get("missing")

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses", hits, misses)
	}
}

func TestManagerCleanAll(t *testing.T) {
	a, clock := newTestLRU(10, time.Minute)
	b, _ := newTestLRU(10, time.Minute)
	b.now = clock.now
	a.Set("x", "1")
	b.Set("y", "2")
	clock.t = clock.t.Add(time.Hour)

	m := NewManager()
	m.Register(a)
	m.Register(b)
	if n := m.CleanAll(); n != 2 {
		t.Errorf("CleanAll() = %d, want 2", n)
	}
}

func BenchmarkLRU(b *testing.B) {
	c := NewLRU[int, string](1000, time.Hour)
	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set(i%1000, "v")
		} else {
			c.Get(i % 1000)
		}
	}
}
