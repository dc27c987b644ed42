package router

import (
	"testing"
	"time"
)

func TestCacheKeyStable(t *testing.T) {
	a := CacheKey("deploy ecs", map[string]string{"env": "dev", "region": "us-east-1"})
	b := CacheKey("deploy ecs", map[string]string{"region": "us-east-1", "env": "dev"})
	if a != b {
		t.Error("key must be independent of context map order")
	}
}

func TestCacheKeySensitivity(t *testing.T) {
	base := CacheKey("deploy ecs", map[string]string{"env": "dev"})
	if CacheKey("deploy rds", map[string]string{"env": "dev"}) == base {
		t.Error("different text must produce a different key")
	}
	if CacheKey("deploy ecs", map[string]string{"env": "prod"}) == base {
		t.Error("different context value must produce a different key")
	}
	if CacheKey("deploy ecs", nil) == base {
		t.Error("missing context must produce a different key")
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := newDecisionCache(100 * time.Millisecond)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put("k", &Decision{ID: "d1"})
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("expected fresh entry")
	}

	current = current.Add(101 * time.Millisecond)
	if _, ok := cache.Get("k"); ok {
		t.Error("expired entry must not be served")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry must be dropped on read, len=%d", cache.Len())
	}
}

func TestCacheSweepOnPut(t *testing.T) {
	cache := newDecisionCache(100 * time.Millisecond)
	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put("old1", &Decision{ID: "d1"})
	cache.Put("old2", &Decision{ID: "d2"})
	current = current.Add(101 * time.Millisecond)

	cache.Put("fresh", &Decision{ID: "d3"})
	if cache.Len() != 1 {
		t.Errorf("expected sweep to drop expired entries, len=%d", cache.Len())
	}
	if _, ok := cache.Get("fresh"); !ok {
		t.Error("fresh entry must survive the sweep")
	}
}

func TestCacheLastWriteWins(t *testing.T) {
	cache := newDecisionCache(time.Minute)

	cache.Put("k", &Decision{ID: "first"})
	cache.Put("k", &Decision{ID: "second"})

	decision, ok := cache.Get("k")
	if !ok {
		t.Fatal("expected entry")
	}
	if decision.ID != "second" {
		t.Errorf("expected the later write, got %s", decision.ID)
	}
}
