package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/honeybadger-technologies/finopsguard/internal/errors"
)

// TestKeyCanonicalization verifies equivalent requests hash identically
// and distinct ones do not.
func TestKeyCanonicalization(t *testing.T) {
	base := KeyRequest{
		IaCType:     "terraform",
		Payload:     `resource "aws_instance" "web" {}`,
		Environment: "dev",
		PolicyIDs:   []string{"b", "a"},
	}

	shuffled := base
	shuffled.PolicyIDs = []string{"a", "b"}
	shuffled.Payload = "  " + base.Payload + "\n"
	if Key(base) != Key(shuffled) {
		t.Error("Expected identical keys for equivalent requests")
	}

	other := base
	other.Environment = "production"
	if Key(base) == Key(other) {
		t.Error("Expected different keys for different environments")
	}

	budgeted := base
	budgeted.MonthlyBudget = "1000"
	if Key(base) == Key(budgeted) {
		t.Error("Expected different keys when a budget is added")
	}
}

// TestGetOrBuildCachesSuccess verifies a second lookup is served from the
// cache without rebuilding.
func TestGetOrBuildCachesSuccess(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	ctx := context.Background()
	builds := 0

	v, cached, err := c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		builds++
		return "result", nil
	})
	if err != nil || cached {
		t.Fatalf("Expected fresh build, got cached=%v err=%v", cached, err)
	}
	if v != "result" {
		t.Errorf("Expected result, got %s", v)
	}

	v, cached, err = c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		builds++
		return "rebuilt", nil
	})
	if err != nil || !cached {
		t.Fatalf("Expected cache hit, got cached=%v err=%v", cached, err)
	}
	if v != "result" || builds != 1 {
		t.Errorf("Expected cached result after 1 build, got %s after %d", v, builds)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Expected 1 hit / 1 miss / 1 entry, got %+v", stats)
	}
}

// TestGetOrBuildSingleFlight verifies concurrent misses on one key share
// exactly one build.
func TestGetOrBuildSingleFlight(t *testing.T) {
	c := New[int]("analysis", time.Minute, nil)
	gate := make(chan struct{})
	var builds atomic.Int32

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrBuild(context.Background(), "shared", func(ctx context.Context) (int, error) {
				builds.Add(1)
				<-gate
				return 42, nil
			})
			if err != nil {
				t.Errorf("GetOrBuild failed: %v", err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if builds.Load() != 1 {
		t.Errorf("Expected exactly 1 build, got %d", builds.Load())
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("Caller %d expected 42, got %d", i, v)
		}
	}
}

// TestFailedBuildsAreNotCached verifies an error leaves no entry behind.
func TestFailedBuildsAreNotCached(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	ctx := context.Background()
	boom := errors.New("pricing exploded")

	_, _, err := c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected build error, got %v", err)
	}
	if c.Stats().Entries != 0 {
		t.Error("Expected failed build to leave no entry")
	}

	v, cached, err := c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil || cached || v != "recovered" {
		t.Errorf("Expected fresh rebuild after failure, got %s cached=%v err=%v", v, cached, err)
	}
}

// TestLazyExpiry verifies an expired entry misses on read and is removed.
func TestLazyExpiry(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	if _, _, err := c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		return "v1", nil
	}); err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}

	now = now.Add(2 * time.Minute)
	v, cached, err := c.GetOrBuild(ctx, "k", func(ctx context.Context) (string, error) {
		return "v2", nil
	})
	if err != nil || cached {
		t.Fatalf("Expected rebuild after expiry, got cached=%v err=%v", cached, err)
	}
	if v != "v2" {
		t.Errorf("Expected v2, got %s", v)
	}
}

// TestSweepEvictsExpired verifies the periodic sweep drops only expired
// entries.
func TestSweepEvictsExpired(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.put("old", "v")
	now = now.Add(30 * time.Second)
	c.put("fresh", "v")
	now = now.Add(45 * time.Second) // old is 75s in, fresh 45s

	if removed := c.sweep(); removed != 1 {
		t.Errorf("Expected 1 eviction, got %d", removed)
	}
	if c.Stats().Entries != 1 {
		t.Errorf("Expected 1 surviving entry, got %d", c.Stats().Entries)
	}
}

// TestEntryMetadata verifies hit counts and access times are tracked.
func TestEntryMetadata(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	build := func(ctx context.Context) (string, error) { return "v", nil }
	if _, _, err := c.GetOrBuild(ctx, "k", build); err != nil {
		t.Fatalf("GetOrBuild failed: %v", err)
	}

	now = now.Add(10 * time.Second)
	for i := 0; i < 3; i++ {
		if _, cached, _ := c.GetOrBuild(ctx, "k", build); !cached {
			t.Fatal("Expected cache hit")
		}
	}

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.CacheType != "analysis" {
		t.Errorf("Expected cache_type analysis, got %s", e.CacheType)
	}
	if e.HitCount != 3 {
		t.Errorf("Expected hit_count 3, got %d", e.HitCount)
	}
	if !e.LastAccessed.Equal(now) {
		t.Errorf("Expected last_accessed %v, got %v", now, e.LastAccessed)
	}
	if !e.ExpiresAt.Equal(e.CreatedAt.Add(time.Minute)) {
		t.Errorf("Expected expires_at = created_at + ttl, got %v", e.ExpiresAt)
	}
}

// TestCancelledWaiterReturns verifies a waiter whose context is done does
// not block on another caller's build.
func TestCancelledWaiterReturns(t *testing.T) {
	c := New[string]("analysis", time.Minute, nil)
	gate := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _, _ = c.GetOrBuild(context.Background(), "slow", func(ctx context.Context) (string, error) {
			close(started)
			<-gate
			return "v", nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.GetOrBuild(ctx, "slow", func(ctx context.Context) (string, error) {
		return "", errors.New("should not run")
	})
	if !apperrors.IsKind(err, apperrors.KindCancelled) {
		t.Errorf("Expected cancelled, got %v", err)
	}

	// The cancelled wait unlinks the key, so a live caller builds fresh
	// instead of joining the still-blocked flight.
	v, cached, err := c.GetOrBuild(context.Background(), "slow", func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	if err != nil || cached || v != "fresh" {
		t.Errorf("Expected fresh build after cancellation, got %q cached=%v err=%v", v, cached, err)
	}

	close(gate)
}
