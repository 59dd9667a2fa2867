package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryFixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	lim := NewMemory(3, time.Minute)
	lim.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := lim.Admit(ctx, "author-a")
		if err != nil || !d.Allowed {
			t.Fatalf("call %d should be admitted", i+1)
		}
		clock.Advance(10 * time.Second)
	}

	d, _ := lim.Admit(ctx, "author-a")
	if d.Allowed {
		t.Fatalf("fourth call should be rejected")
	}
	if d.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry hint, got %s", d.RetryAfter)
	}

	other, _ := lim.Admit(ctx, "author-b")
	if !other.Allowed {
		t.Fatalf("other author has its own window")
	}

	clock.Advance(30 * time.Second)
	d, _ = lim.Admit(ctx, "author-a")
	if !d.Allowed {
		t.Fatalf("expected admission after window reset")
	}
}

func TestMemoryDefaults(t *testing.T) {
	lim := NewMemory(0, 0)
	if lim.max != DefaultMax || lim.window != DefaultWindow {
		t.Fatalf("expected defaults, got %d %s", lim.max, lim.window)
	}
}

func TestMemoryConcurrentAdmit(t *testing.T) {
	lim := NewMemory(5, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := lim.Admit(ctx, "author-a")
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 5 {
		t.Fatalf("expected exactly 5 admissions, got %d", admitted)
	}
}

func TestRedisFixedWindow(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	lim := NewRedis(client, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := lim.Admit(ctx, "author-a")
		if err != nil {
			t.Fatalf("admit: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}

	d, err := lim.Admit(ctx, "author-a")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third call should be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry hint %s", d.RetryAfter)
	}

	s.FastForward(time.Minute + time.Second)
	d, err = lim.Admit(ctx, "author-a")
	if err != nil || !d.Allowed {
		t.Fatalf("expected admission after window expiry: %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	if _, err := NewRedis(client, 0, 0).Admit(context.Background(), "author-a"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestFallbackUsesLocalWindowWhenRedisDown(t *testing.T) {
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer rdb.Close()
	server.Close()

	lim := NewFallback(NewRedis(rdb, 3, time.Minute), NewMemory(3, time.Minute), nil)
	ctx := context.Background()

	rejected := 0
	for i := 0; i < 4; i++ {
		d, err := lim.Admit(ctx, "author-a")
		if err != nil {
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
		if !d.Allowed {
			rejected++
			if i != 3 || d.RetryAfter <= 0 {
				t.Fatalf("unexpected rejection on call %d: %+v", i+1, d)
			}
		}
	}
	if rejected != 1 {
		t.Fatalf("expected exactly one rejection, got %d", rejected)
	}
}

func TestFallbackPrefersPrimary(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	local := NewMemory(1, time.Minute)
	lim := NewFallback(NewRedis(rdb, 3, time.Minute), local, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := lim.Admit(ctx, "author-a")
		if err != nil || !d.Allowed {
			t.Fatalf("call %d should be admitted by redis: %+v %v", i+1, d, err)
		}
	}
	if !s.Exists(keyPrefix + "author-a") {
		t.Fatalf("expected redis counter")
	}
	if d, _ := local.Admit(ctx, "author-a"); !d.Allowed {
		t.Fatalf("local window must be untouched while redis is healthy")
	}
}
