package profile

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/angelomarques/chirp/internal/directory"
)

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]directory.Profile
	fail     bool
	calls    [][]string
}

func (f *fakeDirectory) FetchProfiles(_ context.Context, ids []string) (map[string]directory.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	f.calls = append(f.calls, sorted)
	if f.fail {
		return nil, directory.ErrUnavailable
	}
	out := map[string]directory.Profile{}
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newFake() *fakeDirectory {
	return &fakeDirectory{profiles: map[string]directory.Profile{
		"user-a": {ID: "user-a", Username: "alice", ImageURL: "https://img/a"},
		"user-b": {ID: "user-b", Username: "bob", ImageURL: "https://img/b"},
	}}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)
	ctx := context.Background()

	first := cache.Resolve(ctx, []string{"user-a", "user-b", "user-a"})
	second := cache.Resolve(ctx, []string{"user-b", "user-a"})

	if len(dir.calls) != 1 {
		t.Fatalf("expected exactly one directory call, got %d", len(dir.calls))
	}
	if len(dir.calls[0]) != 2 {
		t.Fatalf("expected deduplicated batch, got %v", dir.calls[0])
	}
	if first.Degraded || second.Degraded {
		t.Fatalf("unexpected degraded result")
	}
	if second.Profiles["user-a"].Username != "alice" {
		t.Fatalf("unexpected cached profile %+v", second.Profiles["user-a"])
	}
}

func TestResolveCachesAbsent(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)

	res := cache.Resolve(context.Background(), []string{"ghost"})
	if _, ok := res.Profiles["ghost"]; ok {
		t.Fatalf("ghost must be absent")
	}
	cache.Resolve(context.Background(), []string{"ghost"})
	if len(dir.calls) != 1 {
		t.Fatalf("absent marker should be cached, got %d calls", len(dir.calls))
	}
}

func TestResolveFetchesOnlyMisses(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)
	ctx := context.Background()

	cache.Resolve(ctx, []string{"user-a"})
	cache.Resolve(ctx, []string{"user-a", "user-b", "ghost"})

	if len(dir.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(dir.calls))
	}
	want := []string{"ghost", "user-b"}
	if len(dir.calls[1]) != 2 || dir.calls[1][0] != want[0] || dir.calls[1][1] != want[1] {
		t.Fatalf("expected miss set %v, got %v", want, dir.calls[1])
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	cache.Resolve(context.Background(), []string{"user-a"})
	now = now.Add(2 * time.Minute)
	cache.Resolve(context.Background(), []string{"user-a"})

	if len(dir.calls) != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", len(dir.calls))
	}
}

func TestResolveServesStaleWhenDirectoryFails(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	cache.Resolve(context.Background(), []string{"user-a"})
	now = now.Add(10 * time.Minute)
	dir.fail = true

	res := cache.Resolve(context.Background(), []string{"user-a", "user-b"})
	if !res.Degraded {
		t.Fatalf("expected degraded resolution")
	}
	if res.Profiles["user-a"].Username != "alice" {
		t.Fatalf("expected stale profile for user-a")
	}
	if _, ok := res.Profiles["user-b"]; ok {
		t.Fatalf("user-b has no entry and must be absent")
	}
}

func TestResolveCancelledCallerStillPopulates(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := cache.Resolve(ctx, []string{"user-a"})
	if res.Profiles["user-a"].Username != "alice" {
		t.Fatalf("expected fetch to proceed for cancelled caller")
	}
}

func TestResolveConcurrent(t *testing.T) {
	dir := newFake()
	cache := NewCache(dir, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := cache.Resolve(context.Background(), []string{"user-a", "user-b"})
			if res.Profiles["user-b"].Username != "bob" {
				t.Errorf("unexpected profile")
			}
		}()
	}
	wg.Wait()
}

