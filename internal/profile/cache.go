package profile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angelomarques/chirp/internal/directory"
)

const DefaultTTL = 5 * time.Minute

// record is immutable once stored. A nil profile marks an id the
// directory reported as having no account.
type record struct {
	profile   *directory.Profile
	fetchedAt time.Time
}

// Resolution is the outcome of one Resolve call. Ids without a profile
// are absent from Profiles. Degraded is set when the directory could not
// be reached and stale or missing data was served instead.
type Resolution struct {
	Profiles map[string]directory.Profile
	Degraded bool
}

// Cache memoizes directory lookups for ttl. Entries are replaced
// atomically per id; there is no cross-key lock.
type Cache struct {
	fetcher directory.Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	entries sync.Map // id -> *record
}

func NewCache(fetcher directory.Fetcher, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{fetcher: fetcher, ttl: ttl, now: time.Now, logger: logger}
}

// Resolve returns profiles for ids. Every id missing from the cache or
// past its ttl is fetched in a single directory call.
func (c *Cache) Resolve(ctx context.Context, ids []string) Resolution {
	now := c.now()
	res := Resolution{Profiles: make(map[string]directory.Profile, len(ids))}

	var misses []string
	stale := map[string]*record{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}

		v, ok := c.entries.Load(id)
		if !ok {
			misses = append(misses, id)
			continue
		}
		rec := v.(*record)
		if now.Sub(rec.fetchedAt) >= c.ttl {
			stale[id] = rec
			misses = append(misses, id)
			continue
		}
		if rec.profile != nil {
			res.Profiles[id] = *rec.profile
		}
	}

	if len(misses) == 0 {
		return res
	}

	// A caller that goes away should not waste the fetch; the client
	// bounds it with its own timeout.
	fetched, err := c.fetcher.FetchProfiles(context.WithoutCancel(ctx), misses)
	if err != nil {
		c.logger.Warn("profile lookup degraded", slog.Int("misses", len(misses)), slog.Int("stale", len(stale)), slog.Any("error", err))
		res.Degraded = true
		for id, rec := range stale {
			if rec.profile != nil {
				res.Profiles[id] = *rec.profile
			}
		}
		return res
	}

	fetchedAt := c.now()
	for _, id := range misses {
		rec := &record{fetchedAt: fetchedAt}
		if p, ok := fetched[id]; ok {
			rec.profile = &p
			res.Profiles[id] = p
		}
		c.entries.Store(id, rec)
	}
	return res
}

