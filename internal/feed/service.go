package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/angelomarques/chirp/internal/post"
	"github.com/angelomarques/chirp/internal/profile"
	"github.com/angelomarques/chirp/internal/ratelimit"
	"github.com/angelomarques/chirp/internal/validation"

	"github.com/google/uuid"
)

// Topic is the stream topic that carries post events.
const Topic = "posts"

type Store interface {
	Insert(ctx context.Context, p post.Post) error
	FindAll(ctx context.Context, limit int) ([]post.Post, error)
	FindByID(ctx context.Context, id string) (post.Post, error)
	FindByAuthor(ctx context.Context, authorID string, limit int) ([]post.Post, error)
}

// ProfileResolver takes the whole id set so lookups stay batched.
type ProfileResolver interface {
	Resolve(ctx context.Context, ids []string) profile.Resolution
}

type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type Options struct {
	// FeedLimit caps list reads; <= 0 means no cap.
	FeedLimit int
	Events    Publisher
	Logger    *slog.Logger
}

type Service struct {
	store    Store
	profiles ProfileResolver
	limiter  ratelimit.Limiter
	events   Publisher
	logger   *slog.Logger
	limit    int
	now      func() time.Time
	newID    func() string
}

func NewService(store Store, profiles ProfileResolver, limiter ratelimit.Limiter, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		profiles: profiles,
		limiter:  limiter,
		events:   opts.Events,
		logger:   logger,
		limit:    opts.FeedLimit,
		now:      time.Now,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Create validates and rate-limits a submission, then stores it. It is
// not idempotent.
func (s *Service) Create(ctx context.Context, authorID, raw string) (post.Post, error) {
	content, err := validation.Validate(raw)
	if err != nil {
		return post.Post{}, err
	}

	decision, err := s.limiter.Admit(ctx, authorID)
	switch {
	case err != nil:
		s.logger.Warn("rate limiter unavailable, admitting post", slog.String("author_id", authorID), slog.Any("error", err))
	case !decision.Allowed:
		return post.Post{}, &RateLimitedError{RetryAfter: decision.RetryAfter}
	}

	p := post.Post{
		ID:        s.newID(),
		AuthorID:  authorID,
		Content:   content.String(),
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return post.Post{}, err
	}

	s.publish(p)
	return p, nil
}

func (s *Service) GetAll(ctx context.Context) ([]Entry, error) {
	posts, err := s.store.FindAll(ctx, s.limit)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, posts), nil
}

func (s *Service) GetByAuthor(ctx context.Context, authorID string) ([]Entry, error) {
	posts, err := s.store.FindByAuthor(ctx, authorID, s.limit)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, posts), nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Entry, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	return s.assemble(ctx, []post.Post{p})[0], nil
}

// assemble resolves every distinct author in one call and zips the result
// onto the posts in store order.
func (s *Service) assemble(ctx context.Context, posts []post.Post) []Entry {
	ids := make([]string, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		ids = append(ids, p.AuthorID)
	}

	var res profile.Resolution
	if len(ids) > 0 {
		res = s.profiles.Resolve(ctx, ids)
	}
	if res.Degraded {
		s.logger.Warn("serving feed without fresh author data", slog.Int("posts", len(posts)), slog.Int("authors", len(ids)))
	}

	entries := make([]Entry, len(posts))
	for i, p := range posts {
		entries[i] = Entry{Post: p}
		if author, ok := res.Profiles[p.AuthorID]; ok {
			entries[i].Author = &author
		}
	}
	return entries
}

func (s *Service) publish(p post.Post) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: "post.created", Post: p})
	if err != nil {
		s.logger.Error("encode post event", slog.Any("error", err))
		return
	}
	s.events.Broadcast(Topic, payload)
}
