package prerender

import (
	"context"

	"github.com/angelomarques/chirp/internal/feed"
	"github.com/angelomarques/chirp/internal/post"
)

// State is a hydrated snapshot. It is read-only after Hydrate.
type State struct {
	results map[string]result
}

func Hydrate(data []byte) (*State, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	st := &State{results: make(map[string]result, len(doc.Results))}
	for _, res := range doc.Results {
		if err := res.Query.validate(); err != nil {
			return nil, err
		}
		st.results[res.Query.Key()] = res
	}
	return st, nil
}

func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.results)
}

func (s *State) lookup(q Query) (result, bool) {
	if s == nil {
		return result{}, false
	}
	res, ok := s.results[q.Key()]
	return res, ok
}

// CachedReader serves queries from a hydrated state and falls back to a
// live reader on a miss. A nil fallback turns misses into
// ErrNotPrefetched.
type CachedReader struct {
	state    *State
	fallback Reader
}

func NewCachedReader(state *State, fallback Reader) *CachedReader {
	return &CachedReader{state: state, fallback: fallback}
}

func (r *CachedReader) GetAll(ctx context.Context) ([]feed.Entry, error) {
	q := Query{Op: OpGetAll}
	if res, ok := r.state.lookup(q); ok {
		return res.Entries, nil
	}
	if r.fallback == nil {
		return nil, ErrNotPrefetched
	}
	return r.fallback.GetAll(ctx)
}

func (r *CachedReader) GetByAuthor(ctx context.Context, authorID string) ([]feed.Entry, error) {
	q := Query{Op: OpGetByAuthor, AuthorID: authorID}
	if res, ok := r.state.lookup(q); ok {
		return res.Entries, nil
	}
	if r.fallback == nil {
		return nil, ErrNotPrefetched
	}
	return r.fallback.GetByAuthor(ctx, authorID)
}

func (r *CachedReader) GetByID(ctx context.Context, id string) (feed.Entry, error) {
	q := Query{Op: OpGetByID, ID: id}
	if res, ok := r.state.lookup(q); ok {
		if res.NotFound || len(res.Entries) == 0 {
			return feed.Entry{}, post.ErrNotFound
		}
		return res.Entries[0], nil
	}
	if r.fallback == nil {
		return feed.Entry{}, ErrNotPrefetched
	}
	return r.fallback.GetByID(ctx, id)
}
