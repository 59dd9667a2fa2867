package prerender

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/angelomarques/chirp/internal/feed"
	"github.com/angelomarques/chirp/internal/post"
)

var (
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrUnknownOp       = errors.New("unknown operation")
	ErrNotPrefetched   = errors.New("query not prefetched")
)

// Reader is the read side of the feed service. There is no create: a
// prefetch must never consume rate-limit budget.
type Reader interface {
	GetAll(ctx context.Context) ([]feed.Entry, error)
	GetByID(ctx context.Context, id string) (feed.Entry, error)
	GetByAuthor(ctx context.Context, authorID string) ([]feed.Entry, error)
}

type Op string

const (
	OpGetAll      Op = "posts.getAll"
	OpGetByID     Op = "posts.getById"
	OpGetByAuthor Op = "posts.getByAuthor"
)

type Query struct {
	Op       Op     `cbor:"1,keyasint"`
	ID       string `cbor:"2,keyasint,omitempty"`
	AuthorID string `cbor:"3,keyasint,omitempty"`
}

// Key identifies a query; identical queries share a key.
func (q Query) Key() string {
	switch q.Op {
	case OpGetByID:
		return string(q.Op) + "?id=" + q.ID
	case OpGetByAuthor:
		return string(q.Op) + "?author=" + q.AuthorID
	default:
		return string(q.Op)
	}
}

func (q Query) validate() error {
	switch q.Op {
	case OpGetAll:
		return nil
	case OpGetByID:
		if q.ID == "" {
			return fmt.Errorf("%s: id required", q.Op)
		}
		return nil
	case OpGetByAuthor:
		if q.AuthorID == "" {
			return fmt.Errorf("%s: author id required", q.Op)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, q.Op)
	}
}

// result is the exact response of one query. NotFound records a
// getById miss so it can be replayed.
type result struct {
	Query    Query        `cbor:"1,keyasint"`
	Entries  []feed.Entry `cbor:"2,keyasint"`
	NotFound bool         `cbor:"3,keyasint,omitempty"`
}

type Snapshot struct {
	Data   []byte
	Digest string
}

// Helper runs read queries ahead of request time and exports their
// results. It is safe for concurrent Prefetch calls.
type Helper struct {
	reader  Reader
	mu      sync.Mutex
	results map[string]result
}

func NewHelper(reader Reader) *Helper {
	return &Helper{reader: reader, results: map[string]result{}}
}

func (h *Helper) Prefetch(ctx context.Context, q Query) error {
	if err := q.validate(); err != nil {
		return err
	}

	res, err := run(ctx, h.reader, q)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.results[q.Key()] = res
	h.mu.Unlock()
	return nil
}

// Dehydrate encodes every prefetched result. Results are ordered by key
// so the same set of results always produces the same bytes.
func (h *Helper) Dehydrate() (Snapshot, error) {
	h.mu.Lock()
	doc := document{Version: snapshotVersion, Results: make([]result, 0, len(h.results))}
	for _, res := range h.results {
		doc.Results = append(doc.Results, res)
	}
	h.mu.Unlock()

	sort.Slice(doc.Results, func(i, j int) bool {
		return doc.Results[i].Query.Key() < doc.Results[j].Query.Key()
	})

	data, err := encode(doc)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Data: data, Digest: digest(data)}, nil
}

func run(ctx context.Context, reader Reader, q Query) (result, error) {
	res := result{Query: q}
	switch q.Op {
	case OpGetAll:
		entries, err := reader.GetAll(ctx)
		if err != nil {
			return result{}, err
		}
		res.Entries = entries
	case OpGetByAuthor:
		entries, err := reader.GetByAuthor(ctx, q.AuthorID)
		if err != nil {
			return result{}, err
		}
		res.Entries = entries
	case OpGetByID:
		entry, err := reader.GetByID(ctx, q.ID)
		switch {
		case errors.Is(err, post.ErrNotFound):
			res.NotFound = true
		case err != nil:
			return result{}, err
		default:
			res.Entries = []feed.Entry{entry}
		}
	}
	if res.Entries == nil && !res.NotFound {
		res.Entries = []feed.Entry{}
	}
	return res, nil
}
