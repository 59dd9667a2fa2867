package feed

import (
	"fmt"
	"time"

	"github.com/angelomarques/chirp/internal/directory"
	"github.com/angelomarques/chirp/internal/post"
)

// Entry joins a post with its author's public profile. Author is nil when
// the directory has no such account or could not be reached.
type Entry struct {
	Post   post.Post          `json:"post" cbor:"post"`
	Author *directory.Profile `json:"author" cbor:"author"`
}

type CreateRequest struct {
	Content string `json:"content"`
}

// ErrorBody is the JSON shape of every non-2xx response from this package.
type ErrorBody struct {
	Kind         string `json:"kind"`
	Field        string `json:"field,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// Event is published on the stream hub after a post is written so that
// open feeds can refresh.
type Event struct {
	Type string    `json:"type"`
	Post post.Post `json:"post"`
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many posts, retry after %s", e.RetryAfter)
}
