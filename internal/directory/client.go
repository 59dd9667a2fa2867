package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/sony/gobreaker"
)

const (
	DefaultBatchSize = 100
	DefaultTimeout   = 3 * time.Second
)

// ErrUnavailable marks a transient directory failure. Callers should
// degrade rather than fail.
var ErrUnavailable = errors.New("identity directory unavailable")

// Fetcher resolves a set of user ids. Ids with no account are absent from
// the returned map; that is not an error.
type Fetcher interface {
	FetchProfiles(ctx context.Context, ids []string) (map[string]Profile, error)
}

// Client talks to a Clerk-compatible user directory.
type Client struct {
	baseURL    string
	apiKey     string
	batchSize  int
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type Options struct {
	BaseURL   string
	APIKey    string
	BatchSize int
	Timeout   time.Duration
}

func NewClient(opts Options) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		batchSize:  opts.BatchSize,
		timeout:    opts.Timeout,
		httpClient: &http.Client{Timeout: opts.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "identity-directory",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
}

type listUsersParams struct {
	UserIDs []string `url:"user_id"`
	Limit   int      `url:"limit"`
}

// FetchProfiles issues one list call per batchSize ids.
func (c *Client) FetchProfiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	unique := dedupe(ids)
	profiles := make(map[string]Profile, len(unique))

	for start := 0; start < len(unique); start += c.batchSize {
		end := min(start+c.batchSize, len(unique))
		users, err := c.listUsers(ctx, unique[start:end])
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			p := u.profile()
			profiles[p.ID] = p
		}
	}
	return profiles, nil
}

func (c *Client) listUsers(ctx context.Context, ids []string) ([]user, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, "/v1/users", listUsersParams{UserIDs: ids, Limit: len(ids)})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return res.([]user), nil
}

func (c *Client) get(ctx context.Context, path string, params listUsersParams) ([]user, error) {
	values, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var users []user
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return users, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
