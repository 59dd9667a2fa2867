package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelomarques/chirp/internal/config"
	"github.com/angelomarques/chirp/internal/feed"
	"github.com/angelomarques/chirp/internal/post"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const testSecret = "secret"

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func directoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"user-1","username":"alice","image_url":"https://img/a"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		JWTSecret:       testSecret,
		ServerPort:      ":0",
		DirectoryURL:    directoryServer(t).URL,
		RateLimitMax:    3,
		RateLimitWindow: time.Minute,
	}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: testSecret, ServerPort: ":0"}, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestPostsWithoutDatabase(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/posts", nil))
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 without a database: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"content": "🎉"})
	req := httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/posts", bytes.NewReader([]byte(`{"content":"hi"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for text content: %v", err)
	}
}

func TestSessionRoute(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("session status: %v", err)
	}

	var sess struct {
		UserID  string `json:"user_id"`
		Profile *struct {
			Username string `json:"username"`
		} `json:"profile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.UserID != "user-1" || sess.Profile == nil || sess.Profile.Username != "alice" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestStreamRouteRequiresUpgrade(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/posts", nil))
	if err != nil || resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426: %v", err)
	}
}

func TestNewFeedUsesRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, svc := NewFeed(testConfig(t), nil, rdb, nil, nil)

	_, err := svc.Create(context.Background(), "user-1", "🎉")
	if !errors.Is(err, post.ErrUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !mr.Exists("ratelimit:posts:user-1") {
		t.Fatalf("expected shared rate-limit counter in redis")
	}
}

func TestNewFeedRateLimitsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	_, svc := NewFeed(testConfig(t), nil, rdb, nil, nil)

	limited := 0
	for i := 0; i < 4; i++ {
		_, err := svc.Create(context.Background(), "user-1", "🎉")
		var rl *feed.RateLimitedError
		switch {
		case errors.As(err, &rl):
			limited++
		case !errors.Is(err, post.ErrUnavailable):
			t.Fatalf("call %d: unexpected error %v", i+1, err)
		}
	}
	if limited != 1 {
		t.Fatalf("expected one rate-limited create, got %d", limited)
	}
}
