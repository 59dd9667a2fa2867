package server

import (
	"log/slog"

	"github.com/angelomarques/chirp/internal/auth"
	"github.com/angelomarques/chirp/internal/config"
	"github.com/angelomarques/chirp/internal/db"
	"github.com/angelomarques/chirp/internal/directory"
	"github.com/angelomarques/chirp/internal/feed"
	"github.com/angelomarques/chirp/internal/post"
	"github.com/angelomarques/chirp/internal/prerender"
	"github.com/angelomarques/chirp/internal/profile"
	"github.com/angelomarques/chirp/internal/ratelimit"
	"github.com/angelomarques/chirp/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Feed     *feed.Service
	Profiles *profile.Cache
	Logger   *slog.Logger
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	log := slog.Default()

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     pg,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient, log),
		Logger: log,
	}
	s.Profiles, s.Feed = NewFeed(cfg, pg, redisClient, s.Stream, log)

	registerRoutes(s)
	return s
}

// NewFeed builds the feed service and its profile cache. A nil pool
// yields a store whose calls fail as unavailable; a nil redis client
// selects the in-process rate limiter, which also backs redis
// when it is unreachable.
func NewFeed(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, events feed.Publisher, log *slog.Logger) (*profile.Cache, *feed.Service) {
	var q db.Querier = db.Offline{}
	if pg != nil {
		q = pg
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewFallback(
			ratelimit.NewRedis(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow),
			ratelimit.NewMemory(cfg.RateLimitMax, cfg.RateLimitWindow),
			log,
		)
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	dir := directory.NewClient(directory.Options{
		BaseURL:   cfg.DirectoryURL,
		APIKey:    cfg.DirectoryAPIKey,
		BatchSize: cfg.DirectoryBatchSize,
		Timeout:   cfg.DirectoryTimeout,
	})
	profiles := profile.NewCache(dir, cfg.ProfileCacheTTL, log)

	svc := feed.NewService(post.NewStore(q), profiles, limiter, feed.Options{
		FeedLimit: cfg.FeedLimit,
		Events:    events,
		Logger:    log,
	})
	return profiles, svc
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Profiles), jwtMiddleware)
	feed.RegisterRoutes(s.App.Group("/posts"), s.Feed, jwtMiddleware)
	prerender.RegisterRoutes(s.App.Group("/prerender"), s.Feed)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
