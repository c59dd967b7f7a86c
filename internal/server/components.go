package server

import (
	"context"
	"time"

	"doc-chat/internal/config"
	"doc-chat/internal/db"
	"doc-chat/internal/gemini"
	"doc-chat/internal/repositories"
	"doc-chat/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Components is the service graph shared by the HTTP server and the CLI
type Components struct {
	Config   *config.Config
	Manager  *services.SessionManager
	Repo     repositories.SessionRepository
	Metrics  *services.Metrics
	Registry *prometheus.Registry
	Redis    *db.RedisClient
	Logger   *zap.Logger
}

// BuildComponents wires repositories, the model client and the session
// manager from cfg. A missing API key is logged, not fatal: every upload
// then fails with a missing-credential error.
func BuildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := services.NewMetrics(reg)

	c := &Components{
		Config:   cfg,
		Metrics:  metrics,
		Registry: reg,
		Logger:   logger,
	}
	c.Repo, c.Redis = openRepository(ctx, cfg.Redis, logger)

	deps := services.StrategyDeps{Metrics: metrics, Logger: logger}
	if cfg.Gemini.APIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		deps = client.Deps(metrics, logger)
		logger.Info("Gemini client initialized", zap.String("model", cfg.Gemini.Model))
	} else {
		logger.Warn("GOOGLE_API_KEY not set, document uploads will be refused")
	}

	strategyCfg := services.DefaultStrategyConfig(cfg.Gemini.APIKey, cfg.Gemini.Model)
	strategyCfg.UploadDir = cfg.Server.UploadDir

	orch := services.NewOrchestrator(services.NewStrategyFactory(strategyCfg, deps), c.Repo, metrics, logger)
	cleaner := services.NewResourceCleaner(deps.Files, deps.Stores, metrics, logger)
	c.Manager = services.NewSessionManager(orch, c.Repo, cleaner, metrics, logger)
	return c, nil
}

// openRepository connects to Redis when configured and falls back to the
// in-memory store otherwise
func openRepository(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (repositories.SessionRepository, *db.RedisClient) {
	if cfg.Host == "" {
		logger.Info("Redis not configured, keeping session records in memory")
		return repositories.NewMemorySessionRepository(), nil
	}

	rc := db.RedisConfigFrom(cfg)
	logger.Info("Connecting to Redis", zap.String("addr", rc.Addr()), zap.Int("db", rc.DB))

	client, err := db.Connect(ctx, rc, 5*time.Second)
	if err != nil {
		logger.Warn("Redis unavailable, keeping session records in memory",
			zap.Error(err),
			zap.String("hint", "docker run -d -p 6379:6379 redis:7-alpine"),
		)
		return repositories.NewMemorySessionRepository(), nil
	}

	logger.Info("Redis connected")
	return repositories.NewRedisSessionRepository(client.GetClient()), client
}

// Close deletes the remote objects of every live session and releases
// storage connections
func (c *Components) Close() error {
	if c.Manager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		c.Manager.CloseAll(ctx)
		cancel()
	}

	// the Redis repository owns the client connection
	if c.Repo != nil {
		return c.Repo.Close()
	}
	return nil
}
