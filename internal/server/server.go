package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"doc-chat/internal/handlers"
	"doc-chat/internal/routes"
	"doc-chat/internal/workers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("Request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Server is the HTTP API together with its background workers
type Server struct {
	http       *http.Server
	components *Components
	pool       *workers.WorkerPool
	logger     *zap.Logger
}

// NewServer builds the router and the janitor over c
func NewServer(c *Components) *Server {
	cfg := c.Config
	logger := c.Logger

	deps := map[string]handlers.Pinger{}
	if c.Redis != nil {
		deps["redis"] = c.Repo
	}

	workerCfg := workers.DefaultWorkerConfig("session-janitor")
	workerCfg.Interval = cfg.Session.JanitorInterval

	pool := workers.NewWorkerPool()
	pool.AddWorker(workers.NewJanitorWorker(workers.JanitorWorkerConfig{
		WorkerConfig: workerCfg,
		Sweeper:      c.Manager,
		IdleTTL:      cfg.Session.IdleTTL,
		Logger:       logger,
	}))

	h := &routes.Handlers{
		Health:     handlers.NewHealthHandler(deps, logger).WithWorkers(pool),
		Sessions:   handlers.NewSessionHandler(c.Manager, cfg.Gemini.Model, cfg.Server.MaxUploadBytes, logger),
		Metrics:    promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}),
		SwaggerURL: "/swagger/doc.json",
	}

	router := mux.NewRouter()
	router.Use(requestLogger(logger))
	routes.RegisterRoutes(router, h)

	return &Server{
		http: &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           corsMiddleware(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
		components: c,
		pool:       pool,
		logger:     logger,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is done, then shuts down gracefully: running session
// operations are interrupted, in-flight requests finish, workers stop and
// every session's remote objects are deleted
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.pool.StartAll(ctx); err != nil {
		ln.Close()
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *Server) shutdown() error {
	timeout := s.components.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down")
	// uploads blocked in a remote poll would otherwise hold Shutdown open
	if s.components.Manager != nil {
		s.components.Manager.Drain()
	}
	httpErr := s.http.Shutdown(ctx)
	workerErr := s.pool.StopAll(ctx)
	closeErr := s.components.Close()
	return errors.Join(httpErr, workerErr, closeErr)
}
