package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes sessions that have been idle longer than the given age
type Sweeper interface {
	SweepIdle(ctx context.Context, idle time.Duration) (int, error)
}

// JanitorWorker periodically deletes the remote objects of idle and
// orphaned sessions
type JanitorWorker struct {
	*BaseWorker
	sweeper Sweeper
	idleTTL time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// JanitorWorkerConfig holds configuration for the janitor
type JanitorWorkerConfig struct {
	WorkerConfig WorkerConfig
	Sweeper      Sweeper
	IdleTTL      time.Duration
	Logger       *zap.Logger
}

// NewJanitorWorker creates a new janitor
func NewJanitorWorker(config JanitorWorkerConfig) *JanitorWorker {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JanitorWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		sweeper:    config.Sweeper,
		idleTTL:    config.IdleTTL,
		logger:     logger.With(zap.String("worker", config.WorkerConfig.WorkerName)),
	}
}

// Start launches the sweep loop. The loop ends when ctx is done or Stop is
// called.
func (w *JanitorWorker) Start(ctx context.Context) error {
	if w.config.Interval <= 0 {
		return NewWorkerError(w.Name(), "start", nil, "janitor interval must be positive")
	}
	if !w.trySetRunning(true) {
		return NewWorkerError(w.Name(), "start", nil, "worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	w.logger.Info("Starting janitor",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("idle_ttl", w.idleTTL),
	)
	go w.loop(runCtx, done)
	return nil
}

// Stop cancels the loop and waits for the current sweep, at most
// ShutdownTimeout
func (w *JanitorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if w.config.ShutdownTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, w.config.ShutdownTimeout)
		defer stop()
	}

	select {
	case <-done:
		w.logger.Info("Janitor stopped")
		return nil
	case <-ctx.Done():
		return NewWorkerError(w.Name(), "stop", ctx.Err(), "")
	}
}

func (w *JanitorWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer w.trySetRunning(false)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and records it in the worker stats
func (w *JanitorWorker) RunOnce(ctx context.Context) (int, error) {
	var swept int
	err := w.runJob(ctx, func(ctx context.Context) error {
		n, err := w.sweeper.SweepIdle(ctx, w.idleTTL)
		swept = n
		return err
	})

	if err != nil {
		w.logger.Error("Sweep failed", zap.Int("swept", swept), zap.Error(err))
		return swept, NewWorkerError(w.Name(), "sweep", err, "")
	}
	if swept > 0 {
		w.logger.Info("Swept idle sessions", zap.Int("swept", swept))
	} else {
		w.logger.Debug("No idle sessions")
	}
	return swept, nil
}
