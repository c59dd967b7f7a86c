package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Worker defines the interface for background workers
type Worker interface {
	// Start begins the worker loop; it returns once the loop is running
	Start(ctx context.Context) error

	// Stop asks the loop to finish and waits for it
	Stop(ctx context.Context) error

	Name() string
	IsRunning() bool
	Stats() WorkerStats
}

// WorkerStats represents statistics about a worker
type WorkerStats struct {
	WorkerName         string        `json:"worker_name"`
	JobsProcessed      int64         `json:"jobs_processed"`
	JobsSucceeded      int64         `json:"jobs_succeeded"`
	JobsFailed         int64         `json:"jobs_failed"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastJobTime        time.Time     `json:"last_job_time,omitempty"`
	Uptime             time.Duration `json:"uptime"`
	IsRunning          bool          `json:"is_running"`
}

// WorkerConfig holds configuration for workers
type WorkerConfig struct {
	// WorkerName is a unique identifier for this worker instance
	WorkerName string

	// Interval is the time between two runs of the job
	Interval time.Duration

	// JobTimeout bounds a single run; zero means no bound
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for the current run
	ShutdownTimeout time.Duration

	// EnableRecovery turns a panicking run into a failed one
	EnableRecovery bool
}

// DefaultWorkerConfig returns a worker configuration with sensible defaults
func DefaultWorkerConfig(workerName string) WorkerConfig {
	return WorkerConfig{
		WorkerName:      workerName,
		Interval:        5 * time.Minute,
		JobTimeout:      2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		EnableRecovery:  true,
	}
}

// BaseWorker provides the running flag and job statistics shared by workers
type BaseWorker struct {
	config  WorkerConfig
	running bool
	mu      sync.RWMutex

	jobsProcessed    int64
	jobsSucceeded    int64
	jobsFailed       int64
	totalProcessTime time.Duration
	startTime        time.Time
	lastJobTime      time.Time
	statsMu          sync.RWMutex
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(config WorkerConfig) *BaseWorker {
	return &BaseWorker{
		config: config,
	}
}

// Name returns the worker's name
func (w *BaseWorker) Name() string {
	return w.config.WorkerName
}

// IsRunning returns whether the worker is currently running
func (w *BaseWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// trySetRunning flips the running flag and reports whether it changed
func (w *BaseWorker) trySetRunning(running bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running == running {
		return false
	}
	w.running = running
	if running {
		w.statsMu.Lock()
		w.startTime = time.Now()
		w.statsMu.Unlock()
	}
	return true
}

// Stats returns worker statistics
func (w *BaseWorker) Stats() WorkerStats {
	running := w.IsRunning()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()

	var avgProcessTime time.Duration
	if w.jobsProcessed > 0 {
		avgProcessTime = w.totalProcessTime / time.Duration(w.jobsProcessed)
	}

	var uptime time.Duration
	if running && !w.startTime.IsZero() {
		uptime = time.Since(w.startTime)
	}

	return WorkerStats{
		WorkerName:         w.config.WorkerName,
		JobsProcessed:      w.jobsProcessed,
		JobsSucceeded:      w.jobsSucceeded,
		JobsFailed:         w.jobsFailed,
		AverageProcessTime: avgProcessTime,
		LastJobTime:        w.lastJobTime,
		Uptime:             uptime,
		IsRunning:          running,
	}
}

func (w *BaseWorker) recordJob(startTime time.Time, err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.jobsProcessed++
	if err != nil {
		w.jobsFailed++
	} else {
		w.jobsSucceeded++
	}
	w.totalProcessTime += time.Since(startTime)
	w.lastJobTime = time.Now()
}

// Config returns the worker configuration
func (w *BaseWorker) Config() WorkerConfig {
	return w.config
}

// runJob executes one run of processor under the configured timeout and
// recovery policy, recording the outcome
func (w *BaseWorker) runJob(ctx context.Context, processor JobProcessor) error {
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}
	if w.config.EnableRecovery {
		processor = RecoverableJobProcessor(processor)
	}

	startTime := time.Now()
	err := processor(ctx)
	w.recordJob(startTime, err)
	return err
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	workers []Worker
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{
		workers: make([]Worker, 0),
	}
}

// AddWorker adds a worker to the pool
func (p *WorkerPool) AddWorker(worker Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, worker)
}

// StartAll starts all workers in the pool
func (p *WorkerPool) StartAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, worker := range p.workers {
		if err := worker.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all workers in the pool concurrently and joins their errors
func (p *WorkerPool) StopAll(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make([]error, len(p.workers))

	for i, worker := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = worker.Stop(ctx)
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}

// GetAllStats returns statistics for all workers
func (p *WorkerPool) GetAllStats() []WorkerStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := make([]WorkerStats, 0, len(p.workers))
	for _, worker := range p.workers {
		stats = append(stats, worker.Stats())
	}
	return stats
}

// Count returns the number of workers in the pool
func (p *WorkerPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// JobProcessor performs one run of a periodic job
type JobProcessor func(ctx context.Context) error

// RecoverableJobProcessor wraps a job processor with panic recovery
func RecoverableJobProcessor(processor JobProcessor) JobProcessor {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &WorkerPanicError{Panic: r}
			}
		}()
		return processor(ctx)
	}
}

// WorkerError represents a worker-specific error
type WorkerError struct {
	WorkerName string
	Operation  string
	Err        error
	Message    string
}

func (e *WorkerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.WorkerName + ":" + e.Operation
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// NewWorkerError creates a new worker error
func NewWorkerError(workerName, operation string, err error, message string) *WorkerError {
	return &WorkerError{
		WorkerName: workerName,
		Operation:  operation,
		Err:        err,
		Message:    message,
	}
}

// WorkerPanicError represents a panic that occurred during a run
type WorkerPanicError struct {
	Panic any
}

func (e *WorkerPanicError) Error() string {
	switch v := e.Panic.(type) {
	case string:
		return "worker panic: " + v
	case error:
		return "worker panic: " + v.Error()
	default:
		return fmt.Sprintf("worker panic: %v", v)
	}
}

func (e *WorkerPanicError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}
