package services

import (
	"errors"
	"time"

	"doc-chat/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for the strategies and the orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	uploads         *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	cacheOutcomes   *prometheus.CounterVec
	cleanupFailures *prometheus.CounterVec
	messages        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "document_uploads_total",
			Help:      "Documents ingested, by retrieval mode and outcome.",
		}, []string{"mode", "outcome"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "remote_wait_seconds",
			Help:      "Time spent waiting for remote file processing or indexing.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"kind", "outcome"}),
		cacheOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "context_cache_total",
			Help:      "Context cache attempts, by result (created or fallback reason).",
		}, []string{"result"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "cleanup_failures_total",
			Help:      "Remote deletes that failed and were suppressed.",
		}, []string{"resource"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "messages_total",
			Help:      "Conversation turns, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docchat",
			Name:      "active_sessions",
			Help:      "Sessions currently held by this process.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.uploads, m.pollDuration, m.cacheOutcomes, m.cleanupFailures, m.messages, m.activeSessions)
	}
	return m
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrProcessingFailed):
		return "failed"
	default:
		return "error"
	}
}

func (m *Metrics) observeUpload(mode models.Mode, err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(string(mode), outcomeOf(err)).Inc()
}

func (m *Metrics) observeWait(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.WithLabelValues(kind, outcomeOf(err)).Observe(d.Seconds())
}

func (m *Metrics) observeCache(cacheErr *CacheError) {
	if m == nil {
		return
	}
	if cacheErr == nil {
		m.cacheOutcomes.WithLabelValues("created").Inc()
		return
	}
	m.cacheOutcomes.WithLabelValues(string(cacheErr.Reason)).Inc()
}

func (m *Metrics) observeCleanupFailure(resource string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(resource).Inc()
}

func (m *Metrics) observeMessage(mode models.Mode, err error) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(string(mode), outcomeOf(err)).Inc()
}

func (m *Metrics) setActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
