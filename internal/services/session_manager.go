package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"doc-chat/internal/models"
	"doc-chat/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionManager keeps the live sessions of this process. Operations on one
// session are serialized; different sessions proceed independently.
type SessionManager struct {
	orchestrator *Orchestrator
	repo         repositories.SessionRepository
	cleaner      *ResourceCleaner
	metrics      *Metrics
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*managedSession
	draining atomic.Bool
}

type managedSession struct {
	// op serializes operations on the session
	op sync.Mutex

	// mu guards the fields below
	mu      sync.Mutex
	session Session
	cancel  context.CancelFunc
}

// NewSessionManager creates a new session manager. repo and cleaner may be
// nil when orphaned records need not be swept.
func NewSessionManager(orchestrator *Orchestrator, repo repositories.SessionRepository, cleaner *ResourceCleaner, metrics *Metrics, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		orchestrator: orchestrator,
		repo:         repo,
		cleaner:      cleaner,
		metrics:      metrics,
		logger:       logger,
		sessions:     make(map[string]*managedSession),
	}
}

// Create starts a new empty session
func (m *SessionManager) Create(mode models.Mode) Session {
	s := m.orchestrator.NewSession(uuid.NewString(), mode)

	m.mu.Lock()
	m.sessions[s.ID] = &managedSession{session: s}
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.setActiveSessions(n)
	m.logger.Info("Session created", zap.String("session_id", s.ID), zap.String("mode", string(mode)))
	return s
}

// Get returns a snapshot of the session
func (m *SessionManager) Get(id string) (Session, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.session, nil
}

// List returns snapshots of every live session
func (m *SessionManager) List() []Session {
	m.mu.Lock()
	all := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.Unlock()

	out := make([]Session, 0, len(all))
	for _, ms := range all {
		ms.mu.Lock()
		out = append(out, ms.session)
		ms.mu.Unlock()
	}
	return out
}

// Update runs fn on the session and stores its result. fn runs under a
// context that Interrupt (and Reset, Delete) can cancel. Once Drain has been
// called Update refuses new work with ErrShuttingDown.
func (m *SessionManager) Update(ctx context.Context, id string, fn func(ctx context.Context, s Session) (Session, error)) (Session, error) {
	if m.draining.Load() {
		return Session{}, ErrShuttingDown
	}
	next, err := m.run(ctx, id, func(ctx context.Context, s Session) (Session, error) {
		// Drain may have started while waiting for the session
		if m.draining.Load() {
			return s, ErrShuttingDown
		}
		return fn(ctx, s)
	})
	if err != nil && m.draining.Load() && errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrShuttingDown, err)
	}
	return next, err
}

func (m *SessionManager) run(ctx context.Context, id string, fn func(ctx context.Context, s Session) (Session, error)) (Session, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}

	ms.op.Lock()
	defer ms.op.Unlock()

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ms.mu.Lock()
	ms.cancel = cancel
	current := ms.session
	ms.mu.Unlock()

	next, err := fn(opCtx, current)

	ms.mu.Lock()
	ms.session = next
	ms.cancel = nil
	ms.mu.Unlock()
	return next, err
}

// Upload ingests files into the session
func (m *SessionManager) Upload(ctx context.Context, id string, files []FileUpload) (Session, error) {
	return m.Update(ctx, id, func(ctx context.Context, s Session) (Session, error) {
		return m.orchestrator.Upload(ctx, s, files)
	})
}

// Ask sends prompt to the session's conversation, streaming pieces to onChunk
func (m *SessionManager) Ask(ctx context.Context, id, prompt string, onChunk func(string) error) (Session, error) {
	return m.Update(ctx, id, func(ctx context.Context, s Session) (Session, error) {
		return m.orchestrator.Ask(ctx, s, prompt, onChunk)
	})
}

// ChangeMode switches the session's retrieval mode, resetting it if needed
func (m *SessionManager) ChangeMode(ctx context.Context, id string, mode models.Mode) (Session, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	ms.interrupt()
	return m.Update(ctx, id, func(ctx context.Context, s Session) (Session, error) {
		return m.orchestrator.ChangeMode(context.WithoutCancel(ctx), s, mode), nil
	})
}

// Interrupt cancels the operation currently running on the session, if any
func (m *SessionManager) Interrupt(id string) {
	ms, err := m.lookup(id)
	if err != nil {
		return
	}
	ms.interrupt()
}

// Reset aborts any in-flight operation, deletes the session's remote
// objects and leaves an empty session in the same mode
func (m *SessionManager) Reset(ctx context.Context, id string) (Session, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return Session{}, err
	}
	ms.interrupt()
	return m.run(ctx, id, func(ctx context.Context, s Session) (Session, error) {
		return m.orchestrator.Reset(context.WithoutCancel(ctx), s), nil
	})
}

// Delete resets the session and forgets it
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	if _, err := m.Reset(ctx, id); err != nil {
		return err
	}
	m.remove(id)
	m.logger.Info("Session closed", zap.String("session_id", id))
	return nil
}

// SweepIdle closes live sessions untouched for longer than idle, then deletes
// the remote resources of persisted records that no live session owns and
// that are equally stale. It returns the number of sessions swept.
func (m *SessionManager) SweepIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idle)
	swept := 0

	for _, s := range m.List() {
		if s.UpdatedAt.After(cutoff) {
			continue
		}
		m.logger.Info("Closing idle session", zap.String("session_id", s.ID), zap.Time("last_activity", s.UpdatedAt))
		if err := m.Delete(ctx, s.ID); err == nil {
			swept++
		}
	}

	if m.repo == nil {
		return swept, nil
	}

	records, err := m.repo.ListIdle(ctx, cutoff)
	if err != nil {
		return swept, err
	}
	for _, rec := range records {
		if m.isLive(rec.ID) {
			continue
		}
		m.logger.Info("Sweeping orphaned session resources",
			zap.String("session_id", rec.ID),
			zap.Int("documents", len(rec.Resources.DocumentNames)),
			zap.String("store", rec.Resources.StoreName),
		)
		m.cleaner.Clean(ctx, rec.Resources)
		if err := m.repo.Delete(ctx, rec.ID); err != nil {
			m.logger.Warn("Failed to delete swept session record", zap.String("session_id", rec.ID), zap.Error(err))
		}
		swept++
	}
	return swept, nil
}

// Drain refuses further uploads, questions and mode changes and interrupts
// the operation running on every live session. Reset and Delete still work,
// so CloseAll can follow.
func (m *SessionManager) Drain() {
	m.draining.Store(true)

	m.mu.Lock()
	all := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.Unlock()

	for _, ms := range all {
		ms.interrupt()
	}
	m.logger.Info("Session manager draining", zap.Int("sessions", len(all)))
}

// CloseAll resets and forgets every live session; used on shutdown
func (m *SessionManager) CloseAll(ctx context.Context) {
	for _, s := range m.List() {
		if err := m.Delete(ctx, s.ID); err != nil {
			m.logger.Warn("Failed to close session", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
}

func (m *SessionManager) lookup(id string) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

func (m *SessionManager) isLive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

func (m *SessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	m.metrics.setActiveSessions(n)
}

func (ms *managedSession) interrupt() {
	ms.mu.Lock()
	cancel := ms.cancel
	ms.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
