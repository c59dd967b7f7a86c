package repositories

import (
	"context"
	"errors"
	"time"

	"doc-chat/internal/models"
)

// SessionRepository persists the remote-resource footprint of chat sessions.
// Records outlive the process that wrote them so an idle or crashed session's
// documents and stores can still be deleted.
type SessionRepository interface {
	Save(ctx context.Context, rec *models.SessionRecord) error
	Get(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]*models.SessionRecord, error)

	// ListIdle returns records last updated before cutoff
	ListIdle(ctx context.Context, cutoff time.Time) ([]*models.SessionRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrRecordNotFound is matched with errors.Is on repository lookups
var ErrRecordNotFound = errors.New("session record not found")

// SessionRepositoryError represents errors from the session repository
type SessionRepositoryError struct {
	Operation string
	SessionID string
	Err       error
	Message   string
}

func (e *SessionRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.SessionID != "" {
		prefix += " (session: " + e.SessionID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *SessionRepositoryError) Unwrap() error {
	return e.Err
}

// NewSessionRepositoryError creates a new session repository error
func NewSessionRepositoryError(operation, sessionID string, err error, message string) *SessionRepositoryError {
	return &SessionRepositoryError{
		Operation: operation,
		SessionID: sessionID,
		Err:       err,
		Message:   message,
	}
}

// SessionNotFoundError reports a missing record
func SessionNotFoundError(sessionID string) error {
	return NewSessionRepositoryError("get_session", sessionID, ErrRecordNotFound, "session record not found: "+sessionID)
}

// InvalidSessionError reports a record that failed validation
func InvalidSessionError(sessionID string, err error) error {
	return NewSessionRepositoryError("validate_session", sessionID, err, "")
}
