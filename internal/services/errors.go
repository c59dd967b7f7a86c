package services

import (
	"errors"
	"strings"
)

// Failure taxonomy of the retrieval strategies. Callers match with errors.Is.
var (
	ErrMissingCredential  = errors.New("missing API credential")
	ErrTimeout            = errors.New("timed out waiting for remote processing")
	ErrProcessingFailed   = errors.New("remote processing failed")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUnexpectedState    = errors.New("unexpected remote state")
)

// Session-level validation errors raised by the orchestrator
var (
	ErrSessionActive    = errors.New("documents are already active in this session")
	ErrTooManyDocuments = errors.New("too many documents")
	ErrNoDocuments      = errors.New("no documents provided")
	ErrUnsupportedType  = errors.New("unsupported document type")
	ErrSessionNotFound  = errors.New("session not found")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrShuttingDown     = errors.New("service is shutting down")
)

// StrategyError describes a failed strategy operation
type StrategyError struct {
	Op       string
	Resource string
	Err      error
	Message  string
}

func (e *StrategyError) Error() string {
	prefix := e.Op
	if e.Resource != "" {
		prefix += " (" + e.Resource + ")"
	}
	if e.Message != "" {
		if e.Err != nil {
			return prefix + ": " + e.Message + ": " + e.Err.Error()
		}
		return prefix + ": " + e.Message
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// NewStrategyError creates a new strategy error
func NewStrategyError(op, resource string, err error, message string) *StrategyError {
	return &StrategyError{
		Op:       op,
		Resource: resource,
		Err:      err,
		Message:  message,
	}
}

// CacheFailureReason classifies why a context cache could not be created
type CacheFailureReason string

const (
	CacheReasonBelowMinimum CacheFailureReason = "below_minimum_tokens"
	CacheReasonUnsupported  CacheFailureReason = "unsupported"
	CacheReasonRemote       CacheFailureReason = "remote_error"
)

// CacheError is the failure variant of a cache creation attempt. It never
// escapes conversation initialization: every reason triggers the fallback.
type CacheError struct {
	Reason CacheFailureReason
	Err    error
}

func (e *CacheError) Error() string {
	if e.Err == nil {
		return "context cache unavailable: " + string(e.Reason)
	}
	return "context cache unavailable (" + string(e.Reason) + "): " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// classifyCacheError maps a provider error onto a CacheFailureReason
func classifyCacheError(err error) *CacheError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too small"),
		strings.Contains(msg, "minimum"),
		strings.Contains(msg, "min_total_token_count"):
		return &CacheError{Reason: CacheReasonBelowMinimum, Err: err}
	case strings.Contains(msg, "not supported"),
		strings.Contains(msg, "unsupported"),
		strings.Contains(msg, "not found for api version"):
		return &CacheError{Reason: CacheReasonUnsupported, Err: err}
	default:
		return &CacheError{Reason: CacheReasonRemote, Err: err}
	}
}
