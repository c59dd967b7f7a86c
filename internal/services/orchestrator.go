package services

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"doc-chat/internal/models"
	"doc-chat/internal/repositories"

	"go.uber.org/zap"
)

// MaxDocumentsPerSession caps a single upload batch
const MaxDocumentsPerSession = 5

var supportedTypes = map[string]string{
	".txt": "text/plain",
	".pdf": "application/pdf",
	".csv": "text/csv",
}

// NormalizeUpload checks the document type and fills in its MIME type
func NormalizeUpload(f FileUpload) (FileUpload, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	mime, ok := supportedTypes[ext]
	if !ok {
		return f, fmt.Errorf("%w: %q (supported: txt, pdf, csv)", ErrUnsupportedType, f.Name)
	}
	if f.MimeType == "" || f.MimeType == "application/octet-stream" {
		f.MimeType = mime
	}
	return f, nil
}

// Session is the per-user state. The orchestrator treats it as a value:
// every operation takes the current session and returns the next one.
type Session struct {
	ID           string
	Mode         models.Mode
	Strategy     Strategy
	Documents    []models.SessionDocument
	Conversation Conversation
	Messages     []models.ChatMessage
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasActiveDocuments reports whether a conversation is bound to documents
func (s Session) HasActiveDocuments() bool {
	return len(s.Documents) > 0 && s.Conversation != nil
}

// Resources returns the remote objects owned by the session's strategy
func (s Session) Resources() models.Resources {
	if s.Strategy == nil {
		return models.Resources{}
	}
	return s.Strategy.Resources()
}

// View renders the session for API clients
func (s Session) View(model string) models.SessionView {
	return models.SessionView{
		ID:                s.ID,
		Mode:              s.Mode,
		ModeLabel:         s.Mode.Label(),
		Model:             model,
		Documents:         slices.Clone(s.Documents),
		Messages:          slices.Clone(s.Messages),
		ConversationReady: s.Conversation != nil,
		StatusMessage:     s.Status,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// StrategyFactory builds a fresh strategy for a mode
type StrategyFactory interface {
	NewStrategy(ctx context.Context, mode models.Mode) (Strategy, error)
}

// StrategyFactoryFunc adapts a function to StrategyFactory
type StrategyFactoryFunc func(ctx context.Context, mode models.Mode) (Strategy, error)

func (f StrategyFactoryFunc) NewStrategy(ctx context.Context, mode models.Mode) (Strategy, error) {
	return f(ctx, mode)
}

// NewStrategyFactory returns a factory building strategies over deps. The
// credential is checked first so no remote call happens without it.
func NewStrategyFactory(cfg StrategyConfig, deps StrategyDeps) StrategyFactory {
	return StrategyFactoryFunc(func(ctx context.Context, mode models.Mode) (Strategy, error) {
		switch mode {
		case models.ModeLongContext:
			s, err := NewLongContextStrategy(cfg, deps)
			if err != nil {
				return nil, err
			}
			return s, nil
		case models.ModeFileSearch:
			s, err := NewFileSearchStrategy(cfg, deps)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, NewStrategyError("new_strategy", string(mode), ErrPreconditionFailed, "unknown mode")
		}
	})
}

// Orchestrator drives the session lifecycle: upload, converse, reset
type Orchestrator struct {
	factory StrategyFactory
	repo    repositories.SessionRepository
	metrics *Metrics
	logger  *zap.Logger
}

// NewOrchestrator creates a new orchestrator. repo may be nil, in which case
// session footprints are not persisted.
func NewOrchestrator(factory StrategyFactory, repo repositories.SessionRepository, metrics *Metrics, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		factory: factory,
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

// NewSession returns an empty session in the given mode
func (o *Orchestrator) NewSession(id string, mode models.Mode) Session {
	now := time.Now().UTC()
	return Session{
		ID:        id,
		Mode:      mode,
		Status:    "Upload documents to start chatting",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Upload ingests files through a new strategy for the session's mode and
// opens the conversation. It is refused while documents are active.
//
// On failure the partially created remote objects stay attached to the
// returned session; they are deleted on the next upload, reset or close.
func (o *Orchestrator) Upload(ctx context.Context, s Session, files []FileUpload) (Session, error) {
	if s.HasActiveDocuments() {
		return s, ErrSessionActive
	}
	if len(files) == 0 {
		return s, ErrNoDocuments
	}
	if len(files) > MaxDocumentsPerSession {
		return s, fmt.Errorf("%w: got %d, at most %d allowed", ErrTooManyDocuments, len(files), MaxDocumentsPerSession)
	}

	normalized := make([]FileUpload, 0, len(files))
	for _, f := range files {
		nf, err := NormalizeUpload(f)
		if err != nil {
			return s, err
		}
		normalized = append(normalized, nf)
	}

	if s.Strategy != nil {
		o.logger.Info("Discarding resources from a previous failed upload", zap.String("session_id", s.ID))
		s.Strategy.Cleanup(ctx)
		s.Strategy = nil
	}

	strategy, err := o.factory.NewStrategy(ctx, s.Mode)
	if err != nil {
		return s, err
	}
	s.Strategy = strategy

	docs := make([]models.SessionDocument, 0, len(normalized))
	for _, f := range normalized {
		s.Status = fmt.Sprintf("Processing %s with %s", f.Name, s.Mode.Label())
		doc, err := strategy.AddDocument(ctx, f)
		o.persist(ctx, &s)
		if err != nil {
			s.Status = fmt.Sprintf("Error processing %s", f.Name)
			o.logger.Error("Document processing failed",
				zap.String("session_id", s.ID),
				zap.String("file", f.Name),
				zap.Error(err),
			)
			return s, fmt.Errorf("failed to process %s: %w", f.Name, err)
		}
		docs = append(docs, doc)
	}

	if s.Mode == models.ModeLongContext && len(docs) > 0 {
		docs[0].BoundToModel = true
	}

	conv, err := strategy.StartConversation(ctx)
	if err != nil {
		s.Status = "Error starting conversation"
		return s, fmt.Errorf("failed to start conversation: %w", err)
	}

	s.Documents = docs
	s.Conversation = conv
	s.Messages = nil
	s.Status = fmt.Sprintf("Ready! Processed %d files using %s.", len(docs), s.Mode.Label())
	o.persist(ctx, &s)

	o.logger.Info("Session ready",
		zap.String("session_id", s.ID),
		zap.String("mode", string(s.Mode)),
		zap.Int("documents", len(docs)),
	)
	return s, nil
}

// Ask sends prompt to the conversation, passing every response piece to
// onChunk as it arrives. The user turn is recorded even when generation
// fails; the assistant turn only on success.
func (o *Orchestrator) Ask(ctx context.Context, s Session, prompt string, onChunk func(string) error) (Session, error) {
	if strings.TrimSpace(prompt) == "" {
		return s, ErrEmptyPrompt
	}
	if s.Conversation == nil {
		return s, NewStrategyError("ask", s.ID, ErrPreconditionFailed, "no active conversation, upload documents first")
	}

	s.Messages = append(slices.Clip(s.Messages), models.ChatMessage{Role: "user", Content: prompt})
	s.UpdatedAt = time.Now().UTC()

	var answer strings.Builder
	var sendErr error
	for chunk, err := range s.Conversation.Send(ctx, prompt) {
		if err != nil {
			sendErr = err
			break
		}
		answer.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				sendErr = err
				break
			}
		}
	}

	o.metrics.observeMessage(s.Mode, sendErr)
	if sendErr != nil {
		o.logger.Error("Generation failed", zap.String("session_id", s.ID), zap.Error(sendErr))
		o.persist(ctx, &s)
		return s, fmt.Errorf("failed to generate response: %w", sendErr)
	}

	s.Messages = append(slices.Clip(s.Messages), models.ChatMessage{Role: "assistant", Content: answer.String()})
	o.persist(ctx, &s)
	return s, nil
}

// Reset deletes every remote object of the session and returns an empty
// session in the same mode. It never fails.
func (o *Orchestrator) Reset(ctx context.Context, s Session) Session {
	if s.Strategy != nil {
		o.logger.Info("Cleaning up session resources", zap.String("session_id", s.ID))
		s.Strategy.Cleanup(ctx)
	}
	o.forget(ctx, s.ID)

	next := o.NewSession(s.ID, s.Mode)
	next.CreatedAt = s.CreatedAt
	return next
}

// ChangeMode switches the retrieval mode. Any existing state is reset first.
func (o *Orchestrator) ChangeMode(ctx context.Context, s Session, mode models.Mode) Session {
	if mode == s.Mode {
		return s
	}
	if s.Strategy != nil || len(s.Messages) > 0 {
		s = o.Reset(ctx, s)
	}
	s.Mode = mode
	s.UpdatedAt = time.Now().UTC()
	return s
}

// persist records the session's current remote footprint. Failures are
// logged: losing the record only weakens crash recovery.
func (o *Orchestrator) persist(ctx context.Context, s *Session) {
	s.UpdatedAt = time.Now().UTC()
	if o.repo == nil {
		return
	}

	res := s.Resources()
	if res.IsEmpty() {
		o.forget(ctx, s.ID)
		return
	}

	rec := &models.SessionRecord{
		ID:        s.ID,
		Mode:      s.Mode,
		Resources: res,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if err := o.repo.Save(ctx, rec); err != nil {
		o.logger.Warn("Failed to persist session record", zap.String("session_id", s.ID), zap.Error(err))
	}
}

func (o *Orchestrator) forget(ctx context.Context, id string) {
	if o.repo == nil {
		return
	}
	if err := o.repo.Delete(ctx, id); err != nil {
		o.logger.Warn("Failed to delete session record", zap.String("session_id", id), zap.Error(err))
	}
}
