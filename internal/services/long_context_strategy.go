package services

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"doc-chat/internal/models"

	"go.uber.org/zap"
)

const (
	// SystemInstruction frames every Long Context conversation
	SystemInstruction = "You are a helpful assistant. Answer questions based on the provided document."

	// FallbackAcknowledgement is the synthetic model turn seeded when no cache is available
	FallbackAcknowledgement = "Understood. I have processed the document. What would you like to know?"

	// CacheTTL is how long a context cache lives on the server
	CacheTTL = 3600 * time.Second
)

// LongContextStrategy puts the whole document into the model's context,
// through a context cache when the provider accepts one and as seeded
// chat history otherwise
type LongContextStrategy struct {
	cfg     StrategyConfig
	files   FileStore
	caches  CacheService
	models  ModelService
	metrics *Metrics
	logger  *zap.Logger

	mu        sync.Mutex
	documents []*models.RemoteDocument
	cache     *models.ContentCache
}

// NewLongContextStrategy creates a Long Context strategy. It fails with
// ErrMissingCredential before touching any collaborator when no API key is set.
func NewLongContextStrategy(cfg StrategyConfig, deps StrategyDeps) (*LongContextStrategy, error) {
	if err := cfg.validate("new_long_context_strategy"); err != nil {
		return nil, err
	}
	return &LongContextStrategy{
		cfg:     cfg,
		files:   deps.Files,
		caches:  deps.Caches,
		models:  deps.Models,
		metrics: deps.Metrics,
		logger:  deps.logger().With(zap.String("mode", string(models.ModeLongContext))),
	}, nil
}

func (s *LongContextStrategy) Mode() models.Mode {
	return models.ModeLongContext
}

// Upload sends the document to the remote file store and waits until it is
// usable. When the remote object was created but never became active, it is
// returned alongside the error so the caller can delete it.
func (s *LongContextStrategy) Upload(ctx context.Context, f FileUpload) (*models.RemoteDocument, error) {
	var uploaded *models.RemoteDocument
	err := withTransientFile(s.cfg.UploadDir, f.Name, f.Data, func(path string) error {
		s.logger.Info("Uploading file", zap.String("file", f.Name), zap.String("mime_type", f.MimeType))
		doc, err := s.files.UploadFile(ctx, path, f.MimeType, f.Name)
		if err != nil {
			return err
		}
		uploaded = doc
		return nil
	})
	if err != nil {
		return nil, NewStrategyError("upload_file", f.Name, err, "upload failed")
	}
	if uploaded == nil {
		return nil, NewStrategyError("upload_file", f.Name, ErrUnexpectedState, "file store returned no document")
	}

	s.logger.Info("File uploaded, waiting for processing", zap.String("name", uploaded.Name))
	start := time.Now()
	doc, err := PollUntil(ctx, s.cfg.FilePoll, uploaded,
		func(ctx context.Context, cur *models.RemoteDocument) (*models.RemoteDocument, error) {
			return s.files.GetFile(ctx, cur.Name)
		},
		func(d *models.RemoteDocument) bool { return d.State != models.DocumentStateProcessing },
		func(d *models.RemoteDocument) bool { return d.State == models.DocumentStateFailed },
	)
	s.metrics.observeWait("file_processing", time.Since(start), err)

	switch {
	case errors.Is(err, ErrProcessingFailed):
		return doc, NewStrategyError("process_file", uploaded.Name, err, "file processing failed")
	case err != nil:
		return doc, NewStrategyError("process_file", uploaded.Name, err, "")
	case doc.State != models.DocumentStateActive:
		return doc, NewStrategyError("process_file", uploaded.Name, ErrUnexpectedState, "file state is "+doc.State.String())
	}

	s.logger.Info("File processed", zap.String("name", doc.Name))
	return doc, nil
}

// InitializeConversation opens a chat bound to doc, preferring a context
// cache. Any cache failure is absorbed and the document is supplied as the
// first history turn instead.
func (s *LongContextStrategy) InitializeConversation(ctx context.Context, doc *models.RemoteDocument) (Conversation, error) {
	if doc == nil {
		return nil, NewStrategyError("initialize_conversation", "", ErrPreconditionFailed, "no document uploaded")
	}

	cache, cacheErr := s.createCache(ctx, doc)
	s.metrics.observeCache(cacheErr)

	if cacheErr == nil {
		s.logger.Info("Context cache created", zap.String("cache", cache.Name))
		s.mu.Lock()
		s.cache = cache
		s.mu.Unlock()

		chat, err := s.models.StartChat(ctx, ChatRequest{
			Model:         s.cfg.Model,
			CachedContent: cache.Name,
		})
		if err != nil {
			return nil, NewStrategyError("start_chat", doc.Name, err, "")
		}
		return newChatConversation(chat, nil), nil
	}

	s.logger.Warn("Could not create context cache, falling back to standard file usage",
		zap.String("reason", string(cacheErr.Reason)),
		zap.Error(cacheErr.Err),
	)

	history := []models.Turn{
		{Role: models.RoleUser, Parts: []models.Part{{Document: doc}}},
		models.TextTurn(models.RoleModel, FallbackAcknowledgement),
	}
	chat, err := s.models.StartChat(ctx, ChatRequest{
		Model:             s.cfg.Model,
		SystemInstruction: SystemInstruction,
		History:           history,
	})
	if err != nil {
		return nil, NewStrategyError("start_chat", doc.Name, err, "")
	}
	return newChatConversation(chat, history), nil
}

func (s *LongContextStrategy) createCache(ctx context.Context, doc *models.RemoteDocument) (*models.ContentCache, *CacheError) {
	if s.caches == nil {
		return nil, &CacheError{Reason: CacheReasonUnsupported, Err: errors.New("no cache service configured")}
	}
	cache, err := s.caches.CreateCache(ctx, CacheRequest{
		Model:             s.cfg.Model,
		DisplayName:       "cache_" + doc.Name,
		SystemInstruction: SystemInstruction,
		Documents:         []*models.RemoteDocument{doc},
		TTL:               CacheTTL,
	})
	if err != nil {
		return nil, classifyCacheError(err)
	}
	if cache == nil || cache.Name == "" {
		return nil, &CacheError{Reason: CacheReasonRemote, Err: errors.New("cache service returned no cache")}
	}
	return cache, nil
}

// CleanupFile deletes one remote document. It never fails and may be called
// repeatedly for the same name.
func (s *LongContextStrategy) CleanupFile(ctx context.Context, name string) {
	deleteDocument(ctx, s.files, name, s.metrics, s.logger)
}

// AddDocument uploads f and remembers the remote document for cleanup
func (s *LongContextStrategy) AddDocument(ctx context.Context, f FileUpload) (models.SessionDocument, error) {
	doc, err := s.Upload(ctx, f)
	s.metrics.observeUpload(models.ModeLongContext, err)
	if doc != nil {
		s.mu.Lock()
		s.documents = append(s.documents, doc)
		s.mu.Unlock()
	}
	if err != nil {
		return models.SessionDocument{}, err
	}

	return models.SessionDocument{
		DisplayName: f.Name,
		MimeType:    f.MimeType,
		SizeBytes:   int64(len(f.Data)),
		RemoteName:  doc.Name,
		IngestedAt:  time.Now().UTC(),
	}, nil
}

// StartConversation binds the first uploaded document to a new chat.
// Documents after the first stay uploaded but are not part of the context.
func (s *LongContextStrategy) StartConversation(ctx context.Context) (Conversation, error) {
	s.mu.Lock()
	var first *models.RemoteDocument
	for _, d := range s.documents {
		if d.State == models.DocumentStateActive {
			first = d
			break
		}
	}
	total := len(s.documents)
	s.mu.Unlock()

	if first == nil {
		return nil, NewStrategyError("start_conversation", "", ErrPreconditionFailed, "no processed document available")
	}
	if total > 1 {
		s.logger.Warn("Only the first document is bound to the conversation",
			zap.String("bound", first.Name),
			zap.Int("uploaded", total),
		)
	}
	return s.InitializeConversation(ctx, first)
}

// Cleanup deletes every document this strategy uploaded. The context cache
// is left to expire on its own.
func (s *LongContextStrategy) Cleanup(ctx context.Context) {
	s.mu.Lock()
	res := s.resourcesLocked()
	s.documents = nil
	s.cache = nil
	s.mu.Unlock()

	deleteResources(ctx, s.files, nil, res, s.metrics, s.logger)
}

func (s *LongContextStrategy) Resources() models.Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourcesLocked()
}

func (s *LongContextStrategy) resourcesLocked() models.Resources {
	names := make([]string, 0, len(s.documents))
	for _, d := range s.documents {
		names = append(names, d.Name)
	}
	return models.Resources{DocumentNames: names}
}

// chatConversation adapts a remote chat session to Conversation and records
// each completed exchange
type chatConversation struct {
	session ChatSession

	mu      sync.Mutex
	history []models.Turn
}

func newChatConversation(session ChatSession, seed []models.Turn) *chatConversation {
	return &chatConversation{
		session: session,
		history: slices.Clone(seed),
	}
}

func (c *chatConversation) Send(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return singleUse(func(yield func(string, error) bool) {
		var full strings.Builder
		for chunk, err := range c.session.SendStream(ctx, prompt) {
			if err != nil {
				yield("", err)
				return
			}
			if chunk == "" {
				continue
			}
			full.WriteString(chunk)
			if !yield(chunk, nil) {
				return
			}
		}

		c.mu.Lock()
		c.history = append(c.history,
			models.TextTurn(models.RoleUser, prompt),
			models.TextTurn(models.RoleModel, full.String()),
		)
		c.mu.Unlock()
	})
}

func (c *chatConversation) History() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Turn, len(c.history))
	copy(out, c.history)
	return out
}
