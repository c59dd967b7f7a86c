package services

import (
	"context"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"doc-chat/internal/models"

	"go.uber.org/zap"
)

// FileUpload is one user document handed to a strategy
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// FileStore is the remote file store used by Long Context mode
type FileStore interface {
	UploadFile(ctx context.Context, path, mimeType, displayName string) (*models.RemoteDocument, error)
	GetFile(ctx context.Context, name string) (*models.RemoteDocument, error)
	DeleteFile(ctx context.Context, name string) error
}

// CacheRequest describes the context cache to create over uploaded documents
type CacheRequest struct {
	Model             string
	DisplayName       string
	SystemInstruction string
	Documents         []*models.RemoteDocument
	TTL               time.Duration
}

// CacheService creates server-side context caches
type CacheService interface {
	CreateCache(ctx context.Context, req CacheRequest) (*models.ContentCache, error)
}

// ChatRequest describes a stateful chat to open on the model service.
// CachedContent and History are mutually exclusive ways of supplying context.
type ChatRequest struct {
	Model             string
	SystemInstruction string
	CachedContent     string
	History           []models.Turn
}

// ChatSession is a remote stateful chat
type ChatSession interface {
	// SendStream sends prompt and yields the response text as it is generated
	SendStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// ModelService is the remote generative model
type ModelService interface {
	StartChat(ctx context.Context, req ChatRequest) (ChatSession, error)
	GenerateWithFileSearch(ctx context.Context, model, prompt string, storeNames []string) (string, error)
}

// SemanticStoreService manages the remote semantic-search stores used by File Search mode
type SemanticStoreService interface {
	CreateStore(ctx context.Context, displayName string) (*models.SemanticStore, error)
	UploadToStore(ctx context.Context, path, storeName, displayName, mimeType string) (*models.IndexingOperation, error)
	GetOperation(ctx context.Context, op *models.IndexingOperation) (*models.IndexingOperation, error)
	DeleteStore(ctx context.Context, name string, force bool) error
}

// Conversation is the strategy-independent handle used to talk about the documents
type Conversation interface {
	// Send yields the response to prompt as a finite, single-use sequence of text pieces
	Send(ctx context.Context, prompt string) iter.Seq2[string, error]

	// History returns the turns that make up the conversation context
	History() []models.Turn
}

// Strategy is the capability set shared by both retrieval strategies
type Strategy interface {
	Mode() models.Mode
	AddDocument(ctx context.Context, f FileUpload) (models.SessionDocument, error)
	StartConversation(ctx context.Context) (Conversation, error)
	Cleanup(ctx context.Context)
	Resources() models.Resources
}

// StrategyConfig holds the settings common to both strategies
type StrategyConfig struct {
	APIKey    string
	Model     string
	UploadDir string
	FilePoll  PollSpec
	IndexPoll PollSpec
}

// DefaultStrategyConfig returns a strategy configuration with the stock polling budgets
func DefaultStrategyConfig(apiKey, model string) StrategyConfig {
	return StrategyConfig{
		APIKey:    apiKey,
		Model:     model,
		FilePoll:  DefaultFilePollSpec,
		IndexPoll: DefaultIndexPollSpec,
	}
}

// StrategyDeps bundles the remote collaborators and ambient services of a strategy
type StrategyDeps struct {
	Files   FileStore
	Caches  CacheService
	Models  ModelService
	Stores  SemanticStoreService
	Metrics *Metrics
	Logger  *zap.Logger
}

func (c StrategyConfig) validate(op string) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return NewStrategyError(op, "", ErrMissingCredential, "GOOGLE_API_KEY not found in environment variables")
	}
	return nil
}

func (d StrategyDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// singleUse makes a sequence refuse to run a second time, so a finished
// response stream cannot silently re-issue its remote call
func singleUse(seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", NewStrategyError("send_message", "", ErrPreconditionFailed, "response stream already consumed"))
			return
		}
		seq(yield)
	}
}
