package services

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"doc-chat/internal/clock"
	"doc-chat/internal/models"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// ============================================================================
// Mock Collaborators
// ============================================================================

type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) UploadFile(ctx context.Context, path, mimeType, displayName string) (*models.RemoteDocument, error) {
	args := m.Called(ctx, path, mimeType, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteDocument), args.Error(1)
}

func (m *MockFileStore) GetFile(ctx context.Context, name string) (*models.RemoteDocument, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RemoteDocument), args.Error(1)
}

func (m *MockFileStore) DeleteFile(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) CreateCache(ctx context.Context, req CacheRequest) (*models.ContentCache, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentCache), args.Error(1)
}

type MockModelService struct {
	mock.Mock
}

func (m *MockModelService) StartChat(ctx context.Context, req ChatRequest) (ChatSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ChatSession), args.Error(1)
}

func (m *MockModelService) GenerateWithFileSearch(ctx context.Context, model, prompt string, storeNames []string) (string, error) {
	args := m.Called(ctx, model, prompt, storeNames)
	return args.String(0), args.Error(1)
}

type MockSemanticStoreService struct {
	mock.Mock
}

func (m *MockSemanticStoreService) CreateStore(ctx context.Context, displayName string) (*models.SemanticStore, error) {
	args := m.Called(ctx, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SemanticStore), args.Error(1)
}

func (m *MockSemanticStoreService) UploadToStore(ctx context.Context, path, storeName, displayName, mimeType string) (*models.IndexingOperation, error) {
	args := m.Called(ctx, path, storeName, displayName, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IndexingOperation), args.Error(1)
}

func (m *MockSemanticStoreService) GetOperation(ctx context.Context, op *models.IndexingOperation) (*models.IndexingOperation, error) {
	args := m.Called(ctx, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IndexingOperation), args.Error(1)
}

func (m *MockSemanticStoreService) DeleteStore(ctx context.Context, name string, force bool) error {
	args := m.Called(ctx, name, force)
	return args.Error(0)
}

type MockStrategy struct {
	mock.Mock
}

func (m *MockStrategy) Mode() models.Mode {
	args := m.Called()
	return args.Get(0).(models.Mode)
}

func (m *MockStrategy) AddDocument(ctx context.Context, f FileUpload) (models.SessionDocument, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(models.SessionDocument), args.Error(1)
}

func (m *MockStrategy) StartConversation(ctx context.Context) (Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockStrategy) Cleanup(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockStrategy) Resources() models.Resources {
	args := m.Called()
	return args.Get(0).(models.Resources)
}

// ============================================================================
// Fakes
// ============================================================================

// fakeChat replays canned chunks and records the prompts it was sent
type fakeChat struct {
	mu      sync.Mutex
	chunks  []string
	err     error
	prompts []string
}

func (f *fakeChat) SendStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.prompts = append(f.prompts, prompt)
		f.mu.Unlock()

		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

// fakeConversation is a canned Conversation for orchestrator tests
type fakeConversation struct {
	chunks []string
	err    error
	sent   []string
}

func (c *fakeConversation) Send(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.sent = append(c.sent, prompt)
		for _, chunk := range c.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if c.err != nil {
			yield("", c.err)
		}
	}
}

func (c *fakeConversation) History() []models.Turn {
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

var testStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T, clk clock.Clock) StrategyConfig {
	t.Helper()
	return StrategyConfig{
		APIKey:    "test-key",
		Model:     "gemini-2.5-flash",
		UploadDir: t.TempDir(),
		FilePoll:  PollSpec{Interval: 2 * time.Second, Timeout: 60 * time.Second, Clock: clk},
		IndexPoll: PollSpec{Interval: 5 * time.Second, Timeout: 120 * time.Second, Clock: clk},
	}
}

func collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for chunk, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
