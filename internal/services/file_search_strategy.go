package services

import (
	"context"
	"iter"
	"sync"
	"time"

	"doc-chat/internal/models"

	"go.uber.org/zap"
)

// FileSearchStrategy indexes documents into a semantic store and answers
// each prompt with a single retrieval-augmented generation call
type FileSearchStrategy struct {
	cfg     StrategyConfig
	stores  SemanticStoreService
	models  ModelService
	metrics *Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	store   *models.SemanticStore
	indexed []string
}

// NewFileSearchStrategy creates a File Search strategy. It fails with
// ErrMissingCredential before touching any collaborator when no API key is set.
func NewFileSearchStrategy(cfg StrategyConfig, deps StrategyDeps) (*FileSearchStrategy, error) {
	if err := cfg.validate("new_file_search_strategy"); err != nil {
		return nil, err
	}
	return &FileSearchStrategy{
		cfg:     cfg,
		stores:  deps.Stores,
		models:  deps.Models,
		metrics: deps.Metrics,
		logger:  deps.logger().With(zap.String("mode", string(models.ModeFileSearch))),
	}, nil
}

func (s *FileSearchStrategy) Mode() models.Mode {
	return models.ModeFileSearch
}

// CreateAndIndex uploads f into the session's store and waits for indexing
// to finish. The store is created on the first call and reused afterwards.
//
// The indexing operation exposes no failure state: an operation that
// completes with an error is logged and treated as indexed.
func (s *FileSearchStrategy) CreateAndIndex(ctx context.Context, f FileUpload) (*models.SemanticStore, error) {
	store, err := s.ensureStore(ctx, f.Name)
	if err != nil {
		return nil, err
	}

	var op *models.IndexingOperation
	err = withTransientFile(s.cfg.UploadDir, f.Name, f.Data, func(path string) error {
		s.logger.Info("Uploading file to File Search store",
			zap.String("file", f.Name),
			zap.String("store", store.Name),
		)
		started, err := s.stores.UploadToStore(ctx, path, store.Name, f.Name, f.MimeType)
		if err != nil {
			return err
		}
		op = started
		return nil
	})
	if err != nil {
		return store, NewStrategyError("upload_to_store", f.Name, err, "upload failed")
	}
	if op == nil {
		return store, NewStrategyError("upload_to_store", f.Name, ErrUnexpectedState, "store returned no indexing operation")
	}

	s.logger.Info("Waiting for indexing", zap.String("operation", op.Name))
	start := time.Now()
	final, err := PollUntil(ctx, s.cfg.IndexPoll, op,
		func(ctx context.Context, cur *models.IndexingOperation) (*models.IndexingOperation, error) {
			return s.stores.GetOperation(ctx, cur)
		},
		func(o *models.IndexingOperation) bool { return o.Done },
		nil,
	)
	s.metrics.observeWait("store_indexing", time.Since(start), err)
	if err != nil {
		return store, NewStrategyError("index_document", f.Name, err, "")
	}
	if final.Error != "" {
		s.logger.Warn("Indexing finished with an error, continuing",
			zap.String("file", f.Name),
			zap.String("error", final.Error),
		)
	}

	s.mu.Lock()
	s.indexed = append(s.indexed, f.Name)
	s.mu.Unlock()

	s.logger.Info("File indexed", zap.String("file", f.Name), zap.String("store", store.Name))
	return store, nil
}

func (s *FileSearchStrategy) ensureStore(ctx context.Context, fileName string) (*models.SemanticStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		return s.store, nil
	}

	s.logger.Info("Creating File Search store", zap.String("file", fileName))
	store, err := s.stores.CreateStore(ctx, "store_"+fileName)
	if err != nil {
		return nil, NewStrategyError("create_store", fileName, err, "")
	}
	if store == nil || store.Name == "" {
		return nil, NewStrategyError("create_store", fileName, ErrUnexpectedState, "store service returned no store")
	}
	s.store = store
	return store, nil
}

// InitializeConversation returns a conversation answering from the session's store
func (s *FileSearchStrategy) InitializeConversation(ctx context.Context) (Conversation, error) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()

	if store == nil {
		return nil, NewStrategyError("initialize_conversation", "", ErrPreconditionFailed, "File Search store not created")
	}
	return &fileSearchConversation{
		models:    s.models,
		model:     s.cfg.Model,
		storeName: store.Name,
	}, nil
}

// CleanupStore force-deletes the named store. It never fails and may be
// called repeatedly for the same name.
func (s *FileSearchStrategy) CleanupStore(ctx context.Context, name string) {
	deleteStore(ctx, s.stores, name, s.metrics, s.logger)
}

// AddDocument indexes f into the session's store
func (s *FileSearchStrategy) AddDocument(ctx context.Context, f FileUpload) (models.SessionDocument, error) {
	store, err := s.CreateAndIndex(ctx, f)
	s.metrics.observeUpload(models.ModeFileSearch, err)
	if err != nil {
		return models.SessionDocument{}, err
	}

	return models.SessionDocument{
		DisplayName:  f.Name,
		MimeType:     f.MimeType,
		SizeBytes:    int64(len(f.Data)),
		StoreName:    store.Name,
		IngestedAt:   time.Now().UTC(),
		BoundToModel: true,
	}, nil
}

func (s *FileSearchStrategy) StartConversation(ctx context.Context) (Conversation, error) {
	return s.InitializeConversation(ctx)
}

// Cleanup deletes the session's store and forgets it
func (s *FileSearchStrategy) Cleanup(ctx context.Context) {
	s.mu.Lock()
	var name string
	if s.store != nil {
		name = s.store.Name
	}
	s.store = nil
	s.indexed = nil
	s.mu.Unlock()

	s.CleanupStore(ctx, name)
}

func (s *FileSearchStrategy) Resources() models.Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return models.Resources{}
	}
	return models.Resources{StoreName: s.store.Name}
}

// fileSearchConversation is stateless: each prompt is answered independently
type fileSearchConversation struct {
	models    ModelService
	model     string
	storeName string
}

// Send issues the generation call lazily, on first iteration, and yields the
// whole answer as a single piece
func (c *fileSearchConversation) Send(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return singleUse(func(yield func(string, error) bool) {
		text, err := c.models.GenerateWithFileSearch(ctx, c.model, prompt, []string{c.storeName})
		if err != nil {
			yield("", err)
			return
		}
		yield(text, nil)
	})
}

func (c *fileSearchConversation) History() []models.Turn {
	return nil
}
