package services

import (
	"context"

	"doc-chat/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxParallelDeletes bounds concurrent delete calls during teardown
const maxParallelDeletes = 3

// deleteDocument removes one remote file. Failures, including the file being
// already gone, are logged and swallowed.
func deleteDocument(ctx context.Context, files FileStore, name string, metrics *Metrics, logger *zap.Logger) {
	if files == nil || name == "" {
		return
	}
	logger.Info("Deleting file", zap.String("file", name))
	if err := files.DeleteFile(ctx, name); err != nil {
		metrics.observeCleanupFailure("file")
		logger.Error("Error deleting file", zap.String("file", name), zap.Error(err))
	}
}

// deleteStore force-deletes a semantic store, even when it still holds
// documents. Failures are logged and swallowed.
func deleteStore(ctx context.Context, stores SemanticStoreService, name string, metrics *Metrics, logger *zap.Logger) {
	if stores == nil || name == "" {
		return
	}
	logger.Info("Deleting File Search store", zap.String("store", name))
	if err := stores.DeleteStore(ctx, name, true); err != nil {
		metrics.observeCleanupFailure("store")
		logger.Error("Error deleting File Search store", zap.String("store", name), zap.Error(err))
		return
	}
	logger.Info("File Search store deleted", zap.String("store", name))
}

// deleteResources tears down every remote object in res concurrently
func deleteResources(ctx context.Context, files FileStore, stores SemanticStoreService, res models.Resources, metrics *Metrics, logger *zap.Logger) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDeletes)

	for _, name := range res.DocumentNames {
		g.Go(func() error {
			deleteDocument(gctx, files, name, metrics, logger)
			return nil
		})
	}
	if res.StoreName != "" {
		g.Go(func() error {
			deleteStore(gctx, stores, res.StoreName, metrics, logger)
			return nil
		})
	}
	_ = g.Wait()
}

// ResourceCleaner deletes remote resources recorded for sessions that no
// longer have a live strategy, e.g. after the owning process crashed
type ResourceCleaner struct {
	files   FileStore
	stores  SemanticStoreService
	metrics *Metrics
	logger  *zap.Logger
}

// NewResourceCleaner creates a new resource cleaner
func NewResourceCleaner(files FileStore, stores SemanticStoreService, metrics *Metrics, logger *zap.Logger) *ResourceCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceCleaner{
		files:   files,
		stores:  stores,
		metrics: metrics,
		logger:  logger,
	}
}

// Clean deletes the listed resources; it never fails
func (c *ResourceCleaner) Clean(ctx context.Context, res models.Resources) {
	if c == nil || res.IsEmpty() {
		return
	}
	deleteResources(ctx, c.files, c.stores, res, c.metrics, c.logger)
}
