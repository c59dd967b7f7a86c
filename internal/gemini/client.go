// Package gemini adapts the Google Gen AI SDK to the collaborator interfaces
// used by the retrieval strategies.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"doc-chat/internal/models"
	"doc-chat/internal/services"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Client implements FileStore, CacheService, ModelService and
// SemanticStoreService over one SDK client
type Client struct {
	sdk    *genai.Client
	logger *zap.Logger
}

var (
	_ services.FileStore            = (*Client)(nil)
	_ services.CacheService         = (*Client)(nil)
	_ services.ModelService         = (*Client)(nil)
	_ services.SemanticStoreService = (*Client)(nil)
)

// NewClient creates a Gemini API client. It does not contact the service.
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, services.NewStrategyError("new_gemini_client", "", services.ErrMissingCredential, "GOOGLE_API_KEY not found in environment variables")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		sdk:    sdk,
		logger: logger.Named("gemini"),
	}, nil
}

// Deps returns strategy dependencies backed by this client
func (c *Client) Deps(metrics *services.Metrics, logger *zap.Logger) services.StrategyDeps {
	return services.StrategyDeps{
		Files:   c,
		Caches:  c,
		Models:  c,
		Stores:  c,
		Metrics: metrics,
		Logger:  logger,
	}
}

// UploadFile uploads a local file to the Files API
func (c *Client) UploadFile(ctx context.Context, path, mimeType, displayName string) (*models.RemoteDocument, error) {
	f, err := c.sdk.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}
	return toRemoteDocument(f), nil
}

// GetFile fetches the current state of an uploaded file
func (c *Client) GetFile(ctx context.Context, name string) (*models.RemoteDocument, error) {
	f, err := c.sdk.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return toRemoteDocument(f), nil
}

// DeleteFile deletes an uploaded file
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	_, err := c.sdk.Files.Delete(ctx, name, nil)
	return err
}

func toRemoteDocument(f *genai.File) *models.RemoteDocument {
	if f == nil {
		return nil
	}
	doc := &models.RemoteDocument{
		Name:        f.Name,
		DisplayName: f.DisplayName,
		State:       toDocumentState(f.State),
		MimeType:    f.MIMEType,
		URI:         f.URI,
	}
	if f.SizeBytes != nil {
		doc.SizeBytes = *f.SizeBytes
	}
	return doc
}

func toDocumentState(s genai.FileState) models.DocumentState {
	switch s {
	case genai.FileStateProcessing:
		return models.DocumentStateProcessing
	case genai.FileStateActive:
		return models.DocumentStateActive
	case genai.FileStateFailed:
		return models.DocumentStateFailed
	default:
		return models.DocumentStateUnspecified
	}
}

// CreateCache creates a context cache over the requested documents
func (c *Client) CreateCache(ctx context.Context, req services.CacheRequest) (*models.ContentCache, error) {
	parts := make([]*genai.Part, 0, len(req.Documents))
	for _, d := range req.Documents {
		parts = append(parts, genai.NewPartFromURI(d.URI, d.MimeType))
	}

	cfg := &genai.CreateCachedContentConfig{
		DisplayName: req.DisplayName,
		Contents:    []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		TTL:         req.TTL,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	cached, err := c.sdk.Caches.Create(ctx, req.Model, cfg)
	if err != nil {
		return nil, err
	}
	return &models.ContentCache{
		Name:        cached.Name,
		DisplayName: cached.DisplayName,
		Model:       req.Model,
		TTL:         req.TTL,
	}, nil
}

// StartChat opens an SDK chat seeded with the request history. Either the
// cache or the system instruction supplies the document context.
func (c *Client) StartChat(ctx context.Context, req services.ChatRequest) (services.ChatSession, error) {
	if req.Model == "" {
		return nil, errors.New("model is required")
	}

	chat, err := c.sdk.Chats.Create(ctx, req.Model, chatConfig(req), chatHistory(req.History))
	if err != nil {
		return nil, fmt.Errorf("failed to start chat: %w", err)
	}
	return &chatSession{chat: chat}, nil
}

func chatConfig(req services.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	switch {
	case req.CachedContent != "":
		// the cache already carries the system instruction
		cfg.CachedContent = req.CachedContent
	case req.SystemInstruction != "":
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

func chatHistory(turns []models.Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		history = append(history, toContent(t))
	}
	return history
}

func toContent(t models.Turn) *genai.Content {
	parts := make([]*genai.Part, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Document != nil {
			parts = append(parts, genai.NewPartFromURI(p.Document.URI, p.Document.MimeType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	role := genai.RoleUser
	if t.Role == models.RoleModel {
		role = genai.RoleModel
	}
	return genai.NewContentFromParts(parts, genai.Role(role))
}

// chatSession adapts genai.Chat. The SDK chat records each exchange itself
// and is not safe for concurrent sends; the session manager serializes them.
type chatSession struct {
	chat *genai.Chat
}

// SendStream streams the non-empty text of each chunk of the reply to prompt
func (s *chatSession) SendStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendStream(ctx, genai.NewPartFromText(prompt)) {
			if err != nil {
				yield("", err)
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// responseText concatenates the non-thought text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// GenerateWithFileSearch answers prompt with retrieval over the given stores
func (c *Client) GenerateWithFileSearch(ctx context.Context, model, prompt string, storeNames []string) (string, error) {
	resp, err := c.sdk.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{
			FileSearch: &genai.FileSearch{
				FileSearchStoreNames: storeNames,
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// CreateStore creates an empty File Search store
func (c *Client) CreateStore(ctx context.Context, displayName string) (*models.SemanticStore, error) {
	store, err := c.sdk.FileSearchStores.Create(ctx, &genai.CreateFileSearchStoreConfig{
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}
	return &models.SemanticStore{
		Name:        store.Name,
		DisplayName: store.DisplayName,
	}, nil
}

// UploadToStore uploads a local file into a store and starts indexing it
func (c *Client) UploadToStore(ctx context.Context, path, storeName, displayName, mimeType string) (*models.IndexingOperation, error) {
	op, err := c.sdk.FileSearchStores.UploadToFileSearchStoreFromPath(ctx, path, storeName, &genai.UploadToFileSearchStoreConfig{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, err
	}
	return toIndexingOperation(op), nil
}

// GetOperation refreshes an indexing operation
func (c *Client) GetOperation(ctx context.Context, op *models.IndexingOperation) (*models.IndexingOperation, error) {
	handle, ok := op.Handle.(*genai.UploadToFileSearchStoreOperation)
	if !ok || handle == nil {
		return nil, fmt.Errorf("operation %s has no SDK handle", op.Name)
	}
	refreshed, err := c.sdk.Operations.GetUploadToFileSearchStoreOperation(ctx, handle, nil)
	if err != nil {
		return nil, err
	}
	return toIndexingOperation(refreshed), nil
}

func toIndexingOperation(op *genai.UploadToFileSearchStoreOperation) *models.IndexingOperation {
	if op == nil {
		return nil
	}
	out := &models.IndexingOperation{
		Name:   op.Name,
		Done:   op.Done,
		Handle: op,
	}
	if len(op.Error) > 0 {
		out.Error = fmt.Sprint(op.Error)
	}
	return out
}

// DeleteStore deletes a store; force also removes the documents it holds
func (c *Client) DeleteStore(ctx context.Context, name string, force bool) error {
	return c.sdk.FileSearchStores.Delete(ctx, name, deleteStoreConfig(force))
}

func deleteStoreConfig(force bool) *genai.DeleteFileSearchStoreConfig {
	return &genai.DeleteFileSearchStoreConfig{Force: genai.Ptr(force)}
}
