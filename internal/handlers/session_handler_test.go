package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"doc-chat/internal/models"
	"doc-chat/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubConversation struct {
	chunks []string
	err    error
}

func (c *stubConversation) Send(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
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

func (c *stubConversation) History() []models.Turn { return nil }

type stubStrategy struct {
	mode     models.Mode
	addErr   error
	conv     *stubConversation
	names    []string
	cleanups int
}

func (s *stubStrategy) Mode() models.Mode { return s.mode }

func (s *stubStrategy) AddDocument(ctx context.Context, f services.FileUpload) (models.SessionDocument, error) {
	if s.addErr != nil {
		return models.SessionDocument{}, s.addErr
	}
	name := "files/" + f.Name
	s.names = append(s.names, name)
	return models.SessionDocument{DisplayName: f.Name, MimeType: f.MimeType, RemoteName: name}, nil
}

func (s *stubStrategy) StartConversation(ctx context.Context) (services.Conversation, error) {
	return s.conv, nil
}

func (s *stubStrategy) Cleanup(ctx context.Context) { s.cleanups++ }

func (s *stubStrategy) Resources() models.Resources {
	return models.Resources{DocumentNames: s.names}
}

type handlerFixture struct {
	strategy *stubStrategy
	manager  *services.SessionManager
	router   *mux.Router
}

func newHandlerFixture(t *testing.T, factoryErr error) *handlerFixture {
	t.Helper()
	f := &handlerFixture{strategy: &stubStrategy{conv: &stubConversation{chunks: []string{"The answer", " is 42."}}}}
	factory := services.StrategyFactoryFunc(func(ctx context.Context, mode models.Mode) (services.Strategy, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		f.strategy.mode = mode
		return f.strategy, nil
	})
	orch := services.NewOrchestrator(factory, nil, nil, zap.NewNop())
	f.manager = services.NewSessionManager(orch, nil, nil, nil, zap.NewNop())

	h := NewSessionHandler(f.manager, "gemini-2.5-flash", 1<<20, zap.NewNop())
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions", h.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/sessions/{id}/documents", h.UploadDocuments).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions/{id}/chat", h.Chat).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions/{id}/reset", h.ResetSession).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions/{id}/mode", h.ChangeMode).Methods(http.MethodPut)
	f.router = r
	return f
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, sessionID string, names ...string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateSession(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"mode":"file-search"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	view := decode[models.SessionView](t, rec)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, models.ModeFileSearch, view.Mode)
	assert.Equal(t, "File Search Tool", view.ModeLabel)
	assert.Equal(t, "gemini-2.5-flash", view.Model)
	assert.False(t, view.ConversationReady)
}

func TestCreateSession_DefaultsToLongContext(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.ModeLongContext, decode[models.SessionView](t, rec).Mode)
}

func TestCreateSession_UnknownMode(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"mode":"rag"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[ErrorResponse](t, rec).Status)
}

func TestUploadAndChat(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)

	rec := f.do(uploadRequest(t, s.ID, "notes.txt", "report.pdf"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[models.SessionView](t, rec)
	assert.True(t, view.ConversationReady)
	require.Len(t, view.Documents, 2)
	assert.Equal(t, "text/plain", view.Documents[0].MimeType)
	assert.True(t, view.Documents[0].BoundToModel)
	assert.Contains(t, view.StatusMessage, "Processed 2 files")

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat", strings.NewReader(`{"message":"What is the answer?"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "The answer is 42.", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+s.ID, nil))
	view = decode[models.SessionView](t, rec)
	assert.Equal(t, []models.ChatMessage{
		{Role: "user", Content: "What is the answer?"},
		{Role: "assistant", Content: "The answer is 42."},
	}, view.Messages)
}

func TestChat_NonStreaming(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)
	require.Equal(t, http.StatusOK, f.do(uploadRequest(t, s.ID, "notes.txt")).Code)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat?stream=false", strings.NewReader(`{"message":"q"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ChatResponse{Message: "The answer is 42.", Status: "success"}, decode[models.ChatResponse](t, rec))
}

func TestChat_ErrorAfterStreamStarted(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.strategy.conv = &stubConversation{chunks: []string{"partial"}, err: errors.New("quota exceeded")}
	s := f.manager.Create(models.ModeFileSearch)
	require.Equal(t, http.StatusOK, f.do(uploadRequest(t, s.ID, "notes.txt")).Code)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat", strings.NewReader(`{"message":"q"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "partial"))
	assert.Contains(t, rec.Body.String(), "[error]")
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestChat_Errors(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat", strings.NewReader(`{"message":"q"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code, "no documents yet")

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat", strings.NewReader(`{"message":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/chat?stream=maybe", strings.NewReader(`{"message":"q"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_Errors(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)

	rec := f.do(uploadRequest(t, s.ID, "slides.pptx"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(uploadRequest(t, s.ID, "1.txt", "2.txt", "3.txt", "4.txt", "5.txt", "6.txt"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(uploadRequest(t, s.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/documents", strings.NewReader("plain")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, f.do(uploadRequest(t, s.ID, "a.txt")).Code)
	rec = f.do(uploadRequest(t, s.ID, "b.txt"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpload_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		factoryErr error
		addErr     error
		want       int
	}{
		{"missing credential", services.NewStrategyError("new_strategy", "", services.ErrMissingCredential, ""), nil, http.StatusServiceUnavailable},
		{"timeout", nil, services.NewStrategyError("process_file", "files/a", services.ErrTimeout, ""), http.StatusGatewayTimeout},
		{"processing failed", nil, services.NewStrategyError("process_file", "files/a", services.ErrProcessingFailed, ""), http.StatusBadGateway},
		{"unexpected state", nil, services.NewStrategyError("process_file", "files/a", services.ErrUnexpectedState, ""), http.StatusBadGateway},
		{"network", nil, errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t, tt.factoryErr)
			f.strategy.addErr = tt.addErr
			s := f.manager.Create(models.ModeLongContext)

			rec := f.do(uploadRequest(t, s.ID, "a.txt"))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestResetAndDelete(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)
	require.Equal(t, http.StatusOK, f.do(uploadRequest(t, s.ID, "a.txt")).Code)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+s.ID+"/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[models.SessionView](t, rec)
	assert.Equal(t, s.ID, view.ID)
	assert.Empty(t, view.Documents)
	assert.False(t, view.ConversationReady)
	assert.Equal(t, 1, f.strategy.cleanups)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SuccessResponse](t, rec).Success)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+s.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeMode(t *testing.T) {
	f := newHandlerFixture(t, nil)
	s := f.manager.Create(models.ModeLongContext)
	require.Equal(t, http.StatusOK, f.do(uploadRequest(t, s.ID, "a.txt")).Code)

	rec := f.do(httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+s.ID+"/mode", strings.NewReader(`{"mode":"file-search"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[models.SessionView](t, rec)
	assert.Equal(t, models.ModeFileSearch, view.Mode)
	assert.False(t, view.ConversationReady)
	assert.Equal(t, 1, f.strategy.cleanups)

	rec = f.do(httptest.NewRequest(http.MethodPut, "/api/v1/sessions/"+s.ID+"/mode", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessions(t *testing.T) {
	f := newHandlerFixture(t, nil)
	f.manager.Create(models.ModeLongContext)
	f.manager.Create(models.ModeFileSearch)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[SessionListResponse](t, rec).Count)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown session", services.ErrSessionNotFound, http.StatusNotFound},
		{"too many documents", services.ErrTooManyDocuments, http.StatusBadRequest},
		{"documents active", services.ErrSessionActive, http.StatusConflict},
		{"interrupted", context.Canceled, http.StatusConflict},
		{"shutting down", errors.Join(services.ErrShuttingDown, context.Canceled), http.StatusServiceUnavailable},
		{"missing credential", services.NewStrategyError("upload", "", services.ErrMissingCredential, ""), http.StatusServiceUnavailable},
		{"timeout", services.ErrTimeout, http.StatusGatewayTimeout},
		{"processing failed", services.ErrProcessingFailed, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
