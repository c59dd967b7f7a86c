package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"doc-chat/internal/models"
	"doc-chat/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionService is the session lifecycle used by the HTTP API
type SessionService interface {
	Create(mode models.Mode) services.Session
	Get(id string) (services.Session, error)
	List() []services.Session
	Upload(ctx context.Context, id string, files []services.FileUpload) (services.Session, error)
	Ask(ctx context.Context, id, prompt string, onChunk func(string) error) (services.Session, error)
	ChangeMode(ctx context.Context, id string, mode models.Mode) (services.Session, error)
	Reset(ctx context.Context, id string) (services.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionHandler handles HTTP requests for chat sessions
type SessionHandler struct {
	sessions       SessionService
	model          string
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions SessionService, model string, maxUploadBytes int64, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 << 20
	}
	return &SessionHandler{
		sessions:       sessions,
		model:          model,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// CreateSessionRequest selects the retrieval mode of a new session
type CreateSessionRequest struct {
	Mode string `json:"mode" example:"long-context"`
}

// SessionListResponse represents a list of sessions
type SessionListResponse struct {
	Sessions []models.SessionView `json:"sessions"`
	Count    int                  `json:"count"`
}

// SuccessResponse acknowledges an operation without payload
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CreateSession handles session creation
// @Summary Create a session
// @Description Start an empty chat session in the given retrieval mode (long-context or file-search)
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest false "Session options"
// @Success 201 {object} models.SessionView
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		sendError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	s := h.sessions.Create(mode)
	sendJSON(w, h.logger, http.StatusCreated, s.View(h.model))
}

// ListSessions handles requests to list sessions
// @Summary List sessions
// @Description Get every live session of this process
// @Tags sessions
// @Produce json
// @Success 200 {object} SessionListResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	all := h.sessions.List()
	views := make([]models.SessionView, 0, len(all))
	for _, s := range all {
		views = append(views, s.View(h.model))
	}
	sendJSON(w, h.logger, http.StatusOK, SessionListResponse{Sessions: views, Count: len(views)})
}

// GetSession handles requests for a single session
// @Summary Get a session
// @Description Get documents, transcript and status of a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionView
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	sendJSON(w, h.logger, http.StatusOK, s.View(h.model))
}

// DeleteSession handles session deletion
// @Summary Delete a session
// @Description Delete every remote object of the session and forget it
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.sendServiceError(w, err)
		return
	}
	sendJSON(w, h.logger, http.StatusOK, SuccessResponse{Success: true, Message: "Session deleted"})
}

// UploadDocuments handles document upload requests
// @Summary Upload documents
// @Description Upload up to 5 txt, pdf or csv files and open a conversation over them
// @Tags sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param files formData file true "Documents (repeat the field for several files)"
// @Success 200 {object} models.SessionView
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Failure 504 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/documents [post]
func (h *SessionHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.logger.Warn("Failed to parse upload form", zap.String("session_id", id), zap.Error(err))
		sendError(w, h.logger, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, err := readUploads(r)
	if err != nil {
		sendError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Upload request",
		zap.String("session_id", id),
		zap.Int("files", len(files)),
		zap.String("remote_addr", r.RemoteAddr),
	)

	s, err := h.sessions.Upload(r.Context(), id, files)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	sendJSON(w, h.logger, http.StatusOK, s.View(h.model))
}

func readUploads(r *http.Request) ([]services.FileUpload, error) {
	headers := r.MultipartForm.File["files"]
	files := make([]services.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s", fh.Filename)
		}
		files = append(files, services.FileUpload{
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}
	return files, nil
}

// Chat handles a conversation turn
// @Summary Send a message
// @Description Ask a question about the session's documents. The answer is streamed as text/plain unless stream=false.
// @Tags sessions
// @Accept json
// @Produce plain
// @Produce json
// @Param id path string true "Session ID"
// @Param stream query bool false "Stream the answer" default(true)
// @Param request body models.ChatRequest true "Message"
// @Success 200 {string} string "Streamed answer"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/chat [post]
func (h *SessionHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	stream := true
	if v := r.URL.Query().Get("stream"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			sendError(w, h.logger, http.StatusBadRequest, "Invalid stream parameter")
			return
		}
		stream = parsed
	}

	if !stream {
		s, err := h.sessions.Ask(r.Context(), id, req.Message, nil)
		if err != nil {
			h.sendServiceError(w, err)
			return
		}
		sendJSON(w, h.logger, http.StatusOK, models.ChatResponse{
			Message: lastAssistantMessage(s),
			Status:  "success",
		})
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	_, err := h.sessions.Ask(r.Context(), id, req.Message, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	if err == nil {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		return
	}
	if !started {
		h.sendServiceError(w, err)
		return
	}
	// the status line is gone; tell the reader in-band
	h.logger.Error("Stream interrupted", zap.String("session_id", id), zap.Error(err))
	fmt.Fprintf(w, "\n\n[error] %s", err)
}

func lastAssistantMessage(s services.Session) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "assistant" {
			return s.Messages[i].Content
		}
	}
	return ""
}

// ResetSession handles reset requests
// @Summary Reset a session
// @Description Abort any running operation, delete the session's remote objects and clear its transcript
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionView
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/reset [post]
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Reset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	sendJSON(w, h.logger, http.StatusOK, s.View(h.model))
}

// ChangeModeRequest selects a new retrieval mode
type ChangeModeRequest struct {
	Mode string `json:"mode" example:"file-search"`
}

// ChangeMode handles retrieval mode changes
// @Summary Change retrieval mode
// @Description Switch between long-context and file-search. A session with documents or messages is reset first.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body ChangeModeRequest true "New mode"
// @Success 200 {object} models.SessionView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/mode [put]
func (h *SessionHandler) ChangeMode(w http.ResponseWriter, r *http.Request) {
	var req ChangeModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Mode == "" {
		sendError(w, h.logger, http.StatusBadRequest, "Mode is required")
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		sendError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.sessions.ChangeMode(r.Context(), mux.Vars(r)["id"], mode)
	if err != nil {
		h.sendServiceError(w, err)
		return
	}
	sendJSON(w, h.logger, http.StatusOK, s.View(h.model))
}

// statusFor maps the service error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoDocuments),
		errors.Is(err, services.ErrTooManyDocuments),
		errors.Is(err, services.ErrUnsupportedType),
		errors.Is(err, services.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrSessionActive),
		errors.Is(err, services.ErrPreconditionFailed),
		errors.Is(err, context.Canceled):
		return http.StatusConflict
	case errors.Is(err, services.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrProcessingFailed),
		errors.Is(err, services.ErrUnexpectedState):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *SessionHandler) sendServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	sendError(w, h.logger, status, err.Error())
}
