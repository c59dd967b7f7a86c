package routes

import (
	"net/http"

	"doc-chat/internal/handlers"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Handlers bundles everything the router serves
type Handlers struct {
	Health   *handlers.HealthHandler
	Sessions *handlers.SessionHandler
	Metrics  http.Handler

	// SwaggerURL points the UI at the API definition; empty disables /swagger/
	SwaggerURL string
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *mux.Router, h *Handlers) {
	// Health endpoints
	r.HandleFunc("/livez", handlers.Liveness).Methods(http.MethodGet)
	if h.Health != nil {
		r.HandleFunc("/health", h.Health.HealthCheck).Methods(http.MethodGet)
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}

	if h.Sessions != nil {
		r.HandleFunc("/api/v1/sessions", h.Sessions.CreateSession).Methods(http.MethodPost)
		r.HandleFunc("/api/v1/sessions", h.Sessions.ListSessions).Methods(http.MethodGet)
		r.HandleFunc("/api/v1/sessions/{id}", h.Sessions.GetSession).Methods(http.MethodGet)
		r.HandleFunc("/api/v1/sessions/{id}", h.Sessions.DeleteSession).Methods(http.MethodDelete)
		r.HandleFunc("/api/v1/sessions/{id}/documents", h.Sessions.UploadDocuments).Methods(http.MethodPost)
		r.HandleFunc("/api/v1/sessions/{id}/chat", h.Sessions.Chat).Methods(http.MethodPost)
		r.HandleFunc("/api/v1/sessions/{id}/reset", h.Sessions.ResetSession).Methods(http.MethodPost)
		r.HandleFunc("/api/v1/sessions/{id}/mode", h.Sessions.ChangeMode).Methods(http.MethodPut)
	}

	if h.SwaggerURL != "" {
		r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
			httpSwagger.URL(h.SwaggerURL),
			httpSwagger.DeepLinking(true),
			httpSwagger.DocExpansion("none"),
			httpSwagger.DomID("swagger-ui"),
		))
	}
}
