// Package api exposes the visualizer over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sqlflow/internal/domain"
	"sqlflow/internal/middleware"
	"sqlflow/internal/service/visualizer"
	"sqlflow/internal/session"
)

// Handler serves the HTTP API.
type Handler struct {
	logger     *slog.Logger
	sessions   *session.Manager
	visualizer *visualizer.Service
}

// NewHandler creates the API handler.
func NewHandler(logger *slog.Logger, sessions *session.Manager, vis *visualizer.Service) *Handler {
	return &Handler{logger: logger, sessions: sessions, visualizer: vis}
}

// RouterConfig carries the HTTP-level knobs the router needs.
type RouterConfig struct {
	// RateLimiter, when non-nil, is applied to every route. The caller owns
	// its lifecycle and closes it on shutdown.
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
}

// NewRouter builds the chi router with middleware and all routes mounted.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	r.Get("/healthz", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", h.DeleteSession)
			r.Get("/schema", h.GetSchema)
			r.Post("/sql", h.ExecuteSQL)
			r.Post("/visualize", h.Visualize)
		})
	})
	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession opens a new sandbox session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": id})
}

// DeleteSession closes a session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSchema lists the session's tables and columns.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	schemas, err := h.visualizer.Schema(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if schemas == nil {
		schemas = []domain.TableSchema{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": schemas})
}

type sqlRequest struct {
	SQL string `json:"sql"`
}

// ExecuteSQL runs an arbitrary statement in the session.
func (h *Handler) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	td, res, err := h.visualizer.Execute(r.Context(), chi.URLParam(r, "sessionID"), req.SQL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if td != nil {
		writeJSON(w, http.StatusOK, map[string]any{"result": td})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type visualizeRequest struct {
	Query string `json:"query"`
}

// Visualize traces one SELECT statement through its logical execution order.
func (h *Handler) Visualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	viz, err := h.visualizer.Visualize(r.Context(), chi.URLParam(r, "sessionID"), req.Query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viz)
}
