// Package api serves the local control API of the watch command: the current
// view, section and analysis actions, a view stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/analysisview/internal/analysis"
	derrors "git.home.luguber.info/inful/analysisview/internal/foundation/errors"
	"git.home.luguber.info/inful/analysisview/internal/logfields"
	"git.home.luguber.info/inful/analysisview/internal/metrics"
	"git.home.luguber.info/inful/analysisview/internal/orchestrator"
	"git.home.luguber.info/inful/analysisview/internal/sections"
)

// Orchestrator is the part of orchestrator.Orchestrator the API drives.
type Orchestrator interface {
	View() orchestrator.View
	ForcedRefresh(ctx context.Context, reason string) error
	ToggleSection(ctx context.Context, category analysis.Type) (sections.Section, error)
	RetrySection(ctx context.Context, category analysis.Type) (sections.Section, error)
	StartAnalysis(ctx context.Context, t analysis.Type, confirmed bool) error
	CancelAnalysis(ctx context.Context, t analysis.Type) (bool, error)
	RetryAnalysis(ctx context.Context, t analysis.Type) error
}

var _ Orchestrator = (*orchestrator.Orchestrator)(nil)

// Server represents the API server.
type Server struct {
	Addr     string
	router   *chi.Mux
	server   *http.Server
	orch     Orchestrator
	registry *prom.Registry
	views    *ViewBroadcaster
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry serves metrics from reg instead of the default registry.
func WithRegistry(reg *prom.Registry) Option { return func(s *Server) { s.registry = reg } }

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer creates a new API server.
func NewServer(addr string, orch Orchestrator, opts ...Option) *Server {
	s := &Server{
		Addr:   addr,
		router: chi.NewRouter(),
		orch:   orch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.views = NewViewBroadcaster(s.logger)
	s.setupRoutes()

	// No write timeout: /v1/events is a long lived stream.
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.HTTPHandler(s.registry))

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/events", s.HandleViewEvents(s.views))
		r.Post("/refresh", s.handleRefresh)
		r.Post("/sections/{category}/toggle", s.handleSection(s.orch.ToggleSection))
		r.Post("/sections/{category}/retry", s.handleSection(s.orch.RetrySection))
		r.Post("/analyses/{type}/start", s.handleStart)
		r.Post("/analyses/{type}/cancel", s.handleCancel)
		r.Post("/analyses/{type}/retry", s.handleRetry)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Views returns the broadcaster feeding /v1/events.
func (s *Server) Views() *ViewBroadcaster { return s.views }

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("Starting control API", slog.String("addr", s.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.views.Close()
	return s.server.Shutdown(ctx)
}

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Error writes an error response with a status derived from the error category.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			logfields.Path(r.URL.Path),
			logfields.RequestID(middleware.GetReqID(r.Context())),
			logfields.Error(err))
	}
	writeJSON(w, code, Response{Success: false, Error: err.Error(), Kind: string(derrors.GetCategory(err))})
}

// Success writes a success response.
func (s *Server) Success(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, Response{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusFor maps a classified error to an HTTP status.
func StatusFor(err error) int {
	switch derrors.GetCategory(err) {
	case derrors.CategoryValidation:
		return http.StatusBadRequest
	case derrors.CategoryNotFound:
		return http.StatusNotFound
	case derrors.CategoryAlreadyExists, derrors.CategoryConfirmation:
		return http.StatusConflict
	case derrors.CategoryJob:
		return http.StatusUnprocessableEntity
	case derrors.CategoryNetwork, derrors.CategoryAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	s.Success(w, http.StatusOK, s.orch.View())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ForcedRefresh(r.Context(), orchestrator.ReasonManual); err != nil {
		s.Error(w, r, err)
		return
	}
	s.PublishView()
	s.Success(w, http.StatusOK, nil)
}

func (s *Server) handleSection(action func(context.Context, analysis.Type) (sections.Section, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, ok := s.typeParam(w, r, "category")
		if !ok {
			return
		}
		sec, err := action(r.Context(), category)
		s.PublishView()
		if err != nil {
			s.Error(w, r, err)
			return
		}
		s.Success(w, http.StatusOK, orchestrator.NewSectionView(category, sec))
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	t, ok := s.typeParam(w, r, "type")
	if !ok {
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	err := s.orch.StartAnalysis(r.Context(), t, confirmed)
	s.PublishView()
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusAccepted, nil)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	t, ok := s.typeParam(w, r, "type")
	if !ok {
		return
	}
	removed, err := s.orch.CancelAnalysis(r.Context(), t)
	s.PublishView()
	body := map[string]bool{"removed": removed}
	if err != nil && removed {
		// local state is already gone; report the remote failure without failing the call
		writeJSON(w, http.StatusOK, Response{Success: true, Data: body, Error: err.Error()})
		return
	}
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, body)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	t, ok := s.typeParam(w, r, "type")
	if !ok {
		return
	}
	err := s.orch.RetryAnalysis(r.Context(), t)
	s.PublishView()
	if err != nil {
		s.Error(w, r, err)
		return
	}
	s.Success(w, http.StatusAccepted, nil)
}

func (s *Server) typeParam(w http.ResponseWriter, r *http.Request, name string) (analysis.Type, bool) {
	raw := chi.URLParam(r, name)
	t, ok := analysis.ParseType(raw)
	if !ok {
		s.Error(w, r, derrors.ValidationError("unknown analysis type").WithContext(name, raw).Build())
		return "", false
	}
	return t, true
}

// PublishView pushes the current view to open view streams. Without
// subscribers the view is not built, so no terminal job is consumed.
func (s *Server) PublishView() {
	if s.views.SubscriberCount() == 0 {
		return
	}
	s.views.Publish(s.orch.View())
}
