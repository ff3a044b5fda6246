// Package api is the thin HTTP surface over the extraction pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/patient"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/reasoning"
	"github.com/MikeSquared-Agency/scribe/internal/template"
)

type Encounters interface {
	ProcessEncounter(ctx context.Context, req processor.EncounterRequest) (*patient.Record, *processor.Result, error)
	SaveFieldEdit(ctx context.Context, patientID, fieldKey, content string) (*patient.Record, error)
	SetJobCompleted(ctx context.Context, patientID string, jobID int, completed bool) (*patient.Record, error)
}

type Templates interface {
	ListTemplates(ctx context.Context) ([]template.Template, error)
	GetTemplate(ctx context.Context, key string) (*template.Template, error)
	SaveTemplate(ctx context.Context, t *template.Template) error
	UpdateTemplate(ctx context.Context, t *template.Template) (string, error)
	SoftDeleteTemplate(ctx context.Context, key string) error
	TemplateExists(ctx context.Context, key string) (bool, error)
}

type Generator interface {
	FromNote(ctx context.Context, note, name string) (*template.Template, error)
}

type Instructions interface {
	GetInstructions(ctx context.Context, fieldKey string) ([]string, error)
}

type Reasoner interface {
	Run(ctx context.Context, since time.Time) (reasoning.Summary, error)
}

type Suggester interface {
	Suggest(ctx context.Context, text string) []string
}

type ReasoningResults interface {
	GetReasoning(ctx context.Context, patientID string, out any) error
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Encounters   Encounters
	Templates    Templates
	Generator    Generator
	Instructions Instructions
	Reasoner     Reasoner
	Suggester    Suggester
	Results      ReasoningResults
}

type Server struct {
	router *chi.Mux
	http   *http.Server
	deps   Deps
	logger *slog.Logger
}

func NewServer(port int, apiToken string, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		deps:   deps,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))

		r.Post("/encounters/{patientID}/process", s.processEncounter)
		r.Put("/encounters/{patientID}/fields/{fieldKey}", s.saveField)
		r.Put("/encounters/{patientID}/jobs/{jobID}", s.setJob)
		r.Get("/encounters/{patientID}/reasoning", s.getReasoning)

		r.Get("/templates", s.listTemplates)
		r.Post("/templates", s.createTemplate)
		r.Post("/templates/generate", s.generateTemplate)
		r.Get("/templates/{key}", s.getTemplate)
		r.Put("/templates/{key}", s.updateTemplate)
		r.Delete("/templates/{key}", s.deleteTemplate)

		r.Get("/instructions/{fieldKey}", s.getInstructions)

		r.Post("/reasoning/run", s.runReasoning)
		r.Post("/suggestions", s.suggest)
	})

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, template.ErrNotFound),
		errors.Is(err, patient.ErrNotFound),
		errors.Is(err, patient.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, processor.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, reasoning.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, llm.ErrSchemaMismatch), errors.Is(err, llm.ErrEmptyResponse):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", processor.ErrInvalidRequest, err)
	}
	return nil
}
