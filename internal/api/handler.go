package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/nidhogg/agency-studio/internal/content"
	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/store"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
	"go.uber.org/zap"
)

// Store is the persistence the API reads and configures.
type Store interface {
	orchestrator.ConfigSource
	Ping(ctx context.Context) error
	GetRun(ctx context.Context, id string) (*orchestrator.Run, error)
	ListRuns(ctx context.Context, teamID string, limit int) ([]*orchestrator.Run, error)
	ListContent(ctx context.Context, runID string) ([]*content.Record, error)
	SaveTeam(ctx context.Context, t *team.Team) error
	ListTeams(ctx context.Context) ([]*team.Team, error)
	SetOverrides(ctx context.Context, teamID string, index map[string]string) error
	SetBasePrompts(ctx context.Context, prompts map[team.Role]string) error
	SetTierConfig(ctx context.Context, cfg tier.Config) error
	SetBrand(ctx context.Context, projectID string, b *team.Brand) error
}

var (
	_ Store       = (*store.Store)(nil)
	_ Store       = (*store.Memory)(nil)
	_ Runner      = (*orchestrator.Service)(nil)
	_ EventSource = (*orchestrator.ProgressBus)(nil)
)

// Runner starts runs in the background.
type Runner interface {
	Start(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.Run, error)
}

// EventSource streams a run's progress events.
type EventSource interface {
	Subscribe(ctx context.Context, runID string) <-chan *orchestrator.Event
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store    Store
	runs     Runner
	events   EventSource
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new API handler. events may be nil, in which case
// the SSE endpoint reports 503.
func NewHandler(s Store, runs Runner, events EventSource, logger *zap.Logger) *Handler {
	return &Handler{
		store:    s,
		runs:     runs,
		events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/teams", h.createTeam)
		r.Get("/teams", h.listTeams)
		r.Get("/teams/{teamID}", h.getTeam)
		r.Put("/teams/{teamID}/overrides", h.setOverrides)
		r.Post("/teams/{teamID}/runs", h.startRun)
		r.Get("/teams/{teamID}/runs", h.listRuns)

		r.Get("/runs/{runID}", h.getRun)
		r.Get("/runs/{runID}/content", h.listContent)
		r.Get("/runs/{runID}/events", h.streamEvents)

		r.Put("/admin/prompts", h.setBasePrompts)
		r.Put("/admin/tiers", h.setTiers)
		r.Put("/projects/{projectID}/brand", h.setBrand)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context(), chi.URLParam(r, "teamID"), 50)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*orchestrator.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) listContent(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.store.ListContent(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*content.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "progress events require redis"})
		return
	}
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range h.events.Subscribe(r.Context(), runID) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
		flusher.Flush()
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verrs.Error()})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
