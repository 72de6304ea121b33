package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
	"go.uber.org/zap"
)

type createTeamRequest struct {
	ID        string            `json:"id"`
	Name      string            `json:"name" validate:"required"`
	Directive string            `json:"directive"`
	Workers   []team.Worker     `json:"workers" validate:"required,min=1,dive"`
	Overrides map[string]string `json:"overrides"`
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	seen := make(map[string]bool, len(req.Workers))
	for i := range req.Workers {
		if seen[req.Workers[i].ID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duplicate worker id " + req.Workers[i].ID})
			return
		}
		seen[req.Workers[i].ID] = true
		req.Workers[i].Normalize()
	}

	t := &team.Team{
		ID:        req.ID,
		Name:      req.Name,
		Directive: req.Directive,
		Workers:   req.Workers,
		Overrides: team.BuildOverrideIndex(req.Workers, req.Overrides),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveTeam(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("team saved", zap.String("team", t.ID), zap.Int("workers", len(t.Workers)))
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.store.ListTeams(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if teams == nil {
		teams = []*team.Team{}
	}
	writeJSON(w, http.StatusOK, teams)
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Team(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type overridesRequest struct {
	Overrides map[string]string `json:"overrides" validate:"required"`
}

func (h *Handler) setOverrides(w http.ResponseWriter, r *http.Request) {
	var req overridesRequest
	if !h.decode(w, r, &req) {
		return
	}
	teamID := chi.URLParam(r, "teamID")
	t, err := h.store.Team(r.Context(), teamID)
	if err != nil {
		writeError(w, err)
		return
	}
	index := team.BuildOverrideIndex(t.Workers, req.Overrides)
	if err := h.store.SetOverrides(r.Context(), teamID, index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"overrides": index})
}

type startRunRequest struct {
	ProjectID          string `json:"project_id"`
	CustomInstructions string `json:"custom_instructions"`
	Mode               string `json:"mode" validate:"omitempty,oneof=pipeline phased"`
	Quality            string `json:"quality" validate:"omitempty,oneof=BOOST ULTRA boost ultra"`
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if !h.decode(w, r, &req) {
		return
	}
	teamID := chi.URLParam(r, "teamID")
	if _, err := h.store.Team(r.Context(), teamID); err != nil {
		writeError(w, err)
		return
	}
	run, err := h.runs.Start(r.Context(), orchestrator.RunRequest{
		TeamID:             teamID,
		ProjectID:          req.ProjectID,
		CustomInstructions: req.CustomInstructions,
		Mode:               orchestrator.Mode(req.Mode),
		Quality:            tier.ParseQuality(req.Quality),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

type basePromptsRequest struct {
	Prompts map[team.Role]string `json:"prompts" validate:"required"`
}

func (h *Handler) setBasePrompts(w http.ResponseWriter, r *http.Request) {
	var req basePromptsRequest
	if !h.decode(w, r, &req) {
		return
	}
	for role := range req.Prompts {
		if !role.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown role %q", role)})
			return
		}
	}
	if err := h.store.SetBasePrompts(r.Context(), req.Prompts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": len(req.Prompts)})
}

type tiersRequest struct {
	Text  map[tier.Tier]provider.ModelConfig `json:"text"`
	Image map[tier.Tier]provider.ModelConfig `json:"image"`
}

func (h *Handler) setTiers(w http.ResponseWriter, r *http.Request) {
	var req tiersRequest
	if !h.decode(w, r, &req) {
		return
	}
	for _, m := range []map[tier.Tier]provider.ModelConfig{req.Text, req.Image} {
		for t, mc := range m {
			if !t.Valid() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown tier %q", t)})
				return
			}
			if mc.Model == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("tier %q has no model", t)})
				return
			}
		}
	}
	cfg := tier.Config{Text: req.Text, Image: req.Image}
	if err := h.store.SetTierConfig(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) setBrand(w http.ResponseWriter, r *http.Request) {
	var b team.Brand
	if !h.decode(w, r, &b) {
		return
	}
	projectID := chi.URLParam(r, "projectID")
	if err := h.store.SetBrand(r.Context(), projectID, &b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &b)
}
