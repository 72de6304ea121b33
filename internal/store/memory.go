package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/agency-studio/internal/content"
	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
)

var (
	_ orchestrator.Persistence  = (*Store)(nil)
	_ orchestrator.ConfigSource = (*Store)(nil)
	_ orchestrator.Persistence  = (*Memory)(nil)
	_ orchestrator.ConfigSource = (*Memory)(nil)
)

// Memory is an in-process store with the same semantics as Store. Returned
// values are copies.
type Memory struct {
	mu       sync.RWMutex
	teams    map[string]*team.Team
	runs     map[string]*orchestrator.Run
	contents map[string][]*content.Record
	prompts  map[team.Role]string
	tiers    tier.Config
	brands   map[string]*team.Brand
	projects map[string]*orchestrator.ProjectContext
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		teams:    make(map[string]*team.Team),
		runs:     make(map[string]*orchestrator.Run),
		contents: make(map[string][]*content.Record),
		prompts:  make(map[team.Role]string),
		brands:   make(map[string]*team.Brand),
		projects: make(map[string]*orchestrator.ProjectContext),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateRun(_ context.Context, r *orchestrator.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return fmt.Errorf("insert run %s: duplicate id", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.runs[r.ID] = copyRun(r)
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*orchestrator.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	return copyRun(r), nil
}

func (m *Memory) ListRuns(_ context.Context, teamID string, limit int) ([]*orchestrator.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*orchestrator.Run
	for _, r := range m.runs {
		if r.TeamID == teamID {
			out = append(out, copyRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateRunStatus(_ context.Context, runID string, status orchestrator.RunStatus, p orchestrator.RunPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("update run %s: %w", runID, ErrNotFound)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("update run %s: already %s", runID, r.Status)
	}

	now := time.Now().UTC()
	r.Status = status
	if p.CurrentStage != "" {
		r.CurrentStage = p.CurrentStage
	}
	if p.Error != "" {
		r.Error = p.Error
	}
	if p.ContentIDs != nil {
		r.GeneratedContentIDs = append([]string(nil), p.ContentIDs...)
	}
	if p.Credits > 0 {
		r.Credits = p.Credits
	}
	if status == orchestrator.RunRunning && r.StartedAt == nil {
		r.StartedAt = &now
	}
	if status.Terminal() {
		r.CompletedAt = &now
	}
	return nil
}

func (m *Memory) AppendCompletedStep(_ context.Context, runID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("append step to run %s: %w", runID, ErrNotFound)
	}
	r.StepsCompleted = append(r.StepsCompleted, workerID)
	return nil
}

func (m *Memory) CreateContent(_ context.Context, c *content.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	m.contents[c.RunID] = append(m.contents[c.RunID], &cp)
	return c.ID, nil
}

func (m *Memory) ListContent(_ context.Context, runID string) ([]*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*content.Record, 0, len(m.contents[runID]))
	for _, c := range m.contents[runID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) SaveTeam(_ context.Context, t *team.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if prev, ok := m.teams[t.ID]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	m.teams[t.ID] = copyTeam(t)
	return nil
}

func (m *Memory) Team(_ context.Context, id string) (*team.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, fmt.Errorf("get team %s: %w", id, ErrNotFound)
	}
	cp := copyTeam(t)
	cp.Workers = team.SortByDisplayOrder(cp.Workers)
	for i := range cp.Workers {
		cp.Workers[i].Normalize()
	}
	return cp, nil
}

func (m *Memory) ListTeams(context.Context) ([]*team.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*team.Team, 0, len(m.teams))
	for _, t := range m.teams {
		out = append(out, &team.Team{ID: t.ID, Name: t.Name, Directive: t.Directive, CreatedAt: t.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SetOverrides(_ context.Context, teamID string, index map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[teamID]
	if !ok {
		return fmt.Errorf("set overrides for team %s: %w", teamID, ErrNotFound)
	}
	t.Overrides = copyStrings(index)
	return nil
}

func (m *Memory) BasePrompts(context.Context) (map[team.Role]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[team.Role]string, len(m.prompts))
	for r, p := range m.prompts {
		out[r] = p
	}
	return out, nil
}

func (m *Memory) SetBasePrompts(_ context.Context, prompts map[team.Role]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for r, p := range prompts {
		if p == "" {
			delete(m.prompts, r)
			continue
		}
		m.prompts[r] = p
	}
	return nil
}

func (m *Memory) TierConfig(context.Context) (tier.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tier.Config{Text: copyModels(m.tiers.Text), Image: copyModels(m.tiers.Image)}, nil
}

func (m *Memory) SetTierConfig(_ context.Context, cfg tier.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = tier.Config{Text: copyModels(cfg.Text), Image: copyModels(cfg.Image)}
	return nil
}

func (m *Memory) Brand(_ context.Context, projectID string) (*team.Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.brands[projectID]
	if !ok {
		return nil, fmt.Errorf("get brand %s: %w", projectID, ErrNotFound)
	}
	cp := *b
	cp.Keywords = append([]string(nil), b.Keywords...)
	cp.BannedKeywords = append([]string(nil), b.BannedKeywords...)
	return &cp, nil
}

func (m *Memory) SetBrand(_ context.Context, projectID string, b *team.Brand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.brands[projectID] = &cp
	return nil
}

func (m *Memory) ProjectContext(_ context.Context, projectID string) (*orchestrator.ProjectContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pc, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project context %s: %w", projectID, ErrNotFound)
	}
	cp := *pc
	return &cp, nil
}

func (m *Memory) SaveProjectContext(_ context.Context, projectID string, kind orchestrator.ContextKind, text string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.projects[projectID]
	if !ok {
		pc = &orchestrator.ProjectContext{ProjectID: projectID}
		m.projects[projectID] = pc
	}
	switch kind {
	case orchestrator.ContextResearch:
		pc.Research, pc.ResearchAt = text, at
	case orchestrator.ContextPlan:
		pc.Plan, pc.PlanAt = text, at
	default:
		return fmt.Errorf("unknown project context kind %q", kind)
	}
	return nil
}

func copyRun(r *orchestrator.Run) *orchestrator.Run {
	cp := *r
	cp.StepsCompleted = append([]string{}, r.StepsCompleted...)
	cp.GeneratedContentIDs = append([]string{}, r.GeneratedContentIDs...)
	return &cp
}

func copyTeam(t *team.Team) *team.Team {
	cp := *t
	cp.Workers = append([]team.Worker(nil), t.Workers...)
	cp.Overrides = copyStrings(t.Overrides)
	return &cp
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyModels(m map[tier.Tier]provider.ModelConfig) map[tier.Tier]provider.ModelConfig {
	if m == nil {
		return nil
	}
	out := make(map[tier.Tier]provider.ModelConfig, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
