package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
)

// BasePrompts returns the admin-defined prompt per role.
func (s *Store) BasePrompts(ctx context.Context) (map[team.Role]string, error) {
	rows, err := s.db.Query(ctx, `SELECT role, prompt FROM base_prompts`)
	if err != nil {
		return nil, fmt.Errorf("query base prompts: %w", err)
	}
	defer rows.Close()

	out := make(map[team.Role]string)
	for rows.Next() {
		var role, p string
		if err := rows.Scan(&role, &p); err != nil {
			return nil, fmt.Errorf("scan base prompt: %w", err)
		}
		out[team.Role(role)] = p
	}
	return out, rows.Err()
}

// SetBasePrompts upserts prompts by role. An empty prompt deletes the role's
// entry.
func (s *Store) SetBasePrompts(ctx context.Context, prompts map[team.Role]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for role, p := range prompts {
		if p == "" {
			if _, err := tx.Exec(ctx, `DELETE FROM base_prompts WHERE role = $1`, string(role)); err != nil {
				return fmt.Errorf("delete base prompt %s: %w", role, err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO base_prompts (role, prompt, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (role) DO UPDATE SET prompt = EXCLUDED.prompt, updated_at = NOW()`,
			string(role), p); err != nil {
			return fmt.Errorf("save base prompt %s: %w", role, err)
		}
	}
	return tx.Commit(ctx)
}

// TierConfig returns the stored tier tables.
func (s *Store) TierConfig(ctx context.Context) (tier.Config, error) {
	rows, err := s.db.Query(ctx, `SELECT kind, tier, provider, model, credit_multiplier FROM tier_models`)
	if err != nil {
		return tier.Config{}, fmt.Errorf("query tier models: %w", err)
	}
	defer rows.Close()

	cfg := tier.Config{Text: map[tier.Tier]provider.ModelConfig{}, Image: map[tier.Tier]provider.ModelConfig{}}
	for rows.Next() {
		var kind, t string
		var m provider.ModelConfig
		if err := rows.Scan(&kind, &t, &m.Provider, &m.Model, &m.CreditMultiplier); err != nil {
			return tier.Config{}, fmt.Errorf("scan tier model: %w", err)
		}
		if provider.TaskKind(kind) == provider.TaskImage {
			cfg.Image[tier.Tier(t)] = m
		} else {
			cfg.Text[tier.Tier(t)] = m
		}
	}
	return cfg, rows.Err()
}

// SetTierConfig replaces the stored tier tables.
func (s *Store) SetTierConfig(ctx context.Context, cfg tier.Config) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tier_models`); err != nil {
		return fmt.Errorf("clear tier models: %w", err)
	}
	for kind, table := range map[provider.TaskKind]map[tier.Tier]provider.ModelConfig{
		provider.TaskText:  cfg.Text,
		provider.TaskImage: cfg.Image,
	} {
		for t, m := range table {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tier_models (kind, tier, provider, model, credit_multiplier)
				VALUES ($1, $2, $3, $4, $5)`,
				string(kind), string(t), m.Provider, m.Model, m.CreditMultiplier); err != nil {
				return fmt.Errorf("save tier %s/%s: %w", kind, t, err)
			}
		}
	}
	return tx.Commit(ctx)
}

// Brand returns a project's brand context.
func (s *Store) Brand(ctx context.Context, projectID string) (*team.Brand, error) {
	var b team.Brand
	err := s.db.QueryRow(ctx, `
		SELECT name, tone, description, keywords, banned_keywords
		FROM brands WHERE project_id = $1`, projectID).
		Scan(&b.Name, &b.Tone, &b.Description, &b.Keywords, &b.BannedKeywords)
	if err != nil {
		return nil, notFound(err, "get brand "+projectID)
	}
	return &b, nil
}

// SetBrand upserts a project's brand context.
func (s *Store) SetBrand(ctx context.Context, projectID string, b *team.Brand) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO brands (project_id, name, tone, description, keywords, banned_keywords, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (project_id) DO UPDATE SET
			name = EXCLUDED.name,
			tone = EXCLUDED.tone,
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			banned_keywords = EXCLUDED.banned_keywords,
			updated_at = NOW()`,
		projectID, b.Name, b.Tone, b.Description, nonNilSlice(b.Keywords), nonNilSlice(b.BannedKeywords))
	if err != nil {
		return fmt.Errorf("save brand %s: %w", projectID, err)
	}
	return nil
}

// ProjectContext returns the stored research and plan for a project.
func (s *Store) ProjectContext(ctx context.Context, projectID string) (*orchestrator.ProjectContext, error) {
	rows, err := s.db.Query(ctx,
		`SELECT kind, body, updated_at FROM project_contexts WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project context: %w", err)
	}
	defer rows.Close()

	pc := &orchestrator.ProjectContext{ProjectID: projectID}
	found := false
	for rows.Next() {
		var kind, body string
		var at time.Time
		if err := rows.Scan(&kind, &body, &at); err != nil {
			return nil, fmt.Errorf("scan project context: %w", err)
		}
		found = true
		switch orchestrator.ContextKind(kind) {
		case orchestrator.ContextResearch:
			pc.Research, pc.ResearchAt = body, at
		case orchestrator.ContextPlan:
			pc.Plan, pc.PlanAt = body, at
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("project context %s: %w", projectID, ErrNotFound)
	}
	return pc, nil
}

// SaveProjectContext upserts one kind of project context.
func (s *Store) SaveProjectContext(ctx context.Context, projectID string, kind orchestrator.ContextKind, text string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO project_contexts (project_id, kind, body, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, kind) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		projectID, string(kind), text, at)
	if err != nil {
		return fmt.Errorf("save project context %s/%s: %w", projectID, kind, err)
	}
	return nil
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
