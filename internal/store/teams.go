package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/agency-studio/internal/team"
)

// SaveTeam upserts a team and replaces its workers.
func (s *Store) SaveTeam(ctx context.Context, t *team.Team) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	overrides, err := json.Marshal(nonNil(t.Overrides))
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO teams (id, name, directive, overrides, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			directive = EXCLUDED.directive,
			overrides = EXCLUDED.overrides`,
		t.ID, t.Name, t.Directive, overrides, t.CreatedAt,
	); err != nil {
		return fmt.Errorf("save team %s: %w", t.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workers WHERE team_id = $1`, t.ID); err != nil {
		return fmt.Errorf("clear workers: %w", err)
	}

	batch := &pgx.Batch{}
	for _, w := range t.Workers {
		batch.Queue(`
			INSERT INTO workers (team_id, id, name, role_type, role, system_prompt_override, display_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, w.ID, w.Name, w.RoleType, string(w.Role), w.SystemPromptOverride, w.DisplayOrder)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert workers: %w", err)
	}
	return tx.Commit(ctx)
}

// Team retrieves a team with its workers in display order.
func (s *Store) Team(ctx context.Context, id string) (*team.Team, error) {
	var t team.Team
	var overrides []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, name, directive, overrides, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Directive, &overrides, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get team "+id)
	}
	if err := json.Unmarshal(overrides, &t.Overrides); err != nil {
		return nil, fmt.Errorf("decode overrides for team %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, role_type, role, system_prompt_override, display_order
		FROM workers WHERE team_id = $1 ORDER BY display_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w team.Worker
		var role string
		if err := rows.Scan(&w.ID, &w.Name, &w.RoleType, &role, &w.SystemPromptOverride, &w.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.Role = team.Role(role)
		w.Normalize()
		t.Workers = append(t.Workers, w)
	}
	return &t, rows.Err()
}

// ListTeams returns every team without workers, oldest first.
func (s *Store) ListTeams(ctx context.Context) ([]*team.Team, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, directive, created_at FROM teams ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*team.Team
	for rows.Next() {
		var t team.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Directive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

// SetOverrides replaces a team's resolved prompt override index.
func (s *Store) SetOverrides(ctx context.Context, teamID string, index map[string]string) error {
	data, err := json.Marshal(nonNil(index))
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE teams SET overrides = $2 WHERE id = $1`, teamID, data)
	if err != nil {
		return fmt.Errorf("set overrides for team %s: %w", teamID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set overrides for team %s: %w", teamID, ErrNotFound)
	}
	return nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
