package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nidhogg/agency-studio/internal/content"
	"github.com/nidhogg/agency-studio/internal/orchestrator"
	"github.com/nidhogg/agency-studio/internal/tier"
)

const runColumns = `id, team_id, project_id, mode, quality, status, custom_instructions,
	steps_completed, current_stage, content_ids, credits, error, created_at, started_at, completed_at`

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, r *orchestrator.Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO runs (id, team_id, project_id, mode, quality, status, custom_instructions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.TeamID, r.ProjectID, string(r.Mode), string(r.Quality), string(r.Status),
		r.CustomInstructions, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*orchestrator.Run, error) {
	row := s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, notFound(err, "get run "+id)
	}
	return r, nil
}

// ListRuns returns a team's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, teamID string, limit int) ([]*orchestrator.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE team_id = $1 ORDER BY created_at DESC LIMIT $2`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*orchestrator.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpdateRunStatus sets status and applies the non-zero patch fields.
// Terminal runs are never modified.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status orchestrator.RunStatus, p orchestrator.RunPatch) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE runs SET
			status        = $2::text,
			current_stage = COALESCE(NULLIF($3::text, ''), current_stage),
			error         = COALESCE(NULLIF($4::text, ''), error),
			content_ids   = COALESCE($5::text[], content_ids),
			credits       = CASE WHEN $6::float8 > 0 THEN $6::float8 ELSE credits END,
			started_at    = CASE WHEN $2::text = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at  = CASE WHEN $2::text IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		runID, string(status), p.CurrentStage, p.Error, p.ContentIDs, p.Credits,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return s.terminalOrMissing(ctx, runID)
	}
	return nil
}

// AppendCompletedStep records a finished worker on the run.
func (s *Store) AppendCompletedStep(ctx context.Context, runID, workerID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET steps_completed = array_append(steps_completed, $2) WHERE id = $1`,
		runID, workerID)
	if err != nil {
		return fmt.Errorf("append step %s/%s: %w", runID, workerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append step to run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// CreateContent inserts a content record and returns its ID.
func (s *Store) CreateContent(ctx context.Context, c *content.Record) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO contents (id, run_id, worker_id, role, content_type, is_meta, publishable,
			combined, stage, title, raw_output, fallback, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.RunID, c.WorkerID, string(c.Role), string(c.Type), c.IsMeta, c.Publishable,
		c.Combined, c.Stage, c.Title, c.RawOutput, c.Fallback, c.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert content for run %s: %w", c.RunID, err)
	}
	return c.ID, nil
}

// ListContent returns a run's content records in creation order.
func (s *Store) ListContent(ctx context.Context, runID string) ([]*content.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, run_id, worker_id, role, content_type, is_meta, publishable,
		       combined, stage, title, raw_output, fallback, created_at
		FROM contents WHERE run_id = $1 ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var out []*content.Record
	for rows.Next() {
		var c content.Record
		if err := rows.Scan(&c.ID, &c.RunID, &c.WorkerID, &c.Role, &c.Type, &c.IsMeta,
			&c.Publishable, &c.Combined, &c.Stage, &c.Title, &c.RawOutput, &c.Fallback,
			&c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) terminalOrMissing(ctx context.Context, runID string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, runID).Scan(&status)
	if err != nil {
		return notFound(err, "update run "+runID)
	}
	return fmt.Errorf("update run %s: already %s", runID, status)
}

func scanRun(row pgx.Row) (*orchestrator.Run, error) {
	var r orchestrator.Run
	var mode, quality, status string
	err := row.Scan(&r.ID, &r.TeamID, &r.ProjectID, &mode, &quality, &status,
		&r.CustomInstructions, &r.StepsCompleted, &r.CurrentStage, &r.GeneratedContentIDs,
		&r.Credits, &r.Error, &r.CreatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Mode = orchestrator.Mode(mode)
	r.Quality = tier.Quality(quality)
	r.Status = orchestrator.RunStatus(status)
	return &r, nil
}
