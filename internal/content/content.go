// Package content turns worker outputs into persisted content records.
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/agency-studio/internal/team"
	"go.uber.org/zap"
)

// Type is the kind of artifact a worker produced.
type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeVideo Type = "video"
	TypeMeta  Type = "meta"
)

// CombinedTitle is the title of the fallback record written when a run has
// no publishable output.
const CombinedTitle = "Generated Post"

// Classify maps a role to its content type.
func Classify(role team.Role) Type {
	switch {
	case role.IsMeta():
		return TypeMeta
	case role == team.RoleCreatorImage:
		return TypeImage
	case role == team.RoleCreatorVideo:
		return TypeVideo
	default:
		return TypeText
	}
}

// Record is one persisted worker artifact.
type Record struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	WorkerID    string    `json:"worker_id"`
	Role        team.Role `json:"role"`
	Type        Type      `json:"content_type"`
	IsMeta      bool      `json:"is_meta"`
	Publishable bool      `json:"publishable"`
	Combined    bool      `json:"combined"`
	Stage       string    `json:"stage"`
	Title       string    `json:"title"`
	RawOutput   string    `json:"raw_output"`
	Fallback    bool      `json:"fallback"`
	CreatedAt   time.Time `json:"created_at"`
}

// Output is a single worker result handed to the aggregator.
type Output struct {
	WorkerID   string
	WorkerName string
	Role       team.Role
	Stage      string
	Output     string
	Fallback   bool
}

// Writer persists content records and returns their ids.
type Writer interface {
	CreateContent(ctx context.Context, rec *Record) (string, error)
}

// Aggregator classifies and persists a run's outputs.
type Aggregator struct {
	w      Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator writing to w.
func NewAggregator(w Writer, logger *zap.Logger) *Aggregator {
	return &Aggregator{w: w, logger: logger, now: time.Now}
}

// Build classifies outputs into records without persisting them. Fallback
// output is never publishable. When no record is publishable, a combined
// record built from the last non-fallback output is appended.
func (a *Aggregator) Build(runID string, outputs []Output) []*Record {
	recs := make([]*Record, 0, len(outputs)+1)
	publishable := 0
	now := a.now().UTC()

	for _, o := range outputs {
		typ := Classify(o.Role)
		rec := &Record{
			RunID:       runID,
			WorkerID:    o.WorkerID,
			Role:        o.Role,
			Type:        typ,
			IsMeta:      typ == TypeMeta,
			Publishable: typ != TypeMeta && !o.Fallback,
			Stage:       o.Stage,
			Title:       title(o),
			RawOutput:   o.Output,
			Fallback:    o.Fallback,
			CreatedAt:   now,
		}
		if rec.Publishable {
			publishable++
		}
		recs = append(recs, rec)
	}

	if publishable == 0 && len(outputs) > 0 {
		src := combinedSource(outputs)
		recs = append(recs, &Record{
			RunID:       runID,
			WorkerID:    src.WorkerID,
			Role:        src.Role,
			Type:        TypeText,
			Publishable: !src.Fallback,
			Combined:    true,
			Stage:       src.Stage,
			Title:       CombinedTitle,
			RawOutput:   src.Output,
			Fallback:    src.Fallback,
			CreatedAt:   now,
		})
	}
	return recs
}

// combinedSource is the last real output, or the last output when every
// output is a fallback.
func combinedSource(outputs []Output) Output {
	for i := len(outputs) - 1; i >= 0; i-- {
		if !outputs[i].Fallback {
			return outputs[i]
		}
	}
	return outputs[len(outputs)-1]
}

// Persist writes every record for outputs and returns the created ids in
// order.
func (a *Aggregator) Persist(ctx context.Context, runID string, outputs []Output) ([]string, error) {
	recs := a.Build(runID, outputs)
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		id, err := a.w.CreateContent(ctx, rec)
		if err != nil {
			return ids, fmt.Errorf("persist content for worker %s: %w", rec.WorkerID, err)
		}
		rec.ID = id
		ids = append(ids, id)
	}
	a.logger.Info("content persisted",
		zap.String("run", runID),
		zap.Int("records", len(ids)))
	return ids, nil
}

func title(o Output) string {
	name := o.WorkerName
	if name == "" {
		name = o.WorkerID
	}
	return fmt.Sprintf("%s (%s)", name, o.Role)
}
