package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/agency-studio/internal/content"
	"github.com/nidhogg/agency-studio/internal/prompt"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
	"go.uber.org/zap"
)

// Persistence records run state and content.
type Persistence interface {
	content.Writer
	CreateRun(ctx context.Context, run *Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, patch RunPatch) error
	AppendCompletedStep(ctx context.Context, runID, workerID string) error
	SaveProjectContext(ctx context.Context, projectID string, kind ContextKind, text string, at time.Time) error
}

// ConfigSource is read-only configuration. Every lookup except Team may
// fail or return nil; the executors fall back to defaults.
type ConfigSource interface {
	Team(ctx context.Context, teamID string) (*team.Team, error)
	BasePrompts(ctx context.Context) (map[team.Role]string, error)
	TierConfig(ctx context.Context) (tier.Config, error)
	Brand(ctx context.Context, projectID string) (*team.Brand, error)
	ProjectContext(ctx context.Context, projectID string) (*ProjectContext, error)
}

// EventSink receives progress events. Failures are logged only.
type EventSink interface {
	Publish(ctx context.Context, ev *Event) error
}

// RunNotifier is told about runs reaching a terminal status.
type RunNotifier interface {
	RunFinished(ctx context.Context, run *Run)
}

// Executor runs a created run to a terminal status.
type Executor interface {
	Execute(ctx context.Context, run *Run) error
}

// Deps are the collaborators shared by both executors. Events and Notifier
// are optional.
type Deps struct {
	Store    Persistence
	Config   ConfigSource
	Exec     provider.TaskExecutor
	Events   EventSink
	Notifier RunNotifier
	Logger   *zap.Logger
}

// setup is the per-run configuration snapshot.
type setup struct {
	team    *team.Team
	prompts *prompt.Builder
	router  *tier.Router
	ec      ExecutionContext
}

// lifecycle implements the status transitions and side effects common to
// both executors.
type lifecycle struct {
	Deps
	agg *content.Aggregator
	now func() time.Time
}

func newLifecycle(d Deps) lifecycle {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return lifecycle{
		Deps: d,
		agg:  content.NewAggregator(d.Store, d.Logger),
		now:  time.Now,
	}
}

func (l *lifecycle) start(ctx context.Context, run *Run) {
	now := l.now().UTC()
	run.Status = RunRunning
	run.StartedAt = &now
	if err := l.Store.UpdateRunStatus(ctx, run.ID, RunRunning, RunPatch{}); err != nil {
		l.Logger.Warn("mark run running failed", zap.String("run", run.ID), zap.Error(err))
	}
	l.emit(ctx, &Event{RunID: run.ID, Type: EventRunStarted, Message: string(run.Mode)})
	l.Logger.Info("run started",
		zap.String("run", run.ID),
		zap.String("team", run.TeamID),
		zap.String("mode", string(run.Mode)))
}

func (l *lifecycle) load(ctx context.Context, run *Run) (*setup, error) {
	t, err := l.Config.Team(ctx, run.TeamID)
	if err != nil {
		return nil, fmt.Errorf("load team %s: %w", run.TeamID, err)
	}
	if len(t.Workers) == 0 {
		return nil, ErrNoWorkers
	}

	bases, err := l.Config.BasePrompts(ctx)
	if err != nil {
		l.Logger.Warn("base prompts unavailable, using defaults", zap.Error(err))
		bases = nil
	}
	tiers, err := l.Config.TierConfig(ctx)
	if err != nil {
		l.Logger.Warn("tier config unavailable, using defaults", zap.Error(err))
		tiers = tier.Config{}
	}
	var brand *team.Brand
	if run.ProjectID != "" {
		if brand, err = l.Config.Brand(ctx, run.ProjectID); err != nil {
			l.Logger.Warn("brand context unavailable",
				zap.String("project", run.ProjectID), zap.Error(err))
			brand = nil
		}
	}

	return &setup{
		team: t,
		prompts: prompt.NewBuilder(prompt.Layers{
			BasePrompts: bases,
			Overrides:   t.Overrides,
			Directive:   t.Directive,
			Brand:       brand,
		}),
		router: tier.NewRouterFromConfig(tiers),
		ec: ExecutionContext{
			TeamDirective:      t.Directive,
			CustomInstructions: run.CustomInstructions,
			Brand:              brand,
		},
	}, nil
}

func (l *lifecycle) stageStarted(ctx context.Context, run *Run, st Stage) {
	run.CurrentStage = st.Name
	if err := l.Store.UpdateRunStatus(ctx, run.ID, RunRunning, RunPatch{CurrentStage: st.Name}); err != nil {
		l.Logger.Warn("update current stage failed", zap.String("run", run.ID), zap.Error(err))
	}
	l.emit(ctx, &Event{RunID: run.ID, Type: EventStageStarted, Stage: st.Name})
}

// stepSink returns the progress sink handed to the driver.
func (l *lifecycle) stepSink(ctx context.Context, run *Run) StepFunc {
	return func(st Stage, res WorkerResult) {
		l.markStep(ctx, run, st.Name, res.WorkerID, res.Fallback)
	}
}

func (l *lifecycle) markStep(ctx context.Context, run *Run, stage, workerID string, fallback bool) {
	if err := l.Store.AppendCompletedStep(ctx, run.ID, workerID); err != nil {
		l.Logger.Warn("append completed step failed",
			zap.String("run", run.ID), zap.String("worker", workerID), zap.Error(err))
	}
	l.emit(ctx, &Event{
		RunID:    run.ID,
		Type:     EventStepCompleted,
		Stage:    stage,
		WorkerID: workerID,
		Fallback: fallback,
	})
}

func (l *lifecycle) complete(ctx context.Context, run *Run, results []WorkerResult) error {
	ids, err := l.agg.Persist(ctx, run.ID, toOutputs(results))
	if err != nil {
		return l.fail(ctx, run, err)
	}

	now := l.now().UTC()
	run.Status = RunCompleted
	run.GeneratedContentIDs = ids
	run.Credits = credits(results)
	run.CompletedAt = &now
	if err := l.Store.UpdateRunStatus(ctx, run.ID, RunCompleted, RunPatch{
		ContentIDs: ids,
		Credits:    run.Credits,
	}); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}

	l.emit(ctx, &Event{RunID: run.ID, Type: EventRunCompleted, Message: fmt.Sprintf("%d content records", len(ids))})
	l.Logger.Info("run completed",
		zap.String("run", run.ID),
		zap.Int("results", len(results)),
		zap.Int("content", len(ids)),
		zap.Float64("credits", run.Credits))
	l.notify(ctx, run)
	return nil
}

// fail records err on the run and returns it.
func (l *lifecycle) fail(ctx context.Context, run *Run, cause error) error {
	now := l.now().UTC()
	run.Status = RunFailed
	run.Error = cause.Error()
	run.CompletedAt = &now

	// Cancellation of ctx must not prevent recording the failure.
	wctx := context.WithoutCancel(ctx)
	if err := l.Store.UpdateRunStatus(wctx, run.ID, RunFailed, RunPatch{Error: run.Error}); err != nil {
		l.Logger.Error("mark run failed", zap.String("run", run.ID), zap.Error(err))
	}
	l.emit(wctx, &Event{RunID: run.ID, Type: EventRunFailed, Message: run.Error})
	l.Logger.Error("run failed", zap.String("run", run.ID), zap.Error(cause))
	l.notify(wctx, run)
	return cause
}

func (l *lifecycle) emit(ctx context.Context, ev *Event) {
	if l.Events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}
	if err := l.Events.Publish(ctx, ev); err != nil {
		l.Logger.Debug("publish progress event failed",
			zap.String("run", ev.RunID), zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (l *lifecycle) notify(ctx context.Context, run *Run) {
	if l.Notifier != nil {
		l.Notifier.RunFinished(ctx, run)
	}
}

func toOutputs(results []WorkerResult) []content.Output {
	out := make([]content.Output, len(results))
	for i, r := range results {
		out[i] = content.Output{
			WorkerID:   r.WorkerID,
			WorkerName: r.WorkerName,
			Role:       r.Role,
			Stage:      r.Stage,
			Output:     r.Output,
			Fallback:   r.Fallback,
		}
	}
	return out
}

func credits(results []WorkerResult) float64 {
	var total float64
	for _, r := range results {
		if !r.Fallback {
			total += r.Model.CreditMultiplier
		}
	}
	return total
}
