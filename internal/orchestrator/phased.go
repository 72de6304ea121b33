package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/nidhogg/agency-studio/internal/invoker"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
	"go.uber.org/zap"
)

// Phase names of the phased executor.
const (
	PhaseResearch   = "research"
	PhasePlanning   = "planning"
	PhaseCreation   = "creation"
	PhaseValidation = "validation"
	PhaseFinal      = "final"
)

// PhaseStages groups workers into the five ordered phases. Phases are
// returned even when empty; roles with no phase of their own run in final.
func PhaseStages(workers []team.Worker) []Stage {
	stages := []Stage{
		{Name: PhaseResearch, Parallel: true},
		{Name: PhasePlanning},
		{Name: PhaseCreation, Parallel: true},
		{Name: PhaseValidation, Parallel: true},
		{Name: PhaseFinal},
	}
	for _, w := range team.SortByDisplayOrder(workers) {
		w.Normalize()
		var i int
		switch {
		case w.Role == team.RoleResearcher:
			i = 0
		case w.Role == team.RolePlanner:
			i = 1
		case w.Role.IsCreator():
			i = 2
		case w.Role == team.RoleReviewer:
			i = 3
		default:
			i = 4
		}
		stages[i].Workers = append(stages[i].Workers, w)
	}
	return stages
}

// RunState is the per-run state of the phased executor. It is built fresh
// for each run and advanced by value.
type RunState struct {
	RunID     string
	ProjectID string
	Quality   tier.Quality
	Fresh     Freshness
	Context   ExecutionContext
	Results   []WorkerResult
}

func (s RunState) advance(ec ExecutionContext, results []WorkerResult) RunState {
	next := make([]WorkerResult, 0, len(s.Results)+len(results))
	next = append(next, s.Results...)
	next = append(next, results...)
	s.Context = ec
	s.Results = next
	return s
}

// Phased is the phase-based executor with tier routing, retry with
// downgrade, and skipping of phases whose context is still fresh.
type Phased struct {
	lc             lifecycle
	driver         *Driver
	invoker        *invoker.Invoker
	ttl            time.Duration
	defaultQuality tier.Quality
}

// PhasedOptions configures a Phased executor.
type PhasedOptions struct {
	Policy         invoker.RetryPolicy
	FreshnessTTL   time.Duration
	DefaultQuality tier.Quality
}

// NewPhased creates a phased executor.
func NewPhased(d Deps, driver *Driver, opts PhasedOptions) *Phased {
	lc := newLifecycle(d)
	if opts.FreshnessTTL == 0 {
		opts.FreshnessTTL = 24 * time.Hour
	}
	return &Phased{
		lc:             lc,
		driver:         driver,
		invoker:        invoker.New(d.Exec, opts.Policy, lc.Logger),
		ttl:            opts.FreshnessTTL,
		defaultQuality: opts.DefaultQuality,
	}
}

// Execute runs the five phases for run. Worker failures never fail the run;
// cancellation and persistence errors do.
func (p *Phased) Execute(ctx context.Context, run *Run) error {
	p.lc.start(ctx, run)

	s, err := p.lc.load(ctx, run)
	if err != nil {
		return p.lc.fail(ctx, run, err)
	}

	state := RunState{
		RunID:     run.ID,
		ProjectID: run.ProjectID,
		Quality:   run.Quality,
		Context:   s.ec,
	}
	if state.Quality == tier.QualityDefault {
		state.Quality = p.defaultQuality
	}
	if run.ProjectID != "" {
		pc, err := p.lc.Config.ProjectContext(ctx, run.ProjectID)
		if err != nil {
			p.lc.Logger.Debug("no project context", zap.String("project", run.ProjectID), zap.Error(err))
		}
		state.Fresh = EvaluateFreshness(pc, p.lc.now(), p.ttl)
	}

	fn := p.workerFunc(s, state.Quality)
	sink := p.lc.stepSink(ctx, run)

	for _, st := range PhaseStages(s.team.Workers) {
		if len(st.Workers) == 0 {
			continue
		}
		if text, role, ok := state.Fresh.preserved(st.Name); ok {
			state = p.skip(ctx, run, st, state, role, text)
			continue
		}

		p.lc.stageStarted(ctx, run, st)
		ec, results, err := p.driver.RunStage(ctx, st, state.Context, fn, sink)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			return p.lc.fail(ctx, run, err)
		}
		state = state.advance(ec, results)
		p.writeBack(ctx, run, st.Name, results)
	}
	if len(state.Results) == 0 {
		state.Results = preservedOutputs(state.Context)
	}
	return p.lc.complete(ctx, run, state.Results)
}

// preservedOutputs turns the last synthetic prior into a result so a run
// whose phases were all skipped still yields content.
func preservedOutputs(ec ExecutionContext) []WorkerResult {
	prev := ec.Previous()
	for i := len(prev) - 1; i >= 0; i-- {
		if pr := prev[i]; pr.Synthetic {
			return []WorkerResult{{
				WorkerID:   pr.WorkerID,
				WorkerName: pr.WorkerID,
				Role:       pr.Role,
				Stage:      pr.Stage,
				Output:     pr.Output,
			}}
		}
	}
	return nil
}

func (p *Phased) workerFunc(s *setup, q tier.Quality) WorkerFunc {
	return func(ctx context.Context, st Stage, w team.Worker, ec ExecutionContext) (WorkerResult, error) {
		res := s.router.Resolve(w.Role, q)
		p.lc.Logger.Debug("worker routed",
			zap.String("stage", st.Name),
			zap.String("worker", w.ID),
			zap.String("tier", string(res.Tier)),
			zap.String("provider", res.Model.Provider),
			zap.String("model", res.Model.Model))

		out := p.invoker.Invoke(ctx, &provider.TaskRequest{
			Kind:         res.Kind,
			SystemPrompt: s.prompts.BuildOrDefault(w),
			UserMessage:  BuildTaskMessage(w, ec),
			Model:        res.Model,
		})
		return WorkerResult{
			Output:   out.Output,
			Fallback: out.Fallback,
			Model:    out.Model,
			Attempts: out.Attempts,
			Usage:    out.Usage,
		}, nil
	}
}

// skip marks every worker of st complete without invoking it and injects
// the preserved context in place of its output.
func (p *Phased) skip(ctx context.Context, run *Run, st Stage, state RunState, role team.Role, text string) RunState {
	p.lc.Logger.Info("phase skipped, context is fresh",
		zap.String("run", run.ID), zap.String("stage", st.Name))
	p.lc.emit(ctx, &Event{RunID: run.ID, Type: EventStageSkipped, Stage: st.Name})
	for _, w := range st.Workers {
		p.lc.markStep(ctx, run, st.Name, w.ID, false)
	}
	return state.advance(state.Context.With(preservedResult(st.Name, role, text)), nil)
}

// writeBack stores research and planning output as project context.
func (p *Phased) writeBack(ctx context.Context, run *Run, phase string, results []WorkerResult) {
	var kind ContextKind
	switch phase {
	case PhaseResearch:
		kind = ContextResearch
	case PhasePlanning:
		kind = ContextPlan
	default:
		return
	}
	if run.ProjectID == "" {
		return
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		if !r.Fallback && strings.TrimSpace(r.Output) != "" {
			parts = append(parts, r.Output)
		}
	}
	if len(parts) == 0 {
		return
	}
	if err := p.lc.Store.SaveProjectContext(ctx, run.ProjectID, kind, strings.Join(parts, "\n\n"), p.lc.now().UTC()); err != nil {
		p.lc.Logger.Warn("save project context failed",
			zap.String("project", run.ProjectID), zap.String("kind", string(kind)), zap.Error(err))
	}
}
