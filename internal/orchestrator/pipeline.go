package orchestrator

import (
	"context"

	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
)

// PipelineTier is the fixed tier serving every pipeline worker.
const PipelineTier = tier.Standard

// Pipeline is the server-run executor: planning, creation and review stages
// derived from worker roles, with one provider attempt per worker.
type Pipeline struct {
	lc     lifecycle
	driver *Driver
}

// NewPipeline creates a pipeline executor.
func NewPipeline(d Deps, driver *Driver) *Pipeline {
	return &Pipeline{lc: newLifecycle(d), driver: driver}
}

// Execute runs the pipeline. A sequential-stage worker error fails the run;
// parallel-stage errors degrade to fallback output.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	p.lc.start(ctx, run)

	s, err := p.lc.load(ctx, run)
	if err != nil {
		return p.lc.fail(ctx, run, err)
	}

	fn := func(ctx context.Context, st Stage, w team.Worker, ec ExecutionContext) (WorkerResult, error) {
		kind := taskKind(w.Role)
		req := &provider.TaskRequest{
			Kind:         kind,
			SystemPrompt: s.prompts.BuildOrDefault(w),
			UserMessage:  BuildTaskMessage(w, ec),
			Model:        s.router.ForTier(PipelineTier, kind),
		}
		resp, err := p.lc.Exec.Execute(ctx, req)
		if err != nil {
			return WorkerResult{}, err
		}
		return WorkerResult{
			Output:   resp.Output,
			Model:    req.Model,
			Attempts: 1,
			Usage:    resp.Usage,
		}, nil
	}

	ec := s.ec
	var results []WorkerResult
	sink := p.lc.stepSink(ctx, run)
	for _, st := range Classify(s.team.Workers).Stages() {
		p.lc.stageStarted(ctx, run, st)
		next, stageResults, err := p.driver.RunStage(ctx, st, ec, fn, sink)
		results = append(results, stageResults...)
		if err != nil {
			return p.lc.fail(ctx, run, err)
		}
		ec = next
	}
	return p.lc.complete(ctx, run, results)
}
