package orchestrator

import (
	"context"
	"fmt"

	"github.com/nidhogg/agency-studio/internal/invoker"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WorkerFunc invokes one worker against the context visible to it.
type WorkerFunc func(ctx context.Context, stage Stage, w team.Worker, ec ExecutionContext) (WorkerResult, error)

// StepFunc is notified after each worker completes. It is called
// concurrently for parallel stages and must not block.
type StepFunc func(stage Stage, res WorkerResult)

// Driver executes stages in order, sequentially or in parallel.
type Driver struct {
	poolSize int
	logger   *zap.Logger
}

// NewDriver creates a driver that runs at most poolSize workers of a
// parallel stage at once.
func NewDriver(poolSize int, logger *zap.Logger) *Driver {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Driver{poolSize: poolSize, logger: logger}
}

// RunStages runs stages in order. Each stage sees every earlier stage's
// output. It returns the final context and all results in execution order.
func (d *Driver) RunStages(ctx context.Context, stages []Stage, ec ExecutionContext, fn WorkerFunc, onStep StepFunc) (ExecutionContext, []WorkerResult, error) {
	var all []WorkerResult
	for _, st := range stages {
		next, results, err := d.RunStage(ctx, st, ec, fn, onStep)
		all = append(all, results...)
		if err != nil {
			return ec, all, err
		}
		ec = next
	}
	return ec, all, nil
}

// RunStage runs one stage and returns ec extended with its outputs.
//
// Sequential workers run in list order, each seeing the outputs of the
// workers before it; a worker error aborts the stage. Parallel workers all
// see the entry snapshot; a worker error is replaced by a fallback result
// and results are merged in list order after every worker finished.
func (d *Driver) RunStage(ctx context.Context, st Stage, ec ExecutionContext, fn WorkerFunc, onStep StepFunc) (ExecutionContext, []WorkerResult, error) {
	if len(st.Workers) == 0 {
		return ec, nil, nil
	}
	d.logger.Info("stage started",
		zap.String("stage", st.Name),
		zap.Bool("parallel", st.Parallel),
		zap.Int("workers", len(st.Workers)))

	if !st.Parallel {
		return d.runSequential(ctx, st, ec, fn, onStep)
	}
	return d.runParallel(ctx, st, ec, fn, onStep)
}

func (d *Driver) runSequential(ctx context.Context, st Stage, ec ExecutionContext, fn WorkerFunc, onStep StepFunc) (ExecutionContext, []WorkerResult, error) {
	results := make([]WorkerResult, 0, len(st.Workers))
	for _, w := range st.Workers {
		if err := ctx.Err(); err != nil {
			return ec, results, err
		}
		res, err := fn(ctx, st, w, ec)
		if err != nil {
			return ec, results, fmt.Errorf("stage %s worker %s: %w", st.Name, w.ID, err)
		}
		res = stamp(res, st, w)
		results = append(results, res)
		ec = ec.With(res.Prior())
		if onStep != nil {
			onStep(st, res)
		}
	}
	return ec, results, nil
}

func (d *Driver) runParallel(ctx context.Context, st Stage, ec ExecutionContext, fn WorkerFunc, onStep StepFunc) (ExecutionContext, []WorkerResult, error) {
	snapshot := ec
	slots := make([]WorkerResult, len(st.Workers))

	var g errgroup.Group
	g.SetLimit(d.poolSize)
	for i, w := range st.Workers {
		g.Go(func() error {
			res, err := fn(ctx, st, w, snapshot)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.logger.Warn("parallel worker failed, using fallback",
					zap.String("stage", st.Name),
					zap.String("worker", w.ID),
					zap.Error(err))
				res = fallbackResult(w, err)
			}
			res = stamp(res, st, w)
			slots[i] = res
			if onStep != nil {
				onStep(st, res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ec, nil, err
	}

	priors := make([]PriorResult, len(slots))
	for i, r := range slots {
		priors[i] = r.Prior()
	}
	return ec.With(priors...), slots, nil
}

func stamp(res WorkerResult, st Stage, w team.Worker) WorkerResult {
	res.WorkerID = w.ID
	res.WorkerName = w.Name
	res.Role = w.Role
	res.Stage = st.Name
	return res
}

func fallbackResult(w team.Worker, err error) WorkerResult {
	return WorkerResult{
		Output:   invoker.Fallback(taskKind(w.Role), err),
		Fallback: true,
	}
}

func taskKind(role team.Role) provider.TaskKind {
	if role == team.RoleCreatorImage {
		return provider.TaskImage
	}
	return provider.TaskText
}
