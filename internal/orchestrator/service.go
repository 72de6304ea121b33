package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/agency-studio/internal/tier"
	"go.uber.org/zap"
)

// RunRequest asks for a new run of a team.
type RunRequest struct {
	TeamID             string
	ProjectID          string
	CustomInstructions string
	Mode               Mode
	Quality            tier.Quality
}

// Service creates runs and executes them with a bounded number in flight.
type Service struct {
	store     Persistence
	executors map[Mode]Executor
	pool      chan struct{} // semaphore-based pool
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewService creates a run service. maxRuns bounds concurrently executing
// runs.
func NewService(store Persistence, pipeline, phased Executor, maxRuns int, logger *zap.Logger) *Service {
	if maxRuns <= 0 {
		maxRuns = 4
	}
	return &Service{
		store: store,
		executors: map[Mode]Executor{
			ModePipeline: pipeline,
			ModePhased:   phased,
		},
		pool:   make(chan struct{}, maxRuns),
		logger: logger,
	}
}

// Create persists a pending run for req.
func (s *Service) Create(ctx context.Context, req RunRequest) (*Run, error) {
	if req.Mode == "" {
		req.Mode = ModePipeline
	}
	if _, ok := s.executors[req.Mode]; !ok {
		return nil, fmt.Errorf("unknown run mode %q", req.Mode)
	}
	run := &Run{
		ID:                 uuid.New().String(),
		TeamID:             req.TeamID,
		ProjectID:          req.ProjectID,
		Mode:               req.Mode,
		Quality:            req.Quality,
		Status:             RunPending,
		CustomInstructions: req.CustomInstructions,
		StepsCompleted:     []string{},
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Execute runs an already created run to completion.
func (s *Service) Execute(ctx context.Context, run *Run) error {
	exec, ok := s.executors[run.Mode]
	if !ok || exec == nil {
		return fmt.Errorf("unknown run mode %q", run.Mode)
	}
	select {
	case s.pool <- struct{}{}: // acquire slot
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.pool }() // release slot
	return exec.Execute(ctx, run)
}

// Start creates a run and executes it in the background, detached from
// ctx's cancellation. The returned run is a snapshot in pending state.
func (s *Service) Start(ctx context.Context, req RunRequest) (*Run, error) {
	run, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	snapshot := *run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Execute(context.WithoutCancel(ctx), run); err != nil {
			s.logger.Warn("background run ended with error",
				zap.String("run", run.ID), zap.Error(err))
		}
	}()
	return &snapshot, nil
}

// Wait blocks until all background runs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
