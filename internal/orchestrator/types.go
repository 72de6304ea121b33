package orchestrator

import (
	"errors"
	"time"

	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
	"github.com/nidhogg/agency-studio/internal/tier"
)

// ErrNoWorkers is returned for a team without workers.
var ErrNoWorkers = errors.New("team has no workers")

// RunStatus tracks execution state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Mode selects the executor for a run.
type Mode string

const (
	ModePipeline Mode = "pipeline"
	ModePhased   Mode = "phased"
)

// Run is one execution of a team.
type Run struct {
	ID                  string       `json:"id"`
	TeamID              string       `json:"team_id"`
	ProjectID           string       `json:"project_id,omitempty"`
	Mode                Mode         `json:"mode"`
	Quality             tier.Quality `json:"quality,omitempty"`
	Status              RunStatus    `json:"status"`
	CustomInstructions  string       `json:"custom_instructions,omitempty"`
	StepsCompleted      []string     `json:"steps_completed"`
	CurrentStage        string       `json:"current_stage,omitempty"`
	GeneratedContentIDs []string     `json:"generated_content_ids"`
	Credits             float64      `json:"credits"`
	Error               string       `json:"error,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
}

// RunPatch carries the optional fields of a status update. Zero values are
// left untouched.
type RunPatch struct {
	CurrentStage string
	Error        string
	ContentIDs   []string
	Credits      float64
}

// Stage is an ordered group of workers sharing an execution mode.
type Stage struct {
	Name     string        `json:"name"`
	Parallel bool          `json:"parallel"`
	Workers  []team.Worker `json:"workers"`
}

// PriorResult is one output visible to later workers.
type PriorResult struct {
	WorkerID  string    `json:"worker_id"`
	Role      team.Role `json:"role"`
	Stage     string    `json:"stage"`
	Output    string    `json:"output"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// ExecutionContext is the shared state handed to each worker. It is a value:
// With returns an extended copy and never mutates the receiver.
type ExecutionContext struct {
	TeamDirective      string
	CustomInstructions string
	Brand              *team.Brand
	previous           []PriorResult
}

// With returns a copy of ec with results appended.
func (ec ExecutionContext) With(results ...PriorResult) ExecutionContext {
	next := make([]PriorResult, 0, len(ec.previous)+len(results))
	next = append(next, ec.previous...)
	next = append(next, results...)
	ec.previous = next
	return ec
}

// Previous returns a copy of the accumulated results.
func (ec ExecutionContext) Previous() []PriorResult {
	out := make([]PriorResult, len(ec.previous))
	copy(out, ec.previous)
	return out
}

// WorkerResult is the outcome of one worker invocation.
type WorkerResult struct {
	WorkerID   string               `json:"worker_id"`
	WorkerName string               `json:"worker_name"`
	Role       team.Role            `json:"role"`
	Stage      string               `json:"stage"`
	Output     string               `json:"output"`
	Fallback   bool                 `json:"fallback"`
	Model      provider.ModelConfig `json:"model"`
	Attempts   int                  `json:"attempts"`
	Usage      provider.Usage       `json:"usage"`
}

// Prior converts the result into its visible form.
func (r WorkerResult) Prior() PriorResult {
	return PriorResult{WorkerID: r.WorkerID, Role: r.Role, Stage: r.Stage, Output: r.Output}
}
