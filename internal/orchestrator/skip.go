package orchestrator

import (
	"time"

	"github.com/nidhogg/agency-studio/internal/team"
)

// ContextKind names a reusable project context entry.
type ContextKind string

const (
	ContextResearch ContextKind = "research"
	ContextPlan     ContextKind = "plan"
)

// PreservedWorkerID identifies synthetic results injected for skipped phases.
const PreservedWorkerID = "preserved-context"

// ProjectContext is the stored output of earlier research and planning.
type ProjectContext struct {
	ProjectID  string    `json:"project_id"`
	Research   string    `json:"research,omitempty"`
	ResearchAt time.Time `json:"research_at,omitempty"`
	Plan       string    `json:"plan,omitempty"`
	PlanAt     time.Time `json:"plan_at,omitempty"`
}

// Freshness records which phases may be skipped for a run. It is computed
// once when the run starts.
type Freshness struct {
	Research string
	Plan     string
}

// HasFreshResearch reports whether the research phase can be skipped.
func (f Freshness) HasFreshResearch() bool { return f.Research != "" }

// HasPrecomputedPlan reports whether the planning phase can be skipped.
func (f Freshness) HasPrecomputedPlan() bool { return f.Plan != "" }

// EvaluateFreshness keeps context entries younger than ttl. A nil context
// or non-positive ttl yields nothing fresh.
func EvaluateFreshness(pc *ProjectContext, now time.Time, ttl time.Duration) Freshness {
	var f Freshness
	if pc == nil || ttl <= 0 {
		return f
	}
	if pc.Research != "" && !pc.ResearchAt.IsZero() && now.Sub(pc.ResearchAt) < ttl {
		f.Research = pc.Research
	}
	if pc.Plan != "" && !pc.PlanAt.IsZero() && now.Sub(pc.PlanAt) < ttl {
		f.Plan = pc.Plan
	}
	return f
}

// preserved returns the stored text that replaces a phase, if any.
func (f Freshness) preserved(phase string) (string, team.Role, bool) {
	switch phase {
	case PhaseResearch:
		return f.Research, team.RoleResearcher, f.HasFreshResearch()
	case PhasePlanning:
		return f.Plan, team.RolePlanner, f.HasPrecomputedPlan()
	}
	return "", "", false
}

func preservedResult(phase string, role team.Role, text string) PriorResult {
	return PriorResult{
		WorkerID:  PreservedWorkerID,
		Role:      role,
		Stage:     phase,
		Output:    "[preserved context] " + text,
		Synthetic: true,
	}
}
