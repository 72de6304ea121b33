package orchestrator

import "github.com/nidhogg/agency-studio/internal/team"

// Stage names of the server-run pipeline.
const (
	StagePlanning = "planning"
	StageCreation = "creation"
	StageReview   = "review"
)

// Partition is the three-bucket grouping of a team's workers.
type Partition struct {
	Planning []team.Worker
	Creation []team.Worker
	Review   []team.Worker
}

// Len returns the number of classified workers.
func (p Partition) Len() int {
	return len(p.Planning) + len(p.Creation) + len(p.Review)
}

// Classify groups workers by role, importing a role for any worker that
// lacks one. Workers whose role is neither planning
// nor creation, including unknown roles, land in Review. Each bucket keeps
// display order.
func Classify(workers []team.Worker) Partition {
	var p Partition
	for _, w := range team.SortByDisplayOrder(workers) {
		w.Normalize()
		switch w.Role {
		case team.RoleResearcher, team.RolePlanner, team.RoleManager:
			p.Planning = append(p.Planning, w)
		case team.RoleCreatorText, team.RoleCreatorImage, team.RoleCreatorVideo:
			p.Creation = append(p.Creation, w)
		default:
			p.Review = append(p.Review, w)
		}
	}
	return p
}

// Stages returns the non-empty buckets as ordered stages: planning and
// review run sequentially, creation in parallel.
func (p Partition) Stages() []Stage {
	all := []Stage{
		{Name: StagePlanning, Workers: p.Planning},
		{Name: StageCreation, Parallel: true, Workers: p.Creation},
		{Name: StageReview, Workers: p.Review},
	}
	out := make([]Stage, 0, len(all))
	for _, s := range all {
		if len(s.Workers) > 0 {
			out = append(out, s)
		}
	}
	return out
}
