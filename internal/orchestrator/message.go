package orchestrator

import (
	"fmt"
	"strings"

	"github.com/nidhogg/agency-studio/internal/team"
)

var roleTasks = map[team.Role]string{
	team.RoleResearcher:   "Research the audience, competitors and current trends for this brief.",
	team.RolePlanner:      "Produce a content plan for this brief.",
	team.RoleManager:      "Consolidate the team's results into the final deliverable.",
	team.RoleCreatorText:  "Write the marketing copy for this brief.",
	team.RoleCreatorImage: "Describe and generate the key visual for this brief.",
	team.RoleCreatorVideo: "Write a short-form video script for this brief.",
	team.RoleReviewer:     "Review the drafts above and list required fixes.",
}

// BuildTaskMessage renders the user message for a worker: directive,
// custom instructions, the role's task and every visible prior output.
func BuildTaskMessage(w team.Worker, ec ExecutionContext) string {
	var b strings.Builder

	if d := strings.TrimSpace(ec.TeamDirective); d != "" {
		fmt.Fprintf(&b, "## Goal\n%s\n\n", d)
	}
	if ci := strings.TrimSpace(ec.CustomInstructions); ci != "" {
		fmt.Fprintf(&b, "## Instructions\n%s\n\n", ci)
	}

	task, ok := roleTasks[w.Role]
	if !ok {
		task = fmt.Sprintf("Complete your part of the brief as %s.", w.RoleType)
	}
	fmt.Fprintf(&b, "## Your Task\n%s", task)

	if prev := ec.Previous(); len(prev) > 0 {
		b.WriteString("\n\n## Previous results\n")
		for i, p := range prev {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s/%s %s]: %s", p.Stage, p.Role, p.WorkerID, p.Output)
		}
	}
	return b.String()
}
