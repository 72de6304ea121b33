// Package prompt assembles worker system prompts from fixed, ordered layers.
package prompt

import (
	"strings"

	"github.com/nidhogg/agency-studio/internal/team"
)

// Layers holds the optional inputs to system-prompt assembly. Any field may
// be empty or nil.
type Layers struct {
	// BasePrompts are admin-defined prompts per role.
	BasePrompts map[team.Role]string
	// Overrides is the per-worker index produced by team.BuildOverrideIndex.
	Overrides map[string]string
	// Directive is the team-level goal.
	Directive string
	// Brand is the project brand context.
	Brand *team.Brand
}

// Builder builds system prompts for the workers of one run.
type Builder struct {
	layers Layers
}

// NewBuilder returns a Builder over the given layers.
func NewBuilder(l Layers) *Builder {
	return &Builder{layers: l}
}

const layerSeparator = "\n\n"

// Build concatenates, in this order and skipping empty layers: the base
// role prompt, the worker's override, the team directive and the brand
// block. ok is false when every layer is empty, in which case the caller
// should fall back to DefaultPrompt.
func (b *Builder) Build(w team.Worker) (prompt string, ok bool) {
	parts := make([]string, 0, 4)

	if base := strings.TrimSpace(b.layers.BasePrompts[w.Role]); base != "" {
		parts = append(parts, base)
	}
	if o := b.override(w); o != "" {
		parts = append(parts, o)
	}
	if d := strings.TrimSpace(b.layers.Directive); d != "" {
		parts = append(parts, "## Team Directive\n"+d)
	}
	if brand := b.layers.Brand.Format(); brand != "" {
		parts = append(parts, brand)
	}

	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, layerSeparator), true
}

// BuildOrDefault is Build with the hardcoded role prompt as fallback.
func (b *Builder) BuildOrDefault(w team.Worker) string {
	if p, ok := b.Build(w); ok {
		return p
	}
	return DefaultPrompt(w.Role)
}

// override prefers the team-level index entry over the worker's own field.
func (b *Builder) override(w team.Worker) string {
	if o := strings.TrimSpace(b.layers.Overrides[w.ID]); o != "" {
		return o
	}
	return strings.TrimSpace(w.SystemPromptOverride)
}

var defaultPrompts = map[team.Role]string{
	team.RoleResearcher:   "You are a market researcher. Summarize audience, competitors and trends relevant to the brief. Be factual and concise.",
	team.RolePlanner:      "You are a content strategist. Turn the brief into a clear content plan: goals, key messages, formats and channels.",
	team.RoleManager:      "You are the team manager. Consolidate the team's work into a final, coherent deliverable.",
	team.RoleCreatorText:  "You are a marketing copywriter. Write publish-ready copy that follows the plan and the brand voice.",
	team.RoleCreatorImage: "Create a striking marketing image that matches the brief and the brand.",
	team.RoleCreatorVideo: "You are a video scriptwriter. Write a short-form video script with scenes, voice-over and on-screen text.",
	team.RoleReviewer:     "You are an editor. Review the drafts for accuracy, tone and compliance, and list concrete fixes.",
}

// DefaultPrompt returns the hardcoded prompt for a role.
func DefaultPrompt(role team.Role) string {
	if p, ok := defaultPrompts[role]; ok {
		return p
	}
	return "You are a helpful marketing assistant. Complete the assigned task."
}
