// Package tier maps worker roles to cost/quality tiers and tiers to the
// provider/model pair currently serving them.
package tier

import (
	"strings"

	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
)

// Tier is a cost/quality class.
type Tier string

const (
	Economy  Tier = "economy"
	Balanced Tier = "balanced"
	Standard Tier = "standard"
	Premium  Tier = "premium"
	Ultra    Tier = "ultra"
)

// Tiers lists every tier from cheapest to most capable.
var Tiers = []Tier{Economy, Balanced, Standard, Premium, Ultra}

// rank returns the tier's position in Tiers, or -1.
func (t Tier) rank() int {
	for i, v := range Tiers {
		if v == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.rank() >= 0 }

// Quality is a run-wide override that lifts every worker's tier.
type Quality string

const (
	QualityDefault Quality = ""
	QualityBoost   Quality = "BOOST"
	QualityUltra   Quality = "ULTRA"
)

// ParseQuality normalizes user input. Unknown values mean no override.
func ParseQuality(s string) Quality {
	switch Quality(strings.ToUpper(strings.TrimSpace(s))) {
	case QualityBoost:
		return QualityBoost
	case QualityUltra:
		return QualityUltra
	}
	return QualityDefault
}

// floor is the minimum tier a quality override guarantees.
func (q Quality) floor() (Tier, bool) {
	switch q {
	case QualityBoost:
		return Premium, true
	case QualityUltra:
		return Ultra, true
	}
	return "", false
}

// roleTiers is the default complexity each role needs.
var roleTiers = map[team.Role]Tier{
	team.RoleResearcher:   Standard,
	team.RolePlanner:      Premium,
	team.RoleManager:      Standard,
	team.RoleCreatorText:  Standard,
	team.RoleCreatorImage: Premium,
	team.RoleCreatorVideo: Ultra,
	team.RoleReviewer:     Balanced,
	team.RoleOther:        Economy,
}

// ForRole returns the default tier for a role. Unknown roles get Balanced.
func ForRole(role team.Role) Tier {
	if t, ok := roleTiers[role]; ok {
		return t
	}
	return Balanced
}

// Apply lifts t to the quality floor. It never lowers a tier.
func Apply(t Tier, q Quality) Tier {
	f, ok := q.floor()
	if !ok {
		return t
	}
	if f.rank() > t.rank() {
		return f
	}
	return t
}

// DefaultModels is the hardcoded tier table used when no runtime
// configuration is loaded, or when it omits a tier.
var DefaultModels = map[Tier]provider.ModelConfig{
	Economy:  {Provider: "openai", Model: "gpt-4o-mini", CreditMultiplier: 0.5},
	Balanced: {Provider: "openai", Model: "gpt-4o-mini", CreditMultiplier: 1},
	Standard: {Provider: "openai", Model: "gpt-4o", CreditMultiplier: 1.5},
	Premium:  {Provider: "anthropic", Model: "claude-sonnet-4-20250514", CreditMultiplier: 3},
	Ultra:    {Provider: "anthropic", Model: "claude-opus-4-20250514", CreditMultiplier: 5},
}

// DefaultImageModels serves creator_image workers. Image generation has its
// own vendor table since chat-only providers cannot render images.
var DefaultImageModels = map[Tier]provider.ModelConfig{
	Economy:  {Provider: "openai", Model: "dall-e-2", CreditMultiplier: 2},
	Balanced: {Provider: "openai", Model: "dall-e-2", CreditMultiplier: 2},
	Standard: {Provider: "openai", Model: "dall-e-3", CreditMultiplier: 4},
	Premium:  {Provider: "openai", Model: "dall-e-3", CreditMultiplier: 4},
	Ultra:    {Provider: "openai", Model: "gpt-image-1", CreditMultiplier: 8},
}
