package tier

import (
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
)

// Resolution is the outcome of routing one worker.
type Resolution struct {
	Tier  Tier                 `json:"tier"`
	Model provider.ModelConfig `json:"model"`
	Kind  provider.TaskKind    `json:"kind"`
}

// Router resolves roles to concrete models. Config entries override the
// hardcoded tables tier by tier; a nil or partial config is fine.
type Router struct {
	text  map[Tier]provider.ModelConfig
	image map[Tier]provider.ModelConfig
}

// NewRouter builds a router from optional runtime text and image tier maps.
func NewRouter(text, image map[Tier]provider.ModelConfig) *Router {
	return &Router{
		text:  merge(DefaultModels, text),
		image: merge(DefaultImageModels, image),
	}
}

func merge(base, overrides map[Tier]provider.ModelConfig) map[Tier]provider.ModelConfig {
	out := make(map[Tier]provider.ModelConfig, len(base))
	for t, m := range base {
		out[t] = m
	}
	for t, m := range overrides {
		if !t.Valid() || m.IsZero() {
			continue
		}
		if m.CreditMultiplier == 0 {
			m.CreditMultiplier = base[t].CreditMultiplier
		}
		out[t] = m
	}
	return out
}

// Resolve picks the tier and model for a role under a quality override.
func (r *Router) Resolve(role team.Role, q Quality) Resolution {
	t := Apply(ForRole(role), q)
	if role == team.RoleCreatorImage {
		return Resolution{Tier: t, Model: r.image[t], Kind: provider.TaskImage}
	}
	return Resolution{Tier: t, Model: r.text[t], Kind: provider.TaskText}
}

// Models returns a copy of the effective text tier table.
func (r *Router) Models() map[Tier]provider.ModelConfig {
	return merge(r.text, nil)
}

// Config is the runtime tier configuration. Either table may be nil.
type Config struct {
	Text  map[Tier]provider.ModelConfig `json:"text,omitempty"`
	Image map[Tier]provider.ModelConfig `json:"image,omitempty"`
}

// NewRouterFromConfig is NewRouter over a Config.
func NewRouterFromConfig(c Config) *Router {
	return NewRouter(c.Text, c.Image)
}

// ForTier returns the model serving a fixed tier for a task kind.
func (r *Router) ForTier(t Tier, kind provider.TaskKind) provider.ModelConfig {
	if kind == provider.TaskImage {
		return r.image[t]
	}
	return r.text[t]
}
