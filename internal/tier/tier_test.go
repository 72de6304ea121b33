package tier

import (
	"testing"

	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/team"
)

func TestApplyNeverLowers(t *testing.T) {
	tests := []struct {
		in   Tier
		q    Quality
		want Tier
	}{
		{Economy, QualityDefault, Economy},
		{Economy, QualityBoost, Premium},
		{Standard, QualityBoost, Premium},
		{Ultra, QualityBoost, Ultra},
		{Balanced, QualityUltra, Ultra},
	}
	for _, tt := range tests {
		if got := Apply(tt.in, tt.q); got != tt.want {
			t.Errorf("Apply(%s, %q) = %s, want %s", tt.in, tt.q, got, tt.want)
		}
	}
}

func TestParseQuality(t *testing.T) {
	if ParseQuality(" boost ") != QualityBoost {
		t.Error("expected BOOST")
	}
	if ParseQuality("ultra") != QualityUltra {
		t.Error("expected ULTRA")
	}
	if ParseQuality("turbo") != QualityDefault {
		t.Error("unknown quality must mean no override")
	}
}

func TestResolveUsesHardcodedTableWithoutConfig(t *testing.T) {
	r := NewRouter(nil, nil)

	res := r.Resolve(team.RoleReviewer, QualityDefault)
	if res.Tier != Balanced || res.Model != DefaultModels[Balanced] {
		t.Errorf("reviewer: got %+v", res)
	}
	if res.Kind != provider.TaskText {
		t.Errorf("reviewer must be a text task, got %s", res.Kind)
	}

	img := r.Resolve(team.RoleCreatorImage, QualityDefault)
	if img.Kind != provider.TaskImage || img.Model != DefaultImageModels[Premium] {
		t.Errorf("image creator: got %+v", img)
	}
}

func TestResolvePrefersRuntimeConfig(t *testing.T) {
	r := NewRouter(map[Tier]provider.ModelConfig{
		Premium: {Provider: "vertex", Model: "gemini-2.5-pro"},
		"bogus": {Provider: "x", Model: "y"},
		Economy: {},
	}, nil)

	res := r.Resolve(team.RolePlanner, QualityDefault)
	if res.Model.Provider != "vertex" || res.Model.Model != "gemini-2.5-pro" {
		t.Errorf("expected configured premium model, got %+v", res.Model)
	}
	if res.Model.CreditMultiplier != DefaultModels[Premium].CreditMultiplier {
		t.Errorf("missing multiplier should inherit default, got %v", res.Model.CreditMultiplier)
	}
	if got := r.Resolve(team.RoleOther, QualityDefault).Model; got != DefaultModels[Economy] {
		t.Errorf("empty config entry must fall back to default, got %+v", got)
	}
	if _, ok := r.Models()["bogus"]; ok {
		t.Error("unknown tiers must be ignored")
	}
}

func TestResolveQualityOverride(t *testing.T) {
	r := NewRouter(nil, nil)
	res := r.Resolve(team.RoleOther, QualityUltra)
	if res.Tier != Ultra || res.Model != DefaultModels[Ultra] {
		t.Errorf("ULTRA must force ultra tier, got %+v", res)
	}
}
