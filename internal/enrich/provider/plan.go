package provider

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Plan is an optional per-deployment provider policy loaded from YAML. It
// toggles providers on or off and tunes the request rate of the paid ones
// without a rebuild.
type Plan struct {
	Defaults  PlanDefaults         `yaml:"defaults"`
	Providers map[string]PlanEntry `yaml:"providers"`
}

// PlanDefaults holds settings applied to providers the plan does not name.
type PlanDefaults struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// PlanEntry overrides settings for one provider.
type PlanEntry struct {
	Enabled   *bool   `yaml:"enabled,omitempty"`
	RateLimit float64 `yaml:"rate_limit,omitempty"` // requests per second, 0 = client default
}

// LoadPlan reads a provider plan from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: read plan %s", path)
	}

	// The YAML has a top-level "plan" key
	var wrapper struct {
		Plan Plan `yaml:"plan"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "provider: parse plan")
	}

	return &wrapper.Plan, nil
}

// Enabled reports whether the named provider should be registered. Providers
// are enabled unless the plan says otherwise.
func (p *Plan) Enabled(name string) bool {
	if p == nil {
		return true
	}
	if e, ok := p.Providers[name]; ok && e.Enabled != nil {
		return *e.Enabled
	}
	if p.Defaults.Enabled != nil {
		return *p.Defaults.Enabled
	}
	return true
}

// RateLimit returns the plan's rate override for the named provider in
// requests per second, or 0 when the client default should apply.
func (p *Plan) RateLimit(name string) float64 {
	if p == nil {
		return 0
	}
	return p.Providers[name].RateLimit
}
