package models

import "time"

// Step kinds a model provider can serve. Only planning exists today; the
// constant keeps call sites honest about what they are asking for.
const (
	StepKindQueryPlanning = "query_planning"
)

// ModelProvider is one configured language-model backend. Providers are
// OpenAI-compatible: BaseURL + /chat/completions with a bearer key.
type ModelProvider struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	BaseURL   string   `json:"base_url"`
	APIKey    string   `json:"api_key,omitempty"`
	Model     string   `json:"model"`
	Enabled   bool     `json:"enabled"`
	Priority  int      `json:"priority"`
	StepKinds []string `json:"step_kinds,omitempty"`
}

// ServesStepKind reports whether the provider is configured for the given
// step kind. An empty StepKinds list means the provider serves everything.
func (p *ModelProvider) ServesStepKind(kind string) bool {
	if len(p.StepKinds) == 0 {
		return true
	}
	for _, k := range p.StepKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ProvidersConfig is the on-disk providers.json shape.
type ProvidersConfig struct {
	Providers []ModelProvider `json:"providers"`
}

// ProviderState is the rotator's per-provider bookkeeping. Process-wide,
// rebuilt on restart.
type ProviderState struct {
	ProviderID       string    `json:"provider_id"`
	RateLimitedUntil time.Time `json:"rate_limited_until"`
	LastSuccess      time.Time `json:"last_success"`
	Attempts         int64     `json:"attempts"`
	Failures         int64     `json:"failures"`
}

// RateLimited reports whether the provider is still inside its cool-down.
func (s *ProviderState) RateLimited(now time.Time) bool {
	return now.Before(s.RateLimitedUntil)
}
