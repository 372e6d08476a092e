package rotation

import (
	"context"
	"errors"
	"testing"
	"time"

	"queryforge/internal/llm"
	"queryforge/internal/models"
)

func testProviders() []models.ModelProvider {
	return []models.ModelProvider{
		{ID: "primary", Name: "Primary", Model: "m-large", Enabled: true, Priority: 1},
		{ID: "secondary", Name: "Secondary", Model: "m-medium", Enabled: true, Priority: 2},
		{ID: "fallback", Name: "Fallback", Model: "m-small", Enabled: true, Priority: 3},
		{ID: "disabled", Name: "Disabled", Model: "m-off", Enabled: false, Priority: 0},
	}
}

func TestGetModelsPriorityOrder(t *testing.T) {
	r := NewRotator(testProviders())

	ordered := r.GetModels(models.StepKindQueryPlanning, "req-1")
	if len(ordered) != 3 {
		t.Fatalf("got %d providers, want 3 (disabled excluded)", len(ordered))
	}
	want := []string{"primary", "secondary", "fallback"}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, ordered[i].ID, id)
		}
	}
}

func TestRateLimitedProviderDemoted(t *testing.T) {
	now := time.Now()
	r := NewRotator(testProviders(), withClock(func() time.Time { return now }))

	r.MarkRateLimited("primary")

	ordered := r.GetModels(models.StepKindQueryPlanning, "req-2")
	if len(ordered) != 3 {
		t.Fatalf("got %d providers, want 3 (demoted, not dropped)", len(ordered))
	}
	if ordered[len(ordered)-1].ID != "primary" {
		t.Errorf("rate-limited provider should be last, got order %v", ids(ordered))
	}
}

func TestCooldownExpires(t *testing.T) {
	now := time.Now()
	clock := &now
	r := NewRotator(testProviders(),
		WithCooldown(30*time.Second),
		withClock(func() time.Time { return *clock }),
	)

	r.MarkRateLimited("primary")

	later := now.Add(31 * time.Second)
	clock = &later

	ordered := r.GetModels(models.StepKindQueryPlanning, "req-3")
	if ordered[0].ID != "primary" {
		t.Errorf("provider should recover after cooldown, got order %v", ids(ordered))
	}
}

func TestRateLimitDelaysNextAttempt(t *testing.T) {
	now := time.Now()
	var slept []time.Duration
	r := NewRotator(testProviders(),
		WithCooldown(2*time.Second),
		withClock(func() time.Time { return now }),
		withSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(slept) != 0 {
		t.Fatalf("no delay expected before any rate limit, slept %v", slept)
	}

	r.MarkRateLimited("primary")
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait after rate limit: %v", err)
	}
	if len(slept) != 1 || slept[0] < 2*time.Second {
		t.Fatalf("next attempt after a rate limit must hold the full cooldown, slept %v", slept)
	}

	// The cooldown is served once, not on every later attempt.
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(slept) != 1 {
		t.Errorf("cooldown should not repeat after being served, slept %v", slept)
	}
}

func TestNonRateLimitFailureAddsNoDelay(t *testing.T) {
	var slept []time.Duration
	r := NewRotator(testProviders(),
		WithCooldown(2*time.Second),
		withSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	r.MarkFailure("primary")
	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(slept) != 0 {
		t.Errorf("ordinary failures must not delay the next attempt, slept %v", slept)
	}
}

func TestMarkSuccessClearsCooldown(t *testing.T) {
	r := NewRotator(testProviders())
	r.MarkRateLimited("secondary")
	r.MarkSuccess("secondary")

	state := r.State("secondary")
	if state == nil {
		t.Fatal("expected state for secondary")
	}
	if state.RateLimited(time.Now()) {
		t.Error("success should clear the rate-limit cooldown")
	}
}

func TestStepKindFiltering(t *testing.T) {
	providers := []models.ModelProvider{
		{ID: "planner", Enabled: true, Priority: 1, StepKinds: []string{models.StepKindQueryPlanning}},
		{ID: "other", Enabled: true, Priority: 2, StepKinds: []string{"summarization"}},
		{ID: "generalist", Enabled: true, Priority: 3},
	}
	r := NewRotator(providers)

	ordered := r.GetModels(models.StepKindQueryPlanning, "req-4")
	got := ids(ordered)
	if len(got) != 2 || got[0] != "planner" || got[1] != "generalist" {
		t.Errorf("got %v, want [planner generalist]", got)
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 429", &llm.HTTPError{StatusCode: 429}, true},
		{"http 500", &llm.HTTPError{StatusCode: 500}, false},
		{"wrapped 429", errors.Join(errors.New("call failed"), &llm.HTTPError{StatusCode: 429}), true},
		{"text rate limit", errors.New("provider said: rate limit exceeded"), true},
		{"text 429", errors.New("unexpected status 429"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func ids(providers []models.ModelProvider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.ID
	}
	return out
}
