// Package rotation orders model providers for each request and tracks
// rate-limit state, so planning survives individual provider outages by
// falling through to the next candidate.
package rotation

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"queryforge/internal/llm"
	"queryforge/internal/metrics"
	"queryforge/internal/models"
)

// Rotator hands out provider orderings and remembers which providers are
// cooling off after a rate limit. Healthy providers come first in priority
// order; rate-limited ones are demoted to the tail rather than dropped, so
// a request that exhausts all healthy candidates can still try them.
type Rotator struct {
	mu          sync.RWMutex
	providers   []models.ModelProvider
	states      map[string]*models.ProviderState
	cooldown    time.Duration
	limiter     *rate.Limiter
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	nextAttempt time.Time
}

// Option configures a Rotator.
type Option func(*Rotator)

// WithCooldown sets how long a rate-limited provider stays demoted.
func WithCooldown(d time.Duration) Option {
	return func(r *Rotator) { r.cooldown = d }
}

// WithCallSpacing enforces a minimum interval between outbound LLM calls
// across all providers.
func WithCallSpacing(minInterval time.Duration) Option {
	return func(r *Rotator) {
		if minInterval > 0 {
			r.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
		}
	}
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) Option {
	return func(r *Rotator) { r.now = now }
}

// withSleep overrides the blocking sleep for tests.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Rotator) { r.sleep = sleep }
}

// NewRotator creates a rotator over the configured providers.
func NewRotator(providers []models.ModelProvider, opts ...Option) *Rotator {
	r := &Rotator{
		providers: providers,
		states:    make(map[string]*models.ProviderState),
		cooldown:  60 * time.Second,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range providers {
		r.states[p.ID] = &models.ProviderState{ProviderID: p.ID}
	}
	return r
}

// GetModels returns providers serving stepKind, healthy ones first in
// priority order, rate-limited ones demoted to the tail. Disabled
// providers are omitted.
func (r *Rotator) GetModels(stepKind, requestID string) []models.ModelProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var healthy, limited []models.ModelProvider
	for _, p := range r.providers {
		if !p.Enabled || !p.ServesStepKind(stepKind) {
			continue
		}
		if state, ok := r.states[p.ID]; ok && state.RateLimited(now) {
			limited = append(limited, p)
		} else {
			healthy = append(healthy, p)
		}
	}

	sort.SliceStable(healthy, func(i, j int) bool { return healthy[i].Priority < healthy[j].Priority })
	sort.SliceStable(limited, func(i, j int) bool { return limited[i].Priority < limited[j].Priority })

	ordered := append(healthy, limited...)
	log.Printf("🔄 [ROTATION] Request %s: %d candidate(s) for %s (%d rate-limited)",
		requestID, len(ordered), stepKind, len(limited))
	return ordered
}

// Wait blocks until another outbound call is allowed, or the context is
// cancelled. After a rate limit it holds the full cooldown before the
// next attempt; other failures carry no delay beyond the usual call
// spacing.
func (r *Rotator) Wait(ctx context.Context) error {
	r.mu.RLock()
	delay := r.nextAttempt.Sub(r.now())
	r.mu.RUnlock()
	if delay > 0 {
		log.Printf("⏳ [ROTATION] Cooling down %s before next attempt", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		r.mu.Lock()
		r.nextAttempt = time.Time{}
		r.mu.Unlock()
	}

	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MarkRateLimited puts a provider into cooldown.
func (r *Rotator) MarkRateLimited(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[providerID]
	if !ok {
		return
	}
	state.RateLimitedUntil = r.now().Add(r.cooldown)
	state.Failures++
	r.nextAttempt = state.RateLimitedUntil
	metrics.ProviderRateLimits.WithLabelValues(providerID).Inc()
	log.Printf("🚫 [ROTATION] Provider %s rate-limited until %s", providerID, state.RateLimitedUntil.Format(time.RFC3339))
}

// MarkSuccess records a successful call and clears any cooldown.
func (r *Rotator) MarkSuccess(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[providerID]
	if !ok {
		return
	}
	state.RateLimitedUntil = time.Time{}
	state.LastSuccess = r.now()
	state.Attempts++
}

// MarkFailure records a non-rate-limit failure.
func (r *Rotator) MarkFailure(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.states[providerID]; ok {
		state.Attempts++
		state.Failures++
	}
}

// State returns a snapshot of a provider's health, or nil if unknown.
func (r *Rotator) State(providerID string) *models.ProviderState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[providerID]
	if !ok {
		return nil
	}
	snapshot := *state
	return &snapshot
}

// IsRateLimitError reports whether err looks like an upstream rate limit.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *llm.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
