// Package execution runs enriched query plans step by step, resolving
// inter-step back-references and dispatching each step to the adapter
// its classification selected.
package execution

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"queryforge/internal/adapters"
	"queryforge/internal/metrics"
	"queryforge/internal/models"
)

// Executor runs plans against the adapter registry.
type Executor struct {
	adapters    *adapters.Registry
	defaultPage adapters.Pagination
}

// NewExecutor creates an executor. defaultLimit bounds list operations
// that the plan itself never paginates (pagination is execution
// configuration, not a plan property).
func NewExecutor(registry *adapters.Registry, defaultLimit int) *Executor {
	return &Executor{
		adapters:    registry,
		defaultPage: adapters.Pagination{Limit: defaultLimit},
	}
}

// Execute runs the plan's steps strictly in ascending order. A failed
// step aborts the remainder; the per-step log is always returned so
// callers can render provenance for partial executions.
func (e *Executor) Execute(ctx context.Context, plan *models.EnrichedPlan) *models.ExecutionResult {
	log.Printf("🚀 [EXECUTOR] Starting execution: %d step(s), final entity %s", len(plan.Enriched), plan.FinalEntity)

	result := &models.ExecutionResult{
		FinalEntity: plan.FinalEntity,
		Log:         make([]models.StepResult, 0, len(plan.Enriched)),
	}

	// extracted values by step number, for $N resolution
	produced := make(map[int]any)

	for _, step := range plan.Enriched {
		stepResult := e.executeStep(ctx, &step, produced)
		result.Log = append(result.Log, stepResult)
		metrics.StepDuration.WithLabelValues(step.Entity, string(step.Operation)).
			Observe(float64(stepResult.DurationMs) / 1000)

		if !stepResult.Success {
			log.Printf("❌ [EXECUTOR] Step %d (%s) failed: %v — aborting plan", step.Step, step.Entity, stepResult.Error)
			result.Error = stepResult.Error
			metrics.ExecutionResults.WithLabelValues("failure").Inc()
			return result
		}

		log.Printf("✅ [EXECUTOR] Step %d (%s) completed in %dms", step.Step, step.Entity, stepResult.DurationMs)
	}

	result.Success = true
	metrics.ExecutionResults.WithLabelValues("success").Inc()
	if len(result.Log) > 0 {
		result.FinalResult = result.Log[len(result.Log)-1].Data
	}
	return result
}

// executeStep resolves references, dispatches to the right adapter, and
// captures the outcome.
func (e *Executor) executeStep(ctx context.Context, step *models.EnrichedStep, produced map[int]any) models.StepResult {
	start := time.Now()
	stepResult := models.StepResult{Step: step.Step, Entity: step.Entity}

	fail := func(err *models.StepError) models.StepResult {
		err.Step = step.Step
		stepResult.DurationMs = time.Since(start).Milliseconds()
		stepResult.Error = err
		return stepResult
	}

	filters, stepErr := resolveFilters(step.Filters, produced)
	if stepErr != nil {
		return fail(stepErr)
	}

	adapter, err := e.adapters.ForMethod(step.Classification.AccessMethod)
	if err != nil {
		return fail(&models.StepError{Code: models.ErrValidationError, Message: err.Error()})
	}

	log.Printf("▶️ [EXECUTOR] Step %d: %s", step.Step, step.Description)

	res, err := adapter.Execute(ctx, adapters.Request{
		Entity:     step.Entity,
		Operation:  step.Operation,
		Filters:    filters,
		Relations:  step.Relations,
		Pagination: e.defaultPage,
	})
	if err != nil {
		return fail(ClassifyError(err))
	}

	data := extractData(res, step.Expectation)

	// An extraction step with nothing to extract starves every later
	// step that references it; report it distinctly.
	if step.Extract != "" {
		if len(res.Data) == 0 {
			return fail(&models.StepError{
				Code:    models.ErrNoResults,
				Message: fmt.Sprintf("step %d found no %s to extract %q from", step.Step, step.Entity, step.Extract),
			})
		}
		value, ok := res.Data[0][step.Extract]
		if !ok {
			return fail(&models.StepError{
				Code:    models.ErrExtractionFailed,
				Message: fmt.Sprintf("field %q missing from %s result", step.Extract, step.Entity),
			})
		}
		produced[step.Step] = value
	} else if len(res.Data) > 0 {
		produced[step.Step] = res.Data[0]
	}

	stepResult.Success = true
	stepResult.DurationMs = time.Since(start).Milliseconds()
	stepResult.Data = data
	stepResult.Count = res.Count
	return stepResult
}

// resolveFilters substitutes every back-reference with the value its
// source step produced. A reference to a step that produced nothing is a
// validation error, never a silent empty value.
func resolveFilters(filters map[string]models.FilterValue, produced map[int]any) (map[string]any, *models.StepError) {
	resolved := make(map[string]any, len(filters))
	for field, v := range filters {
		if !v.IsRef() {
			resolved[field] = v.Literal
			continue
		}

		value, ok := produced[v.Ref.Step]
		if !ok {
			return nil, &models.StepError{
				Code:    models.ErrValidationError,
				Message: fmt.Sprintf("filter %q references step %d, which produced no value", field, v.Ref.Step),
			}
		}

		if v.Ref.Field != "" {
			fieldValue, stepErr := digField(value, field, v.Ref)
			if stepErr != nil {
				return nil, stepErr
			}
			value = fieldValue
		}

		resolved[field] = value
	}
	return resolved, nil
}

// digField walks a dotted field path ($1.customer.id) through nested
// records, one map level per segment.
func digField(value any, filter string, ref *models.StepReference) (any, *models.StepError) {
	for _, segment := range strings.Split(ref.Field, ".") {
		record, ok := value.(map[string]any)
		if !ok {
			return nil, &models.StepError{
				Code:    models.ErrValidationError,
				Message: fmt.Sprintf("filter %q references %s but step %d produced a scalar at %q", filter, ref.String(), ref.Step, segment),
			}
		}
		value, ok = record[segment]
		if !ok {
			return nil, &models.StepError{
				Code:    models.ErrValidationError,
				Message: fmt.Sprintf("filter %q: step %d result has no field %q", filter, ref.Step, segment),
			}
		}
	}
	return value, nil
}

// extractData unwraps the adapter result according to the expected
// response shape.
func extractData(res *adapters.Result, expectation models.ResponseExpectation) any {
	if expectation.Wrapped {
		wrapped := map[string]any{expectation.DataKey: res.Data}
		if res.Count != nil {
			wrapped[expectation.CountKey] = *res.Count
		}
		return wrapped
	}
	return res.Data
}
