// Package engine is the top-level facade: plan a query, execute the
// plan, and record the outcome so future planning improves.
package engine

import (
	"context"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"queryforge/internal/classifier"
	"queryforge/internal/execution"
	"queryforge/internal/models"
	"queryforge/internal/plancache"
	"queryforge/internal/planner"
	"queryforge/internal/schema"
)

// PlanStore is the engine's view of the plan cache. The success counter
// only moves through Store, on successful execution.
type PlanStore interface {
	Store(ctx context.Context, query string, plan *models.QueryPlan) (*models.CachedPlanRecord, error)
	FindBest(ctx context.Context, query string) (*models.CacheMatch, error)
	Touch(ctx context.Context, id primitive.ObjectID) error
}

// FailureStore is the write side of the failure cache.
type FailureStore interface {
	Record(ctx context.Context, query string, plan *models.QueryPlan, failedStep int, code models.ErrorCode, message string) (*models.CachedFailureRecord, error)
	Search(ctx context.Context, query string, topK int) ([]models.FailureMatch, error)
	MarkResolved(ctx context.Context, failureID, planID primitive.ObjectID) error
	Analyze(ctx context.Context, query string, code models.ErrorCode) *plancache.Analysis
}

// Engine ties the planner, executor, and learning caches together.
type Engine struct {
	planner  *planner.Planner
	executor *execution.Executor
	registry *schema.Registry
	plans    PlanStore
	failures FailureStore
}

// New creates the engine. plans and failures may be nil when no durable
// cache is configured; outcomes are then not recorded.
func New(p *planner.Planner, ex *execution.Executor, registry *schema.Registry, plans PlanStore, failures FailureStore) *Engine {
	return &Engine{planner: p, executor: ex, registry: registry, plans: plans, failures: failures}
}

// Plan returns a plan for query. A high-band plan cache match is reused
// verbatim; anything less goes through full generation (where moderate
// matches still surface as prompt examples). When no entities are
// hinted, they are detected by scanning the query for registered names.
func (e *Engine) Plan(ctx context.Context, query string, hintedEntities []string) *models.QueryPlan {
	if plan := e.reuseCachedPlan(ctx, query); plan != nil {
		return plan
	}

	entities := hintedEntities
	if len(entities) == 0 {
		entities = e.detectEntities(query)
	}
	return e.planner.GeneratePlan(ctx, query, entities)
}

// reuseCachedPlan returns a verbatim-reusable cached plan, or nil.
func (e *Engine) reuseCachedPlan(ctx context.Context, query string) *models.QueryPlan {
	if e.plans == nil {
		return nil
	}
	match, err := e.plans.FindBest(ctx, query)
	if err != nil {
		log.Printf("⚠️ [ENGINE] Plan cache lookup failed: %v", err)
		return nil
	}
	if match == nil {
		return nil
	}
	plan, err := plancache.DecodePlan(match.Record)
	if err != nil {
		log.Printf("⚠️ [ENGINE] Discarding corrupt cached plan %s: %v", match.Record.ID.Hex(), err)
		return nil
	}
	// Reuse only refreshes recency. The success counter moves when the
	// executed plan is stored back through RecordOutcome.
	if err := e.plans.Touch(ctx, match.Record.ID); err != nil {
		log.Printf("⚠️ [ENGINE] Failed to refresh cached plan: %v", err)
	}
	log.Printf("♻️ [ENGINE] Reusing cached plan for %q (similarity %.2f)", query, match.Similarity)
	return plan
}

// Execute enriches and runs a plan.
func (e *Engine) Execute(ctx context.Context, plan *models.QueryPlan) *models.ExecutionResult {
	enriched := e.planner.EnrichPlan(ctx, plan)
	return e.executor.Execute(ctx, enriched)
}

// RecordOutcome writes the result of an executed plan into the learning
// caches: successes into the plan cache (also resolving any similar past
// failures), failures into the failure cache. Cache errors are logged,
// never surfaced; learning is best-effort.
func (e *Engine) RecordOutcome(ctx context.Context, query string, plan *models.QueryPlan, success bool, errInfo *models.StepError) {
	if success {
		if e.plans == nil {
			return
		}
		record, err := e.plans.Store(ctx, query, plan)
		if err != nil {
			log.Printf("⚠️ [ENGINE] Failed to cache successful plan: %v", err)
			return
		}
		e.resolveSimilarFailures(ctx, query, record)
		return
	}

	if e.failures == nil {
		return
	}
	code := models.ErrUnknown
	message := "execution failed"
	failedStep := 0
	if errInfo != nil {
		code = errInfo.Code
		message = errInfo.Message
		failedStep = errInfo.Step
	}
	if _, err := e.failures.Record(ctx, query, plan, failedStep, code, message); err != nil {
		log.Printf("⚠️ [ENGINE] Failed to record failure: %v", err)
	}
	if analysis := e.failures.Analyze(ctx, query, code); analysis != nil {
		log.Printf("💡 [ENGINE] Suggested fix for %q: %s", query, analysis.Suggestion)
	}
}

// resolveSimilarFailures links past failures of equivalent queries to the
// plan that now works.
func (e *Engine) resolveSimilarFailures(ctx context.Context, query string, record *models.CachedPlanRecord) {
	if e.failures == nil {
		return
	}
	matches, err := e.failures.Search(ctx, query, 5)
	if err != nil {
		log.Printf("⚠️ [ENGINE] Failure lookup during resolution failed: %v", err)
		return
	}
	for _, m := range matches {
		if m.Band != models.BandHigh || m.Record.Resolved() {
			continue
		}
		if err := e.failures.MarkResolved(ctx, m.Record.ID, record.ID); err != nil {
			log.Printf("⚠️ [ENGINE] Failed to mark failure resolved: %v", err)
			continue
		}
		log.Printf("🔗 [ENGINE] Failure %s resolved by plan %s", m.Record.ID.Hex(), record.ID.Hex())
	}
}

// detectEntities scans the query for registered entity names, singular or
// plural.
func (e *Engine) detectEntities(query string) []string {
	lowered := strings.ToLower(query)
	var detected []string
	for _, d := range e.registry.All() {
		if strings.Contains(lowered, d.Name) || strings.Contains(lowered, classifier.Pluralize(d.Name)) {
			detected = append(detected, d.Name)
		}
	}
	return detected
}
