package engine

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"queryforge/internal/adapters"
	"queryforge/internal/classifier"
	"queryforge/internal/execution"
	"queryforge/internal/mining"
	"queryforge/internal/models"
	"queryforge/internal/plancache"
	"queryforge/internal/planner"
	"queryforge/internal/schema"
)

type failingCompletions struct{}

func (failingCompletions) Complete(context.Context, *models.ModelProvider, string, string) (string, error) {
	return "", errors.New("provider down")
}

type noModels struct{}

func (noModels) GetModels(string, string) []models.ModelProvider { return nil }
func (noModels) Wait(context.Context) error                      { return nil }
func (noModels) MarkRateLimited(string)                          {}
func (noModels) MarkSuccess(string)                              {}
func (noModels) MarkFailure(string)                              {}

type memPlanStore struct {
	stored  []string
	best    *models.CacheMatch
	touched int
}

func (m *memPlanStore) Store(_ context.Context, query string, _ *models.QueryPlan) (*models.CachedPlanRecord, error) {
	m.stored = append(m.stored, query)
	return &models.CachedPlanRecord{ID: primitive.NewObjectID(), Query: query}, nil
}

func (m *memPlanStore) FindBest(context.Context, string) (*models.CacheMatch, error) {
	return m.best, nil
}

func (m *memPlanStore) Touch(context.Context, primitive.ObjectID) error {
	m.touched++
	return nil
}

type memFailureStore struct {
	recorded []models.ErrorCode
	steps    []int
	resolved []primitive.ObjectID
	matches  []models.FailureMatch
	analyzed []models.ErrorCode
}

func (m *memFailureStore) Record(_ context.Context, _ string, _ *models.QueryPlan, failedStep int, code models.ErrorCode, _ string) (*models.CachedFailureRecord, error) {
	m.recorded = append(m.recorded, code)
	m.steps = append(m.steps, failedStep)
	return &models.CachedFailureRecord{}, nil
}

func (m *memFailureStore) Search(context.Context, string, int) ([]models.FailureMatch, error) {
	return m.matches, nil
}

func (m *memFailureStore) MarkResolved(_ context.Context, failureID, _ primitive.ObjectID) error {
	m.resolved = append(m.resolved, failureID)
	return nil
}

func (m *memFailureStore) Analyze(_ context.Context, _ string, code models.ErrorCode) *plancache.Analysis {
	m.analyzed = append(m.analyzed, code)
	return &plancache.Analysis{Suggestion: plancache.SuggestFix(code)}
}

func newTestEngine(t *testing.T, plans *memPlanStore, failures *memFailureStore) *Engine {
	t.Helper()
	registry := schema.NewRegistry()
	miners := mining.NewService(t.TempDir())
	resolver := schema.NewResolver(registry, miners)
	cls := classifier.New(registry, resolver)
	p := planner.New(registry, resolver, miners, cls, nil, nil, nil, noModels{}, failingCompletions{}, "order")

	adapterRegistry := adapters.NewRegistry()
	service := adapters.NewServiceAdapter()
	service.Register("order", func(context.Context, adapters.Request) ([]map[string]any, error) {
		return []map[string]any{{"id": "order_1"}}, nil
	})
	adapterRegistry.Register(models.AccessHTTPAPI, service)
	adapterRegistry.Register(models.AccessInProcess, service)
	executor := execution.NewExecutor(adapterRegistry, 50)

	return New(p, executor, registry, plans, failures)
}

func TestPlanReusesHighBandCacheMatch(t *testing.T) {
	cached := `{"steps":[{"step":1,"entity":"order","operation":"list"}],"finalEntity":"order"}`
	plans := &memPlanStore{best: &models.CacheMatch{
		Record:     &models.CachedPlanRecord{ID: primitive.NewObjectID(), Query: "show all orders", PlanJSON: cached},
		Similarity: 0.93,
		Band:       models.BandHigh,
	}}
	e := newTestEngine(t, plans, &memFailureStore{})

	plan := e.Plan(context.Background(), "show all orders", nil)

	if plan.Fallback {
		t.Fatal("cached plan should be reused, not regenerated")
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Entity != "order" {
		t.Errorf("unexpected reused plan: %+v", plan)
	}
	if plans.touched != 1 {
		t.Errorf("reuse should refresh the cached plan, touched = %d", plans.touched)
	}
	if len(plans.stored) != 0 {
		t.Error("reuse alone must not store anything; the counter moves on executed success")
	}
}

func TestPlanDetectsEntitiesFromQuery(t *testing.T) {
	e := newTestEngine(t, &memPlanStore{}, &memFailureStore{})

	plan := e.Plan(context.Background(), "show all orders", nil)

	// All providers fail, so the fallback targets the detected entity.
	if plan.Steps[0].Entity != "order" {
		t.Errorf("detected entity = %s, want order", plan.Steps[0].Entity)
	}
}

func TestPlanAndExecuteEndToEnd(t *testing.T) {
	e := newTestEngine(t, &memPlanStore{}, &memFailureStore{})
	ctx := context.Background()

	plan := e.Plan(ctx, "show all orders", []string{"order"})
	result := e.Execute(ctx, plan)

	if !result.Success {
		t.Fatalf("execution failed: %v", result.Error)
	}
	if len(result.Log) != 1 {
		t.Errorf("got %d log entries, want 1", len(result.Log))
	}
}

func TestRecordOutcomeSuccess(t *testing.T) {
	plans := &memPlanStore{}
	failures := &memFailureStore{
		matches: []models.FailureMatch{{
			Record: &models.CachedFailureRecord{ID: primitive.NewObjectID()},
			Band:   models.BandHigh,
		}},
	}
	e := newTestEngine(t, plans, failures)

	plan := &models.QueryPlan{
		Steps:       []models.PlanStep{{Step: 1, Entity: "order", Operation: models.OpList}},
		FinalEntity: "order",
	}
	e.RecordOutcome(context.Background(), "show all orders", plan, true, nil)

	if len(plans.stored) != 1 {
		t.Fatal("successful plan was not cached")
	}
	if len(failures.resolved) != 1 {
		t.Error("equivalent past failure was not marked resolved")
	}
}

func TestRecordOutcomeFailure(t *testing.T) {
	plans := &memPlanStore{}
	failures := &memFailureStore{}
	e := newTestEngine(t, plans, failures)

	plan := &models.QueryPlan{
		Steps: []models.PlanStep{
			{Step: 1, Entity: "customer", Operation: models.OpList},
			{Step: 2, Entity: "order", Operation: models.OpList},
			{Step: 3, Entity: "order", Operation: models.OpRetrieve},
		},
		FinalEntity: "order",
	}
	e.RecordOutcome(context.Background(), "broken query", plan, false,
		&models.StepError{Step: 2, Code: models.ErrNoResults, Message: "nothing matched"})

	if len(plans.stored) != 0 {
		t.Error("failure must not reach the plan cache")
	}
	if len(failures.recorded) != 1 || failures.recorded[0] != models.ErrNoResults {
		t.Errorf("failure not recorded with its code: %v", failures.recorded)
	}
	if len(failures.steps) != 1 || failures.steps[0] != 2 {
		t.Errorf("recorded failed step = %v, want [2] (the step that failed, not the plan length)", failures.steps)
	}
	if len(failures.analyzed) != 1 || failures.analyzed[0] != models.ErrNoResults {
		t.Errorf("failure was not analyzed: %v", failures.analyzed)
	}
}

func TestPlanDetectsIrregularPlural(t *testing.T) {
	e := newTestEngine(t, &memPlanStore{}, &memFailureStore{})

	plan := e.Plan(context.Background(), "show all categories", nil)

	if plan.Steps[0].Entity != "category" {
		t.Errorf("detected entity = %s, want category", plan.Steps[0].Entity)
	}
}
