// Package planner turns natural-language queries into executable
// multi-step retrieval plans. It gathers entity schemas, mined codebase
// facts, and cached examples concurrently, asks a language model for a
// plan, then validates and sanitizes the result. When every model attempt
// fails it degrades to a heuristic single-step plan instead of erroring.
package planner

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"queryforge/internal/classifier"
	"queryforge/internal/llm"
	"queryforge/internal/metrics"
	"queryforge/internal/mining"
	"queryforge/internal/models"
	"queryforge/internal/plancache"
	"queryforge/internal/rotation"
	"queryforge/internal/schema"
)

// Retrieval limits for prompt assembly.
const (
	maxWorkedExamples = 3
	maxPastFailures   = 2
	maxDocSnippets    = 2
)

// paginationKeys never belong in a filter map; pagination is execution
// configuration, not a predicate.
var paginationKeys = []string{"limit", "take", "offset", "skip", "page", "pageSize"}

// PlanSearcher is the slice of the plan cache the planner needs.
type PlanSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.CacheMatch, error)
}

// FailureSearcher is the slice of the failure cache the planner needs.
type FailureSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.FailureMatch, error)
}

// SnippetSearcher retrieves documentation snippets by similarity.
type SnippetSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]plancache.Snippet, error)
}

// ModelSource hands out provider orderings and tracks their health.
type ModelSource interface {
	GetModels(stepKind, requestID string) []models.ModelProvider
	Wait(ctx context.Context) error
	MarkRateLimited(providerID string)
	MarkSuccess(providerID string)
	MarkFailure(providerID string)
}

// Planner generates query plans.
type Planner struct {
	registry      *schema.Registry
	resolver      *schema.Resolver
	miners        *mining.Service
	classifier    *classifier.Classifier
	plans         PlanSearcher
	failures      FailureSearcher
	snippets      SnippetSearcher
	rotator       ModelSource
	completions   llm.CompletionClient
	defaultEntity string
}

// New creates a planner. plans, failures, and snippets may be nil; their
// retrieval steps are then skipped.
func New(
	registry *schema.Registry,
	resolver *schema.Resolver,
	miners *mining.Service,
	cls *classifier.Classifier,
	plans PlanSearcher,
	failures FailureSearcher,
	snippets SnippetSearcher,
	rotator ModelSource,
	completions llm.CompletionClient,
	defaultEntity string,
) *Planner {
	return &Planner{
		registry:      registry,
		resolver:      resolver,
		miners:        miners,
		classifier:    cls,
		plans:         plans,
		failures:      failures,
		snippets:      snippets,
		rotator:       rotator,
		completions:   completions,
		defaultEntity: defaultEntity,
	}
}

// GeneratePlan produces a sanitized, schema-valid plan for query. It
// never returns an error: total model failure yields the heuristic
// fallback plan.
func (p *Planner) GeneratePlan(ctx context.Context, query string, detectedEntities []string) *models.QueryPlan {
	requestID := uuid.New().String()

	pc := p.gather(ctx, query, detectedEntities)

	userPrompt := buildUserPrompt(query, pc)
	providers := p.rotator.GetModels(models.StepKindQueryPlanning, requestID)

	for i := range providers {
		provider := &providers[i]

		if err := p.rotator.Wait(ctx); err != nil {
			log.Printf("⚠️ [PLANNER] Request %s: call spacing wait aborted: %v", requestID, err)
			break
		}

		raw, err := p.completions.Complete(ctx, provider, systemPrompt, userPrompt)
		if err != nil {
			if rotation.IsRateLimitError(err) {
				p.rotator.MarkRateLimited(provider.ID)
			} else {
				p.rotator.MarkFailure(provider.ID)
			}
			log.Printf("⚠️ [PLANNER] Request %s: provider %s failed: %v", requestID, provider.ID, err)
			continue
		}

		plan, err := parsePlan(raw)
		if err != nil {
			p.rotator.MarkFailure(provider.ID)
			log.Printf("⚠️ [PLANNER] Request %s: provider %s returned an invalid plan: %v", requestID, provider.ID, err)
			continue
		}

		p.rotator.MarkSuccess(provider.ID)
		p.sanitize(ctx, plan)
		plan.ID = requestID
		metrics.PlanRequests.WithLabelValues("model").Inc()
		log.Printf("🧠 [PLANNER] Request %s: provider %s produced a %d-step plan for %q",
			requestID, provider.ID, len(plan.Steps), query)
		return plan
	}

	log.Printf("🪂 [PLANNER] Request %s: all providers exhausted, using fallback plan for %q", requestID, query)
	plan := p.fallbackPlan(ctx, query, detectedEntities)
	plan.ID = requestID
	metrics.PlanRequests.WithLabelValues("fallback").Inc()
	return plan
}

// gather collects schemas, mined context, and cached material
// concurrently. Retrieval failures degrade plan quality but never fail
// the query, so they are logged and absorbed.
func (p *Planner) gather(ctx context.Context, query string, detectedEntities []string) *promptContext {
	pc := &promptContext{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pc.descriptors = p.resolver.ResolveMany(gctx, detectedEntities)
		return nil
	})
	g.Go(func() error {
		pc.mined = p.miners.Context()
		return nil
	})
	if p.plans != nil {
		g.Go(func() error {
			matches, err := p.plans.Search(gctx, query, maxWorkedExamples)
			if err != nil {
				log.Printf("⚠️ [PLANNER] Plan cache lookup failed: %v", err)
				return nil
			}
			pc.examples = matches
			return nil
		})
	}
	if p.failures != nil {
		g.Go(func() error {
			matches, err := p.failures.Search(gctx, query, maxPastFailures)
			if err != nil {
				log.Printf("⚠️ [PLANNER] Failure cache lookup failed: %v", err)
				return nil
			}
			pc.failures = matches
			return nil
		})
	}
	if p.snippets != nil {
		g.Go(func() error {
			snippets, err := p.snippets.Search(gctx, query, maxDocSnippets)
			if err != nil {
				log.Printf("⚠️ [PLANNER] Snippet lookup failed: %v", err)
				return nil
			}
			pc.snippets = snippets
			return nil
		})
	}

	_ = g.Wait()

	if pc.descriptors == nil {
		pc.descriptors = make(map[string]*models.EntityDescriptor)
	}
	// The model sees the whole registry, not just the detected entities;
	// a query about orders may still need customers to resolve a name.
	for _, d := range p.registry.All() {
		if _, ok := pc.descriptors[d.Name]; !ok {
			pc.descriptors[d.Name] = d
		}
	}
	return pc
}

// parsePlan extracts, decodes, and structurally validates a model response.
func parsePlan(raw string) (*models.QueryPlan, error) {
	var plan models.QueryPlan
	if err := json.Unmarshal([]byte(extractJSON(raw)), &plan); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// sanitize enforces the hard plan invariants: relations must exist on the
// entity, operations must be in the known set, and pagination keys never
// appear in filters.
func (p *Planner) sanitize(ctx context.Context, plan *models.QueryPlan) {
	for i := range plan.Steps {
		step := &plan.Steps[i]

		if len(step.Relations) > 0 {
			check := p.classifier.ValidateRelations(ctx, step.Entity, step.Relations)
			if len(check.Invalid) > 0 {
				log.Printf("🧹 [PLANNER] Step %d: dropped unknown relations %v for %s",
					step.Step, check.Invalid, step.Entity)
			}
			step.Relations = check.Valid
		}

		if !step.Operation.IsValid() {
			log.Printf("🧹 [PLANNER] Step %d: coerced operation %q to list", step.Step, step.Operation)
			step.Operation = models.OpList
		}

		for _, key := range paginationKeys {
			if _, ok := step.Filters[key]; ok {
				delete(step.Filters, key)
				log.Printf("🧹 [PLANNER] Step %d: stripped pagination key %q from filters", step.Step, key)
			}
		}
	}
}

var (
	quotedPhrase      = regexp.MustCompile(`["']([^"']+)["']`)
	capitalizedPhrase = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)+)\b`)
)

// fallbackPlan builds the degraded single-step plan used when no model
// produced a usable one. It always succeeds.
func (p *Planner) fallbackPlan(ctx context.Context, query string, detectedEntities []string) *models.QueryPlan {
	entity := p.defaultEntity
	if len(detectedEntities) > 0 {
		entity = detectedEntities[0]
	}

	filters := make(map[string]models.FilterValue)
	if phrase := searchPhrase(query); phrase != "" {
		filters["q"] = models.Literal(phrase)
	}

	descriptor := p.resolver.Resolve(ctx, entity)
	relations := descriptor.Relations
	if len(relations) > 3 {
		relations = relations[:3]
	}

	return &models.QueryPlan{
		Steps: []models.PlanStep{{
			Step:      1,
			Entity:    entity,
			Operation: models.OpList,
			Filters:   filters,
			Relations: relations,
		}},
		FinalEntity: entity,
		Explanation: "Direct lookup (plan generation unavailable).",
		Fallback:    true,
	}
}

// searchPhrase pulls a quoted phrase, or failing that a run of
// capitalized words, out of the query to use as a free-text filter.
func searchPhrase(query string) string {
	if m := quotedPhrase.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := capitalizedPhrase.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// EnrichPlan augments every step with its classification, expected
// response shape, readable description, and dependency set. Applied to
// every plan before execution, model-generated or fallback alike.
func (p *Planner) EnrichPlan(ctx context.Context, plan *models.QueryPlan) *models.EnrichedPlan {
	enriched := &models.EnrichedPlan{
		QueryPlan: *plan,
		Enriched:  make([]models.EnrichedStep, 0, len(plan.Steps)),
	}
	for _, step := range plan.Steps {
		cls := p.classifier.Classify(ctx, step.Entity)
		enriched.Enriched = append(enriched.Enriched, models.EnrichedStep{
			PlanStep:       step,
			Classification: cls,
			Expectation:    p.classifier.ResponseExpectation(step.Entity, cls.IsCore),
			Description:    p.classifier.DescribeStep(step),
			DependsOn:      p.classifier.FindDependencies(step.Filters),
		})
	}
	return enriched
}
