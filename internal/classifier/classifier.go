package classifier

import (
	"context"
	"fmt"
	"sort"

	"queryforge/internal/models"
	"queryforge/internal/schema"
)

// Classifier answers questions about entities on behalf of the planner and
// executor: category, access method, valid relations, response shape, and
// the dependency edges hidden inside a step's filters. It is the single
// gate that keeps nonexistent relations out of executed plans.
type Classifier struct {
	registry *schema.Registry
	resolver *schema.Resolver
}

// RelationCheck is the result of validating proposed relations.
type RelationCheck struct {
	Valid   []string `json:"valid"`
	Invalid []string `json:"invalid"`
}

// New creates a classifier over the registry and resolver.
func New(registry *schema.Registry, resolver *schema.Resolver) *Classifier {
	return &Classifier{registry: registry, resolver: resolver}
}

// Classify returns the classification for an entity.
func (c *Classifier) Classify(ctx context.Context, entity string) models.Classification {
	desc := c.resolver.Resolve(ctx, entity)

	return models.Classification{
		Entity:         entity,
		IsCore:         desc.Category == models.CategoryPreRegistered,
		AccessMethod:   desc.AccessMethod,
		ValidRelations: desc.Relations,
	}
}

// ValidateRelations splits proposed relations into those present in the
// registry and those that are not. Callers drop the invalid ones; the
// split is reported so the planner can log what a model invented.
func (c *Classifier) ValidateRelations(ctx context.Context, entity string, proposed []string) RelationCheck {
	desc := c.resolver.Resolve(ctx, entity)

	check := RelationCheck{
		Valid:   make([]string, 0, len(proposed)),
		Invalid: make([]string, 0),
	}
	for _, rel := range proposed {
		if desc.HasRelation(rel) {
			check.Valid = append(check.Valid, rel)
		} else {
			check.Invalid = append(check.Invalid, rel)
		}
	}
	return check
}

// ResponseExpectation returns the wrapper shape the adapter response will
// have, so the executor can extract results without branching on entity
// names. Core HTTP entities come back wrapped under their plural name;
// everything else is a bare list under "data".
func (c *Classifier) ResponseExpectation(entity string, isCore bool) models.ResponseExpectation {
	if isCore {
		return models.ResponseExpectation{
			Wrapped:  true,
			DataKey:  Pluralize(entity),
			CountKey: "count",
		}
	}
	return models.ResponseExpectation{
		Wrapped: false,
		DataKey: "data",
	}
}

// FindDependencies scans a filter map for back-references and returns the
// referenced step numbers in ascending order. This builds the dependency
// edges without requiring the planner to declare them, tolerating planner
// mistakes.
func (c *Classifier) FindDependencies(filters map[string]models.FilterValue) []int {
	seen := make(map[int]bool)
	var deps []int
	for _, v := range filters {
		if v.Ref != nil && !seen[v.Ref.Step] {
			seen[v.Ref.Step] = true
			deps = append(deps, v.Ref.Step)
		}
	}
	sort.Ints(deps)
	return deps
}

// DescribeStep renders a human-readable description of a plan step for
// execution logs.
func (c *Classifier) DescribeStep(step models.PlanStep) string {
	switch {
	case step.Extract != "":
		return fmt.Sprintf("%s %s to extract %q", step.Operation, step.Entity, step.Extract)
	case len(step.Relations) > 0:
		return fmt.Sprintf("%s %s with %v", step.Operation, step.Entity, step.Relations)
	default:
		return fmt.Sprintf("%s %s", step.Operation, step.Entity)
	}
}

// Pluralize is intentionally naive; it matches the API's own naming
// convention for wrapped responses.
func Pluralize(s string) string {
	switch {
	case len(s) == 0:
		return s
	case s[len(s)-1] == 'y':
		return s[:len(s)-1] + "ies"
	case s[len(s)-1] == 's':
		return s + "es"
	default:
		return s + "s"
	}
}
