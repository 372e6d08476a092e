package classifier

import (
	"context"
	"testing"

	"queryforge/internal/models"
	"queryforge/internal/schema"
)

func newTestClassifier() *Classifier {
	registry := schema.NewRegistry()
	resolver := schema.NewResolver(registry, nil)
	return New(registry, resolver)
}

func TestValidateRelations_SplitsValidAndInvalid(t *testing.T) {
	c := newTestClassifier()

	check := c.ValidateRelations(context.Background(), "design", []string{"specifications", "bogus_relation"})

	if len(check.Valid) != 1 || check.Valid[0] != "specifications" {
		t.Errorf("expected valid=[specifications], got %v", check.Valid)
	}
	if len(check.Invalid) != 1 || check.Invalid[0] != "bogus_relation" {
		t.Errorf("expected invalid=[bogus_relation], got %v", check.Invalid)
	}
}

func TestValidateRelations_UnknownEntityDropsEverything(t *testing.T) {
	c := newTestClassifier()

	check := c.ValidateRelations(context.Background(), "wombat", []string{"anything"})
	if len(check.Valid) != 0 {
		t.Errorf("unknown entity must validate no relations, got %v", check.Valid)
	}
}

func TestClassify_AccessMethods(t *testing.T) {
	c := newTestClassifier()
	ctx := context.Background()

	tests := []struct {
		entity string
		isCore bool
		method models.AccessMethod
	}{
		{"order", true, models.AccessHTTPAPI},
		{"design", true, models.AccessInProcess},
		{"category", true, models.AccessGraph},
		{"wombat", false, models.AccessHTTPAPI},
	}

	for _, tt := range tests {
		got := c.Classify(ctx, tt.entity)
		if got.IsCore != tt.isCore {
			t.Errorf("%s: IsCore = %v, want %v", tt.entity, got.IsCore, tt.isCore)
		}
		if got.AccessMethod != tt.method {
			t.Errorf("%s: AccessMethod = %s, want %s", tt.entity, got.AccessMethod, tt.method)
		}
	}
}

func TestResponseExpectation_WrappedForCore(t *testing.T) {
	c := newTestClassifier()

	core := c.ResponseExpectation("order", true)
	if !core.Wrapped || core.DataKey != "orders" || core.CountKey != "count" {
		t.Errorf("unexpected core expectation: %+v", core)
	}

	plural := c.ResponseExpectation("category", true)
	if plural.DataKey != "categories" {
		t.Errorf("expected categories, got %s", plural.DataKey)
	}

	discovered := c.ResponseExpectation("supplier", false)
	if discovered.Wrapped || discovered.DataKey != "data" {
		t.Errorf("unexpected discovered expectation: %+v", discovered)
	}
}

func TestFindDependencies_FromFilters(t *testing.T) {
	c := newTestClassifier()

	filters := map[string]models.FilterValue{
		"customer_id": models.Reference(1, ""),
		"status":      models.Literal("completed"),
		"region_id":   models.Reference(2, "id"),
		"also_ref":    models.Reference(1, "email"),
	}

	deps := c.FindDependencies(filters)
	if len(deps) != 2 || deps[0] != 1 || deps[1] != 2 {
		t.Errorf("expected deps [1 2], got %v", deps)
	}

	if deps := c.FindDependencies(nil); len(deps) != 0 {
		t.Errorf("expected no deps for nil filters, got %v", deps)
	}
}
