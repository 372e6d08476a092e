package schema

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"queryforge/internal/models"
)

type fakeDocs struct {
	calls   atomic.Int64
	results map[string]*DocsResult
	err     error
}

func (f *fakeDocs) Lookup(_ context.Context, entity string) (*DocsResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[entity], nil
}

func TestResolve_CoreAlwaysFromRegistry(t *testing.T) {
	docs := &fakeDocs{results: map[string]*DocsResult{
		"order": {Relations: []string{"bogus"}},
	}}
	r := NewResolver(NewRegistry(), nil, WithDocs(docs))

	desc := r.Resolve(context.Background(), "order")
	if desc.Category != models.CategoryPreRegistered {
		t.Errorf("expected pre-registered, got %s", desc.Category)
	}
	if !desc.HasRelation("items") {
		t.Errorf("expected registry relations, got %v", desc.Relations)
	}
	if docs.calls.Load() != 0 {
		t.Errorf("docs service must not be consulted for core entities")
	}
}

func TestResolve_DiscoveredViaDocs(t *testing.T) {
	docs := &fakeDocs{results: map[string]*DocsResult{
		"supplier": {Relations: []string{"contacts"}, Filters: []string{"q", "name"}, APIPath: "/admin/suppliers"},
	}}
	r := NewResolver(NewRegistry(), nil, WithDocs(docs))

	desc := r.Resolve(context.Background(), "supplier")
	if desc.Category != models.CategoryDiscovered {
		t.Fatalf("expected discovered, got %s", desc.Category)
	}
	if !desc.HasRelation("contacts") {
		t.Errorf("expected docs relations, got %v", desc.Relations)
	}

	// Second resolve must hit the TTL cache, not the docs service.
	r.Resolve(context.Background(), "supplier")
	if docs.calls.Load() != 1 {
		t.Errorf("expected 1 docs call, got %d", docs.calls.Load())
	}
}

func TestResolve_UnknownNeverFails(t *testing.T) {
	docs := &fakeDocs{err: errors.New("docs service down")}
	r := NewResolver(NewRegistry(), nil, WithDocs(docs))

	desc := r.Resolve(context.Background(), "wombat")
	if desc.Category != models.CategoryUnknown {
		t.Errorf("expected unknown, got %s", desc.Category)
	}
	if len(desc.Relations) != 0 {
		t.Errorf("unknown entity must carry no relations, got %v", desc.Relations)
	}
}

func TestResolveMany_AllResolved(t *testing.T) {
	r := NewResolver(NewRegistry(), nil, WithConcurrency(2), WithTTL(time.Minute))

	names := []string{"order", "customer", "product", "mystery"}
	results := r.ResolveMany(context.Background(), names)

	if len(results) != len(names) {
		t.Fatalf("expected %d results, got %d", len(names), len(results))
	}
	if results["mystery"].Category != models.CategoryUnknown {
		t.Errorf("expected mystery to be unknown, got %s", results["mystery"].Category)
	}
}

func TestDiscover_ExternalBeforeUnknown(t *testing.T) {
	docs := &fakeDocs{results: map[string]*DocsResult{
		"warehouse": {Relations: []string{"locations"}, Filters: []string{"q"}},
	}}
	r := NewResolver(NewRegistry(), nil, WithDocs(docs))

	found := r.Discover(context.Background(), "warehouse")
	if !found.IsValid || found.Category != models.CategoryDiscovered {
		t.Errorf("expected discovered warehouse, got %+v", found)
	}

	missing := r.Discover(context.Background(), "nonsense")
	if missing.IsValid || missing.Category != models.CategoryUnknown {
		t.Errorf("expected unknown for nonsense, got %+v", missing)
	}
}

func TestRegistry_LoadFileOverrides(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&models.EntityDescriptor{
		Name:         "order",
		Category:     models.CategoryPreRegistered,
		AccessMethod: models.AccessHTTPAPI,
		Relations:    []string{"only_this"},
	})

	d, ok := reg.Get("order")
	if !ok || len(d.Relations) != 1 || d.Relations[0] != "only_this" {
		t.Errorf("expected override to win, got %+v", d)
	}
}

func TestDescribeForDocs(t *testing.T) {
	registry := NewRegistry()
	d, ok := registry.Get("order")
	if !ok {
		t.Fatal("order should be registered")
	}

	text := DescribeForDocs(d)
	for _, want := range []string{"order", "items", "customer"} {
		if !strings.Contains(text, want) {
			t.Errorf("description missing %q: %s", want, text)
		}
	}
}
