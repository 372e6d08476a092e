package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"queryforge/internal/models"
)

func TestHTTPAdapterListWithFilters(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{
			"orders": []any{map[string]any{"id": "order_1"}},
			"count":  float64(1),
		})
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(server.URL, "test-key", nil)
	result, err := adapter.Execute(context.Background(), Request{
		Entity:    "order",
		Operation: models.OpListAndCount,
		Filters:   map[string]any{"status": "completed"},
		Relations: []string{"items"},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if gotPath != "/admin/orders" {
		t.Errorf("path = %s, want /admin/orders", gotPath)
	}
	if gotQuery == "" {
		t.Error("expected filters in query string")
	}
	if len(result.Data) != 1 || result.Data[0]["id"] != "order_1" {
		t.Errorf("unexpected data: %v", result.Data)
	}
	if result.Count == nil || *result.Count != 1 {
		t.Errorf("count not extracted from wrapped response")
	}
}

func TestHTTPAdapterRetrieveByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/orders/order_42" {
			t.Errorf("path = %s, want /admin/orders/order_42", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "order_42", "status": "completed"})
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(server.URL, "", nil)
	result, err := adapter.Execute(context.Background(), Request{
		Entity:    "order",
		Operation: models.OpRetrieve,
		Filters:   map[string]any{"id": "order_42"},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0]["id"] != "order_42" {
		t.Errorf("unexpected data: %v", result.Data)
	}
}

func TestHTTPAdapterStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	adapter := NewHTTPAdapter(server.URL, "", nil)
	_, err := adapter.Execute(context.Background(), Request{Entity: "order", Operation: models.OpList})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected StatusError 403, got %v", err)
	}
}

func TestServiceAdapter(t *testing.T) {
	adapter := NewServiceAdapter()
	adapter.Register("design", func(_ context.Context, req Request) ([]map[string]any, error) {
		if req.Filters["q"] == "v2 housing" {
			return []map[string]any{{"id": "design_1", "name": "v2 housing"}}, nil
		}
		return nil, nil
	})

	result, err := adapter.Execute(context.Background(), Request{
		Entity:    "design",
		Operation: models.OpListAndCount,
		Filters:   map[string]any{"q": "v2 housing"},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Data) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Data))
	}
	if result.Count == nil || *result.Count != 1 {
		t.Error("listAndCount should set the count")
	}

	if _, err := adapter.Execute(context.Background(), Request{Entity: "unregistered"}); err == nil {
		t.Error("expected error for unregistered entity")
	}
}

func TestGraphAdapterTraversal(t *testing.T) {
	adapter := NewGraphAdapter()
	adapter.AddNode(&GraphNode{
		Entity: "category",
		ID:     "cat_1",
		Fields: map[string]any{"name": "Widgets"},
		Edges:  map[string][]string{"products": {"prod_1", "prod_2"}},
	})
	adapter.AddNode(&GraphNode{Entity: "product", ID: "prod_1", Fields: map[string]any{"title": "Widget A"}})
	adapter.AddNode(&GraphNode{Entity: "product", ID: "prod_2", Fields: map[string]any{"title": "Widget B"}})

	result, err := adapter.Execute(context.Background(), Request{
		Entity:    "category",
		Operation: models.OpList,
		Filters:   map[string]any{"name": "Widgets"},
		Relations: []string{"products"},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Data) != 1 {
		t.Fatalf("got %d records, want 1", len(result.Data))
	}
	linked, ok := result.Data[0]["products"].([]map[string]any)
	if !ok || len(linked) != 2 {
		t.Errorf("products relation not expanded: %v", result.Data[0]["products"])
	}
}

func TestGraphAdapterFilterByID(t *testing.T) {
	adapter := NewGraphAdapter()
	adapter.AddNode(&GraphNode{Entity: "category", ID: "cat_1", Fields: map[string]any{"name": "A"}})
	adapter.AddNode(&GraphNode{Entity: "category", ID: "cat_2", Fields: map[string]any{"name": "B"}})

	result, err := adapter.Execute(context.Background(), Request{
		Entity:    "category",
		Operation: models.OpRetrieve,
		Filters:   map[string]any{"id": "cat_2"},
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(result.Data) != 1 || result.Data[0]["name"] != "B" {
		t.Errorf("unexpected data: %v", result.Data)
	}
}

func TestRegistrySelection(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.AccessInProcess, NewServiceAdapter())

	if _, err := registry.ForMethod(models.AccessInProcess); err != nil {
		t.Errorf("registered method should resolve: %v", err)
	}
	if _, err := registry.ForMethod(models.AccessGraph); err == nil {
		t.Error("unregistered method should error")
	}
}
