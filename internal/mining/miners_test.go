package mining

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleModel = `
const Order = model.define("order", {
  id: model.id(),
  status: model.enum(["pending", "completed", "canceled"]),
  total: model.number(),
  items: model.hasMany(() => OrderItem),
  customer: model.belongsTo(() => Customer),
})

const Customer = model.define("customer", {
  id: model.id(),
  email: model.text(),
})
`

func TestEntityMiner_FieldsAndRelations(t *testing.T) {
	ctx := NewEntityMiner().Mine(sampleModel)

	order, ok := ctx["order"]
	if !ok {
		t.Fatalf("expected order entity, got %v", ctx)
	}

	wantFields := map[string]bool{"id": true, "status": true, "total": true}
	for _, f := range order.Fields {
		if !wantFields[f] {
			t.Errorf("unexpected field %q", f)
		}
		delete(wantFields, f)
	}
	if len(wantFields) != 0 {
		t.Errorf("missing fields: %v", wantFields)
	}

	if len(order.Relations) != 2 {
		t.Fatalf("expected 2 relations, got %v", order.Relations)
	}
	if order.Relations[0] != "items" || order.Relations[1] != "customer" {
		t.Errorf("unexpected relations: %v", order.Relations)
	}
}

func TestEntityMiner_EnumValues(t *testing.T) {
	ctx := NewEntityMiner().Mine(sampleModel)

	values := ctx["order"].EnumValues["status"]
	if len(values) != 3 || values[0] != "pending" || values[2] != "canceled" {
		t.Errorf("unexpected enum values: %v", values)
	}
}

func TestEntityMiner_GarbageInput(t *testing.T) {
	ctx := NewEntityMiner().Mine("not a model file at all {{{")
	if len(ctx) != 0 {
		t.Errorf("expected empty context for garbage input, got %v", ctx)
	}
}

func TestLinkMiner_BothDirections(t *testing.T) {
	source := `
export default defineLink(
  OrderModule.linkable.order,
  ProductModule.linkable.product,
)
`
	ctx := NewLinkMiner().Mine(source)

	if ctx["order"] == nil || len(ctx["order"].Relations) != 1 || ctx["order"].Relations[0] != "product" {
		t.Errorf("order side missing product relation: %v", ctx["order"])
	}
	if ctx["product"] == nil || len(ctx["product"].Relations) != 1 || ctx["product"].Relations[0] != "order" {
		t.Errorf("product side missing order relation: %v", ctx["product"])
	}
}

func TestRouteMiner_EntityFromPath(t *testing.T) {
	source := `
router.get("/admin/orders", listOrders)
router.post("/admin/orders/:id/fulfill", fulfillOrder)
router.get("/store/categories", listCategories)
`
	ctx := NewRouteMiner().Mine(source)

	if got := len(ctx["order"].Routes); got != 2 {
		t.Errorf("expected 2 order routes, got %d: %v", got, ctx["order"].Routes)
	}
	if ctx["category"] == nil {
		t.Errorf("expected categories route to map to category entity, got %v", ctx)
	}
}

func TestWorkflowMiner_EventsAndWorkflows(t *testing.T) {
	source := `
const completeOrder = createWorkflow("complete-order", function (input) {
  emitEvent("order.completed")
})
subscriber({ event: "order.completed" }, sendConfirmation)
`
	ctx := NewWorkflowMiner().Mine(source)

	effects := ctx["order"].SideEffects
	if len(effects) < 2 {
		t.Fatalf("expected workflow and event side effects, got %v", effects)
	}
	if effects[0] != "workflow:complete-order" {
		t.Errorf("unexpected first side effect: %v", effects[0])
	}
}

func TestService_InitOnceAndReset(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "order.ts", sampleModel)

	svc := NewService(dir)

	first := svc.Context()
	if first["order"] == nil {
		t.Fatalf("expected order facts, got %v", first)
	}

	// Add another artifact; without Reset the cached context is returned.
	writeArtifact(t, dir, "product.ts", `const P = model.define("product", { id: model.id() })`)
	if again := svc.Context(); again["product"] != nil {
		t.Errorf("expected cached context without product, got %v", again)
	}

	svc.Reset()
	if refreshed := svc.Context(); refreshed["product"] == nil {
		t.Errorf("expected product facts after reset, got %v", refreshed)
	}
}

func TestService_MissingDirIsEmpty(t *testing.T) {
	svc := NewService("/nonexistent-artifact-dir")
	if ctx := svc.Context(); len(ctx) != 0 {
		t.Errorf("expected empty context for missing dir, got %v", ctx)
	}
}

func writeArtifact(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
}
