package mining

import (
	"regexp"
	"strings"

	"queryforge/internal/models"
)

// WorkflowMiner extracts event/workflow side-effect chains:
//
//	createWorkflow("complete-order", ...)
//	emitEvent("order.completed")
//	subscriber({ event: "order.completed" }, sendConfirmation)
//
// Emitted events are recorded as side effects of the entity named by the
// event prefix, so the planner can warn about operations with downstream
// consequences.
type WorkflowMiner struct {
	workflowPattern *regexp.Regexp
	eventPattern    *regexp.Regexp
}

// NewWorkflowMiner creates the event/workflow miner.
func NewWorkflowMiner() *WorkflowMiner {
	return &WorkflowMiner{
		workflowPattern: regexp.MustCompile(`createWorkflow\(\s*["']([\w-]+)["']`),
		eventPattern:    regexp.MustCompile(`(?:emitEvent|event\s*:)\s*\(?\s*["'](\w+)\.([\w.]+)["']`),
	}
}

// Name identifies the miner in logs.
func (m *WorkflowMiner) Name() string { return "workflows" }

// Mine records workflow names and event chains per entity.
func (m *WorkflowMiner) Mine(source string) models.MinedContext {
	ctx := make(models.MinedContext)

	// Workflows attach to the entity named in the workflow id when one is
	// recognizable ("complete-order" -> order).
	for _, w := range m.workflowPattern.FindAllStringSubmatch(source, -1) {
		name := w[1]
		if entity := entityFromWorkflowName(name); entity != "" {
			ctx.Facts(entity).SideEffects = append(ctx.Facts(entity).SideEffects, "workflow:"+name)
		}
	}

	for _, e := range m.eventPattern.FindAllStringSubmatch(source, -1) {
		entity := strings.ToLower(e[1])
		event := e[1] + "." + e[2]
		ctx.Facts(entity).SideEffects = append(ctx.Facts(entity).SideEffects, "event:"+event)
	}

	return ctx
}

// entityFromWorkflowName pulls the last dash-separated token that looks
// like an entity name ("complete-order" -> "order").
func entityFromWorkflowName(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) == 0 {
		return ""
	}
	return singularize(strings.ToLower(parts[len(parts)-1]))
}
