package planner

import (
	"fmt"
	"sort"
	"strings"

	"queryforge/internal/models"
	"queryforge/internal/plancache"
)

// systemPrompt teaches the model the plan schema and the canonical query
// patterns. The examples are deliberately small and cover the shapes that
// matter: plain listing, name search, two-step resolution through an
// extracted id, filtering without pagination, and fetching linked data.
const systemPrompt = `You are a query planner for a data retrieval system. Given a user query and the available entity schemas, produce a JSON object describing a multi-step retrieval plan.

Output format (JSON only, no prose):
{
  "steps": [
    {
      "step": 1,
      "entity": "<entity name>",
      "operation": "list" | "retrieve" | "listAndCount",
      "filters": { "<field>": <value or "$N" or "$N.field"> },
      "relations": ["<relation>", ...],
      "extract": "<field to extract for later steps, optional>"
    }
  ],
  "finalEntity": "<entity whose data answers the query>",
  "explanation": "<one sentence>"
}

Rules:
- Steps are numbered from 1 and run in order.
- "$N" references the first result of step N; "$N.field" references one of its fields. A step may only reference earlier steps.
- Use "extract" on a step whose only purpose is to produce a value for a later step.
- Never put pagination (limit, offset, page, pageSize, take, skip) in filters.
- Only use relations listed in the entity schema.

Patterns:

1. Simple list — "show all products":
{"steps":[{"step":1,"entity":"product","operation":"list","filters":{}}],"finalEntity":"product","explanation":"List all products."}

2. Name search — "find the customer Jane Doe":
{"steps":[{"step":1,"entity":"customer","operation":"list","filters":{"q":"Jane Doe"}}],"finalEntity":"customer","explanation":"Search customers by name."}

3. Two-step resolution — "show orders for customer John Smith":
{"steps":[{"step":1,"entity":"customer","operation":"list","filters":{"q":"John Smith"},"extract":"id"},{"step":2,"entity":"order","operation":"list","filters":{"customer_id":"$1"}}],"finalEntity":"order","explanation":"Find the customer, then list their orders."}

4. Filter without pagination — "count completed orders":
{"steps":[{"step":1,"entity":"order","operation":"listAndCount","filters":{"status":"completed"}}],"finalEntity":"order","explanation":"Count orders with status completed."}

5. Linked data — "show the order 123 with its items":
{"steps":[{"step":1,"entity":"order","operation":"retrieve","filters":{"id":"123"},"relations":["items"]}],"finalEntity":"order","explanation":"Fetch the order and include its line items."}`

// promptContext is everything gathered concurrently before prompt assembly.
type promptContext struct {
	descriptors map[string]*models.EntityDescriptor
	mined       models.MinedContext
	examples    []models.CacheMatch
	failures    []models.FailureMatch
	snippets    []plancache.Snippet
}

// buildUserPrompt assembles the per-query prompt: entity schemas, mined
// facts, retrieved worked examples, past failures to avoid, documentation
// snippets, and finally the query itself.
func buildUserPrompt(query string, pc *promptContext) string {
	var b strings.Builder

	b.WriteString("## Entity schemas\n\n")
	names := make([]string, 0, len(pc.descriptors))
	for name := range pc.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		describeEntity(&b, pc.descriptors[name])
	}

	if facts := describeMinedContext(pc.mined); facts != "" {
		b.WriteString("\n## Codebase facts\n\n")
		b.WriteString(facts)
	}

	if len(pc.examples) > 0 {
		b.WriteString("\n## Plans that worked for similar queries\n\n")
		for _, m := range pc.examples {
			fmt.Fprintf(&b, "Query: %s\nPlan: %s\n\n", m.Record.Query, m.Record.PlanJSON)
		}
	}

	if len(pc.failures) > 0 {
		b.WriteString("\n## Similar queries that failed (avoid these mistakes)\n\n")
		for _, m := range pc.failures {
			fmt.Fprintf(&b, "Query: %s\nError: %s — %s\n", m.Record.Query, m.Record.ErrorCode, m.Record.ErrorMessage)
			if m.Record.SuggestedFix != "" {
				fmt.Fprintf(&b, "Fix: %s\n", m.Record.SuggestedFix)
			}
			b.WriteString("\n")
		}
	}

	if len(pc.snippets) > 0 {
		b.WriteString("\n## Documentation\n\n")
		for _, s := range pc.snippets {
			fmt.Fprintf(&b, "### %s\n%s\n\n", s.Title, s.Text)
		}
	}

	b.WriteString("\n## Query\n\n")
	b.WriteString(query)
	b.WriteString("\n\nRespond with the plan JSON only.")
	return b.String()
}

func describeEntity(b *strings.Builder, d *models.EntityDescriptor) {
	fmt.Fprintf(b, "### %s (%s, access: %s)\n", d.Name, d.Category, d.AccessMethod)
	if len(d.Relations) > 0 {
		fmt.Fprintf(b, "- relations: %s\n", strings.Join(d.Relations, ", "))
	}
	if len(d.FilterableFields) > 0 {
		fmt.Fprintf(b, "- filterable fields: %s\n", strings.Join(d.FilterableFields, ", "))
	}
	for field, values := range d.EnumFields {
		fmt.Fprintf(b, "- %s is one of: %s\n", field, strings.Join(values, ", "))
	}
	for field, ref := range d.ResolvableRefs {
		fmt.Fprintf(b, "- %s resolves via %s (search by %s)\n", field, ref.Entity, strings.Join(ref.SearchBy, ", "))
	}
	b.WriteString("\n")
}

func describeMinedContext(mined models.MinedContext) string {
	if len(mined) == 0 {
		return ""
	}
	var b strings.Builder
	names := make([]string, 0, len(mined))
	for name := range mined {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		facts := mined[name]
		var parts []string
		if len(facts.Relations) > 0 {
			parts = append(parts, "relations "+strings.Join(facts.Relations, ", "))
		}
		if len(facts.Fields) > 0 {
			parts = append(parts, "fields "+strings.Join(facts.Fields, ", "))
		}
		for field, values := range facts.EnumValues {
			parts = append(parts, fmt.Sprintf("%s in {%s}", field, strings.Join(values, ", ")))
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", name, strings.Join(parts, "; "))
		}
	}
	return b.String()
}
