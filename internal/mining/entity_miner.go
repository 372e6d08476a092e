package mining

import (
	"regexp"
	"strings"

	"queryforge/internal/models"
)

// EntityMiner extracts entity definitions from model source files of the
// form:
//
//	const Order = model.define("order", {
//	  id: model.id(),
//	  status: model.enum(["pending", "completed", "canceled"]),
//	  items: model.hasMany(() => OrderItem),
//	  customer: model.belongsTo(() => Customer),
//	})
//
// Fields, enum values, and relation-bearing fields are recognized by
// pattern; anything it cannot match is silently skipped.
type EntityMiner struct {
	defPattern   *regexp.Regexp
	fieldPattern *regexp.Regexp
	enumPattern  *regexp.Regexp
}

var relationKinds = map[string]bool{
	"hasmany":      true,
	"hasone":       true,
	"belongsto":    true,
	"manytomany":   true,
	"relationship": true,
}

// NewEntityMiner creates the entity definition miner.
func NewEntityMiner() *EntityMiner {
	return &EntityMiner{
		defPattern:   regexp.MustCompile(`model\.define\(\s*["'](\w+)["']\s*,\s*\{`),
		fieldPattern: regexp.MustCompile(`(?m)^\s*(\w+)\s*:\s*model\.(\w+)\s*\(`),
		enumPattern:  regexp.MustCompile(`(?m)^\s*(\w+)\s*:\s*model\.enum\s*\(\s*\[([^\]]*)\]`),
	}
}

// Name identifies the miner in logs.
func (m *EntityMiner) Name() string { return "entities" }

// Mine extracts fields, enum values, and relation names per entity.
func (m *EntityMiner) Mine(source string) models.MinedContext {
	ctx := make(models.MinedContext)

	defs := m.defPattern.FindAllStringSubmatchIndex(source, -1)
	for i, def := range defs {
		entity := source[def[2]:def[3]]

		// The definition body runs from this match to the next define (or EOF).
		// Brace matching is overkill for fact extraction.
		start := def[1]
		end := len(source)
		if i+1 < len(defs) {
			end = defs[i+1][0]
		}
		body := source[start:end]

		facts := ctx.Facts(entity)

		for _, f := range m.fieldPattern.FindAllStringSubmatch(body, -1) {
			field, kind := f[1], strings.ToLower(f[2])
			if relationKinds[kind] {
				facts.Relations = append(facts.Relations, field)
				continue
			}
			facts.Fields = append(facts.Fields, field)
		}

		for _, e := range m.enumPattern.FindAllStringSubmatch(body, -1) {
			field := e[1]
			if facts.EnumValues == nil {
				facts.EnumValues = make(map[string][]string)
			}
			facts.EnumValues[field] = splitQuotedList(e[2])
		}
	}

	return ctx
}

// splitQuotedList parses `"a", "b", 'c'` into ["a", "b", "c"].
func splitQuotedList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		v := strings.Trim(strings.TrimSpace(part), `"'`)
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}
