package models

// EntityFacts is the output of the context miners for one entity: whatever
// could be extracted from the source artifacts, possibly partial.
type EntityFacts struct {
	Fields      []string            `json:"fields,omitempty"`
	EnumValues  map[string][]string `json:"enum_values,omitempty"`
	Relations   []string            `json:"relations,omitempty"`
	Routes      []string            `json:"routes,omitempty"`
	SideEffects []string            `json:"side_effects,omitempty"`
}

// Merge folds other's facts into f, deduplicating as it goes.
func (f *EntityFacts) Merge(other *EntityFacts) {
	if other == nil {
		return
	}
	f.Fields = mergeStrings(f.Fields, other.Fields)
	f.Relations = mergeStrings(f.Relations, other.Relations)
	f.Routes = mergeStrings(f.Routes, other.Routes)
	f.SideEffects = mergeStrings(f.SideEffects, other.SideEffects)
	if len(other.EnumValues) > 0 {
		if f.EnumValues == nil {
			f.EnumValues = make(map[string][]string)
		}
		for field, values := range other.EnumValues {
			f.EnumValues[field] = mergeStrings(f.EnumValues[field], values)
		}
	}
}

func mergeStrings(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}

// MinedContext maps entity name to the facts extracted for it.
type MinedContext map[string]*EntityFacts

// Facts returns the facts for entity, creating an empty entry if needed.
func (c MinedContext) Facts(entity string) *EntityFacts {
	if f, ok := c[entity]; ok {
		return f
	}
	f := &EntityFacts{}
	c[entity] = f
	return f
}

// Merge folds another mined context into this one.
func (c MinedContext) Merge(other MinedContext) {
	for entity, facts := range other {
		c.Facts(entity).Merge(facts)
	}
}
