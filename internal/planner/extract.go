package planner

import "strings"

// extractJSON pulls the JSON object out of a model response, tolerating
// markdown code fences and surrounding prose. Models wrap output in
// ```json fences often enough that this is the common path, not an edge
// case.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	// Strip markdown code fences if present
	if strings.Contains(response, "```") {
		start := strings.Index(response, "```")
		rest := response[start+3:]
		if strings.HasPrefix(rest, "json") {
			rest = rest[4:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		response = strings.TrimSpace(rest)
	}

	// Trim any prose before the first brace and after the last
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last == -1 || last < first {
		return response
	}
	return response[first : last+1]
}
