package mining

import (
	"regexp"
	"strings"

	"queryforge/internal/models"
)

// RouteMiner extracts API route declarations:
//
//	router.get("/admin/orders", listOrders)
//	router.post("/admin/orders/:id/fulfill", fulfillOrder)
//
// The owning entity is taken from the first path segment after an optional
// /admin or /store prefix, singularized naively (trailing "s" stripped).
type RouteMiner struct {
	routePattern *regexp.Regexp
}

// NewRouteMiner creates the API route miner.
func NewRouteMiner() *RouteMiner {
	return &RouteMiner{
		routePattern: regexp.MustCompile(`router\.(get|post|put|delete|patch)\(\s*["']([^"']+)["']`),
	}
}

// Name identifies the miner in logs.
func (m *RouteMiner) Name() string { return "routes" }

// Mine records "METHOD /path" routes under the entity the path names.
func (m *RouteMiner) Mine(source string) models.MinedContext {
	ctx := make(models.MinedContext)

	for _, r := range m.routePattern.FindAllStringSubmatch(source, -1) {
		method, path := strings.ToUpper(r[1]), r[2]
		entity := entityFromPath(path)
		if entity == "" {
			continue
		}
		ctx.Facts(entity).Routes = append(ctx.Facts(entity).Routes, method+" "+path)
	}

	return ctx
}

// entityFromPath maps /admin/orders/:id -> "order".
func entityFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, seg := range segments {
		if seg == "" || seg == "admin" || seg == "store" {
			continue
		}
		if strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "{") {
			continue
		}
		return singularize(strings.ToLower(seg))
	}
	return ""
}

// singularize strips a plural suffix well enough for route naming
// conventions ("orders" -> "order", "categories" -> "category").
func singularize(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	}
	return s
}
