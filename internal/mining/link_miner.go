package mining

import (
	"regexp"
	"strings"

	"queryforge/internal/models"
)

// LinkMiner extracts cross-entity link declarations of the form:
//
//	export default defineLink(
//	  OrderModule.linkable.order,
//	  ProductModule.linkable.product,
//	)
//
// Each link makes the two entities valid relation expansions of each other.
type LinkMiner struct {
	linkPattern     *regexp.Regexp
	linkablePattern *regexp.Regexp
}

// NewLinkMiner creates the cross-entity link miner.
func NewLinkMiner() *LinkMiner {
	return &LinkMiner{
		linkPattern:     regexp.MustCompile(`defineLink\(([\s\S]*?)\)`),
		linkablePattern: regexp.MustCompile(`\w+\.linkable\.(\w+)`),
	}
}

// Name identifies the miner in logs.
func (m *LinkMiner) Name() string { return "links" }

// Mine records each linked pair as a relation in both directions.
func (m *LinkMiner) Mine(source string) models.MinedContext {
	ctx := make(models.MinedContext)

	for _, link := range m.linkPattern.FindAllStringSubmatch(source, -1) {
		linkables := m.linkablePattern.FindAllStringSubmatch(link[1], -1)
		if len(linkables) < 2 {
			continue
		}
		a := strings.ToLower(linkables[0][1])
		b := strings.ToLower(linkables[1][1])
		if a == "" || b == "" || a == b {
			continue
		}
		ctx.Facts(a).Relations = append(ctx.Facts(a).Relations, b)
		ctx.Facts(b).Relations = append(ctx.Facts(b).Relations, a)
	}

	return ctx
}
