package groups

import (
	"github.com/tapcard/contact-search/internal/model"
)

// DefaultMaxGroups caps how many groups a single generation run may
// produce.
const DefaultMaxGroups = 15

// Dedupe removes groups with duplicate case-insensitive trimmed names.
// Later entries win, so an AI-refined group replaces an earlier rules-based
// one with the same name. Relative order of the surviving groups follows
// their first appearance.
func Dedupe(in []model.Group) []model.Group {
	chosen := make(map[string]model.Group, len(in))
	order := make([]string, 0, len(in))
	for _, g := range in {
		key := g.NormalizedName()
		if key == "" {
			continue
		}
		if _, seen := chosen[key]; !seen {
			order = append(order, key)
		}
		g.ContactIDs = model.DedupeContactIDs(g.ContactIDs)
		chosen[key] = g
	}

	out := make([]model.Group, 0, len(order))
	for _, key := range order {
		out = append(out, chosen[key])
	}
	return out
}

// Cap truncates groups to at most limit entries, preserving order. A
// non-positive limit applies the default.
func Cap(in []model.Group, limit int) []model.Group {
	if limit <= 0 {
		limit = DefaultMaxGroups
	}
	if len(in) <= limit {
		return in
	}
	return in[:limit]
}
