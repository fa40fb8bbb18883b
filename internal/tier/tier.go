// Package tier defines subscription tiers, their monthly limits, and the
// feature gates derived from them. Tiers are external configuration
// consumed as data; DefaultLimits can be overridden from a YAML file.
package tier

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/tapcard/contact-search/internal/model"
)

// Name is a subscription tier identifier.
type Name string

const (
	Base       Name = "base"
	Pro        Name = "pro"
	Premium    Name = "premium"
	Business   Name = "business"
	Enterprise Name = "enterprise"
)

var rank = map[Name]int{
	Base:       0,
	Pro:        1,
	Premium:    2,
	Business:   3,
	Enterprise: 4,
}

// Valid reports whether n is a known tier.
func (n Name) Valid() bool {
	_, ok := rank[n]
	return ok
}

// AtLeast reports whether n ranks at or above other. Unknown tiers rank
// below base.
func (n Name) AtLeast(other Name) bool {
	return rank[n] >= rank[other]
}

// Limits holds the monthly quota for one tier. Dollar cost and run counts
// are independent axes.
type Limits struct {
	MaxCostUSD float64 `yaml:"max_cost_usd"`
	MaxRunsAI  int     `yaml:"max_runs_ai"`
	MaxRunsAPI int     `yaml:"max_runs_api"`
}

// Registry maps tier names to limits.
type Registry struct {
	limits map[Name]Limits
}

// DefaultLimits returns the built-in tier table.
func DefaultLimits() map[Name]Limits {
	return map[Name]Limits{
		Base:       {MaxCostUSD: 0.50, MaxRunsAI: 20, MaxRunsAPI: 50},
		Pro:        {MaxCostUSD: 2.00, MaxRunsAI: 100, MaxRunsAPI: 250},
		Premium:    {MaxCostUSD: 5.00, MaxRunsAI: 300, MaxRunsAPI: 750},
		Business:   {MaxCostUSD: 15.00, MaxRunsAI: 1000, MaxRunsAPI: 2500},
		Enterprise: {MaxCostUSD: 50.00, MaxRunsAI: 5000, MaxRunsAPI: 10000},
	}
}

// NewRegistry builds a Registry from the given limits table. Missing tiers
// fall back to the defaults.
func NewRegistry(limits map[Name]Limits) *Registry {
	merged := DefaultLimits()
	for name, l := range limits {
		merged[name] = l
	}
	return &Registry{limits: merged}
}

// LoadRegistry reads tier limit overrides from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tier: read %s", path)
	}
	var overrides map[Name]Limits
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrap(err, "tier: unmarshal limits")
	}
	return NewRegistry(overrides), nil
}

// Limits returns the quota for the given tier. Unknown tiers get the base
// limits.
func (r *Registry) Limits(n Name) Limits {
	if l, ok := r.limits[n]; ok {
		return l
	}
	return r.limits[Base]
}

// Feature gates. Reranking unlocks at premium; the richer rerank document
// fields (notes, message, location, custom details) at business; AI
// grouping at pro.

// CanRerank reports whether the tier may use the reranker.
func CanRerank(n Name) bool { return n.AtLeast(Premium) }

// RichRerankFields reports whether rerank documents include the extended
// contact fields.
func RichRerankFields(n Name) bool { return n.AtLeast(Business) }

// CanAIGrouping reports whether the tier may run AI group generation.
func CanAIGrouping(n Name) bool { return n.AtLeast(Pro) }

// GateRerank returns a FeatureGateError when the tier cannot rerank.
func GateRerank(n Name) error {
	if CanRerank(n) {
		return nil
	}
	return &model.FeatureGateError{Feature: "reranking", Tier: string(n), RequiredTier: string(Premium)}
}

// GateAIGrouping returns a FeatureGateError when the tier cannot run AI
// grouping.
func GateAIGrouping(n Name) error {
	if CanAIGrouping(n) {
		return nil
	}
	return &model.FeatureGateError{Feature: "ai grouping", Tier: string(n), RequiredTier: string(Pro)}
}
