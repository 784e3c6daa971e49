package metering

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultModelKey is the pricing fallback entry used when neither an
// exact nor a prefix match exists for a model name.
const DefaultModelKey = "_default"

// ModelPricing is the per-million-token rate pair for one model.
type ModelPricing struct {
	PromptPerMTok     float64 `yaml:"prompt_per_mtok" json:"prompt_per_mtok"`
	CompletionPerMTok float64 `yaml:"completion_per_mtok" json:"completion_per_mtok"`
}

// PricingTable maps model names (or prefixes) to rates. Lookup order:
// exact name, then the longest prefix entry, then _default, then zero.
type PricingTable struct {
	models map[string]ModelPricing
}

// NewPricingTable builds a table from an in-memory rate map.
func NewPricingTable(models map[string]ModelPricing) *PricingTable {
	if models == nil {
		models = map[string]ModelPricing{}
	}
	return &PricingTable{models: models}
}

// LoadPricingTable reads a YAML rate file:
//
//	gpt-4o:
//	  prompt_per_mtok: 2.50
//	  completion_per_mtok: 10.00
//	_default:
//	  prompt_per_mtok: 1.00
//	  completion_per_mtok: 3.00
func LoadPricingTable(path string) (*PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}
	var models map[string]ModelPricing
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse pricing table: %w", err)
	}
	return NewPricingTable(models), nil
}

// Lookup resolves the rates for model and whether any entry matched.
func (t *PricingTable) Lookup(model string) (ModelPricing, bool) {
	if p, ok := t.models[model]; ok {
		return p, true
	}

	// Longest prefix wins so "gpt-4o-mini" beats "gpt-4o" for
	// "gpt-4o-mini-2024".
	var keys []string
	for k := range t.models {
		if k != DefaultModelKey && strings.HasPrefix(model, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
		return t.models[keys[0]], true
	}

	if p, ok := t.models[DefaultModelKey]; ok {
		return p, true
	}
	return ModelPricing{}, false
}

// Cost prices a usage sample for model. Unknown models cost zero
// rather than failing the call that produced them.
func (t *PricingTable) Cost(model string, usage TokenUsage) CostBreakdown {
	p, ok := t.Lookup(model)
	if !ok {
		return CostBreakdown{}
	}
	c := CostBreakdown{
		PromptCost:     float64(usage.PromptTokens) / 1e6 * p.PromptPerMTok,
		CompletionCost: float64(usage.CompletionTokens) / 1e6 * p.CompletionPerMTok,
	}
	c.TotalCost = c.PromptCost + c.CompletionCost
	return c
}
