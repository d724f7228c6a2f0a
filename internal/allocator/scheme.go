package allocator

import (
	"fmt"
	"sort"

	"budgetgrid/internal/core"
)

// Tier is one income band of a weighting scheme. A tier applies when the
// monthly income is at most MaxIncomeCents.
type Tier struct {
	MaxIncomeCents int64
	Weights        map[string]float64
}

// Scheme selects category weights by income tier, falling back to Default
// when no tier matches. It lets different income bands carry different
// envelope splits without per-user overrides.
type Scheme struct {
	Tiers   []Tier
	Default map[string]float64
}

// Resolve picks the weight set for the given income: the lowest tier whose
// bound covers the income, else the default set.
func (s Scheme) Resolve(incomeCents int64) (map[string]float64, error) {
	tiers := append([]Tier(nil), s.Tiers...)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MaxIncomeCents < tiers[j].MaxIncomeCents
	})
	for _, t := range tiers {
		if incomeCents <= t.MaxIncomeCents {
			return t.Weights, nil
		}
	}
	if s.Default == nil {
		return nil, &core.ConfigurationError{Reason: fmt.Sprintf("no weight tier covers income %s and no default set", core.FormatCents(incomeCents))}
	}
	return s.Default, nil
}

// Categories merges a resolved weight set with per-category priorities and
// protected floors into the category list the allocator consumes. Priority
// and floor entries for unknown categories are rejected rather than dropped.
func Categories(weights map[string]float64, priorities map[string]int, floors map[string]int64) ([]core.Category, error) {
	for name := range priorities {
		if _, ok := weights[name]; !ok {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("priority for unknown category %q", name)}
		}
	}
	for name := range floors {
		if _, ok := weights[name]; !ok {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("floor for unknown category %q", name)}
		}
	}
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)
	cats := make([]core.Category, 0, len(names))
	for i, name := range names {
		prio, ok := priorities[name]
		if !ok {
			prio = i + 1
		}
		cats = append(cats, core.Category{
			Name:       name,
			Weight:     weights[name],
			Priority:   prio,
			FloorCents: floors[name],
		})
	}
	return cats, nil
}
