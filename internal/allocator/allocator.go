// Package allocator splits monthly income into per-category envelopes.
//
// The split uses the largest-remainder method: each category gets its weight
// share truncated to whole cents, then the leftover cents are handed out one
// at a time to the categories with the largest fractional remainder. The
// result always sums to the income exactly, not approximately.
package allocator

import (
	"fmt"
	"math"
	"sort"

	"budgetgrid/internal/core"
)

// WeightSumTolerance is how far the category weights may drift from 1.0
// before the set is rejected outright. Silently normalizing would mask
// upstream bugs.
const WeightSumTolerance = 0.001

// Allocate splits incomeCents across the given categories by weight.
// Ties on fractional remainder are broken by priority rank (lower wins),
// then by name, so the assignment is deterministic.
func Allocate(incomeCents int64, categories []core.Category) (map[string]int64, error) {
	if incomeCents <= 0 {
		return nil, core.WrapValidation("income", core.ErrInvalidAmount)
	}
	if len(categories) == 0 {
		return nil, &core.ConfigurationError{Reason: "no categories configured"}
	}

	seen := make(map[string]bool, len(categories))
	var weightSum float64
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("category %q: %v", c.Name, err)}
		}
		if seen[c.Name] {
			return nil, &core.ConfigurationError{Reason: fmt.Sprintf("duplicate category %q", c.Name)}
		}
		seen[c.Name] = true
		weightSum += c.Weight
	}
	if math.Abs(weightSum-1.0) > WeightSumTolerance {
		return nil, &core.ConfigurationError{
			Reason: fmt.Sprintf("category weights sum to %.4f, want 1.0 (±%.3f)", weightSum, WeightSumTolerance),
		}
	}

	type share struct {
		cat   core.Category
		cents int64
		frac  float64
	}
	shares := make([]share, len(categories))
	var assigned int64
	for i, c := range categories {
		exact := float64(incomeCents) * c.Weight
		cents := int64(math.Floor(exact))
		shares[i] = share{cat: c, cents: cents, frac: exact - float64(cents)}
		assigned += cents
	}

	// Hand out the remainder one cent at a time, largest fraction first.
	leftover := incomeCents - assigned
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := shares[order[a]], shares[order[b]]
		if sa.frac != sb.frac {
			return sa.frac > sb.frac
		}
		if sa.cat.Priority != sb.cat.Priority {
			return sa.cat.Priority < sb.cat.Priority
		}
		return sa.cat.Name < sb.cat.Name
	})
	for i := int64(0); i < leftover; i++ {
		shares[order[i%int64(len(order))]].cents++
	}

	out := make(map[string]int64, len(shares))
	var total int64
	for _, s := range shares {
		out[s.cat.Name] = s.cents
		total += s.cents
	}
	if total != incomeCents {
		// Unreachable with integer cents; kept as a hard guard on the invariant.
		return nil, fmt.Errorf("allocation drift: assigned %d of %d cents", total, incomeCents)
	}
	return out, nil
}
