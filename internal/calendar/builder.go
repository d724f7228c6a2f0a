// Package calendar expands category envelopes into per-day planned amounts.
//
// Distribution reuses the allocator's largest-remainder method so a freshly
// built category grid sums to its allocation exactly. Rebuilds are safe
// mid-month: days before the rebuild date are frozen history and keep both
// their planned and spent amounts.
package calendar

import (
	"fmt"
	"math"
	"time"

	"budgetgrid/internal/core"
)

// DayWeights is an optional day-of-week profile, e.g. a higher weekend
// allowance for discretionary categories. Missing weekdays count as 1.0.
type DayWeights map[time.Weekday]float64

func (w DayWeights) weightFor(d core.Date) float64 {
	if w == nil {
		return 1.0
	}
	v, ok := w[d.Weekday()]
	if !ok {
		return 1.0
	}
	return v
}

// Validate rejects negative weights and profiles that zero out every day.
func (w DayWeights) Validate() error {
	if w == nil {
		return nil
	}
	allZero := true
	for wd, v := range w {
		if v < 0 {
			return &core.ConfigurationError{Reason: fmt.Sprintf("negative day weight for %s", wd)}
		}
		if v > 0 {
			allZero = false
		}
	}
	if allZero && len(w) == 7 {
		return &core.ConfigurationError{Reason: "day weight profile zeroes out every weekday"}
	}
	return nil
}

// BuildCategory derives planned amounts for one category from the given date
// through month end. On first build `from` is the user's start day (day 1
// for a full month, later for partial-month onboarding). On a rebuild, cells
// before `from` keep their planned and spent amounts untouched and only the
// not-yet-frozen remainder of the allocation is redistributed.
func BuildCategory(plan *core.BudgetPlan, category string, from core.Date, weights DayWeights) error {
	alloc, ok := plan.Allocations[category]
	if !ok {
		return core.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	if err := weights.Validate(); err != nil {
		return err
	}
	if from.Year() != plan.Year || from.Month() != plan.Month {
		return core.NewValidationError("from", "date outside the plan's month")
	}

	lastDay := core.DaysInMonth(plan.Year, plan.Month)

	// Frozen history: planned cents already committed to days before `from`.
	var frozen int64
	for day := 1; day < from.Day(); day++ {
		if c, ok := plan.CellIfExists(core.NewDate(plan.Year, plan.Month, day), category); ok {
			frozen += c.PlannedCents
		}
	}
	remaining := alloc - frozen
	if remaining < 0 {
		return &core.ConfigurationError{
			Reason: fmt.Sprintf("allocation %s for %q is below the frozen planned total %s",
				core.FormatCents(alloc), category, core.FormatCents(frozen)),
		}
	}

	days := make([]core.Date, 0, lastDay-from.Day()+1)
	for day := from.Day(); day <= lastDay; day++ {
		days = append(days, core.NewDate(plan.Year, plan.Month, day))
	}

	var totalWeight float64
	for _, d := range days {
		totalWeight += weights.weightFor(d)
	}
	if totalWeight <= 0 {
		return &core.ConfigurationError{Reason: fmt.Sprintf("day weight profile leaves no weight for the remaining days of %q", category)}
	}

	// Largest-remainder distribution over the remaining days; ties go to the
	// earlier day, keeping rebuilds deterministic.
	planned := make([]int64, len(days))
	fracs := make([]float64, len(days))
	var assigned int64
	for i, d := range days {
		exact := float64(remaining) * weights.weightFor(d) / totalWeight
		planned[i] = int64(math.Floor(exact))
		fracs[i] = exact - float64(planned[i])
		assigned += planned[i]
	}
	for leftover := remaining - assigned; leftover > 0; leftover-- {
		best := -1
		for i := range days {
			if best == -1 || fracs[i] > fracs[best] {
				best = i
			}
		}
		planned[best]++
		fracs[best] = -1
	}

	for i, d := range days {
		cell := plan.Cell(d, category)
		cell.PlannedCents = planned[i]
	}
	return plan.CheckConservation(category)
}

// Build derives the full grid for every category in the plan, applying the
// matching day-weight profile where one is configured.
func Build(plan *core.BudgetPlan, from core.Date, profiles map[string]DayWeights) error {
	for _, cat := range plan.Categories {
		if err := BuildCategory(plan, cat.Name, from, profiles[cat.Name]); err != nil {
			return fmt.Errorf("build %q: %w", cat.Name, err)
		}
	}
	return nil
}
