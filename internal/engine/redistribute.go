package engine

import (
	"fmt"
	"sort"

	"budgetgrid/internal/core"
)

// coverDeficit transfers planned cents from the category's surplus cells to
// the target cell until its deficit is covered or surplus runs out. It
// returns the audit events, one per source cell touched, and the residual
// deficit that could not be covered.
//
// Source order per policy: future days before past days in both policies;
// nearest-first walks outward from the target, largest-first prefers the
// biggest donors. A source is never pulled below its own spent amount nor
// below the category's protected floor, so covering one deficit can never
// create another.
func (e *Engine) coverDeficit(plan *core.BudgetPlan, target *core.DailyPlanCell, reason string) ([]core.RedistributionEvent, int64, error) {
	deficit := target.Deficit()
	if deficit == 0 {
		return nil, 0, nil
	}

	cat, _ := plan.CategoryByName(target.Category)
	before := plan.PlannedTotal(target.Category)

	sources := e.orderedSources(plan, target)

	var events []core.RedistributionEvent
	remaining := deficit
	for _, src := range sources {
		if remaining == 0 {
			break
		}
		avail := available(src, cat.FloorCents)
		if avail <= 0 {
			continue
		}
		take := remaining
		if avail < take {
			take = avail
		}
		src.PlannedCents -= take
		target.PlannedCents += take
		remaining -= take

		// Each transfer is its own audit record, appended before the next
		// source is considered, so the whole operation reads as a sequence
		// of small reversible steps.
		events = append(events, core.RedistributionEvent{
			ID:          e.newID(),
			Category:    target.Category,
			SourceDate:  src.Date,
			TargetDate:  target.Date,
			AmountCents: take,
			Reason:      reason,
			At:          e.now(),
		})
		src.Status = e.thresholds.Classify(src.PlannedCents, src.SpentCents)
	}

	if after := plan.PlannedTotal(target.Category); after != before {
		return nil, 0, fmt.Errorf("redistribution drift for %q: planned total %d -> %d", target.Category, before, after)
	}
	if err := plan.CheckConservation(target.Category); err != nil {
		return nil, 0, err
	}
	return events, remaining, nil
}

// available is how much planned a source cell can donate: its planned
// amount minus whatever protects it (its own spend, and the category floor
// if one is configured).
func available(c *core.DailyPlanCell, floorCents int64) int64 {
	protected := c.SpentCents
	if floorCents > protected {
		protected = floorCents
	}
	avail := c.PlannedCents - protected
	if avail < 0 {
		return 0
	}
	return avail
}

// orderedSources returns the category's other cells in donation order for
// the configured policy. All existing cells of the month participate; days
// the calendar never built (possible only before a grid exists) simply have
// nothing to give.
func (e *Engine) orderedSources(plan *core.BudgetPlan, target *core.DailyPlanCell) []*core.DailyPlanCell {
	var future, past []*core.DailyPlanCell
	for _, c := range plan.CategoryCells(target.Category) {
		switch {
		case c.Date.Equal(target.Date.Time):
			// never donate to yourself
		case c.Date.After(target.Date.Time):
			future = append(future, c)
		default:
			past = append(past, c)
		}
	}

	switch e.policy {
	case PolicyLargestFirst:
		sort.SliceStable(future, func(i, j int) bool {
			si, sj := future[i].Surplus(), future[j].Surplus()
			if si != sj {
				return si > sj
			}
			return future[i].Date.Before(future[j].Date.Time)
		})
		sort.SliceStable(past, func(i, j int) bool {
			si, sj := past[i].Surplus(), past[j].Surplus()
			if si != sj {
				return si > sj
			}
			return past[i].Date.After(past[j].Date.Time)
		})
	default: // PolicyNearestFirst
		// CategoryCells is date-ascending: future is already nearest-first,
		// past needs flipping to most-recent-first.
		for i, j := 0, len(past)-1; i < j; i, j = i+1, j-1 {
			past[i], past[j] = past[j], past[i]
		}
	}
	return append(future, past...)
}

// refreshOverBudget sets the category's over-budget residual to the sum of
// its remaining cell deficits, clearing the entry when nothing is uncovered.
func refreshOverBudget(plan *core.BudgetPlan, category string) {
	var residual int64
	for _, c := range plan.CategoryCells(category) {
		residual += c.Deficit()
	}
	if residual > 0 {
		plan.OverBudget[category] = residual
	} else {
		delete(plan.OverBudget, category)
	}
}

// MonthResult reports a manual full-month redistribution pass.
type MonthResult struct {
	Events    []core.RedistributionEvent
	Residuals map[string]int64
}

// RedistributeMonth is the user-triggered entry point: it re-runs the
// per-deficit-cell logic for every currently deficit cell in the month, in
// date order (category name breaks same-day ties). Over-budget residuals are
// recomputed from scratch, so surplus that appeared since the flag was set
// (an income increase, say) clears stale flags.
func (e *Engine) RedistributeMonth(plan *core.BudgetPlan) (*MonthResult, error) {
	var deficits []*core.DailyPlanCell
	for _, c := range plan.Cells {
		if c.Deficit() > 0 {
			deficits = append(deficits, c)
		}
	}
	sort.Slice(deficits, func(i, j int) bool {
		if !deficits[i].Date.Equal(deficits[j].Date.Time) {
			return deficits[i].Date.Before(deficits[j].Date.Time)
		}
		return deficits[i].Category < deficits[j].Category
	})

	res := &MonthResult{Residuals: make(map[string]int64)}
	for _, cell := range deficits {
		events, residual, err := e.coverDeficit(plan, cell, core.ReasonManualRebalance)
		if err != nil {
			return nil, err
		}
		res.Events = append(res.Events, events...)
		if residual > 0 {
			res.Residuals[cell.Category] += residual
		}
		cell.Status = e.thresholds.Classify(cell.PlannedCents, cell.SpentCents)
	}

	for name := range plan.OverBudget {
		delete(plan.OverBudget, name)
	}
	for name, residual := range res.Residuals {
		plan.OverBudget[name] = residual
	}
	return res, nil
}
