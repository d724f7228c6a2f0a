// Package status derives on-track / warning / exceeded labels from planned
// vs. spent amounts. Classification is a pure function of the two amounts
// and a threshold configuration, so it can be applied unchanged at cell,
// category and month granularity.
package status

import (
	"fmt"

	"budgetgrid/internal/core"
)

// Thresholds are the spent/planned ratio cut-offs. Below Warning the label
// is on_track, between Warning and Exceeded it is warning, above Exceeded
// it is exceeded. Different income tiers may want different sensitivity, so
// these are injected configuration, never hard-coded call sites.
type Thresholds struct {
	Warning  float64
	Exceeded float64
}

// DefaultThresholds returns the standard 0.9 / 1.1 sensitivity.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.9, Exceeded: 1.1}
}

// Validate rejects threshold pairs that cannot classify consistently.
func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Exceeded <= 0 {
		return &core.ConfigurationError{Reason: "status thresholds must be positive"}
	}
	if t.Warning >= t.Exceeded {
		return &core.ConfigurationError{
			Reason: fmt.Sprintf("warning threshold %.2f must be below exceeded threshold %.2f", t.Warning, t.Exceeded),
		}
	}
	return nil
}

// Classify labels a planned/spent pair. Spending against a zero plan is
// exceeded as soon as a single cent lands; an untouched zero cell is on
// track.
func (t Thresholds) Classify(plannedCents, spentCents int64) core.Status {
	if plannedCents <= 0 {
		if spentCents > 0 {
			return core.StatusExceeded
		}
		return core.StatusOnTrack
	}
	ratio := float64(spentCents) / float64(plannedCents)
	switch {
	case ratio > t.Exceeded:
		return core.StatusExceeded
	case ratio >= t.Warning:
		return core.StatusWarning
	default:
		return core.StatusOnTrack
	}
}

// ClassifyCells aggregates by summing planned and spent over the given
// cells before classifying, which is how category- and month-level labels
// are derived.
func (t Thresholds) ClassifyCells(cells []*core.DailyPlanCell) core.Status {
	var planned, spent int64
	for _, c := range cells {
		planned += c.PlannedCents
		spent += c.SpentCents
	}
	return t.Classify(planned, spent)
}

// ClassifyCategory labels one category of the plan as a whole.
func (t Thresholds) ClassifyCategory(plan *core.BudgetPlan, category string) core.Status {
	return t.Classify(plan.PlannedTotal(category), plan.SpentTotal(category))
}
