// Package engine applies transactions to a budget plan and rebalances
// planned amounts when a day overspends.
//
// Every mutation keeps the conservation invariant: redistribution moves
// planned cents between cells of one category and never changes the
// category's total allocation. When surplus runs out the residual deficit is
// recorded as the category's over_budget state, which is a degraded mode
// rather than an error.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"budgetgrid/internal/core"
	"budgetgrid/internal/status"
)

// SourcePolicy selects the order in which surplus cells donate to a deficit.
// Both policies are deterministic, so replaying the same transactions always
// produces the same grid.
type SourcePolicy string

const (
	// PolicyNearestFirst takes from the nearest future day first, then from
	// the most recent past day. It is the default because it is the easiest
	// order to explain to a user.
	PolicyNearestFirst SourcePolicy = "nearest_first"
	// PolicyLargestFirst takes from the largest surplus first within each
	// direction, with day order as the tie-break.
	PolicyLargestFirst SourcePolicy = "largest_first"
)

// Valid reports whether p names a known policy.
func (p SourcePolicy) Valid() bool {
	return p == PolicyNearestFirst || p == PolicyLargestFirst
}

// Engine records spends and redistributes planned amounts on one plan at a
// time. It holds no plan state itself; callers own the plan and its
// serialization (one writer per user per month).
type Engine struct {
	thresholds status.Thresholds
	policy     SourcePolicy
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the surplus source selection order.
func WithPolicy(p SourcePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithThresholds overrides the status classification thresholds.
func WithThresholds(t status.Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithClock overrides the event timestamp source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine with nearest-first redistribution and default
// thresholds unless options say otherwise.
func New(opts ...Option) *Engine {
	e := &Engine{
		thresholds: status.DefaultThresholds(),
		policy:     PolicyNearestFirst,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordResult reports the outcome of applying one transaction. OverBudget
// distinguishes the degraded-but-successful case from a full success;
// rejected input never reaches a result, it returns a ValidationError and
// leaves the grid unmodified.
type RecordResult struct {
	Cell           *core.DailyPlanCell
	Events         []core.RedistributionEvent
	RecoveredCents int64
	ResidualCents  int64
	OverBudget     bool
}

// Record applies one transaction: locate or lazily create the cell, add the
// amount to spent, reclassify, and cover any resulting deficit from the
// category's surplus.
func (e *Engine) Record(plan *core.BudgetPlan, txn core.Transaction) (*RecordResult, error) {
	if err := txn.Validate(); err != nil {
		return nil, core.WrapValidation("transaction", err)
	}
	if _, ok := plan.Allocations[txn.Category]; !ok {
		return nil, core.NewValidationError("category", fmt.Sprintf("unknown category %q", txn.Category))
	}
	if !plan.ContainsDate(txn.Date) {
		return nil, core.NewValidationError("date",
			fmt.Sprintf("%s is outside plan month %04d-%02d", txn.Date.Key(), plan.Year, plan.Month))
	}

	cell := plan.Cell(txn.Date, txn.Category)
	cell.SpentCents += txn.Amount.Cents

	res := &RecordResult{Cell: cell}
	if deficit := cell.Deficit(); deficit > 0 {
		events, residual, err := e.coverDeficit(plan, cell, core.ReasonDeficitCover)
		if err != nil {
			return nil, err
		}
		res.Events = events
		res.ResidualCents = residual
		res.RecoveredCents = deficit - residual
		// An over-budget cell can take repeat spends; its old uncovered
		// deficit is already part of cell.Deficit(), so the residual is
		// recomputed from the grid rather than accumulated.
		refreshOverBudget(plan, txn.Category)
	}
	res.OverBudget = plan.OverBudget[txn.Category] > 0
	cell.Status = e.thresholds.Classify(cell.PlannedCents, cell.SpentCents)
	return res, nil
}
