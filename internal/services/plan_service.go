// Package services orchestrates the engine components around a plan store:
// creating and reallocating plans, applying transactions, manual
// redistribution and month snapshots. All writes for one user's month go
// through the store's version compare-and-swap, which serializes them.
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"budgetgrid/internal/allocator"
	"budgetgrid/internal/amqp"
	"budgetgrid/internal/anomaly"
	"budgetgrid/internal/cache"
	"budgetgrid/internal/calendar"
	"budgetgrid/internal/core"
	"budgetgrid/internal/engine"
	"budgetgrid/internal/log"
	"budgetgrid/internal/status"
)

// PlanService coordinates allocator, calendar, engine, detector, store and
// publisher. The publisher and snapshot cache are optional; with a nil
// publisher the service runs local-only and callers read everything from
// the store.
type PlanService struct {
	store      PlanStore
	publisher  EventPublisher
	engine     *engine.Engine
	detector   *anomaly.Detector
	thresholds status.Thresholds
	snapshots  *cache.SnapshotCache
	logger     *log.Logger
	now        func() time.Time
}

// Option configures a PlanService.
type Option func(*PlanService)

// WithPublisher sets the outbound event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(s *PlanService) { s.publisher = p }
}

// WithEngine overrides the redistribution engine.
func WithEngine(e *engine.Engine) Option {
	return func(s *PlanService) { s.engine = e }
}

// WithDetector overrides the anomaly detector.
func WithDetector(d *anomaly.Detector) Option {
	return func(s *PlanService) { s.detector = d }
}

// WithThresholds overrides the status thresholds used for snapshots.
func WithThresholds(t status.Thresholds) Option {
	return func(s *PlanService) { s.thresholds = t }
}

// WithSnapshotCache enables snapshot caching.
func WithSnapshotCache(c *cache.SnapshotCache) Option {
	return func(s *PlanService) { s.snapshots = c }
}

// WithLogger overrides the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *PlanService) { s.logger = l }
}

// NewPlanService creates a service around the given store.
func NewPlanService(store PlanStore, opts ...Option) *PlanService {
	s := &PlanService{
		store:      store,
		engine:     engine.New(),
		detector:   anomaly.NewDetector(anomaly.DefaultConfig()),
		thresholds: status.DefaultThresholds(),
		logger:     log.New(log.DefaultConfig()).WithComponent(log.ComponentPlan),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePlan allocates income across the categories, builds the day grid
// from startDay (startDay > 1 is partial-month onboarding) and persists the
// new plan.
func (s *PlanService) CreatePlan(ctx context.Context, userID string, year, month int, incomeCents int64, startDay int, categories []core.Category, profiles map[string]calendar.DayWeights) (*core.BudgetPlan, error) {
	if userID == "" {
		return nil, core.NewValidationError("user_id", "empty user id")
	}
	if month < 1 || month > 12 {
		return nil, core.NewValidationError("month", fmt.Sprintf("invalid month %d", month))
	}
	if startDay < 1 || startDay > core.DaysInMonth(year, month) {
		return nil, core.NewValidationError("start_day", fmt.Sprintf("invalid start day %d", startDay))
	}

	allocations, err := allocator.Allocate(incomeCents, categories)
	if err != nil {
		return nil, err
	}
	plan := core.NewBudgetPlan(userID, year, month, incomeCents, categories)
	plan.Allocations = allocations
	if err := calendar.Build(plan, core.NewDate(year, month, startDay), profiles); err != nil {
		return nil, err
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	s.logger.InfoContext(ctx, "Plan created",
		log.FieldUserID, userID,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldAmountCents, incomeCents,
		"categories", len(categories),
		"start_day", startDay)
	return plan, nil
}

// RecordTransaction applies one transaction to the user's plan for the
// transaction's month: spend recording, deficit redistribution, anomaly
// scoring, persistence and event publication. A stale plan version surfaces
// as core.ConflictError; callers re-read and retry.
func (s *PlanService) RecordTransaction(ctx context.Context, userID string, txn core.Transaction) (*engine.RecordResult, anomaly.Flag, error) {
	var noFlag anomaly.Flag
	if err := txn.Validate(); err != nil {
		return nil, noFlag, core.WrapValidation("transaction", err)
	}

	plan, err := s.store.GetPlan(ctx, userID, txn.Date.Year(), txn.Date.Month())
	if err != nil {
		return nil, noFlag, fmt.Errorf("load plan: %w", err)
	}
	expectedVersion := plan.Version

	res, err := s.engine.Record(plan, txn)
	if err != nil {
		return nil, noFlag, err
	}
	if err := s.store.UpdatePlan(ctx, plan, expectedVersion, res.Events); err != nil {
		return nil, noFlag, err
	}

	// Score only after the write committed, otherwise a conflict retry
	// would feed the same sample into the window twice.
	flag := s.detector.Observe(userID, txn)

	s.invalidateSnapshot(plan)
	s.publishRecord(ctx, plan, res, flag)

	s.logger.InfoContext(ctx, "Transaction recorded",
		log.FieldUserID, userID,
		log.FieldTxnID, txn.ID,
		log.FieldCategory, txn.Category,
		log.FieldAmountCents, txn.Amount.Cents,
		log.FieldStatus, string(res.Cell.Status),
		log.FieldEvents, len(res.Events),
		log.FieldResidual, res.ResidualCents,
		log.FieldPlanVersion, plan.Version)
	return res, flag, nil
}

// Redistribute is the manual "redistribute" action: re-cover every deficit
// cell of the month in date order.
func (s *PlanService) Redistribute(ctx context.Context, userID string, year, month int) (*engine.MonthResult, error) {
	plan, err := s.store.GetPlan(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	expectedVersion := plan.Version

	res, err := s.engine.RedistributeMonth(plan)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdatePlan(ctx, plan, expectedVersion, res.Events); err != nil {
		return nil, err
	}
	s.invalidateSnapshot(plan)
	s.publishEvents(ctx, plan, res.Events)

	s.logger.InfoContext(ctx, "Manual redistribution finished",
		log.FieldUserID, userID,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldEvents, len(res.Events),
		"residual_categories", len(res.Residuals))
	return res, nil
}

// Reallocate applies an income change: re-split income with the plan's own
// categories and rebuild planned amounts from the given date forward. Days
// before it are frozen history.
func (s *PlanService) Reallocate(ctx context.Context, userID string, year, month int, incomeCents int64, from core.Date, profiles map[string]calendar.DayWeights) (*core.BudgetPlan, error) {
	plan, err := s.store.GetPlan(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	expectedVersion := plan.Version

	allocations, err := allocator.Allocate(incomeCents, plan.Categories)
	if err != nil {
		return nil, err
	}
	plan.IncomeCents = incomeCents
	plan.Allocations = allocations
	if err := calendar.Build(plan, from, profiles); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePlan(ctx, plan, expectedVersion, nil); err != nil {
		return nil, err
	}
	s.invalidateSnapshot(plan)

	s.logger.InfoContext(ctx, "Plan reallocated",
		log.FieldUserID, userID,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldAmountCents, incomeCents,
		log.FieldDate, from.Key(),
		log.FieldPlanVersion, plan.Version)
	return plan, nil
}

// Events returns the month's redistribution audit log.
func (s *PlanService) Events(ctx context.Context, userID string, year, month int) ([]core.RedistributionEvent, error) {
	return s.store.ListEvents(ctx, userID, year, month)
}

// MonthSnapshot returns the classified day/category/month view of a plan,
// served from cache when the plan version has not moved.
func (s *PlanService) MonthSnapshot(ctx context.Context, userID string, year, month int) (core.MonthSnapshot, error) {
	plan, err := s.store.GetPlan(ctx, userID, year, month)
	if err != nil {
		return core.MonthSnapshot{}, fmt.Errorf("load plan: %w", err)
	}

	key := cache.Key(userID, year, month)
	if s.snapshots != nil {
		if snap, ok := s.snapshots.Get(key, plan.Version); ok {
			return snap, nil
		}
	}
	snap := s.buildSnapshot(plan)
	if s.snapshots != nil {
		s.snapshots.Put(key, plan.Version, snap)
	}
	return snap, nil
}

func (s *PlanService) buildSnapshot(plan *core.BudgetPlan) core.MonthSnapshot {
	snap := core.MonthSnapshot{
		UserID:      plan.UserID,
		Year:        plan.Year,
		Month:       plan.Month,
		Version:     plan.Version,
		IncomeCents: plan.IncomeCents,
	}

	names := make([]string, 0, len(plan.Categories))
	for _, cat := range plan.Categories {
		names = append(names, cat.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		cells := plan.CategoryCells(name)
		catSnap := core.CategorySnapshot{
			Name:            name,
			AllocationCents: plan.Allocations[name],
			ResidualCents:   plan.OverBudget[name],
			OverBudget:      plan.OverBudget[name] > 0,
		}
		for _, cell := range cells {
			catSnap.PlannedCents += cell.PlannedCents
			catSnap.SpentCents += cell.SpentCents
			catSnap.Days = append(catSnap.Days, core.CellSnapshot{
				Date:         cell.Date,
				Category:     cell.Category,
				PlannedCents: cell.PlannedCents,
				SpentCents:   cell.SpentCents,
				Status:       cell.Status,
			})
		}
		catSnap.Status = s.thresholds.Classify(catSnap.PlannedCents, catSnap.SpentCents)
		snap.PlannedCents += catSnap.PlannedCents
		snap.SpentCents += catSnap.SpentCents
		snap.Categories = append(snap.Categories, catSnap)
	}
	snap.Status = s.thresholds.Classify(snap.PlannedCents, snap.SpentCents)
	return snap
}

func (s *PlanService) invalidateSnapshot(plan *core.BudgetPlan) {
	if s.snapshots != nil {
		s.snapshots.Invalidate(cache.Key(plan.UserID, plan.Year, plan.Month))
	}
}

// publishRecord emits the updated cell, its audit events and any anomaly
// flag. Publish failures are logged and do not fail the operation; the
// grid is already committed.
func (s *PlanService) publishRecord(ctx context.Context, plan *core.BudgetPlan, res *engine.RecordResult, flag anomaly.Flag) {
	if s.publisher == nil {
		return
	}
	msg := amqp.CellUpdateMessage{
		UserID:       plan.UserID,
		Date:         res.Cell.Date.Key(),
		Category:     res.Cell.Category,
		PlannedCents: res.Cell.PlannedCents,
		SpentCents:   res.Cell.SpentCents,
		Status:       string(res.Cell.Status),
		OverBudget:   res.OverBudget,
		PlanVersion:  plan.Version,
		Timestamp:    s.now(),
	}
	if err := s.publisher.PublishCellUpdate(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish cell update", log.FieldError, err)
	}
	s.publishEvents(ctx, plan, res.Events)
	if flag.Severity != anomaly.SeverityNone {
		am := amqp.AnomalyMessage{
			TransactionID: flag.TransactionID,
			UserID:        flag.UserID,
			Category:      flag.Category,
			ZScore:        flag.ZScore,
			Severity:      string(flag.Severity),
			Timestamp:     s.now(),
		}
		if err := s.publisher.PublishAnomaly(ctx, am); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish anomaly flag", log.FieldError, err)
		}
	}
}

func (s *PlanService) publishEvents(ctx context.Context, plan *core.BudgetPlan, events []core.RedistributionEvent) {
	if s.publisher == nil {
		return
	}
	for _, ev := range events {
		msg := amqp.RedistributionMessage{
			ID:          ev.ID,
			UserID:      plan.UserID,
			Year:        plan.Year,
			Month:       plan.Month,
			Category:    ev.Category,
			SourceDate:  ev.SourceDate.Key(),
			TargetDate:  ev.TargetDate.Key(),
			AmountCents: ev.AmountCents,
			Reason:      ev.Reason,
			Timestamp:   ev.At,
		}
		if err := s.publisher.PublishRedistribution(ctx, msg); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish redistribution event", log.FieldError, err)
		}
	}
}
