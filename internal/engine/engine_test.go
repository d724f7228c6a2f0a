package engine

import (
	"fmt"
	"testing"
	"time"

	"budgetgrid/internal/calendar"
	"budgetgrid/internal/core"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("evt-%03d", n)
	}
}

func newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(append([]Option{WithClock(fixedClock())}, opts...)...)
	e.newID = sequentialIDs()
	return e
}

// juneFoodPlan builds a 30-day June plan with 300.00 in "food" split evenly
// at 10.00 per day.
func juneFoodPlan(t *testing.T, cats ...core.Category) *core.BudgetPlan {
	t.Helper()
	if len(cats) == 0 {
		cats = []core.Category{{Name: "food", Weight: 1, Priority: 1}}
	}
	income := int64(30000) * int64(len(cats))
	plan := core.NewBudgetPlan("u1", 2025, 6, income, cats)
	for _, c := range cats {
		plan.Allocations[c.Name] = 30000
	}
	if err := calendar.Build(plan, core.NewDate(2025, 6, 1), nil); err != nil {
		t.Fatalf("calendar build failed: %v", err)
	}
	return plan
}

func txn(day int, category string, cents int64) core.Transaction {
	return core.Transaction{
		ID:          "t1",
		Date:        core.NewDate(2025, 6, day),
		Category:    category,
		Amount:      core.Money{Cents: cents},
		Description: "test spend",
	}
}

func TestRecordWithinPlan(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	res, err := e.Record(plan, txn(5, "food", 600))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.Cell.SpentCents != 600 {
		t.Fatalf("spent %d, want 600", res.Cell.SpentCents)
	}
	if len(res.Events) != 0 {
		t.Fatalf("did not expect redistribution events, got %d", len(res.Events))
	}
	if res.OverBudget {
		t.Fatal("did not expect over-budget state")
	}
	if res.Cell.Status != core.StatusOnTrack {
		t.Fatalf("cell status %q, want %q", res.Cell.Status, core.StatusOnTrack)
	}
}

func TestRecordCoversDeficitNearestFuture(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	// 25.00 against a 10.00 day: 15.00 deficit, covered by day 6 (10.00)
	// then day 7 (5.00).
	res, err := e.Record(plan, txn(5, "food", 2500))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if res.RecoveredCents != 1500 || res.ResidualCents != 0 {
		t.Fatalf("recovered %d residual %d, want 1500 and 0", res.RecoveredCents, res.ResidualCents)
	}
	if len(res.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(res.Events))
	}
	if res.Events[0].SourceDate.Day() != 6 || res.Events[0].AmountCents != 1000 {
		t.Fatalf("first transfer from day %d amount %d, want day 6 amount 1000",
			res.Events[0].SourceDate.Day(), res.Events[0].AmountCents)
	}
	if res.Events[1].SourceDate.Day() != 7 || res.Events[1].AmountCents != 500 {
		t.Fatalf("second transfer from day %d amount %d, want day 7 amount 500",
			res.Events[1].SourceDate.Day(), res.Events[1].AmountCents)
	}
	for _, ev := range res.Events {
		if ev.Reason != core.ReasonDeficitCover {
			t.Fatalf("event reason %q, want %q", ev.Reason, core.ReasonDeficitCover)
		}
		if ev.TargetDate.Day() != 5 {
			t.Fatalf("event target day %d, want 5", ev.TargetDate.Day())
		}
	}

	day5 := plan.Cell(core.NewDate(2025, 6, 5), "food")
	if day5.PlannedCents != 2500 {
		t.Fatalf("day 5 planned %d, want 2500", day5.PlannedCents)
	}
	day6 := plan.Cell(core.NewDate(2025, 6, 6), "food")
	if day6.PlannedCents != 0 {
		t.Fatalf("day 6 planned %d, want 0", day6.PlannedCents)
	}
	day7 := plan.Cell(core.NewDate(2025, 6, 7), "food")
	if day7.PlannedCents != 500 {
		t.Fatalf("day 7 planned %d, want 500", day7.PlannedCents)
	}
	if got := plan.PlannedTotal("food"); got != 30000 {
		t.Fatalf("planned total %d changed, want 30000", got)
	}
}

func TestRecordFallsBackToPast(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	// Drain every future day so the deficit on day 28 must reach backwards.
	for day := 29; day <= 30; day++ {
		plan.Cell(core.NewDate(2025, 6, day), "food").SpentCents = 1000
	}

	res, err := e.Record(plan, txn(28, "food", 2500))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.ResidualCents != 0 {
		t.Fatalf("residual %d, want 0", res.ResidualCents)
	}
	// Past, most recent first: day 27 then day 26.
	if res.Events[0].SourceDate.Day() != 27 {
		t.Fatalf("first source day %d, want 27", res.Events[0].SourceDate.Day())
	}
	if res.Events[1].SourceDate.Day() != 26 {
		t.Fatalf("second source day %d, want 26", res.Events[1].SourceDate.Day())
	}
}

func TestRecordOverBudgetResidual(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	// Spend more than the whole month's allocation. The deficit eats every
	// other cell's surplus and still leaves a residual.
	res, err := e.Record(plan, txn(5, "food", 35000))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !res.OverBudget {
		t.Fatal("expected over-budget state")
	}
	// Deficit 34000, cover 29000 from the other 29 days, residual 5000.
	if res.RecoveredCents != 29000 {
		t.Fatalf("recovered %d, want 29000", res.RecoveredCents)
	}
	if res.ResidualCents != 5000 {
		t.Fatalf("residual %d, want 5000", res.ResidualCents)
	}
	if plan.OverBudget["food"] != 5000 {
		t.Fatalf("plan over-budget %d, want 5000", plan.OverBudget["food"])
	}
	if got := plan.PlannedTotal("food"); got != 30000 {
		t.Fatalf("planned total %d changed, want 30000", got)
	}
	if res.Cell.Status != core.StatusExceeded {
		t.Fatalf("cell status %q, want %q", res.Cell.Status, core.StatusExceeded)
	}

	// The grid keeps accepting spends while over budget.
	res2, err := e.Record(plan, txn(10, "food", 700))
	if err != nil {
		t.Fatalf("Record while over budget failed: %v", err)
	}
	if !res2.OverBudget {
		t.Fatal("over-budget state should persist")
	}
}

func TestRecordRepeatSpendOnOverBudgetCell(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	// First spend blows past the whole month: 350.00 against a 300.00
	// allocation leaves a 50.00 residual.
	if _, err := e.Record(plan, txn(5, "food", 35000)); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if plan.OverBudget["food"] != 5000 {
		t.Fatalf("residual %d after first spend, want 5000", plan.OverBudget["food"])
	}

	// One more cent on the same cell. The uncovered deficit grows by exactly
	// that cent; the old residual must not be counted again.
	res, err := e.Record(plan, txn(5, "food", 1))
	if err != nil {
		t.Fatalf("second Record failed: %v", err)
	}
	if !res.OverBudget {
		t.Fatal("expected over-budget state")
	}
	if plan.OverBudget["food"] != 5001 {
		t.Fatalf("residual %d after repeat spend, want 5001", plan.OverBudget["food"])
	}

	// The incremental residual agrees with a from-scratch month pass.
	monthRes, err := e.RedistributeMonth(plan)
	if err != nil {
		t.Fatalf("RedistributeMonth failed: %v", err)
	}
	if monthRes.Residuals["food"] != 5001 || plan.OverBudget["food"] != 5001 {
		t.Fatalf("recomputed residual %d (plan %d), want 5001",
			monthRes.Residuals["food"], plan.OverBudget["food"])
	}
}

func TestRecordRespectsFloor(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t, core.Category{Name: "food", Weight: 1, Priority: 1, FloorCents: 800})

	// Each source can give at most 200 (1000 planned minus 800 floor).
	res, err := e.Record(plan, txn(5, "food", 1600))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.ResidualCents != 0 {
		t.Fatalf("residual %d, want 0", res.ResidualCents)
	}
	if len(res.Events) != 3 {
		t.Fatalf("got %d events, want 3 sources at 200 each", len(res.Events))
	}
	for i, ev := range res.Events {
		if ev.AmountCents != 200 {
			t.Fatalf("event %d amount %d, want 200", i, ev.AmountCents)
		}
	}
	day6 := plan.Cell(core.NewDate(2025, 6, 6), "food")
	if day6.PlannedCents != 800 {
		t.Fatalf("source left with %d, floor is 800", day6.PlannedCents)
	}
}

func TestRecordNeverPullsBelowSpent(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)

	// Day 6 already spent 900 of its 1000; it can only give 100.
	plan.Cell(core.NewDate(2025, 6, 6), "food").SpentCents = 900

	res, err := e.Record(plan, txn(5, "food", 2100))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.Events[0].SourceDate.Day() != 6 || res.Events[0].AmountCents != 100 {
		t.Fatalf("first transfer day %d amount %d, want day 6 amount 100",
			res.Events[0].SourceDate.Day(), res.Events[0].AmountCents)
	}
	if res.Events[1].SourceDate.Day() != 7 || res.Events[1].AmountCents != 1000 {
		t.Fatalf("second transfer day %d amount %d, want day 7 amount 1000",
			res.Events[1].SourceDate.Day(), res.Events[1].AmountCents)
	}
	day6 := plan.Cell(core.NewDate(2025, 6, 6), "food")
	if day6.PlannedCents != 900 || day6.Deficit() != 0 {
		t.Fatalf("covering one deficit created another: day 6 planned=%d spent=%d",
			day6.PlannedCents, day6.SpentCents)
	}
}

func TestRecordLargestFirstPolicy(t *testing.T) {
	e := newEngine(t, WithPolicy(PolicyLargestFirst))
	plan := juneFoodPlan(t)

	// Make day 20 the big surplus by shrinking everything closer.
	for day := 6; day <= 19; day++ {
		plan.Cell(core.NewDate(2025, 6, day), "food").SpentCents = 950
	}

	res, err := e.Record(plan, txn(5, "food", 1500))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// Future days 20..30 all have surplus 1000; date ascending tie-break
	// picks day 20 first.
	if res.Events[0].SourceDate.Day() != 20 {
		t.Fatalf("largest-first picked day %d first, want 20", res.Events[0].SourceDate.Day())
	}
}

func TestRecordRejections(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t)
	before := plan.Fingerprint()

	tests := []struct {
		name string
		txn  core.Transaction
	}{
		{"zero amount", txn(5, "food", 0)},
		{"negative amount", txn(5, "food", -100)},
		{"unknown category", txn(5, "ghost", 100)},
		{"date outside month", core.Transaction{
			ID: "t1", Date: core.NewDate(2025, 7, 1), Category: "food",
			Amount: core.Money{Cents: 100}, Description: "x",
		}},
		{"empty category", core.Transaction{
			ID: "t1", Date: core.NewDate(2025, 6, 5),
			Amount: core.Money{Cents: 100}, Description: "x",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Record(plan, tt.txn); !core.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if plan.Fingerprint() != before {
		t.Fatal("rejected transactions must leave the grid unmodified")
	}
}

func TestRecordConservationAcrossSequence(t *testing.T) {
	e := newEngine(t)
	plan := juneFoodPlan(t,
		core.Category{Name: "food", Weight: 0.5, Priority: 1},
		core.Category{Name: "fun", Weight: 0.5, Priority: 2},
	)

	spends := []core.Transaction{
		txn(3, "food", 1800),
		txn(3, "fun", 250),
		txn(12, "food", 4000),
		txn(12, "fun", 3100),
		txn(28, "food", 900),
		txn(30, "fun", 2750),
	}
	for i, tx := range spends {
		if _, err := e.Record(plan, tx); err != nil {
			t.Fatalf("spend %d failed: %v", i, err)
		}
		for _, cat := range plan.Categories {
			if err := plan.CheckConservation(cat.Name); err != nil {
				t.Fatalf("after spend %d: %v", i, err)
			}
		}
	}
	if got := plan.PlannedTotal("food"); got != 30000 {
		t.Fatalf("food planned total %d, want 30000", got)
	}
	if got := plan.PlannedTotal("fun"); got != 30000 {
		t.Fatalf("fun planned total %d, want 30000", got)
	}
}

func TestRecordReplayDeterminism(t *testing.T) {
	spends := []core.Transaction{
		txn(2, "food", 1700),
		txn(9, "food", 3200),
		txn(9, "food", 450),
		txn(21, "food", 2899),
	}

	run := func() string {
		e := newEngine(t)
		plan := juneFoodPlan(t)
		for _, tx := range spends {
			if _, err := e.Record(plan, tx); err != nil {
				t.Fatalf("Record failed: %v", err)
			}
		}
		return plan.Fingerprint()
	}

	first := run()
	for i := 0; i < 10; i++ {
		if got := run(); got != first {
			t.Fatalf("replay %d diverged from the first run", i)
		}
	}
}
