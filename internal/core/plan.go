package core

import (
	"fmt"
	"sort"
)

// BudgetPlan is the per-user, per-month aggregate: income, category
// allocations, the day/category grid and the per-category over-budget
// residuals. It is the unit of optimistic concurrency; Version is bumped
// on every successful store update.
//
// A plan is plain in-memory state. Components mutate it and return the
// events they produced; persistence and I/O belong to the calling layer.
type BudgetPlan struct {
	UserID      string
	Year        int
	Month       int // 1-12
	IncomeCents int64
	Version     int64

	Categories  []Category
	Allocations map[string]int64 // category name -> allocated cents

	// Cells holds the lazily created grid, keyed by Date.Key()+"|"+category.
	Cells map[string]*DailyPlanCell

	// OverBudget records, per category, the residual deficit that
	// redistribution could not cover. A non-zero entry is the degraded
	// over_budget state, not an error.
	OverBudget map[string]int64
}

// NewBudgetPlan creates an empty plan shell for one user and month.
// Allocations and cells are filled by the allocator and calendar builder.
func NewBudgetPlan(userID string, year, month int, incomeCents int64, categories []Category) *BudgetPlan {
	return &BudgetPlan{
		UserID:      userID,
		Year:        year,
		Month:       month,
		IncomeCents: incomeCents,
		Version:     1,
		Categories:  categories,
		Allocations: make(map[string]int64, len(categories)),
		Cells:       make(map[string]*DailyPlanCell),
		OverBudget:  make(map[string]int64),
	}
}

// CellKey returns the map key for a (date, category) pair.
func CellKey(date Date, category string) string {
	return date.Key() + "|" + category
}

// Cell returns the cell for (date, category), creating it lazily with a
// zero planned amount the first time it is touched.
func (p *BudgetPlan) Cell(date Date, category string) *DailyPlanCell {
	key := CellKey(date, category)
	if c, ok := p.Cells[key]; ok {
		return c
	}
	c := &DailyPlanCell{Date: date, Category: category, Status: StatusOnTrack}
	p.Cells[key] = c
	return c
}

// CellIfExists returns the cell for (date, category) without creating it.
func (p *BudgetPlan) CellIfExists(date Date, category string) (*DailyPlanCell, bool) {
	c, ok := p.Cells[CellKey(date, category)]
	return c, ok
}

// CategoryByName returns the category definition, if known to this plan.
func (p *BudgetPlan) CategoryByName(name string) (Category, bool) {
	for _, c := range p.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// ContainsDate reports whether d falls inside this plan's month.
func (p *BudgetPlan) ContainsDate(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// CategoryCells returns the category's cells sorted by date.
func (p *BudgetPlan) CategoryCells(category string) []*DailyPlanCell {
	var cells []*DailyPlanCell
	for _, c := range p.Cells {
		if c.Category == category {
			cells = append(cells, c)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		return cells[i].Date.Before(cells[j].Date.Time)
	})
	return cells
}

// PlannedTotal sums planned cents over all of the category's cells.
func (p *BudgetPlan) PlannedTotal(category string) int64 {
	var total int64
	for _, c := range p.Cells {
		if c.Category == category {
			total += c.PlannedCents
		}
	}
	return total
}

// SpentTotal sums spent cents over all of the category's cells.
func (p *BudgetPlan) SpentTotal(category string) int64 {
	var total int64
	for _, c := range p.Cells {
		if c.Category == category {
			total += c.SpentCents
		}
	}
	return total
}

// CheckConservation verifies that the category's planned cents still sum to
// its allocation, within one cent. It returns a descriptive error on drift;
// integer arithmetic in the allocator, builder and engine should make that
// impossible.
func (p *BudgetPlan) CheckConservation(category string) error {
	alloc, ok := p.Allocations[category]
	if !ok {
		return fmt.Errorf("unknown category %q", category)
	}
	planned := p.PlannedTotal(category)
	diff := planned - alloc
	if diff < -1 || diff > 1 {
		return fmt.Errorf("conservation violated for %q: planned %d, allocated %d",
			category, planned, alloc)
	}
	return nil
}

// Clone returns a deep copy of the plan. Stores hand out clones so callers
// never share mutable grid state.
func (p *BudgetPlan) Clone() *BudgetPlan {
	cp := &BudgetPlan{
		UserID:      p.UserID,
		Year:        p.Year,
		Month:       p.Month,
		IncomeCents: p.IncomeCents,
		Version:     p.Version,
		Categories:  append([]Category(nil), p.Categories...),
		Allocations: make(map[string]int64, len(p.Allocations)),
		Cells:       make(map[string]*DailyPlanCell, len(p.Cells)),
		OverBudget:  make(map[string]int64, len(p.OverBudget)),
	}
	for k, v := range p.Allocations {
		cp.Allocations[k] = v
	}
	for k, c := range p.Cells {
		cc := *c
		cp.Cells[k] = &cc
	}
	for k, v := range p.OverBudget {
		cp.OverBudget[k] = v
	}
	return cp
}

// Fingerprint returns a canonical textual rendering of the grid, used to
// assert that replaying the same event sequence yields an identical plan.
func (p *BudgetPlan) Fingerprint() string {
	keys := make([]string, 0, len(p.Cells))
	for k := range p.Cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := fmt.Sprintf("%s/%04d-%02d/income=%d\n", p.UserID, p.Year, p.Month, p.IncomeCents)
	for _, k := range keys {
		c := p.Cells[k]
		out += fmt.Sprintf("%s planned=%d spent=%d status=%s\n", k, c.PlannedCents, c.SpentCents, c.Status)
	}
	obKeys := make([]string, 0, len(p.OverBudget))
	for k, v := range p.OverBudget {
		if v != 0 {
			obKeys = append(obKeys, k)
		}
	}
	sort.Strings(obKeys)
	for _, k := range obKeys {
		out += fmt.Sprintf("over_budget %s=%d\n", k, p.OverBudget[k])
	}
	return out
}
