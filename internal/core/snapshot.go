package core

// CellSnapshot is the externally visible view of one grid cell.
type CellSnapshot struct {
	Date         Date
	Category     string
	PlannedCents int64
	SpentCents   int64
	Status       Status
}

// CategorySnapshot aggregates one category for a month.
type CategorySnapshot struct {
	Name            string
	AllocationCents int64
	PlannedCents    int64
	SpentCents      int64
	Status          Status
	OverBudget      bool
	ResidualCents   int64
	Days            []CellSnapshot
}

// MonthSnapshot is a compact, read-only summary of a plan for presentation
// collaborators: per-day cells, per-category aggregates and a month-level
// status.
type MonthSnapshot struct {
	UserID       string
	Year         int
	Month        int // 1-12
	Version      int64
	IncomeCents  int64
	PlannedCents int64
	SpentCents   int64
	Status       Status
	Categories   []CategorySnapshot
}
