package core

import (
	"strings"
	"time"
)

// Status labels derived from planned vs. spent amounts.
const (
	StatusOnTrack  Status = "on_track"
	StatusWarning  Status = "warning"
	StatusExceeded Status = "exceeded"
)

// Redistribution event reasons.
const (
	ReasonDeficitCover    = "deficit_cover"
	ReasonManualRebalance = "manual_rebalance"
)

type (
	// Status is a day/category/month classification label.
	Status string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Category describes one budget envelope: its share of monthly income,
	// a priority rank used to break allocation and redistribution ties
	// (lower rank wins), and an optional per-day floor in cents below which
	// redistribution may never pull a cell's planned amount.
	Category struct {
		Name       string
		Weight     float64
		Priority   int
		FloorCents int64
	}

	// Transaction is the engine's external input: one spend event.
	Transaction struct {
		ID          string
		Date        Date
		Category    string
		Amount      Money
		Description string
	}

	// DailyPlanCell is the atomic grid unit: one day, one category.
	DailyPlanCell struct {
		Date         Date
		Category     string
		PlannedCents int64
		SpentCents   int64
		Status       Status
	}

	// RedistributionEvent is an immutable audit record of one planned-amount
	// transfer between two cells of the same category.
	RedistributionEvent struct {
		ID          string
		Category    string
		SourceDate  Date
		TargetDate  Date
		AmountCents int64
		Reason      string
		At          time.Time
	}
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NewDate creates a new Date from year, month, day (UTC, midnight).
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to day precision in UTC.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), int(u.Month()), u.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Key returns the canonical YYYY-MM-DD form used for cell keys and storage.
func (d Date) Key() string {
	return d.Format("2006-01-02")
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if c.Weight < 0 {
		return ErrNegativeWeight
	}
	if c.FloorCents < 0 {
		return ErrNegativeFloor
	}
	return nil
}

// Surplus returns the planned amount not yet spent, never negative.
func (c *DailyPlanCell) Surplus() int64 {
	s := c.PlannedCents - c.SpentCents
	if s < 0 {
		return 0
	}
	return s
}

// Deficit returns the spent amount exceeding the plan, never negative.
func (c *DailyPlanCell) Deficit() int64 {
	d := c.SpentCents - c.PlannedCents
	if d < 0 {
		return 0
	}
	return d
}
