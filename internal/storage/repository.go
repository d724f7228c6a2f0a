// Package storage persists budget plans, their grids and the redistribution
// audit log in SQLite. Plan updates are an optimistic compare-and-swap on
// the plan version: a stale version surfaces as core.ConflictError and the
// caller retries against the fresh grid.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetgrid/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreatePlan inserts a fresh plan with its categories and grid.
func (r *SQLiteRepository) CreatePlan(ctx context.Context, plan *core.BudgetPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans (user_id, year, month, income_cents, version) VALUES (?, ?, ?, ?, ?)`,
		plan.UserID, plan.Year, plan.Month, plan.IncomeCents, plan.Version)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	if err := insertCategories(ctx, tx, plan); err != nil {
		return err
	}
	if err := insertCells(ctx, tx, plan); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Plan saved to SQLite",
		"user_id", plan.UserID,
		"year", plan.Year,
		"month", plan.Month,
		"income_cents", plan.IncomeCents,
		"cells", len(plan.Cells))
	return nil
}

// GetPlan loads a plan with its categories, grid and over-budget residuals.
func (r *SQLiteRepository) GetPlan(ctx context.Context, userID string, year, month int) (*core.BudgetPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT income_cents, version FROM plans WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month)
	var income, version int64
	if err := row.Scan(&income, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrPlanNotFound
		}
		return nil, fmt.Errorf("select plan: %w", err)
	}

	plan := core.NewBudgetPlan(userID, year, month, income, nil)
	plan.Version = version

	rows, err := r.db.QueryContext(ctx,
		`SELECT name, weight, priority, floor_cents, allocation_cents, over_budget_cents
		 FROM plan_categories WHERE user_id = ? AND year = ? AND month = ? ORDER BY name`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat core.Category
		var alloc, overBudget int64
		if err := rows.Scan(&cat.Name, &cat.Weight, &cat.Priority, &cat.FloorCents, &alloc, &overBudget); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		plan.Categories = append(plan.Categories, cat)
		plan.Allocations[cat.Name] = alloc
		if overBudget != 0 {
			plan.OverBudget[cat.Name] = overBudget
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	cellRows, err := r.db.QueryContext(ctx,
		`SELECT day, category, planned_cents, spent_cents, status
		 FROM plan_cells WHERE user_id = ? AND year = ? AND month = ?`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("select cells: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var day, category, st string
		var planned, spent int64
		if err := cellRows.Scan(&day, &category, &planned, &spent, &st); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("parse cell date %q: %w", day, err)
		}
		cell := plan.Cell(core.DateOf(date), category)
		cell.PlannedCents = planned
		cell.SpentCents = spent
		cell.Status = core.Status(st)
	}
	if err := cellRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return plan, nil
}

// UpdatePlan writes the plan back if expectedVersion still matches, bumping
// the stored version by one, and appends any audit events in the same
// transaction. A stale version returns core.ConflictError and nothing is
// written.
func (r *SQLiteRepository) UpdatePlan(ctx context.Context, plan *core.BudgetPlan, expectedVersion int64, events []core.RedistributionEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE plans SET income_cents = ?, version = ? WHERE user_id = ? AND year = ? AND month = ? AND version = ?`,
		plan.IncomeCents, expectedVersion+1, plan.UserID, plan.Year, plan.Month, expectedVersion)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		row := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM plans WHERE user_id = ? AND year = ? AND month = ?`,
			plan.UserID, plan.Year, plan.Month)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("check plan existence: %w", err)
		}
		if exists == 0 {
			return core.ErrPlanNotFound
		}
		return &core.ConflictError{UserID: plan.UserID, Year: plan.Year, Month: plan.Month, Version: expectedVersion}
	}

	// Rewrite categories and grid wholesale; a month grid is at most a few
	// hundred rows.
	for _, table := range []string{"plan_categories", "plan_cells"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND year = ? AND month = ?`, table),
			plan.UserID, plan.Year, plan.Month); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := insertCategories(ctx, tx, plan); err != nil {
		return err
	}
	if err := insertCells(ctx, tx, plan); err != nil {
		return err
	}
	if err := insertEvents(ctx, tx, plan.UserID, plan.Year, plan.Month, events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	plan.Version = expectedVersion + 1
	return nil
}

// ListEvents returns the month's audit log in insertion order.
func (r *SQLiteRepository) ListEvents(ctx context.Context, userID string, year, month int) ([]core.RedistributionEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category, source_date, target_date, amount_cents, reason, created_at
		 FROM redistribution_events
		 WHERE user_id = ? AND year = ? AND month = ? ORDER BY rowid`,
		userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var events []core.RedistributionEvent
	for rows.Next() {
		var ev core.RedistributionEvent
		var source, target string
		if err := rows.Scan(&ev.ID, &ev.Category, &source, &target, &ev.AmountCents, &ev.Reason, &ev.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		sd, err := time.Parse("2006-01-02", source)
		if err != nil {
			return nil, fmt.Errorf("parse source date %q: %w", source, err)
		}
		td, err := time.Parse("2006-01-02", target)
		if err != nil {
			return nil, fmt.Errorf("parse target date %q: %w", target, err)
		}
		ev.SourceDate = core.DateOf(sd)
		ev.TargetDate = core.DateOf(td)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func insertCategories(ctx context.Context, tx *sql.Tx, plan *core.BudgetPlan) error {
	for _, cat := range plan.Categories {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plan_categories
			 (user_id, year, month, name, weight, priority, floor_cents, allocation_cents, over_budget_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.UserID, plan.Year, plan.Month, cat.Name, cat.Weight, cat.Priority,
			cat.FloorCents, plan.Allocations[cat.Name], plan.OverBudget[cat.Name])
		if err != nil {
			return fmt.Errorf("insert category %q: %w", cat.Name, err)
		}
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, userID string, year, month int, events []core.RedistributionEvent) error {
	for _, ev := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO redistribution_events
			 (id, user_id, year, month, category, source_date, target_date, amount_cents, reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, userID, year, month, ev.Category,
			ev.SourceDate.Key(), ev.TargetDate.Key(), ev.AmountCents, ev.Reason, ev.At.UTC())
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return nil
}

func insertCells(ctx context.Context, tx *sql.Tx, plan *core.BudgetPlan) error {
	for _, cell := range plan.Cells {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plan_cells
			 (user_id, year, month, day, category, planned_cents, spent_cents, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			plan.UserID, plan.Year, plan.Month, cell.Date.Key(), cell.Category,
			cell.PlannedCents, cell.SpentCents, string(cell.Status))
		if err != nil {
			return fmt.Errorf("insert cell %s/%s: %w", cell.Date.Key(), cell.Category, err)
		}
	}
	return nil
}
