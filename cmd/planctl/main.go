// planctl is the operational CLI: bootstrap a month plan, apply an income
// change, trigger a manual redistribution or print a month snapshot. It
// talks to the database directly and publishes nothing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"budgetgrid/internal/config"
	"budgetgrid/internal/core"
	"budgetgrid/internal/engine"
	applog "budgetgrid/internal/log"
	"budgetgrid/internal/services"
	"budgetgrid/internal/storage"
)

func main() {
	_ = godotenv.Load()

	var (
		command  = flag.String("cmd", "", "command: create | reallocate | redistribute | snapshot | events")
		userID   = flag.String("user", "", "user id")
		year     = flag.Int("year", time.Now().UTC().Year(), "plan year")
		month    = flag.Int("month", int(time.Now().UTC().Month()), "plan month (1-12)")
		income   = flag.String("income", "", "monthly income, decimal (create/reallocate)")
		startDay = flag.Int("start-day", 1, "first planned day of the month (create)")
	)
	flag.Parse()

	logger := applog.New(applog.Config{Level: slog.LevelWarn, Component: applog.ComponentApp})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}
	if *userID == "" {
		fatalf("-user is required")
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		fatalf("open storage: %v", err)
	}
	defer repo.Close()

	service := services.NewPlanService(repo,
		services.WithEngine(engine.New(
			engine.WithPolicy(cfg.Policy()),
			engine.WithThresholds(cfg.Thresholds()),
		)),
		services.WithThresholds(cfg.Thresholds()),
		services.WithLogger(logger),
	)

	ctx := context.Background()
	switch *command {
	case "create":
		runCreate(ctx, service, cfg, *userID, *year, *month, *income, *startDay)
	case "reallocate":
		runReallocate(ctx, service, cfg, *userID, *year, *month, *income)
	case "redistribute":
		runRedistribute(ctx, service, *userID, *year, *month)
	case "snapshot":
		runSnapshot(ctx, service, *userID, *year, *month)
	case "events":
		runEvents(ctx, service, *userID, *year, *month)
	default:
		fatalf("unknown command %q, want create | reallocate | redistribute | snapshot | events", *command)
	}
}

func runCreate(ctx context.Context, service *services.PlanService, cfg *config.Config, userID string, year, month int, income string, startDay int) {
	cents, err := core.ParseDecimalToCents(income)
	if err != nil {
		fatalf("invalid -income %q: %v", income, err)
	}
	categories, err := cfg.CategoriesFor(cents)
	if err != nil {
		fatalf("resolve categories: %v", err)
	}
	profiles, err := cfg.DayWeightProfiles()
	if err != nil {
		fatalf("resolve day weights: %v", err)
	}
	plan, err := service.CreatePlan(ctx, userID, year, month, cents, startDay, categories, profiles)
	if err != nil {
		fatalf("create plan: %v", err)
	}
	fmt.Printf("created plan %s %04d-%02d income %s\n", plan.UserID, plan.Year, plan.Month, core.FormatCents(plan.IncomeCents))
	for _, cat := range plan.Categories {
		fmt.Printf("  %-12s %s\n", cat.Name, core.FormatCents(plan.Allocations[cat.Name]))
	}
}

func runReallocate(ctx context.Context, service *services.PlanService, cfg *config.Config, userID string, year, month int, income string) {
	cents, err := core.ParseDecimalToCents(income)
	if err != nil {
		fatalf("invalid -income %q: %v", income, err)
	}
	profiles, err := cfg.DayWeightProfiles()
	if err != nil {
		fatalf("resolve day weights: %v", err)
	}
	today := core.DateOf(time.Now())
	if today.Year() != year || today.Month() != month {
		// Reallocating a month we are not in: rebuild from day 1.
		today = core.NewDate(year, month, 1)
	}
	plan, err := service.Reallocate(ctx, userID, year, month, cents, today, profiles)
	if err != nil {
		fatalf("reallocate: %v", err)
	}
	fmt.Printf("reallocated plan %s %04d-%02d income %s (version %d)\n",
		plan.UserID, plan.Year, plan.Month, core.FormatCents(plan.IncomeCents), plan.Version)
}

func runRedistribute(ctx context.Context, service *services.PlanService, userID string, year, month int) {
	res, err := service.Redistribute(ctx, userID, year, month)
	if err != nil {
		fatalf("redistribute: %v", err)
	}
	fmt.Printf("redistribution produced %d transfers\n", len(res.Events))
	for cat, residual := range res.Residuals {
		fmt.Printf("  %s remains over budget by %s\n", cat, core.FormatCents(residual))
	}
}

func runSnapshot(ctx context.Context, service *services.PlanService, userID string, year, month int) {
	snap, err := service.MonthSnapshot(ctx, userID, year, month)
	if err != nil {
		fatalf("snapshot: %v", err)
	}
	fmt.Printf("%s %04d-%02d income %s planned %s spent %s status %s\n",
		snap.UserID, snap.Year, snap.Month,
		core.FormatCents(snap.IncomeCents), core.FormatCents(snap.PlannedCents),
		core.FormatCents(snap.SpentCents), snap.Status)
	for _, cat := range snap.Categories {
		marker := ""
		if cat.OverBudget {
			marker = fmt.Sprintf("  OVER BUDGET by %s", core.FormatCents(cat.ResidualCents))
		}
		fmt.Printf("  %-12s planned %10s spent %10s %-9s%s\n",
			cat.Name, core.FormatCents(cat.PlannedCents), core.FormatCents(cat.SpentCents), cat.Status, marker)
	}
}

func runEvents(ctx context.Context, service *services.PlanService, userID string, year, month int) {
	events, err := service.Events(ctx, userID, year, month)
	if err != nil {
		fatalf("list events: %v", err)
	}
	for _, ev := range events {
		fmt.Printf("%s  %-12s %s -> %s  %10s  %s\n",
			ev.At.UTC().Format(time.RFC3339), ev.Category,
			ev.SourceDate.Key(), ev.TargetDate.Key(),
			core.FormatCents(ev.AmountCents), ev.Reason)
	}
	if len(events) == 0 {
		fmt.Println("no redistribution events")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
