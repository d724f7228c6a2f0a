package services

import (
	"context"

	"budgetgrid/internal/amqp"
	"budgetgrid/internal/core"
)

// Ports for outbound adapters.
type (
	// PlanStore persists plans with optimistic concurrency: UpdatePlan
	// succeeds only when expectedVersion matches the stored version, and
	// returns core.ConflictError otherwise. The plan and the audit events it
	// produced are written in one operation, so a redelivered message never
	// sees the grid committed without its events.
	PlanStore interface {
		CreatePlan(ctx context.Context, plan *core.BudgetPlan) error
		GetPlan(ctx context.Context, userID string, year, month int) (*core.BudgetPlan, error)
		UpdatePlan(ctx context.Context, plan *core.BudgetPlan, expectedVersion int64, events []core.RedistributionEvent) error
		ListEvents(ctx context.Context, userID string, year, month int) ([]core.RedistributionEvent, error)
	}

	// EventPublisher fans engine outputs out to collaborator queues.
	EventPublisher interface {
		PublishCellUpdate(ctx context.Context, msg amqp.CellUpdateMessage) error
		PublishRedistribution(ctx context.Context, msg amqp.RedistributionMessage) error
		PublishAnomaly(ctx context.Context, msg amqp.AnomalyMessage) error
	}
)
