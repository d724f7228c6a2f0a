// Package worker consumes transaction messages from the ingestion queue and
// applies them through the plan service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetgrid/internal/amqp"
	"budgetgrid/internal/anomaly"
	"budgetgrid/internal/core"
	"budgetgrid/internal/engine"
	"budgetgrid/internal/log"
)

// TransactionRecorder is the slice of the plan service the worker needs.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, userID string, txn core.Transaction) (*engine.RecordResult, anomaly.Flag, error)
}

// TransactionWorker turns inbound messages into recorded spends. Version
// conflicts are retried a bounded number of times against the re-read plan;
// everything else is the engine's decision.
type TransactionWorker struct {
	recorder   TransactionRecorder
	maxRetries int
	retryDelay time.Duration
	logger     *log.Logger
}

func NewTransactionWorker(recorder TransactionRecorder, maxRetries int, logger *log.Logger) *TransactionWorker {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &TransactionWorker{
		recorder:   recorder,
		maxRetries: maxRetries,
		retryDelay: 50 * time.Millisecond,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleTransaction processes one inbound message.
//
// Rejections (unknown category, bad amount, date outside the plan month,
// missing plan) are logged and dropped: redelivering them can never
// succeed, and the grid was left unmodified. A non-nil return means a
// transient failure worth requeueing.
func (w *TransactionWorker) HandleTransaction(ctx context.Context, msg *amqp.TransactionMessage) error {
	txn, err := transactionFromMessage(msg)
	if err != nil {
		w.logger.WarnContext(ctx, "Dropping malformed transaction message",
			log.FieldTxnID, msg.ID,
			log.FieldUserID, msg.UserID,
			log.FieldError, err)
		return nil
	}

	for attempt := 1; ; attempt++ {
		res, flag, err := w.recorder.RecordTransaction(ctx, msg.UserID, txn)
		switch {
		case err == nil:
			w.logger.InfoContext(ctx, "Transaction applied",
				log.FieldTxnID, txn.ID,
				log.FieldUserID, msg.UserID,
				log.FieldCategory, txn.Category,
				log.FieldStatus, string(res.Cell.Status),
				log.FieldSeverity, string(flag.Severity),
				log.FieldAttempt, attempt)
			return nil
		case core.IsConflict(err):
			if attempt >= w.maxRetries {
				return fmt.Errorf("record transaction %s: %w", txn.ID, err)
			}
			w.logger.WarnContext(ctx, "Plan version conflict, retrying",
				log.FieldTxnID, txn.ID,
				log.FieldUserID, msg.UserID,
				log.FieldAttempt, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryDelay * time.Duration(attempt)):
			}
		case core.IsValidation(err), errors.Is(err, core.ErrPlanNotFound):
			w.logger.WarnContext(ctx, "Dropping rejected transaction",
				log.FieldTxnID, txn.ID,
				log.FieldUserID, msg.UserID,
				log.FieldCategory, txn.Category,
				log.FieldError, err)
			return nil
		default:
			return fmt.Errorf("record transaction %s: %w", txn.ID, err)
		}
	}
}

func transactionFromMessage(msg *amqp.TransactionMessage) (core.Transaction, error) {
	if msg.UserID == "" {
		return core.Transaction{}, core.NewValidationError("user_id", "empty user id")
	}
	date, err := time.Parse("2006-01-02", msg.Date)
	if err != nil {
		return core.Transaction{}, core.WrapValidation("date", err)
	}
	txn := core.Transaction{
		ID:          msg.ID,
		Date:        core.DateOf(date),
		Category:    msg.Category,
		Amount:      core.Money{Cents: msg.AmountCents},
		Description: msg.Description,
	}
	if err := txn.Validate(); err != nil {
		return core.Transaction{}, core.WrapValidation("transaction", err)
	}
	return txn, nil
}
