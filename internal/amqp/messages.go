package amqp

import (
	"encoding/json"
	"time"
)

// Routing keys (and queue names, direct exchange) for the collaborator
// queues this engine talks to.
const (
	RouteCellUpdates     = "cell_updates"
	RouteRedistributions = "redistributions"
	RouteAnomalies       = "anomalies"
)

// TransactionMessage is the inbound spend event from the transaction
// ingestion collaborator (manual entry or receipt extraction upstream).
type TransactionMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// CellUpdateMessage is the outbound updated-cell snapshot for presentation
// collaborators.
type CellUpdateMessage struct {
	UserID       string    `json:"user_id"`
	Date         string    `json:"date"`
	Category     string    `json:"category"`
	PlannedCents int64     `json:"planned_cents"`
	SpentCents   int64     `json:"spent_cents"`
	Status       string    `json:"status"`
	OverBudget   bool      `json:"over_budget"`
	PlanVersion  int64     `json:"plan_version"`
	Timestamp    time.Time `json:"timestamp"`
}

// RedistributionMessage mirrors one audit event for the explainability
// collaborator.
type RedistributionMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Category    string    `json:"category"`
	SourceDate  string    `json:"source_date"`
	TargetDate  string    `json:"target_date"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// AnomalyMessage carries an anomaly flag to the notification/insights
// collaborator.
type AnomalyMessage struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Category      string    `json:"category"`
	ZScore        float64   `json:"z_score"`
	Severity      string    `json:"severity"`
	Timestamp     time.Time `json:"timestamp"`
}

// TransactionMessageFromJSON decodes an inbound transaction message.
func TransactionMessageFromJSON(data []byte) (*TransactionMessage, error) {
	var msg TransactionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
