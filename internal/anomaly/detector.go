// Package anomaly flags transactions that are statistical outliers against
// the user's own spending history in a category.
//
// The detector keeps a trailing fixed-size sample window per user and
// category and scores each new transaction with a z-score against the
// window. It only produces flags; it never touches planned or spent
// amounts.
package anomaly

import (
	"math"
	"sync"

	"budgetgrid/internal/core"
)

// Severity tiers by z-score magnitude.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Config tunes the detector. The window is count-based rather than
// wall-clock so replaying the same transaction sequence reproduces the same
// flags regardless of arrival time.
type Config struct {
	WindowSize int     // trailing samples kept per user+category
	MinSamples int     // below this, no flag is ever raised
	MediumZ    float64 // |z| above this is medium
	HighZ      float64 // |z| above this is high
}

// DefaultConfig returns the standard 90-sample window with 2σ/3σ tiers.
func DefaultConfig() Config {
	return Config{WindowSize: 90, MinSamples: 5, MediumZ: 2.0, HighZ: 3.0}
}

// Validate rejects configurations that cannot score consistently.
func (c Config) Validate() error {
	if c.WindowSize < 2 {
		return &core.ConfigurationError{Reason: "anomaly window must hold at least 2 samples"}
	}
	if c.MinSamples < 2 || c.MinSamples > c.WindowSize {
		return &core.ConfigurationError{Reason: "anomaly minimum sample count must be between 2 and the window size"}
	}
	if c.MediumZ <= 0 || c.HighZ <= c.MediumZ {
		return &core.ConfigurationError{Reason: "anomaly z tiers must satisfy 0 < medium < high"}
	}
	return nil
}

// Flag is the detector's output for one transaction, routed to the
// notification/insights collaborator independently of the grid.
type Flag struct {
	TransactionID string
	UserID        string
	Category      string
	ZScore        float64
	Severity      Severity
}

// window is a ring buffer of amounts with running sum and sum of squares,
// so mean and standard deviation are O(1) per observation.
type window struct {
	samples []int64
	next    int
	filled  bool
	sum     float64
	sumSq   float64
}

func (w *window) count() int {
	if w.filled {
		return len(w.samples)
	}
	return w.next
}

func (w *window) push(cents int64) {
	v := float64(cents)
	if w.filled {
		old := float64(w.samples[w.next])
		w.sum -= old
		w.sumSq -= old * old
	}
	w.samples[w.next] = cents
	w.sum += v
	w.sumSq += v * v
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// stats returns the sample mean and standard deviation of the window.
func (w *window) stats() (mean, std float64) {
	n := float64(w.count())
	if n < 2 {
		return w.sum / math.Max(n, 1), 0
	}
	mean = w.sum / n
	variance := (w.sumSq - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0 // floating error on near-constant windows
	}
	return mean, math.Sqrt(variance)
}

// Detector scores transactions. Safe for concurrent use; observations for
// one user+category are still expected in order, which the per-user write
// serialization already guarantees.
type Detector struct {
	cfg     Config
	mu      sync.Mutex
	windows map[string]*window
}

// NewDetector creates a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg, windows: make(map[string]*window)}
}

// Observe scores the transaction against the history recorded so far, then
// adds it to the window. The returned flag has SeverityNone when the sample
// is unremarkable or the window is too small to judge.
func (d *Detector) Observe(userID string, txn core.Transaction) Flag {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := userID + "|" + txn.Category
	w, ok := d.windows[key]
	if !ok {
		w = &window{samples: make([]int64, d.cfg.WindowSize)}
		d.windows[key] = w
	}

	flag := Flag{
		TransactionID: txn.ID,
		UserID:        userID,
		Category:      txn.Category,
		Severity:      SeverityNone,
	}
	if w.count() >= d.cfg.MinSamples {
		mean, std := w.stats()
		if std > 0 {
			z := (float64(txn.Amount.Cents) - mean) / std
			flag.ZScore = z
			switch {
			case math.Abs(z) > d.cfg.HighZ:
				flag.Severity = SeverityHigh
			case math.Abs(z) > d.cfg.MediumZ:
				flag.Severity = SeverityMedium
			}
		}
	}
	w.push(txn.Amount.Cents)
	return flag
}
