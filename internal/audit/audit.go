// internal/audit/audit.go
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Check is a measurable integrity property of the ledger and its
// projections, with the threshold it must satisfy.
type Check struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

// Threshold defines the acceptable range for a check's value.
type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Violation records a check that failed.
type Violation struct {
	CheckName string    `json:"check_name"`
	Expected  float64   `json:"expected"`
	Operator  string    `json:"operator"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

// Report captures one audit run.
type Report struct {
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Healthy    bool        `json:"healthy"`
	Violations []Violation `json:"violations"`
	Errors     []string    `json:"errors,omitempty"`
}

// Runner executes integrity checks. A violation indicates a broken
// invariant somewhere in the call chain and is logged loudly.
type Runner struct {
	db     *sql.DB
	logger *logrus.Entry
	checks []Check
	mu     sync.Mutex
}

// NewRunner creates a runner with the built-in ledger integrity checks
// registered.
func NewRunner(db *sql.DB, logger *logrus.Entry) *Runner {
	r := &Runner{db: db, logger: logger}
	r.registerBuiltins()
	return r
}

// Register adds a check to the suite.
func (r *Runner) Register(c Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

func (r *Runner) registerBuiltins() {
	r.Register(Check{
		// The balance projection must be re-derivable from the
		// transaction log for every member.
		Name: "balance_projection_mismatches",
		Query: r.countQuery(`
			SELECT COUNT(*) FROM balances b
			WHERE b.balance <> COALESCE(
				(SELECT SUM(t.delta) FROM ledger_transactions t WHERE t.member_id = b.member_id), 0)
		`),
		Threshold: Threshold{Operator: "==", Value: 0},
	})
	r.Register(Check{
		Name: "ledger_members_missing_projection",
		Query: r.countQuery(`
			SELECT COUNT(DISTINCT t.member_id) FROM ledger_transactions t
			WHERE NOT EXISTS (SELECT 1 FROM balances b WHERE b.member_id = t.member_id)
		`),
		Threshold: Threshold{Operator: "==", Value: 0},
	})
	r.Register(Check{
		Name:      "negative_balances",
		Query:     r.countQuery(`SELECT COUNT(*) FROM balances WHERE balance < 0`),
		Threshold: Threshold{Operator: "==", Value: 0},
	})
	r.Register(Check{
		// Staleness is bounded to one reconciliation cycle in normal
		// operation; a day without a rebuild means the engine is stuck.
		Name: "leaderboard_staleness_seconds",
		Query: r.countQuery(`
			SELECT COALESCE(EXTRACT(EPOCH FROM (NOW() - MAX(rebuilt_at))), 0) FROM leaderboard
		`),
		Threshold: Threshold{Operator: "<", Value: 86400},
	})
	r.Register(Check{
		// Forward and reverse connection indexes must agree in both
		// directions.
		Name: "handle_index_inconsistencies",
		Query: r.countQuery(`
			SELECT (SELECT COUNT(*) FROM connections c
			        WHERE NOT EXISTS (SELECT 1 FROM handle_index h WHERE h.handle = c.handle AND h.chat_id = c.chat_id))
			     + (SELECT COUNT(*) FROM handle_index h
			        WHERE NOT EXISTS (SELECT 1 FROM connections c WHERE c.chat_id = h.chat_id AND c.handle = h.handle))
		`),
		Threshold: Threshold{Operator: "==", Value: 0},
	})
}

func (r *Runner) countQuery(query string) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		var n float64
		if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return 0, fmt.Errorf("audit query: %w", err)
		}
		return n, nil
	}
}

// Run evaluates every registered check.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	checks := make([]Check, len(r.checks))
	copy(checks, r.checks)
	r.mu.Unlock()

	report := &Report{StartTime: time.Now(), Healthy: true}

	for _, check := range checks {
		value, err := check.Query(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", check.Name, err))
			report.Healthy = false
			r.logger.WithFields(logrus.Fields{
				"check": check.Name,
				"error": err.Error(),
			}).Error("audit check query failed")
			continue
		}

		if !evaluateThreshold(value, check.Threshold) {
			v := Violation{
				CheckName: check.Name,
				Expected:  check.Threshold.Value,
				Operator:  check.Threshold.Operator,
				Actual:    value,
				Timestamp: time.Now(),
			}
			report.Violations = append(report.Violations, v)
			report.Healthy = false
			r.logger.WithFields(logrus.Fields{
				"check":    check.Name,
				"expected": check.Threshold.Value,
				"operator": check.Threshold.Operator,
				"actual":   value,
			}).Error("ledger integrity violation detected")
		}
	}

	report.EndTime = time.Now()
	if report.Healthy {
		r.logger.WithField("checks", len(checks)).Info("audit passed")
	}
	return report, nil
}

func evaluateThreshold(value float64, t Threshold) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}
