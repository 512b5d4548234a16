package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func TestEvaluateThreshold(t *testing.T) {
	tests := []struct {
		value float64
		t     Threshold
		want  bool
	}{
		{0, Threshold{"==", 0}, true},
		{1, Threshold{"==", 0}, false},
		{5, Threshold{">", 4}, true},
		{5, Threshold{">", 5}, false},
		{3, Threshold{"<", 4}, true},
		{4, Threshold{">=", 4}, true},
		{4, Threshold{"<=", 4}, true},
		{1, Threshold{"???", 1}, false},
	}
	for _, tt := range tests {
		if got := evaluateThreshold(tt.value, tt.t); got != tt.want {
			t.Errorf("evaluateThreshold(%v, %v %v) = %v, want %v",
				tt.value, tt.t.Operator, tt.t.Value, got, tt.want)
		}
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "user"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "testdb"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id UUID PRIMARY KEY,
			member_id TEXT NOT NULL,
			delta BIGINT NOT NULL,
			reason TEXT NOT NULL,
			post_id TEXT,
			actor TEXT NOT NULL,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS balances (
			member_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS connections (
			chat_id TEXT PRIMARY KEY,
			handle TEXT NOT NULL,
			tier TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS handle_index (
			handle TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS leaderboard (
			member_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			rebuilt_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestRunDetectsBrokenProjection(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()
	member := "audit-" + uuid.NewString()

	_, err := db.Exec(`
		INSERT INTO ledger_transactions (id, member_id, delta, reason, actor)
		VALUES ($1, $2, 40, 'manual-adjustment', 'admin')
	`, uuid.New(), member)
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	// Projection deliberately out of step with the log.
	_, err = db.Exec(`INSERT INTO balances (member_id, balance) VALUES ($1, 35)`, member)
	if err != nil {
		t.Fatalf("insert balance: %v", err)
	}

	report, err := newTestRunner(t, db).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Healthy {
		t.Fatal("expected unhealthy report")
	}
	found := false
	for _, v := range report.Violations {
		if v.CheckName == "balance_projection_mismatches" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected balance_projection_mismatches violation, got %+v", report.Violations)
	}

	// Repairing the projection clears the violation.
	if _, err := db.Exec(`UPDATE balances SET balance = 40 WHERE member_id = $1`, member); err != nil {
		t.Fatalf("repair balance: %v", err)
	}
}

func TestRunReportsQueryErrors(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	runner := newTestRunner(t, db)
	runner.Register(Check{
		Name: "always_broken",
		Query: func(ctx context.Context) (float64, error) {
			return 0, errors.New("boom")
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Healthy {
		t.Error("query errors must mark the report unhealthy")
	}
	if len(report.Errors) == 0 {
		t.Error("expected query error recorded in report")
	}
}

func newTestRunner(t testing.TB, db *sql.DB) *Runner {
	t.Helper()
	return NewRunner(db, testLogger())
}
