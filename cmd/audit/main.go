// cmd/audit/main.go
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"engagepulse/internal/audit"
	"engagepulse/internal/config"
)

// Runs the ledger integrity checks once and exits nonzero when any
// invariant is violated. Intended for cron and CI.
func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := logrus.WithField("component", "audit")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := audit.NewRunner(db.DB, logger).Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("audit run failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Healthy {
		os.Exit(1)
	}
}
