// cmd/engine/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"engagepulse/internal/config"
	"engagepulse/internal/engine"
	"engagepulse/internal/leaderboard"
	"engagepulse/internal/registry"
	"engagepulse/internal/social"
	"engagepulse/internal/submission"
	"engagepulse/internal/tierconfig"
	"engagepulse/pkg/ledgerstore"
)

// Standalone reconciliation runner, for deployments where polling is
// separated from the API process. -once runs a single cycle and exits.
func main() {
	once := flag.Bool("once", false, "run a single reconciliation cycle and exit")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)
	logger := logrus.WithField("component", "engine-runner")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	store := ledgerstore.New(db.DB)
	tiers := tierconfig.NewService(db.DB, logrus.WithField("component", "tierconfig"))
	members := registry.NewService(db.DB, logrus.WithField("component", "registry"))
	board := leaderboard.NewService(db.DB, logrus.WithField("component", "leaderboard"))
	subStore := submission.NewPostgresStore(db.DB, store)

	var socialClient engine.SocialClient
	if cfg.SocialMock {
		logger.Warn("using mock social client, no real interactions will be fetched")
		socialClient = social.NewMock()
	} else {
		socialClient = social.NewClient(cfg.SocialBaseURL, cfg.SocialToken, cfg.SocialRatePerHour,
			logrus.WithField("component", "social"))
	}

	eng := engine.New(socialClient, subStore, store, store, tiers, members, board,
		cfg.Workers, cfg.CycleDeadline, logrus.WithField("component", "engine"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		report, err := eng.RunCycle(ctx)
		if err != nil {
			logger.WithError(err).Fatal("cycle failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	engine.NewScheduler(eng, cfg.CycleInterval, logrus.WithField("component", "scheduler")).Run(ctx)
}
