// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"engagepulse/internal/audit"
	"engagepulse/internal/config"
	"engagepulse/internal/engine"
	"engagepulse/internal/leaderboard"
	"engagepulse/internal/ledger"
	"engagepulse/internal/registry"
	"engagepulse/internal/social"
	"engagepulse/internal/submission"
	"engagepulse/internal/tierconfig"
	"engagepulse/pkg/ledgerstore"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(logrus.InfoLevel)
	logger := logrus.WithField("component", "server")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	shutdownTracing, err := initTracing(cfg.OTLPEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdownTracing()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	store := ledgerstore.New(db.DB)

	tiers := tierconfig.NewService(db.DB, logrus.WithField("component", "tierconfig"))
	members := registry.NewService(db.DB, logrus.WithField("component", "registry"))
	ledgerSvc := ledger.NewService(store, db, logrus.WithField("component", "ledger"))
	board := leaderboard.NewService(db.DB, logrus.WithField("component", "leaderboard"))

	subStore := submission.NewPostgresStore(db.DB, store)
	gatekeeper := submission.NewService(subStore, members, tiers, store,
		cfg.SubmissionWindow, cfg.DayLocation,
		logrus.WithField("component", "gatekeeper"))

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

	auditor := audit.NewRunner(db.DB, logrus.WithField("component", "audit"))

	tierHandler := tierconfig.NewHandler(tiers)
	registryHandler := registry.NewHandler(members)
	submitHandler := submission.NewHandler(gatekeeper)
	ledgerHandler := ledger.NewHandler(ledgerSvc, store)
	boardHandler := leaderboard.NewHandler(board)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/link", registryHandler.HandleLink)
		r.Post("/submit", submitHandler.HandleSubmit)
		r.Get("/members/{chatID}", registryHandler.HandleGet)
		r.Get("/members/{chatID}/balance", ledgerHandler.HandleBalance)
		r.Get("/members/{chatID}/history", ledgerHandler.HandleHistory)
		r.Get("/members/{chatID}/submissions", submitHandler.HandleRecent)
		r.Get("/handles/{handle}", registryHandler.HandleResolve)
		r.Get("/leaderboard", boardHandler.HandleRank)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/tiers", tierHandler.HandleList)
			r.Put("/tiers/{tier}", tierHandler.HandleSet)
			r.Post("/adjust", ledgerHandler.HandleAdjust)
			r.Delete("/locks/{postID}/{interaction}/{actorID}", ledgerHandler.HandleResetLock)
			r.Post("/leaderboard/rebuild", boardHandler.HandleRebuild)
			r.Put("/members/{chatID}/tier", registryHandler.HandleSetTier)
			r.Delete("/members/{chatID}", registryHandler.HandlePurge)
			r.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
				report, err := auditor.Run(req.Context())
				if err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				writeJSON(w, http.StatusOK, report)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := engine.NewScheduler(eng, cfg.CycleInterval, logrus.WithField("component", "scheduler"))
	go scheduler.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("starting engagement ledger service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// initTracing installs an OTLP trace exporter when an endpoint is
// configured. Without one, spans stay on the default no-op provider.
func initTracing(endpoint string) (func(), error) {
	if endpoint == "" {
		return func() {}, nil
	}
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}
