// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"engagepulse/internal/registry"
	"engagepulse/internal/social"
	"engagepulse/internal/submission"
	"engagepulse/internal/tierconfig"
	"engagepulse/pkg/ledgerstore"
)

var ErrCycleInProgress = errors.New("reconciliation cycle already running")

// SocialClient fetches engagement snapshots from the external API.
type SocialClient interface {
	Fetch(ctx context.Context, postID string) (*social.Engagement, error)
}

// SubmissionStore enumerates open submissions and advances their metrics.
type SubmissionStore interface {
	ListOpen(ctx context.Context) ([]*submission.Submission, error)
	UpdateMetrics(ctx context.Context, postID, memberID string, likes, reshares, replies int64, closed bool) error
}

// LockIndex is the idempotency boundary for payment: points are credited
// only when TryLock returns true for the exact interaction key.
type LockIndex interface {
	TryLock(ctx context.Context, postID, interaction, actorID string) (bool, error)
}

// Crediter appends credit transactions to the points ledger.
type Crediter interface {
	Append(ctx context.Context, e ledgerstore.Entry) (uuid.UUID, error)
}

// ConfigSource provides tier rules, re-read every cycle.
type ConfigSource interface {
	Get(ctx context.Context, tier string) (tierconfig.TierConfig, error)
}

// Registry resolves the submitting member's connection and tier.
type Registry interface {
	Get(ctx context.Context, chatID string) (*registry.Connection, error)
}

// Projection is rebuilt after a cycle that changed balances; staleness is
// bounded to one cycle.
type Projection interface {
	Rebuild(ctx context.Context) error
}

// Report summarizes one reconciliation cycle.
type Report struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Open        int       `json:"open"`
	Processed   int       `json:"processed"`
	Closed      int       `json:"closed"`
	Failed      int       `json:"failed"`
	Credits     int       `json:"credits"`
	Points      int64     `json:"points"`
	RateLimited bool      `json:"rate_limited"`
}

// Engine reconciles observed engagement against the lock index and the
// points ledger on a fixed interval, off the request path.
type Engine struct {
	social      SocialClient
	subs        SubmissionStore
	locks       LockIndex
	ledger      Crediter
	configs     ConfigSource
	registry    Registry
	leaderboard Projection
	workers     int
	deadline    time.Duration
	logger      *logrus.Entry
	tracer      trace.Tracer
	running     atomic.Bool
	now         func() time.Time
}

// New creates a reconciliation engine. workers bounds concurrent submission
// processing; deadline is the soft limit for a whole cycle.
func New(sc SocialClient, subs SubmissionStore, locks LockIndex, ledger Crediter, configs ConfigSource, reg Registry, leaderboard Projection, workers int, deadline time.Duration, logger *logrus.Entry) *Engine {
	if workers < 1 {
		workers = 4
	}
	if deadline <= 0 {
		deadline = 20 * time.Minute
	}
	return &Engine{
		social:      sc,
		subs:        subs,
		locks:       locks,
		ledger:      ledger,
		configs:     configs,
		registry:    reg,
		leaderboard: leaderboard,
		workers:     workers,
		deadline:    deadline,
		logger:      logger,
		tracer:      otel.Tracer("engagepulse/engine"),
		now:         time.Now,
	}
}

// RunCycle executes one reconciliation pass over all open submissions. It
// is re-entrant: completed lock/credit pairs are durable, so a crashed or
// aborted cycle resumes safely on the next run. Overlapping cycles are
// refused rather than queued.
func (e *Engine) RunCycle(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("cycle already running, skipping trigger")
		return nil, ErrCycleInProgress
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "engine.cycle")
	defer span.End()

	report := &Report{StartedAt: e.now()}

	open, err := e.subs.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open submissions: %w", err)
	}
	report.Open = len(open)
	e.logger.WithField("open", len(open)).Info("reconciliation cycle started")

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan *submission.Submission)
	)

	for range e.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				credits, points, closed, err := e.processSubmission(ctx, sub)

				mu.Lock()
				switch {
				case errors.Is(err, social.ErrRateLimited):
					// Abort the remainder cleanly: processed
					// submissions keep their updates, the rest stay
					// open for the next cycle.
					if !report.RateLimited {
						report.RateLimited = true
						e.logger.Warn("upstream rate limit hit, deferring remaining submissions to next cycle")
						cancel()
					}
				case err != nil:
					report.Failed++
					e.logger.WithFields(logrus.Fields{
						"post_id":   sub.PostID,
						"member_id": sub.MemberID,
						"error":     err.Error(),
					}).Warn("submission processing failed")
				default:
					report.Processed++
					report.Credits += credits
					report.Points += points
					if closed {
						report.Closed++
					}
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, sub := range open {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- sub:
		}
	}
	close(jobs)
	wg.Wait()

	if report.Credits > 0 || report.Closed > 0 {
		if err := e.leaderboard.Rebuild(context.WithoutCancel(ctx)); err != nil {
			e.logger.WithError(err).Warn("leaderboard rebuild failed, projection stays stale until next cycle")
		}
	}

	report.CompletedAt = e.now()
	span.SetAttributes(
		attribute.Int("cycle.processed", report.Processed),
		attribute.Int("cycle.credits", report.Credits),
		attribute.Int64("cycle.points", report.Points),
		attribute.Bool("cycle.rate_limited", report.RateLimited),
	)
	e.logger.WithFields(logrus.Fields{
		"open":         report.Open,
		"processed":    report.Processed,
		"closed":       report.Closed,
		"failed":       report.Failed,
		"credits":      report.Credits,
		"points":       report.Points,
		"rate_limited": report.RateLimited,
		"duration":     report.CompletedAt.Sub(report.StartedAt).String(),
	}).Info("reconciliation cycle completed")
	return report, nil
}

// processSubmission polls one submission, credits newly observed
// interactions exactly once, then advances the cumulative counters. Lock
// and credit processing strictly precedes the counter update so a crash
// in between re-derives consistent state from the lock index.
func (e *Engine) processSubmission(ctx context.Context, sub *submission.Submission) (credits int, points int64, closed bool, err error) {
	now := e.now()
	closed = sub.Expired(now)

	if closed {
		// Past the horizon: terminal transition only, no further polling.
		if err := e.subs.UpdateMetrics(ctx, sub.PostID, sub.MemberID, sub.Likes, sub.Reshares, sub.Replies, true); err != nil {
			return 0, 0, false, fmt.Errorf("close submission: %w", err)
		}
		return 0, 0, true, nil
	}

	eng, err := e.social.Fetch(ctx, sub.PostID)
	if errors.Is(err, social.ErrPostGone) {
		// Deleted upstream: close it, keep the record for audit.
		e.logger.WithField("post_id", sub.PostID).Info("post deleted upstream, closing submission")
		if err := e.subs.UpdateMetrics(ctx, sub.PostID, sub.MemberID, sub.Likes, sub.Reshares, sub.Replies, true); err != nil {
			return 0, 0, false, fmt.Errorf("close submission: %w", err)
		}
		return 0, 0, true, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	conn, err := e.registry.Get(ctx, sub.MemberID)
	if err != nil {
		if errors.Is(err, registry.ErrNotLinked) {
			// Orphaned submission (member purged): no one to credit,
			// just advance the counters.
			if err := e.subs.UpdateMetrics(ctx, sub.PostID, sub.MemberID, eng.Likes, eng.Reshares, eng.Replies, false); err != nil {
				return 0, 0, false, fmt.Errorf("update metrics: %w", err)
			}
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("resolve member: %w", err)
	}

	// Rules are read fresh every cycle; an admin change to rewards takes
	// effect on the next cycle without a restart.
	cfg, err := e.configs.Get(ctx, conn.Tier)
	if err != nil {
		return 0, 0, false, fmt.Errorf("load tier config: %w", err)
	}

	kinds := []struct {
		name   string
		total  int64
		last   int64
		actors []string
	}{
		{ledgerstore.InteractionLike, eng.Likes, sub.Likes, eng.Likers},
		{ledgerstore.InteractionReshare, eng.Reshares, sub.Reshares, eng.Resharers},
		{ledgerstore.InteractionReply, eng.Replies, sub.Replies, eng.Repliers},
	}

	for _, k := range kinds {
		n, p, err := e.creditKind(ctx, sub, conn, cfg, k.name, k.total, k.last, k.actors)
		if err != nil {
			return credits, points, false, err
		}
		credits += n
		points += p
	}

	if err := e.subs.UpdateMetrics(ctx, sub.PostID, sub.MemberID, eng.Likes, eng.Reshares, eng.Replies, false); err != nil {
		return credits, points, false, fmt.Errorf("update metrics: %w", err)
	}
	return credits, points, false, nil
}

// creditKind drives the lock index for one interaction type. With actor
// data each actor is a lock key; without it, the delta in the cumulative
// count is credited via ordinal keys so re-observing the same total stays
// idempotent through the same index.
func (e *Engine) creditKind(ctx context.Context, sub *submission.Submission, conn *registry.Connection, cfg tierconfig.TierConfig, kind string, total, last int64, actors []string) (int, int64, error) {
	reward := cfg.CreditFor(kind)

	var keys []string
	if actors != nil {
		for _, actor := range actors {
			handle := registry.NormalizeHandle(actor)
			if handle == conn.Handle {
				// Self-engagement never pays.
				continue
			}
			keys = append(keys, handle)
		}
	} else {
		for i := last + 1; i <= total; i++ {
			keys = append(keys, fmt.Sprintf("#%d", i))
		}
	}

	var credits int
	var points int64
	for _, key := range keys {
		ok, err := e.locks.TryLock(ctx, sub.PostID, kind, key)
		if err != nil {
			return credits, points, fmt.Errorf("try lock %s/%s: %w", kind, key, err)
		}
		if !ok {
			// Already paid; the expected path for re-observed interactions.
			continue
		}
		if reward <= 0 {
			continue
		}
		if _, err := e.ledger.Append(ctx, ledgerstore.Entry{
			MemberID: sub.MemberID,
			Delta:    reward,
			Reason:   ledgerstore.ReasonInteractionCredit,
			PostID:   sub.PostID,
			Actor:    "engine",
			Note:     fmt.Sprintf("%s by %s", kind, key),
		}); err != nil {
			return credits, points, fmt.Errorf("credit %s interaction: %w", kind, err)
		}
		credits++
		points += reward
	}
	return credits, points, nil
}
