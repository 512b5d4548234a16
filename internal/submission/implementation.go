// internal/submission/implementation.go
package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// service implements the gatekeeper. Cost and limits are read fresh on
// every call so an administrator's configuration change takes effect on the
// very next submission.
type service struct {
	store    Store
	registry Registry
	configs  ConfigSource
	balances BalanceReader
	window   time.Duration
	loc      *time.Location
	logger   *logrus.Entry
	now      func() time.Time
}

// NewService creates a new submission gatekeeper. window is the expiry
// horizon during which engagement on the post is still credited.
func NewService(store Store, reg Registry, configs ConfigSource, balances BalanceReader, window time.Duration, loc *time.Location, logger *logrus.Entry) Service {
	return &service{
		store:    store,
		registry: reg,
		configs:  configs,
		balances: balances,
		window:   window,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit admits or rejects a post submission against the member's tier
// rules, debiting the submission cost on acceptance.
func (s *service) Submit(ctx context.Context, memberID, postID string) (*Submission, error) {
	conn, err := s.registry.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.configs.Get(ctx, conn.Tier)
	if err != nil {
		return nil, fmt.Errorf("load tier config: %w", err)
	}

	now := s.now()
	day := DayKey(now, s.loc)

	used, err := s.store.DailyCount(ctx, memberID, day)
	if err != nil {
		return nil, fmt.Errorf("read daily counter: %w", err)
	}
	if used >= cfg.DailyLimit {
		return nil, &DailyLimitExceededError{Limit: cfg.DailyLimit, Used: used}
	}

	balance, err := s.balances.Balance(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance < cfg.SubmissionCost {
		return nil, &InsufficientBalanceError{Cost: cfg.SubmissionCost, Balance: balance}
	}

	sub := &Submission{
		PostID:      postID,
		MemberID:    memberID,
		SubmittedAt: now,
		ExpiresAt:   now.Add(s.window),
	}
	if err := s.store.Create(ctx, sub, cfg.SubmissionCost, cfg.DailyLimit, day); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"member_id": memberID,
		"post_id":   postID,
		"tier":      conn.Tier,
		"cost":      cfg.SubmissionCost,
		"used":      used + 1,
		"limit":     cfg.DailyLimit,
		"expires":   sub.ExpiresAt,
	}).Info("submission accepted")
	return sub, nil
}

// Recent lists a member's latest submissions.
func (s *service) Recent(ctx context.Context, memberID string, limit int) ([]*Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByMember(ctx, memberID, limit)
}
