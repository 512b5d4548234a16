// internal/tierconfig/implementation.go
package tierconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// service implements the Service interface on Postgres.
type service struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewService creates a new tier configuration service instance.
func NewService(db *sql.DB, logger *logrus.Entry) Service {
	return &service{db: db, logger: logger}
}

// Get reads the tier's rules fresh from the store. A missing tier logs the
// anomaly and falls back to the default rules rather than failing.
func (s *service) Get(ctx context.Context, tier string) (TierConfig, error) {
	cfg, err := s.load(ctx, tier)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.WithFields(logrus.Fields{
			"tier":     tier,
			"fallback": DefaultTier,
		}).Warn("no configuration for tier, using fallback rules")

		// The default tier itself may have a stored override.
		if tier != DefaultTier {
			if cfg, err := s.load(ctx, DefaultTier); err == nil {
				return cfg, nil
			}
		}
		return Fallback(), nil
	}
	if err != nil {
		return TierConfig{}, err
	}
	return cfg, nil
}

func (s *service) load(ctx context.Context, tier string) (TierConfig, error) {
	var cfg TierConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT tier, like_reward, reshare_reward, reply_reward, submission_cost, daily_limit, multiplier, updated_at
		FROM tier_configs
		WHERE tier = $1
	`, tier).Scan(
		&cfg.Tier,
		&cfg.LikeReward,
		&cfg.ReshareReward,
		&cfg.ReplyReward,
		&cfg.SubmissionCost,
		&cfg.DailyLimit,
		&cfg.Multiplier,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TierConfig{}, err
		}
		return TierConfig{}, fmt.Errorf("query tier config: %w", err)
	}
	return cfg, nil
}

// Set validates and writes the whole rule set atomically. Partial writes are
// rejected as a single validation error.
func (s *service) Set(ctx context.Context, cfg TierConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tier_configs (tier, like_reward, reshare_reward, reply_reward, submission_cost, daily_limit, multiplier, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tier) DO UPDATE
		SET like_reward = EXCLUDED.like_reward,
		    reshare_reward = EXCLUDED.reshare_reward,
		    reply_reward = EXCLUDED.reply_reward,
		    submission_cost = EXCLUDED.submission_cost,
		    daily_limit = EXCLUDED.daily_limit,
		    multiplier = EXCLUDED.multiplier,
		    updated_at = NOW()
	`, cfg.Tier, cfg.LikeReward, cfg.ReshareReward, cfg.ReplyReward, cfg.SubmissionCost, cfg.DailyLimit, cfg.Multiplier)
	if err != nil {
		return fmt.Errorf("upsert tier config: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tier":            cfg.Tier,
		"submission_cost": cfg.SubmissionCost,
		"daily_limit":     cfg.DailyLimit,
	}).Info("tier configuration updated")
	return nil
}

// List returns every configured tier.
func (s *service) List(ctx context.Context) ([]TierConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, like_reward, reshare_reward, reply_reward, submission_cost, daily_limit, multiplier, updated_at
		FROM tier_configs
		ORDER BY tier
	`)
	if err != nil {
		return nil, fmt.Errorf("query tier configs: %w", err)
	}
	defer rows.Close()

	var configs []TierConfig
	for rows.Next() {
		var cfg TierConfig
		if err := rows.Scan(
			&cfg.Tier,
			&cfg.LikeReward,
			&cfg.ReshareReward,
			&cfg.ReplyReward,
			&cfg.SubmissionCost,
			&cfg.DailyLimit,
			&cfg.Multiplier,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan tier config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tier configs: %w", err)
	}
	return configs, nil
}
