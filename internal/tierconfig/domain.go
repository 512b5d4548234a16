// internal/tierconfig/domain.go
package tierconfig

import (
	"errors"
	"fmt"
	"math"
	"time"

	"engagepulse/pkg/ledgerstore"
)

// DefaultTier is the hard-coded fallback applied when a member references a
// tier with no configuration record.
const DefaultTier = "micro"

var ErrInvalidConfig = errors.New("invalid tier configuration")

// TierConfig is the per-tier business rule set. Rules are read fresh on
// every submission and every batch cycle; nothing caches them for the
// process lifetime.
type TierConfig struct {
	Tier           string    `json:"tier"`
	LikeReward     int64     `json:"like_reward"`
	ReshareReward  int64     `json:"reshare_reward"`
	ReplyReward    int64     `json:"reply_reward"`
	SubmissionCost int64     `json:"submission_cost"`
	DailyLimit     int       `json:"daily_limit"`
	Multiplier     float64   `json:"multiplier"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Fallback returns the built-in rules for the default tier.
func Fallback() TierConfig {
	return TierConfig{
		Tier:           DefaultTier,
		LikeReward:     10,
		ReshareReward:  35,
		ReplyReward:    20,
		SubmissionCost: 50,
		DailyLimit:     5,
		Multiplier:     1.0,
	}
}

// Validate rejects a partial or out-of-range rule set as a single error;
// a config is written whole or not at all.
func (c TierConfig) Validate() error {
	if c.Tier == "" {
		return fmt.Errorf("%w: tier name is required", ErrInvalidConfig)
	}
	if c.LikeReward < 0 || c.ReshareReward < 0 || c.ReplyReward < 0 {
		return fmt.Errorf("%w: reward values must be non-negative", ErrInvalidConfig)
	}
	if c.SubmissionCost < 0 {
		return fmt.Errorf("%w: submission cost must be non-negative", ErrInvalidConfig)
	}
	if c.DailyLimit < 1 {
		return fmt.Errorf("%w: daily limit must be at least 1", ErrInvalidConfig)
	}
	if c.Multiplier <= 0 {
		return fmt.Errorf("%w: multiplier must be positive", ErrInvalidConfig)
	}
	return nil
}

// RewardFor returns the base reward for one interaction of the given type.
func (c TierConfig) RewardFor(interaction string) int64 {
	switch interaction {
	case ledgerstore.InteractionLike:
		return c.LikeReward
	case ledgerstore.InteractionReshare:
		return c.ReshareReward
	case ledgerstore.InteractionReply:
		return c.ReplyReward
	default:
		return 0
	}
}

// CreditFor applies the tier multiplier to the base reward, rounded to the
// nearest whole point.
func (c TierConfig) CreditFor(interaction string) int64 {
	return int64(math.Round(float64(c.RewardFor(interaction)) * c.Multiplier))
}
