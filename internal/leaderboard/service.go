// internal/leaderboard/service.go
package leaderboard

import (
	"context"
	"time"
)

// Standing is one ranked row: balance descending, ties broken by earliest
// account creation.
type Standing struct {
	Rank     int    `json:"rank"`
	MemberID string `json:"member_id"`
	Balance  int64  `json:"balance"`
}

// Service defines the interface for the leaderboard projection. The
// projection is a cache over the points ledger, rebuildable at any time and
// never a source of truth.
type Service interface {
	Rank(ctx context.Context, limit int) ([]Standing, error)
	Rebuild(ctx context.Context) error
	// RebuiltAt reports when the projection was last rebuilt; zero if never.
	RebuiltAt(ctx context.Context) (time.Time, error)
}
