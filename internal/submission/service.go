// internal/submission/service.go
package submission

import (
	"context"

	"engagepulse/internal/registry"
	"engagepulse/internal/tierconfig"
)

// Service defines the interface for the submission gatekeeper.
type Service interface {
	Submit(ctx context.Context, memberID, postID string) (*Submission, error)
	Recent(ctx context.Context, memberID string, limit int) ([]*Submission, error)
}

// Registry resolves a member's connection and tier.
type Registry interface {
	Get(ctx context.Context, chatID string) (*registry.Connection, error)
}

// ConfigSource provides tier rules, read fresh on every call.
type ConfigSource interface {
	Get(ctx context.Context, tier string) (tierconfig.TierConfig, error)
}

// BalanceReader reports a member's current balance from the points ledger.
type BalanceReader interface {
	Balance(ctx context.Context, memberID string) (int64, error)
}

// Store persists submissions and daily counters. Create commits the counter
// increment, the debit transaction and the submission row atomically, and
// re-checks the daily limit under the counter row lock.
type Store interface {
	DailyCount(ctx context.Context, memberID, day string) (int, error)
	Create(ctx context.Context, sub *Submission, cost int64, limit int, day string) error
	ListByMember(ctx context.Context, memberID string, limit int) ([]*Submission, error)
}
