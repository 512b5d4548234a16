// internal/ledger/service.go
package ledger

import (
	"context"

	"engagepulse/pkg/ledgerstore"
)

// Service defines the ledger operations exposed to the chat and admin
// surfaces. The underlying transaction log is append-only; nothing here
// mutates or deletes recorded facts.
type Service interface {
	Balance(ctx context.Context, memberID string) (int64, error)
	History(ctx context.Context, memberID string, limit int) ([]ledgerstore.Transaction, error)
	// Adjust records a manual correction as a manual-adjustment
	// transaction attributed to the admin actor.
	Adjust(ctx context.Context, memberID string, delta int64, actor, note string) (ledgerstore.Transaction, error)
}
