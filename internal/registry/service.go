// internal/registry/service.go
package registry

import "context"

// Service defines the interface for the connection registry.
type Service interface {
	// Link binds a chat id to a handle and tier. Idempotent: re-linking
	// the same chat id updates handle/tier instead of duplicating.
	Link(ctx context.Context, chatID, handle, tier string) (*Connection, error)
	Get(ctx context.Context, chatID string) (*Connection, error)
	// ResolveHandle looks up the chat id for a (normalized) handle via the
	// reverse index.
	ResolveHandle(ctx context.Context, handle string) (string, error)
	SetTier(ctx context.Context, chatID, tier string) (*Connection, error)
	// Purge removes a connection and its reverse index entry. Explicit
	// administrative operation; connections are never deleted otherwise.
	Purge(ctx context.Context, chatID string) error
}
