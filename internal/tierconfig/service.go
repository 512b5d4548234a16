// internal/tierconfig/service.go
package tierconfig

import "context"

// Service defines the interface for the tier configuration store.
type Service interface {
	// Get resolves the rules for a tier. It never fails for a missing
	// tier: payment cycles must not halt on a misconfiguration, so an
	// unknown tier resolves to the built-in fallback.
	Get(ctx context.Context, tier string) (TierConfig, error)
	Set(ctx context.Context, cfg TierConfig) error
	List(ctx context.Context) ([]TierConfig, error)
}
