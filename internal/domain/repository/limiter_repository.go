package repository

import "context"

// LimiterStore abstracts the storage for rate limiting buckets
type LimiterStore interface {
	// Allow reports whether key may perform an action costing cost
	Allow(ctx context.Context, key string, cost int) (bool, error)
}
