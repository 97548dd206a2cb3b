package cache

import (
	"context"
	"time"

	"crofflepos/internal/domain"
)

// AvailabilityCache stores per-store availability snapshots.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) (*domain.AvailabilitySnapshot, bool, error)
	Set(ctx context.Context, key string, value *domain.AvailabilitySnapshot, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type NoopAvailabilityCache struct{}

func (NoopAvailabilityCache) Get(_ context.Context, _ string) (*domain.AvailabilitySnapshot, bool, error) {
	return nil, false, nil
}

func (NoopAvailabilityCache) Set(_ context.Context, _ string, _ *domain.AvailabilitySnapshot, _ time.Duration) error {
	return nil
}

func (NoopAvailabilityCache) Delete(_ context.Context, _ ...string) error {
	return nil
}

// AvailabilityKey is the cache key of a store's snapshot.
func AvailabilityKey(storeID string) string {
	return "croffle:availability:" + storeID
}
