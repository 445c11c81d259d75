package repository

import (
	"context"
	"errors"
	"time"

	"EnergyDash/internal/domain/models"
	"EnergyDash/internal/domain/repository"
	"EnergyDash/pkg/cache"
)

const latestSampleKey = "sample:latest"

// SnapshotCache stores the latest sample in a pkg/cache backend.
type SnapshotCache struct {
	c   cache.Service
	ttl time.Duration
}

// NewSnapshotCache creates a snapshot cache with the given entry TTL.
func NewSnapshotCache(c cache.Service, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{c: c, ttl: ttl}
}

func (s *SnapshotCache) PutLatest(ctx context.Context, smp models.Sample) error {
	return s.c.Set(ctx, latestSampleKey, smp, s.ttl)
}

func (s *SnapshotCache) GetLatest(ctx context.Context) (models.Sample, bool, error) {
	var smp models.Sample
	if err := s.c.Get(ctx, latestSampleKey, &smp); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Sample{}, false, nil
		}
		return models.Sample{}, false, err
	}
	return smp, true, nil
}

var _ repository.SnapshotCache = (*SnapshotCache)(nil)
