package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smartpharma/internal/domain"
)

// RecommendationCache caches rendered recommendation responses per season.
// Get reports a miss with ok=false rather than an error, so callers can
// fall through to the store without special-casing.
type RecommendationCache interface {
	Get(ctx context.Context, key string) (*domain.RecommendationResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.RecommendationResponse, ttl time.Duration) error
}

// Key builds the cache key for a season's recommendation list. Seasons are
// a small fixed set, so the plain lowercased name is enough to keep keys
// unique and greppable in redis-cli.
func Key(season string, limit int) string {
	return fmt.Sprintf("pharma:recommendations:%s:%d", strings.ToLower(season), limit)
}

type NoopRecommendationCache struct{}

func (NoopRecommendationCache) Get(_ context.Context, _ string) (*domain.RecommendationResponse, bool, error) {
	return nil, false, nil
}

func (NoopRecommendationCache) Set(_ context.Context, _ string, _ *domain.RecommendationResponse, _ time.Duration) error {
	return nil
}
