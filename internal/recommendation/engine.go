package recommendation

import (
	"context"
	"slices"
	"strings"
	"time"

	"smartpharma/internal/cache"
	"smartpharma/internal/domain"
	"smartpharma/internal/store"
)

const defaultLimit = 20

// Engine suggests medicines for the season a given date falls in.
type Engine struct {
	repo     store.Repository
	cache    cache.RecommendationCache
	cacheTTL time.Duration
	limit    int
}

func NewEngine(repo store.Repository, cacheStore cache.RecommendationCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopRecommendationCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Engine{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		limit:    defaultLimit,
	}
}

// Recommend lists the medicines tagged for the current season. Matching
// uses the tag stored on each medicine, not a fresh category lookup, so
// medicines keep the tag they were saved with until they are edited again.
func (e *Engine) Recommend(ctx context.Context, date time.Time) (*domain.RecommendationResponse, error) {
	season := domain.SeasonForDate(date)

	cacheKey := cache.Key(season, e.limit)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	}

	medicines, err := e.repo.ListMedicines(ctx, "")
	if err != nil {
		return nil, err
	}

	matched := make([]domain.Medicine, 0, len(medicines))
	for _, med := range medicines {
		if med.SeasonalTag == season {
			matched = append(matched, med)
		}
	}

	// In-stock medicines rank ahead of sold-out ones; ties break by name
	// then id so the list is stable between calls.
	slices.SortFunc(matched, func(a, b domain.Medicine) int {
		aOut, bOut := a.Stock < 1, b.Stock < 1
		if aOut != bOut {
			if aOut {
				return 1
			}
			return -1
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})

	if len(matched) > e.limit {
		matched = matched[:e.limit]
	}

	views := make([]domain.MedicineView, 0, len(matched))
	for _, med := range matched {
		views = append(views, domain.MedicineViewFrom(med, date))
	}

	resp := &domain.RecommendationResponse{
		Season:          season,
		Recommendations: views,
		Count:           len(views),
	}

	_ = e.cache.Set(ctx, cacheKey, resp, e.cacheTTL)
	return resp, nil
}
