package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/store/cache"
)

// Store provides database access to journal entries and the knowledge graph.
type Store struct {
	profile *profile.Profile
	driver  Driver

	weightPolicy WeightPolicy

	// Derived views keyed by user, invalidated whenever that user's graph changes.
	cache cache.CacheService
}

// New creates a new instance of Store with an in-process cache and the weight
// policy named by the profile. An unknown policy falls back to latest-wins.
func New(driver Driver, profile *profile.Profile) *Store {
	policy, err := NewWeightPolicy(profile.GraphWeightPolicy, profile.GraphDecayFactor)
	if err != nil {
		slog.Warn("invalid graph weight policy, using latest", "policy", profile.GraphWeightPolicy, "error", err)
		policy = LatestWeight{}
	}

	return &Store{
		driver:       driver,
		profile:      profile,
		weightPolicy: policy,
		cache: cache.NewLRU(cache.LRUConfig{
			Capacity:        1000,
			DefaultTTL:      10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		}),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Cache returns the cache for derived graph views.
func (s *Store) Cache() cache.CacheService {
	return s.cache
}

// SetCache replaces the view cache, closing the previous one.
func (s *Store) SetCache(c cache.CacheService) {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	s.cache = c
}

// SetWeightPolicy replaces the policy used when an existing edge is mentioned again.
func (s *Store) SetWeightPolicy(p WeightPolicy) {
	s.weightPolicy = p
}

// GraphCacheKey namespaces a cached view of one user's graph.
func GraphCacheKey(userID, view string) string {
	return cache.Key("graph", userID, view)
}

func (s *Store) invalidateGraphViews(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.Key("graph", userID, "*")); err != nil {
		slog.Warn("failed to invalidate graph views", "user_id", userID, "error", err)
	}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.driver.GetDB().PingContext(ctx), "database unreachable")
}

func (s *Store) Close() error {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	return s.driver.Close()
}
