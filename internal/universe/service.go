package universe

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/pkg/logger"
	"github.com/wonny/stockleague/backend/pkg/redis"
)

// DefaultAllowlist is the hardcoded fallback universe used when the
// durable store cannot produce a ticker list
var DefaultAllowlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B",
	"JPM", "V", "UNH", "JNJ", "XOM", "PG", "SPY",
}

// Service caches the investable universe in-process (and optionally in
// Redis) so the warm scheduler can consult it cheaply
type Service struct {
	loader    contracts.UniverseLoader
	sideCache *redis.Cache // optional
	allowlist []string
	ttl       time.Duration
	logger    *logger.Logger

	mu       sync.Mutex
	cached   *contracts.Universe
	cachedAt time.Time

	now func() time.Time
}

// NewService creates a universe service. sideCache may be nil.
func NewService(loader contracts.UniverseLoader, sideCache *redis.Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		loader:    loader,
		sideCache: sideCache,
		allowlist: DefaultAllowlist,
		ttl:       ttl,
		logger:    log,
		now:       time.Now,
	}
}

// Load returns the current universe, cached for the configured TTL.
// When the store is unreachable it falls back to the allowlist so
// warming degrades instead of stopping.
func (s *Service) Load(ctx context.Context) (*contracts.Universe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.cachedAt) < s.ttl {
		return s.cached, nil
	}

	if s.sideCache != nil {
		var cached contracts.Universe
		if found, err := s.sideCache.Get(ctx, redis.UniverseKey(), &cached); err == nil && found && len(cached.Tickers) > 0 {
			s.cached = &cached
			s.cachedAt = s.now()
			return s.cached, nil
		}
	}

	u, err := s.loader.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Universe load failed")
		if len(s.allowlist) > 0 {
			fallback := &contracts.Universe{
				SnapshotID: "allowlist",
				Tickers:    append([]string(nil), s.allowlist...),
			}
			// Not cached: the real universe should win as soon as the
			// store recovers
			return fallback, nil
		}
		return nil, err
	}

	s.cached = u
	s.cachedAt = s.now()

	if s.sideCache != nil {
		_ = s.sideCache.Set(ctx, redis.UniverseKey(), u, s.ttl)
	}

	s.logger.WithFields(map[string]interface{}{
		"snapshot_id": u.SnapshotID,
		"count":       len(u.Tickers),
	}).Debug("Loaded universe")

	return u, nil
}
