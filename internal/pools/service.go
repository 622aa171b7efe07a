package pools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	catalog *Catalog
	source  Source
	cache   *store.Cache
	ttl     time.Duration
	logger  *zap.SugaredLogger
	sf      singleflight.Group
}

func NewService(catalog *Catalog, source Source, cache *store.Cache, ttl time.Duration, logger *zap.SugaredLogger) *Service {
	return &Service{
		catalog: catalog,
		source:  source,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) Source() Source {
	return s.source
}

func (s *Service) Pool(id string) (Pool, error) {
	return s.catalog.Get(id)
}

// Aggregate returns the pool denominators, cache first.
func (s *Service) Aggregate(ctx context.Context, poolID string) (calc.PoolAggregate, error) {
	pool, err := s.catalog.Get(poolID)
	if err != nil {
		return calc.PoolAggregate{}, err
	}

	result, err, _ := s.sf.Do("agg:"+poolID, func() (interface{}, error) {
		var cached calc.PoolAggregate
		if err := s.cache.Get(ctx, store.PoolAggregateKey(poolID), &cached); err == nil {
			return cached, nil
		}
		return s.fetchAggregate(ctx, pool)
	})
	if err != nil {
		return calc.PoolAggregate{}, err
	}
	return result.(calc.PoolAggregate), nil
}

// Refresh bypasses the cache and stores the fresh aggregate.
func (s *Service) Refresh(ctx context.Context, poolID string) (calc.PoolAggregate, error) {
	pool, err := s.catalog.Get(poolID)
	if err != nil {
		return calc.PoolAggregate{}, err
	}
	result, err, _ := s.sf.Do("refresh:"+poolID, func() (interface{}, error) {
		return s.fetchAggregate(ctx, pool)
	})
	if err != nil {
		return calc.PoolAggregate{}, err
	}
	return result.(calc.PoolAggregate), nil
}

func (s *Service) fetchAggregate(ctx context.Context, pool Pool) (calc.PoolAggregate, error) {
	agg, err := s.source.PoolAggregate(ctx, pool.ID)
	if err != nil {
		s.logger.Errorw("Failed to fetch pool aggregate", "pool", pool.ID, "source", s.source.Name(), "error", err)
		return calc.PoolAggregate{}, fmt.Errorf("failed to fetch aggregate for pool %s: %w", pool.ID, err)
	}
	if agg.YearlyRewards.IsZero() {
		if fallback, ok := pool.FallbackYearlyRewards(); ok {
			agg.YearlyRewards = fallback
		}
	}

	if err := s.cache.Set(ctx, store.PoolAggregateKey(pool.ID), agg, s.ttl); err != nil {
		s.logger.Warnw("Failed to cache pool aggregate", "pool", pool.ID, "error", err)
	}
	return agg, nil
}

// UserStake returns the staker's positions in poolID, cache first.
func (s *Service) UserStake(ctx context.Context, poolID, address string) (UserStake, error) {
	if _, err := s.catalog.Get(poolID); err != nil {
		return UserStake{}, err
	}
	if address == "" {
		return UserStake{}, nil
	}

	key := store.UserStakeKey(poolID, address)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		var cached UserStake
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}

		us, err := s.source.UserStake(ctx, poolID, address)
		if errors.Is(err, ErrPoolNotFound) {
			return UserStake{}, nil
		}
		if err != nil {
			s.logger.Errorw("Failed to fetch user stake", "pool", poolID, "address", address, "error", err)
			return nil, fmt.Errorf("failed to fetch stake for %s: %w", address, err)
		}
		if err := s.cache.Set(ctx, key, us, s.ttl); err != nil {
			s.logger.Warnw("Failed to cache user stake", "pool", poolID, "error", err)
		}
		return us, nil
	})
	if err != nil {
		return UserStake{}, err
	}
	return result.(UserStake), nil
}

// Invalidate drops the cached stake after the staker acted on chain.
func (s *Service) Invalidate(ctx context.Context, poolID, address string) error {
	return s.cache.Delete(ctx, store.UserStakeKey(poolID, address))
}
