package pools

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultSimulatedTotal is the starting total boosted stake, in raw units, of
// a simulated pool with no explicit base.
var DefaultSimulatedTotal = decimal.New(1, 14)

// SimulatedSource random-walks each pool's total stake around a base value so
// the APR preview moves during local runs without a backend. Stakes come from
// the embedded StaticSource.
type SimulatedSource struct {
	*StaticSource

	logger     *zap.SugaredLogger
	volatility float64

	mu      sync.Mutex
	rng     *rand.Rand
	base    map[string]calc.PoolAggregate
	current map[string]decimal.Decimal
}

// NewSimulatedSource seeds every catalog pool. The yearly rewards of a pool
// are its catalog fallback, or base yearly when the catalog has none.
func NewSimulatedSource(catalog *Catalog, base calc.PoolAggregate, volatility float64, seed int64, logger *zap.SugaredLogger) *SimulatedSource {
	if volatility <= 0 {
		volatility = 0.002
	}
	if !base.TotalStaked.IsPositive() {
		base.TotalStaked = DefaultSimulatedTotal
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &SimulatedSource{
		StaticSource: NewStaticSource(),
		logger:       logger,
		volatility:   volatility,
		rng:          rand.New(rand.NewSource(seed)),
		base:         make(map[string]calc.PoolAggregate),
		current:      make(map[string]decimal.Decimal),
	}
	for _, p := range catalog.All() {
		agg := base
		if y, ok := p.FallbackYearlyRewards(); ok {
			agg.YearlyRewards = y
		}
		s.base[p.ID] = agg
		s.current[p.ID] = agg.TotalStaked
	}
	return s
}

func (s *SimulatedSource) Name() string {
	return "simulated"
}

// PoolAggregate advances the walk one step and returns the new snapshot.
func (s *SimulatedSource) PoolAggregate(_ context.Context, poolID string) (calc.PoolAggregate, error) {
	s.StaticSource.mu.RLock()
	err := s.StaticSource.err
	s.StaticSource.mu.RUnlock()
	if err != nil {
		return calc.PoolAggregate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.base[poolID]
	if !ok {
		return calc.PoolAggregate{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}

	next := s.current[poolID].Mul(decimal.NewFromFloat(1 + s.step())).RoundDown(0)

	// stay within ±50% of base
	lo := base.TotalStaked.Div(decimal.NewFromInt(2)).RoundDown(0)
	hi := base.TotalStaked.Mul(decimal.NewFromFloat(1.5)).RoundDown(0)
	if next.LessThan(lo) {
		next = lo
	} else if next.GreaterThan(hi) {
		next = hi
	}
	s.current[poolID] = next

	s.logger.Debugw("Simulated pool aggregate", "pool", poolID, "total", next.String())
	return calc.PoolAggregate{TotalStaked: next, YearlyRewards: base.YearlyRewards}, nil
}

// step is a normally distributed relative move, clamped to five sigma.
func (s *SimulatedSource) step() float64 {
	change := s.rng.NormFloat64() * s.volatility
	if s.rng.Float64() < 0.1 {
		change += (s.rng.Float64() - 0.5) * s.volatility * 2
	}

	maxChange := s.volatility * 5
	if change > maxChange {
		change = maxChange
	} else if change < -maxChange {
		change = -maxChange
	}
	return change
}
