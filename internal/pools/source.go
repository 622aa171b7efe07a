package pools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrUpstream = errors.New("upstream error")

// UserStake is a staker's state inside one pool as reported by the backend.
// Amounts are raw units.
type UserStake struct {
	Positions       []calc.StakePosition `json:"stakeInfos"`
	LastOperationMs int64                `json:"lastOperationTime"`
	// StakingPeriodSec is the lock length of the current cycle. When the
	// backend omits it the longest position period is used.
	StakingPeriodSec int64 `json:"stakingPeriod"`
}

// LockPeriodSec returns the staking period driving the unlock window.
func (u UserStake) LockPeriodSec() int64 {
	if u.StakingPeriodSec > 0 {
		return u.StakingPeriodSec
	}
	var maxSec int64
	for _, p := range u.Positions {
		if p.PeriodSec > maxSec {
			maxSec = p.PeriodSec
		}
	}
	return maxSec
}

// StakedTotal sums the raw staked amounts of all positions.
func (u UserStake) StakedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range u.Positions {
		total = total.Add(p.StakedAmount)
	}
	return total
}

func (u UserStake) HasStake() bool {
	return len(u.Positions) > 0
}

// Source provides live pool aggregates and user stakes.
type Source interface {
	PoolAggregate(ctx context.Context, poolID string) (calc.PoolAggregate, error)
	UserStake(ctx context.Context, poolID, address string) (UserStake, error)
	Name() string
	Health() SourceHealth
}

// SourceHealth represents the current status of a source
type SourceHealth struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"lastError,omitempty"`
	LastSuccess time.Time `json:"lastSuccess"`
}

// RESTSource reads aggregates and stakes from the EcoEarn backend.
type RESTSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger

	mu     sync.RWMutex
	health SourceHealth
}

func NewRESTSource(baseURL string, rps float64, timeout time.Duration, logger *zap.SugaredLogger) *RESTSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RESTSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
		health: SourceHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

func (s *RESTSource) Name() string {
	return "rest"
}

func (s *RESTSource) Health() SourceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *RESTSource) updateHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.health.Healthy = err == nil
	if err == nil {
		s.health.LastSuccess = time.Now()
		s.health.LastError = ""
	} else {
		s.health.LastError = err.Error()
	}
}

func (s *RESTSource) PoolAggregate(ctx context.Context, poolID string) (calc.PoolAggregate, error) {
	var agg calc.PoolAggregate
	path := fmt.Sprintf("/pools/%s/rewards", url.PathEscape(poolID))
	if err := s.get(ctx, path, &agg); err != nil {
		return calc.PoolAggregate{}, err
	}
	return agg, nil
}

func (s *RESTSource) UserStake(ctx context.Context, poolID, address string) (UserStake, error) {
	var us UserStake
	path := fmt.Sprintf("/pools/%s/stakes/%s", url.PathEscape(poolID), url.PathEscape(address))
	if err := s.get(ctx, path, &us); err != nil {
		return UserStake{}, err
	}
	return us, nil
}

func (s *RESTSource) get(ctx context.Context, path string, dest any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		s.updateHealth(err)
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.updateHealth(err)
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not a source failure: the pool or staker is unknown upstream.
		s.updateHealth(nil)
		return fmt.Errorf("%w: %s", ErrPoolNotFound, path)
	case resp.StatusCode != http.StatusOK:
		err := fmt.Errorf("%w: %s returned %d", ErrUpstream, path, resp.StatusCode)
		s.updateHealth(err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		s.updateHealth(err)
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}

	s.updateHealth(nil)
	s.logger.Debugw("Fetched from backend", "path", path)
	return nil
}

// StaticSource serves fixed aggregates and stakes. Used for local runs and tests.
type StaticSource struct {
	mu         sync.RWMutex
	aggregates map[string]calc.PoolAggregate
	stakes     map[string]UserStake
	err        error
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		aggregates: make(map[string]calc.PoolAggregate),
		stakes:     make(map[string]UserStake),
	}
}

func stakeKey(poolID, address string) string {
	return poolID + "/" + strings.ToLower(address)
}

func (s *StaticSource) SetAggregate(poolID string, agg calc.PoolAggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates[poolID] = agg
}

func (s *StaticSource) SetStake(poolID, address string, us UserStake) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stakes[stakeKey(poolID, address)] = us
}

// SetError makes every subsequent call fail with err until cleared with nil.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Health() SourceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := SourceHealth{Healthy: s.err == nil, LastSuccess: time.Now()}
	if s.err != nil {
		h.LastError = s.err.Error()
	}
	return h
}

func (s *StaticSource) PoolAggregate(_ context.Context, poolID string) (calc.PoolAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return calc.PoolAggregate{}, s.err
	}
	agg, ok := s.aggregates[poolID]
	if !ok {
		return calc.PoolAggregate{}, fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return agg, nil
}

// UserStake returns an empty stake for unknown stakers.
func (s *StaticSource) UserStake(_ context.Context, poolID, address string) (UserStake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return UserStake{}, s.err
	}
	return s.stakes[stakeKey(poolID, address)], nil
}
