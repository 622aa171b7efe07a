package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/pools"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidAction = errors.New("invalid action")

// PreviewRequest is the user input of one projection. Amount is in display
// units and PeriodDays in days; both may be empty while the user is typing.
// ExistingStakeAmount is used only when no address is given.
type PreviewRequest struct {
	PoolID              string `json:"poolId"`
	Action              string `json:"action"`
	Address             string `json:"address,omitempty"`
	Amount              string `json:"amount"`
	PeriodDays          string `json:"periodDays"`
	ExistingStakeAmount string `json:"existingStakeAmount,omitempty"`
}

type PreviewResult struct {
	ID     string `json:"id"`
	PoolID string `json:"poolId"`
	calc.Projection
	RemainingLockDays string `json:"remainingLockDays"`
	Computable        bool   `json:"computable"`
}

type UnlockStatus struct {
	PoolID  string `json:"poolId"`
	Address string `json:"address"`
	calc.UnlockWindow
	HasStake          bool                `json:"hasStake"`
	RemainingLockDays string              `json:"remainingLockDays"`
	Countdown         calc.CountdownParts `json:"countdown"`
	StakedAmount      string              `json:"stakedAmount"`
}

type Service struct {
	pools     *pools.Service
	projector *calc.Projector
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewService(poolSvc *pools.Service, projector *calc.Projector, m *metrics.Metrics, logger *zap.SugaredLogger) *Service {
	if projector == nil {
		projector = calc.NewProjector(nil)
	}
	return &Service{
		pools:     poolSvc,
		projector: projector,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Pools() *pools.Service {
	return s.pools
}

func (s *Service) Projector() *calc.Projector {
	return s.projector
}

// Preview projects APR and reward for req against the live pool snapshot.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	action, ok := calc.ParseAction(req.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	pool, err := s.pools.Pool(req.PoolID)
	if err != nil {
		return nil, err
	}
	agg, err := s.pools.Aggregate(ctx, pool.ID)
	if err != nil {
		return nil, err
	}

	in := calc.ProjectionInput{
		Action:              action,
		CandidateAmount:     req.Amount,
		CandidatePeriodDays: req.PeriodDays,
		RemainingLockDays:   decimal.Zero,
		Pool:                agg,
		Curve:               pool.Curve,
		Decimals:            pool.Decimals,
		RewardDecimals:      pool.RewardDecimals,
	}

	if req.Address != "" {
		us, err := s.pools.UserStake(ctx, pool.ID, req.Address)
		if err != nil {
			return nil, err
		}
		in.ExistingPositions = us.Positions
		in.ExistingStakeAmount = us.StakedTotal()
		if us.HasStake() {
			nowMs := s.now().UnixMilli()
			w := calc.ComputeUnlockWindow(us.LockPeriodSec(), us.LastOperationMs, pool.UnlockWindowSec, nowMs)
			in.RemainingLockDays = calc.RemainingLockDays(w, nowMs)
		}
	} else {
		in.ExistingStakeAmount = calc.ScaleUp(req.ExistingStakeAmount, pool.Decimals)
	}

	projection := s.projector.Project(in)
	if s.metrics != nil {
		s.metrics.RecordProjection(ctx, string(action), projection.Computable())
	}

	result := &PreviewResult{
		ID:                uuid.NewString(),
		PoolID:            pool.ID,
		Projection:        projection,
		RemainingLockDays: calc.FormatWithPlaces(in.RemainingLockDays, 2),
		Computable:        projection.Computable(),
	}
	s.logger.Debugw("Projected reward",
		"id", result.ID,
		"pool", pool.ID,
		"action", action,
		"apr", projection.APR,
		"reward", projection.Reward,
	)
	return result, nil
}

// AprPreview returns the APR a fresh stake of periodDays would earn before an
// amount is known.
func (s *Service) AprPreview(ctx context.Context, poolID, address, periodDays string) (*PreviewResult, error) {
	return s.Preview(ctx, PreviewRequest{
		PoolID:     poolID,
		Action:     string(calc.ActionStake),
		Address:    address,
		PeriodDays: periodDays,
	})
}

// UnlockStatus derives the staker's current unlock window.
func (s *Service) UnlockStatus(ctx context.Context, poolID, address string) (*UnlockStatus, error) {
	pool, err := s.pools.Pool(poolID)
	if err != nil {
		return nil, err
	}
	us, err := s.pools.UserStake(ctx, pool.ID, address)
	if err != nil {
		return nil, err
	}
	return BuildUnlockStatus(pool, address, us, s.now().UnixMilli()), nil
}

// BuildUnlockStatus evaluates the unlock window of us at nowMs.
func BuildUnlockStatus(pool pools.Pool, address string, us pools.UserStake, nowMs int64) *UnlockStatus {
	w := calc.ComputeUnlockWindow(us.LockPeriodSec(), us.LastOperationMs, pool.UnlockWindowSec, nowMs)
	return &UnlockStatus{
		PoolID:            pool.ID,
		Address:           address,
		UnlockWindow:      w,
		HasStake:          us.HasStake(),
		RemainingLockDays: calc.FormatWithPlaces(calc.RemainingLockDays(w, nowMs), 2),
		Countdown:         calc.Countdown(w, nowMs),
		StakedAmount:      calc.FormatWithPlaces(calc.ScaleDown(us.StakedTotal(), pool.Decimals), calc.DefaultRewardPlaces),
	}
}

// Share estimates the pool share a liquidity deposit would own.
func (s *Service) Share(inputs []calc.ShareInput) string {
	return calc.EstimatedShare(inputs)
}
