package ws

import (
	"context"
	"errors"
	"net/url"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/staking"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/store"
)

var ErrMissingTarget = errors.New("either poolId and address or stakingPeriod, lastOperationTime and unlockWindow are required")

// CountdownParams selects what a stream counts down to. Either PoolID and
// Address are set, or the raw window parameters are.
type CountdownParams struct {
	PoolID           string `json:"poolId,omitempty"`
	Address          string `json:"address,omitempty"`
	StakingPeriodSec int64  `json:"stakingPeriod,omitempty"`
	LastOperationMs  int64  `json:"lastOperationTime,omitempty"`
	UnlockWindowSec  int64  `json:"unlockWindow,omitempty"`
}

func (p CountdownParams) raw() bool {
	return p.PoolID == ""
}

// ParseCountdownParams reads stream parameters from a query string. Absent raw
// parameters are an error; unparsable ones count as 0, as on GET /v1/unlock.
func ParseCountdownParams(q url.Values) (CountdownParams, error) {
	p := CountdownParams{
		PoolID:  q.Get("poolId"),
		Address: q.Get("address"),
	}
	if p.PoolID != "" {
		if p.Address == "" {
			return p, ErrMissingTarget
		}
		return p, nil
	}

	fields := []struct {
		name string
		dst  *int64
	}{
		{"stakingPeriod", &p.StakingPeriodSec},
		{"lastOperationTime", &p.LastOperationMs},
		{"unlockWindow", &p.UnlockWindowSec},
	}
	for _, f := range fields {
		v := q.Get(f.name)
		if v == "" {
			return p, ErrMissingTarget
		}
		*f.dst = calc.ParseInt64(v)
	}
	return p, nil
}

// Frame is one countdown tick.
type Frame struct {
	PoolID  string `json:"poolId,omitempty"`
	Address string `json:"address,omitempty"`
	calc.UnlockWindow
	RemainingLockDays string              `json:"remainingLockDays"`
	Countdown         calc.CountdownParts `json:"countdown"`
	NowMs             int64               `json:"now"`
}

// FrameFunc renders the countdown at nowMs.
type FrameFunc func(nowMs int64) Frame

// Resolver turns stream parameters into a frame source.
type Resolver struct {
	staking *staking.Service
}

func NewResolver(svc *staking.Service) *Resolver {
	return &Resolver{staking: svc}
}

// Resolve loads the staker snapshot once; ticks are then computed locally.
// The returned channels carry pool updates relevant to the stream.
func (r *Resolver) Resolve(ctx context.Context, p CountdownParams) (FrameFunc, []string, error) {
	if p.raw() {
		return func(nowMs int64) Frame {
			w := calc.ComputeUnlockWindow(p.StakingPeriodSec, p.LastOperationMs, p.UnlockWindowSec, nowMs)
			return Frame{
				UnlockWindow:      w,
				RemainingLockDays: calc.FormatWithPlaces(calc.RemainingLockDays(w, nowMs), 2),
				Countdown:         calc.Countdown(w, nowMs),
				NowMs:             nowMs,
			}
		}, nil, nil
	}

	pool, err := r.staking.Pools().Pool(p.PoolID)
	if err != nil {
		return nil, nil, err
	}
	us, err := r.staking.Pools().UserStake(ctx, pool.ID, p.Address)
	if err != nil {
		return nil, nil, err
	}
	return func(nowMs int64) Frame {
		st := staking.BuildUnlockStatus(pool, p.Address, us, nowMs)
		return Frame{
			PoolID:            st.PoolID,
			Address:           st.Address,
			UnlockWindow:      st.UnlockWindow,
			RemainingLockDays: st.RemainingLockDays,
			Countdown:         st.Countdown,
			NowMs:             nowMs,
		}
	}, []string{store.PoolChannel(pool.ID)}, nil
}
