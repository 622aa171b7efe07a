package calc

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Display sentinels. They are values, not errors: callers render them as placeholders.
const (
	SentinelUnknown = "--"
	SentinelEmpty   = ""
	SentinelTiny    = "<0.01"
)

// RewardYearDays is the protocol reward year. It is 360, not 365.
const RewardYearDays = 360

// DefaultRewardPlaces is the number of display decimals kept on projected rewards.
const DefaultRewardPlaces = 4

var hundred = decimal.NewFromInt(100)

type Action string

const (
	ActionStake  Action = "stake"
	ActionAdd    Action = "add"
	ActionExtend Action = "extend"
	ActionRenew  Action = "renew"
)

// ParseAction normalizes a user supplied action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionStake, ActionAdd, ActionExtend, ActionRenew:
		return a, true
	}
	return "", false
}

// PoolAggregate holds the pool-wide denominators in raw units.
// TotalStaked is the boosted total.
type PoolAggregate struct {
	TotalStaked   decimal.Decimal `json:"totalStaked"`
	YearlyRewards decimal.Decimal `json:"yearlyRewards"`
}

// BaseAPR is the APR of an unboosted stake (aprK = 1) against agg.
func BaseAPR(agg PoolAggregate) string {
	if !agg.TotalStaked.IsPositive() || agg.YearlyRewards.IsNegative() {
		return SentinelUnknown
	}
	return FormatWithPlaces(agg.YearlyRewards.Mul(hundred).Div(agg.TotalStaked), 2)
}

// ProjectionInput is one keystroke worth of preview input.
// CandidateAmount is in display units; CandidatePeriodDays in days.
// Both may be empty or unparsable while the user is typing.
type ProjectionInput struct {
	Action              Action
	ExistingStakeAmount decimal.Decimal
	ExistingPositions   []StakePosition
	CandidateAmount     string
	CandidatePeriodDays string
	RemainingLockDays   decimal.Decimal
	Pool                PoolAggregate
	Curve               BoostCurve
	Decimals            int
	RewardDecimals      int
}

// Projection is the rendered result of a preview.
type Projection struct {
	Action         Action `json:"action"`
	APR            string `json:"apr"`
	Reward         string `json:"reward"`
	RewardRaw      string `json:"rewardRaw"`
	Multiplier     string `json:"aprK"`
	ProjectedTotal string `json:"projectedTotal"`
}

// Computable reports whether the APR could be derived from the input.
func (p Projection) Computable() bool {
	return p.APR != SentinelUnknown
}

// plan is the action specific part of a projection.
type plan struct {
	multiplier decimal.Decimal
	removed    decimal.Decimal // current boosted amounts of affected positions
	added      decimal.Decimal // their recomputed boosted amounts plus new capital
	user       decimal.Decimal // staker's boosted amount after the operation
	rewardDays decimal.Decimal
	rewardable bool
}

// Projector computes owner APR and projected rewards for staking actions.
type Projector struct {
	boost *BoostEngine
}

func NewProjector(boost *BoostEngine) *Projector {
	if boost == nil {
		boost = NewBoostEngine(nil, 0)
	}
	return &Projector{boost: boost}
}

func (p *Projector) Boost() *BoostEngine {
	return p.boost
}

// Project runs the shared projection pipeline for in.Action.
func (p *Projector) Project(in ProjectionInput) Projection {
	out := Projection{
		Action:         in.Action,
		APR:            SentinelUnknown,
		Reward:         SentinelEmpty,
		RewardRaw:      SentinelEmpty,
		Multiplier:     SentinelUnknown,
		ProjectedTotal: SentinelEmpty,
	}

	amount := ScaleUp(in.CandidateAmount, in.Decimals)
	amountKnown := amount.IsPositive()

	period, periodKnown := ParseAmount(in.CandidatePeriodDays)
	periodKnown = periodKnown && period.IsPositive()
	if !periodKnown {
		period = decimal.Zero
	}

	remaining := in.RemainingLockDays
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	var (
		pl plan
		ok bool
	)
	positions := capital(in)
	switch in.Action {
	case ActionStake:
		pl, ok = p.planStake(positions, in.Curve, amount, amountKnown, period, periodKnown)
	case ActionAdd:
		pl, ok = p.planAdd(positions, in.Curve, amount, amountKnown, period, periodKnown, remaining)
	case ActionExtend:
		pl, ok = p.planExtend(positions, in.Curve, period, periodKnown, remaining)
	case ActionRenew:
		pl, ok = p.planRenew(positions, in.Curve, amount, amountKnown, period, periodKnown)
	}
	if !ok {
		return out
	}

	total := in.Pool.TotalStaked.Sub(pl.removed).Add(pl.added)
	yearly := in.Pool.YearlyRewards
	out.Multiplier = pl.multiplier.String()
	if !total.IsPositive() || yearly.IsNegative() {
		return out
	}
	out.ProjectedTotal = total.String()

	apr := yearly.Mul(pl.multiplier).Mul(hundred).Div(total)
	out.APR = FormatWithPlaces(apr, 2)

	if pl.rewardable && pl.user.IsPositive() {
		raw := pl.user.Mul(pl.rewardDays).Mul(yearly).
			Div(total.Mul(decimal.NewFromInt(RewardYearDays))).
			RoundDown(0)
		out.RewardRaw = bigIntString(raw)
		out.Reward = FormatWithPlaces(ScaleDown(raw, in.RewardDecimals), DefaultRewardPlaces)
	}
	return out
}

// capital returns the staker's positions; a bare existing amount without
// stakeInfos is treated as one unboosted position.
func capital(in ProjectionInput) []StakePosition {
	if len(in.ExistingPositions) > 0 {
		return in.ExistingPositions
	}
	if in.ExistingStakeAmount.IsPositive() {
		return []StakePosition{{
			StakedAmount:  in.ExistingStakeAmount,
			BoostedAmount: in.ExistingStakeAmount,
		}}
	}
	return nil
}

func sumBoosted(positions []StakePosition) decimal.Decimal {
	s := decimal.Zero
	for _, p := range positions {
		s = s.Add(p.BoostedAmount)
	}
	return s
}

func sumStaked(positions []StakePosition) decimal.Decimal {
	s := decimal.Zero
	for _, p := range positions {
		s = s.Add(p.StakedAmount)
	}
	return s
}

func daysToSec(days decimal.Decimal) int64 {
	return days.Mul(decimal.NewFromInt(SecondsPerDay)).IntPart()
}

func (p *Projector) planStake(positions []StakePosition, curve BoostCurve, amount decimal.Decimal, amountKnown bool, period decimal.Decimal, periodKnown bool) (plan, bool) {
	if !periodKnown {
		return plan{}, false
	}
	k, ok := p.boost.AprK(period, curve)
	if !ok {
		return plan{}, false
	}
	if !amountKnown {
		// Rate preview before the user typed an amount.
		m, ok := p.boost.WeightedAverageAprK(positions, curve, &k)
		if !ok {
			return plan{}, false
		}
		return plan{multiplier: m}, true
	}
	boosted := amount.Mul(k)
	return plan{
		multiplier: k,
		added:      boosted,
		user:       boosted,
		rewardDays: period,
		rewardable: true,
	}, true
}

func (p *Projector) planAdd(positions []StakePosition, curve BoostCurve, amount decimal.Decimal, amountKnown bool, period decimal.Decimal, periodKnown bool, remaining decimal.Decimal) (plan, bool) {
	switch {
	case amountKnown && !periodKnown:
		k, ok := p.boost.AprK(remaining, curve)
		if !ok {
			return plan{}, false
		}
		// Existing positions keep their period, so only the new capital earns
		// the projected reward.
		boosted := amount.Mul(k)
		return plan{
			multiplier: k,
			added:      boosted,
			user:       boosted,
			rewardDays: remaining,
			rewardable: true,
		}, true

	case periodKnown:
		extra := daysToSec(period)
		moved, ok := p.boost.Reperiod(positions, curve, func(sp StakePosition) int64 { return sp.PeriodSec + extra })
		if !ok {
			return plan{}, false
		}
		pl := plan{
			removed:    sumBoosted(positions),
			added:      sumBoosted(moved),
			rewardDays: remaining.Add(period),
			rewardable: true,
		}
		if !amountKnown {
			m, ok := p.boost.WeightedAverageAprK(moved, curve, nil)
			if !ok {
				return plan{}, false
			}
			pl.multiplier = m
			pl.user = pl.added
			return pl, true
		}

		k, ok := p.boost.AprK(remaining.Add(period), curve)
		if !ok {
			return plan{}, false
		}
		boosted := amount.Mul(k)
		pl.added = pl.added.Add(boosted)
		pl.user = pl.added
		staked := sumStaked(moved).Add(amount)
		if !staked.IsPositive() {
			return plan{}, false
		}
		pl.multiplier = pl.added.Div(staked)
		return pl, true
	}
	return plan{}, false
}

func (p *Projector) planExtend(positions []StakePosition, curve BoostCurve, period decimal.Decimal, periodKnown bool, remaining decimal.Decimal) (plan, bool) {
	if !periodKnown || len(positions) == 0 {
		return plan{}, false
	}
	extra := daysToSec(period)
	moved, ok := p.boost.Reperiod(positions, curve, func(sp StakePosition) int64 { return sp.PeriodSec + extra })
	if !ok {
		return plan{}, false
	}
	m, ok := p.boost.WeightedAverageAprK(moved, curve, nil)
	if !ok {
		return plan{}, false
	}
	added := sumBoosted(moved)
	return plan{
		multiplier: m,
		removed:    sumBoosted(positions),
		added:      added,
		user:       added,
		rewardDays: remaining.Add(period),
		rewardable: true,
	}, true
}

func (p *Projector) planRenew(positions []StakePosition, curve BoostCurve, amount decimal.Decimal, amountKnown bool, period decimal.Decimal, periodKnown bool) (plan, bool) {
	if !periodKnown {
		return plan{}, false
	}
	if len(positions) == 0 && !amountKnown {
		return plan{}, false
	}
	k, ok := p.boost.AprK(period, curve)
	if !ok {
		return plan{}, false
	}
	sec := daysToSec(period)
	renewed, ok := p.boost.Reperiod(positions, curve, func(StakePosition) int64 { return sec })
	if !ok {
		return plan{}, false
	}
	added := sumBoosted(renewed)
	if amountKnown {
		added = added.Add(amount.Mul(k))
	}
	return plan{
		multiplier: k,
		removed:    sumBoosted(positions),
		added:      added,
		user:       added,
		rewardDays: period,
		rewardable: true,
	}, true
}
