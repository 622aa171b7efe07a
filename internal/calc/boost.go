package calc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

// BoostCurve is the pool-specific fixedBoostFactor. Its shape is owned by the
// evaluator; the engine only passes it through.
type BoostCurve string

var (
	ErrInvalidCurve = errors.New("invalid boost curve")
	ErrInvalidDays  = errors.New("invalid lock duration")
)

// CurveEvaluator maps a lock duration in days to an aprK multiplier.
type CurveEvaluator interface {
	Evaluate(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error)
}

// CurveFunc adapts a plain function to CurveEvaluator.
type CurveFunc func(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error)

func (f CurveFunc) Evaluate(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error) {
	return f(days, curve)
}

// LinearCurve reads the curve as a single factor f: aprK = 1 + f × days.
type LinearCurve struct{}

func (LinearCurve) Evaluate(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error) {
	if days.IsNegative() {
		return decimal.Zero, ErrInvalidDays
	}
	f, ok := ParseAmount(string(curve))
	if !ok || f.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidCurve, curve)
	}
	return decimal.NewFromInt(1).Add(f.Mul(days)), nil
}

// TieredCurve reads the curve as "days:k,days:k,...". The multiplier is the k of
// the largest tier not above the duration, 1 below the first tier.
type TieredCurve struct{}

type tier struct {
	days decimal.Decimal
	k    decimal.Decimal
}

func parseTiers(curve BoostCurve) ([]tier, error) {
	parts := strings.Split(string(curve), ",")
	tiers := make([]tier, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		dayStr, kStr, found := strings.Cut(p, ":")
		if !found {
			return nil, fmt.Errorf("%w: tier %q", ErrInvalidCurve, p)
		}
		d, ok := ParseAmount(dayStr)
		if !ok || d.IsNegative() {
			return nil, fmt.Errorf("%w: tier days %q", ErrInvalidCurve, dayStr)
		}
		k, ok := ParseAmount(kStr)
		if !ok || k.IsNegative() {
			return nil, fmt.Errorf("%w: tier multiplier %q", ErrInvalidCurve, kStr)
		}
		tiers = append(tiers, tier{days: d, k: k})
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidCurve)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].days.LessThan(tiers[j].days) })
	return tiers, nil
}

func (TieredCurve) Evaluate(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error) {
	if days.IsNegative() {
		return decimal.Zero, ErrInvalidDays
	}
	tiers, err := parseTiers(curve)
	if err != nil {
		return decimal.Zero, err
	}
	k := decimal.NewFromInt(1)
	for _, t := range tiers {
		if days.LessThan(t.days) {
			break
		}
		k = t.k
	}
	return k, nil
}

// AutoCurve dispatches on the curve shape: tiered when it contains ':', linear otherwise.
type AutoCurve struct{}

func (AutoCurve) Evaluate(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, error) {
	if strings.Contains(string(curve), ":") {
		return TieredCurve{}.Evaluate(days, curve)
	}
	return LinearCurve{}.Evaluate(days, curve)
}

// StakePosition is one stakeInfo of a staker inside a pool. Amounts are raw units.
type StakePosition struct {
	PeriodSec     int64           `json:"period"`
	StakedAmount  decimal.Decimal `json:"stakedAmount"`
	BoostedAmount decimal.Decimal `json:"boostedAmount"`
}

// PeriodDays converts the on-chain seconds period to the days aprK expects.
func (p StakePosition) PeriodDays() decimal.Decimal {
	return decimal.NewFromInt(p.PeriodSec).Div(decimal.NewFromInt(SecondsPerDay))
}

type memoKey struct {
	days  string
	curve BoostCurve
}

// BoostEngine evaluates aprK through an injected curve and memoizes results.
type BoostEngine struct {
	eval CurveEvaluator
	memo *lru.Cache[memoKey, decimal.Decimal]
}

// NewBoostEngine builds an engine. A nil evaluator selects AutoCurve;
// cacheSize <= 0 disables memoization.
func NewBoostEngine(eval CurveEvaluator, cacheSize int) *BoostEngine {
	if eval == nil {
		eval = AutoCurve{}
	}
	e := &BoostEngine{eval: eval}
	if cacheSize > 0 {
		if memo, err := lru.New[memoKey, decimal.Decimal](cacheSize); err == nil {
			e.memo = memo
		}
	}
	return e
}

// AprK returns the multiplier for a lock of days under curve. False means the
// duration or curve could not be evaluated.
func (e *BoostEngine) AprK(days decimal.Decimal, curve BoostCurve) (decimal.Decimal, bool) {
	if days.IsNegative() {
		return decimal.Zero, false
	}
	key := memoKey{days: days.String(), curve: curve}
	if e.memo != nil {
		if k, ok := e.memo.Get(key); ok {
			return k, true
		}
	}
	k, err := e.eval.Evaluate(days, curve)
	if err != nil || k.IsNegative() {
		return decimal.Zero, false
	}
	if e.memo != nil {
		e.memo.Add(key, k)
	}
	return k, true
}

// PositionRate is the effective multiplier of one position: aprK of its period,
// or boosted/staked when the curve cannot be evaluated.
func (e *BoostEngine) PositionRate(p StakePosition, curve BoostCurve) (decimal.Decimal, bool) {
	if k, ok := e.AprK(p.PeriodDays(), curve); ok {
		return k, true
	}
	if p.StakedAmount.IsPositive() {
		return p.BoostedAmount.Div(p.StakedAmount), true
	}
	return decimal.Zero, false
}

// WeightedAverageAprK is the staked-amount weighted mean multiplier of positions.
//
// With no usable positions it returns hint, or false when hint is nil ("no data").
// A hint next to real positions is a rate whose weight is not known yet; it is
// blended in with the mean weight of the existing positions.
func (e *BoostEngine) WeightedAverageAprK(positions []StakePosition, curve BoostCurve, hint *decimal.Decimal) (decimal.Decimal, bool) {
	var (
		weighted = decimal.Zero
		total    = decimal.Zero
		n        int64
		only     decimal.Decimal
	)
	for _, p := range positions {
		if !p.StakedAmount.IsPositive() {
			continue
		}
		rate, ok := e.PositionRate(p, curve)
		if !ok {
			continue
		}
		weighted = weighted.Add(rate.Mul(p.StakedAmount))
		total = total.Add(p.StakedAmount)
		only = rate
		n++
	}

	if n == 0 {
		if hint != nil {
			return *hint, true
		}
		return decimal.Zero, false
	}
	if hint != nil {
		meanWeight := total.Div(decimal.NewFromInt(n))
		weighted = weighted.Add(hint.Mul(meanWeight))
		total = total.Add(meanWeight)
	} else if n == 1 {
		return only, true
	}
	if total.IsZero() {
		return decimal.Zero, false
	}
	return weighted.Div(total), true
}

// Boosted returns staked × aprK(period) for a position.
func (e *BoostEngine) Boosted(p StakePosition, curve BoostCurve) (decimal.Decimal, bool) {
	k, ok := e.AprK(p.PeriodDays(), curve)
	if !ok {
		return decimal.Zero, false
	}
	return p.StakedAmount.Mul(k), true
}

// Reperiod returns copies of positions locked for newPeriodSec(p) seconds with
// boosted amounts recomputed under curve.
func (e *BoostEngine) Reperiod(positions []StakePosition, curve BoostCurve, newPeriodSec func(StakePosition) int64) ([]StakePosition, bool) {
	out := make([]StakePosition, 0, len(positions))
	for _, p := range positions {
		np := StakePosition{PeriodSec: newPeriodSec(p), StakedAmount: p.StakedAmount}
		boosted, ok := e.Boosted(np, curve)
		if !ok {
			return nil, false
		}
		np.BoostedAmount = boosted
		out = append(out, np)
	}
	return out, true
}
