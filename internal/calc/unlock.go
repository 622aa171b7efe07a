package calc

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SecondsPerDay = 86400
	msPerSecond   = 1000
	msPerDay      = SecondsPerDay * msPerSecond

	// maxPeriodSec keeps (period + window) in ms and nowMs + remaining inside int64.
	// Longer periods are locked for all practical purposes.
	maxPeriodSec = math.MaxInt64 / (4 * msPerSecond)
)

func clampPeriod(sec int64) int64 {
	switch {
	case sec < 0:
		return 0
	case sec > maxPeriodSec:
		return maxPeriodSec
	}
	return sec
}

// UnlockWindow is the derived claim window of a staked position.
// UnlockTimestampMs may lie in the recent past while IsUnlocked is true; callers
// must read IsUnlocked rather than compare the timestamp with now.
type UnlockWindow struct {
	UnlockTimestampMs int64 `json:"unlockTime"`
	IsUnlocked        bool  `json:"isUnlocked"`
}

// ComputeUnlockWindow places nowMs inside the repeating cycle of
// stakingPeriodSec locked seconds followed by unlockWindowSec unlocked seconds,
// starting at lastOperationMs. Period lengths are seconds, instants are epoch ms.
func ComputeUnlockWindow(stakingPeriodSec, lastOperationMs, unlockWindowSec, nowMs int64) UnlockWindow {
	stakingPeriodSec = clampPeriod(stakingPeriodSec)
	unlockWindowSec = clampPeriod(unlockWindowSec)

	cycleMs := (stakingPeriodSec + unlockWindowSec) * msPerSecond
	if cycleMs <= 0 {
		return UnlockWindow{UnlockTimestampMs: nowMs, IsUnlocked: true}
	}

	phaseMs := (nowMs - lastOperationMs) % cycleMs
	if phaseMs < 0 {
		phaseMs += cycleMs
	}

	remainingMs := stakingPeriodSec*msPerSecond - phaseMs
	return UnlockWindow{
		UnlockTimestampMs: nowMs + remainingMs,
		IsUnlocked:        remainingMs <= 0,
	}
}

// UnlockWindowAt is ComputeUnlockWindow for time values.
func UnlockWindowAt(stakingPeriod time.Duration, lastOperation time.Time, unlockWindow time.Duration, now time.Time) UnlockWindow {
	return ComputeUnlockWindow(
		int64(stakingPeriod/time.Second),
		lastOperation.UnixMilli(),
		int64(unlockWindow/time.Second),
		now.UnixMilli(),
	)
}

// RemainingLockDays is the fractional number of days until the window opens,
// zero once the position is unlocked.
func RemainingLockDays(w UnlockWindow, nowMs int64) decimal.Decimal {
	if w.IsUnlocked || w.UnlockTimestampMs <= nowMs {
		return decimal.Zero
	}
	return decimal.NewFromInt(w.UnlockTimestampMs - nowMs).Div(decimal.NewFromInt(msPerDay))
}

// CountdownParts splits the remaining lock time for a live countdown.
type CountdownParts struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
}

// Countdown returns the time left until the unlock boundary, all zero when unlocked.
func Countdown(w UnlockWindow, nowMs int64) CountdownParts {
	if w.IsUnlocked || w.UnlockTimestampMs <= nowMs {
		return CountdownParts{}
	}
	left := (w.UnlockTimestampMs - nowMs) / msPerSecond
	return CountdownParts{
		Days:    left / SecondsPerDay,
		Hours:   left % SecondsPerDay / 3600,
		Minutes: left % 3600 / 60,
		Seconds: left % 60,
	}
}
