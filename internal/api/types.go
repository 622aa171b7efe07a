package api

import (
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/EcoEarn/ecoearn-interface-sub000/internal/repository"
)

type PoolDTO struct {
	PoolID          string `json:"poolId"`
	Name            string `json:"name"`
	StakeSymbol     string `json:"stakeSymbol,omitempty"`
	RewardSymbol    string `json:"rewardSymbol,omitempty"`
	BoostCurve      string `json:"boostCurve"`
	Decimals        int    `json:"decimals"`
	RewardDecimals  int    `json:"rewardDecimals"`
	UnlockWindowSec int64  `json:"unlockWindow"`
	MinPeriodDays   int64  `json:"minPeriodDays,omitempty"`
	MaxPeriodDays   int64  `json:"maxPeriodDays,omitempty"`
}

type PoolListDTO struct {
	Pools []PoolDTO `json:"pools"`
}

type PoolDetailDTO struct {
	PoolDTO
	TotalStaked   string `json:"totalStaked"`
	YearlyRewards string `json:"yearlyRewards"`
	BaseAPR       string `json:"baseApr"`
	AsOf          int64  `json:"asOf"`
}

type HistoryDTO struct {
	PoolID    string                `json:"poolId"`
	Snapshots []repository.Snapshot `json:"snapshots"`
}

// ProjectionRequest is the body of POST /v1/projections/{action}.
// Amount is in display units, PeriodDays in days. Both may be empty.
type ProjectionRequest struct {
	PoolID              string `json:"poolId"`
	Address             string `json:"address,omitempty"`
	Amount              string `json:"amount"`
	PeriodDays          string `json:"periodDays"`
	ExistingStakeAmount string `json:"existingStakeAmount,omitempty"`
}

type UnlockDTO struct {
	calc.UnlockWindow
	RemainingLockDays string              `json:"remainingLockDays"`
	Countdown         calc.CountdownParts `json:"countdown"`
	AsOf              int64               `json:"asOf"`
}

type ShareRequest struct {
	Tokens []calc.ShareInput `json:"tokens"`
}

type ShareDTO struct {
	Share string `json:"share"`
}

type ScaleDTO struct {
	Amount   string `json:"amount"`
	Decimals string `json:"decimals"`
	Value    string `json:"value"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
