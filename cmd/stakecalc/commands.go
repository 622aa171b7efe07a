package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/calc"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stakecalc",
		Short:         "Evaluate early staking rewards, boosts and unlock windows offline",
		SilenceUsage: true,
	}
	root.AddCommand(
		newScaleCmd(),
		newUnlockCmd(),
		newAprKCmd(),
		newProjectCmd(),
		newShareCmd(),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newScaleCmd() *cobra.Command {
	var (
		amount   string
		decimals string
		down     bool
	)
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Convert between display and raw token units",
		RunE: func(cmd *cobra.Command, args []string) error {
			fn := calc.ScaleUp
			if down {
				fn = calc.ScaleDown
			}
			return printJSON(cmd, map[string]string{
				"amount":   amount,
				"decimals": decimals,
				"value":    fn(amount, decimals).String(),
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount to convert")
	cmd.Flags().StringVar(&decimals, "decimals", "", "token decimals (empty means 18)")
	cmd.Flags().BoolVar(&down, "down", false, "convert raw units to display units")
	return cmd
}

func newUnlockCmd() *cobra.Command {
	var (
		periodSec int64
		lastOpMs  int64
		windowSec int64
		nowMs     int64
	)
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Compute the next unlock window of a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nowMs == 0 {
				nowMs = time.Now().UnixMilli()
			}
			w := calc.ComputeUnlockWindow(periodSec, lastOpMs, windowSec, nowMs)
			return printJSON(cmd, struct {
				calc.UnlockWindow
				RemainingLockDays string              `json:"remainingLockDays"`
				Countdown         calc.CountdownParts `json:"countdown"`
			}{
				UnlockWindow:      w,
				RemainingLockDays: calc.FormatWithPlaces(calc.RemainingLockDays(w, nowMs), 2),
				Countdown:         calc.Countdown(w, nowMs),
			})
		},
	}
	cmd.Flags().Int64Var(&periodSec, "period", 0, "staking period in seconds")
	cmd.Flags().Int64Var(&lastOpMs, "last-op", 0, "last operation time in epoch ms")
	cmd.Flags().Int64Var(&windowSec, "window", 0, "unlock window in seconds")
	cmd.Flags().Int64Var(&nowMs, "now", 0, "evaluation time in epoch ms (default current time)")
	return cmd
}

func newAprKCmd() *cobra.Command {
	var (
		days  string
		curve string
	)
	cmd := &cobra.Command{
		Use:   "aprk",
		Short: "Evaluate the boost multiplier for a lock duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := calc.ParseAmount(days)
			if !ok {
				return fmt.Errorf("invalid days %q", days)
			}
			k, ok := calc.NewBoostEngine(nil, 0).AprK(d, calc.BoostCurve(curve))
			if !ok {
				return fmt.Errorf("cannot evaluate curve %q for %s days", curve, days)
			}
			return printJSON(cmd, map[string]string{"days": days, "curve": curve, "aprK": k.String()})
		},
	}
	cmd.Flags().StringVar(&days, "days", "", "lock duration in days")
	cmd.Flags().StringVar(&curve, "curve", "", "boost curve (coefficient or tier list)")
	return cmd
}

func newProjectCmd() *cobra.Command {
	var (
		action         string
		amount         string
		period         string
		existing       string
		remaining      string
		curve          string
		decimals       int
		rewardDecimals int
		total          string
		yearly         string
	)
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project APR and reward for a staking action",
		RunE: func(cmd *cobra.Command, args []string) error {
			act, ok := calc.ParseAction(action)
			if !ok {
				return fmt.Errorf("invalid action %q (stake, add, extend, renew)", action)
			}
			totalD, ok := calc.ParseAmount(total)
			if !ok {
				return fmt.Errorf("invalid total %q", total)
			}
			yearlyD, ok := calc.ParseAmount(yearly)
			if !ok {
				return fmt.Errorf("invalid yearly %q", yearly)
			}
			remainingD, ok := calc.ParseAmount(remaining)
			if !ok {
				remainingD = decimal.Zero
			}

			projection := calc.NewProjector(nil).Project(calc.ProjectionInput{
				Action:              act,
				ExistingStakeAmount: calc.ScaleUp(existing, decimals),
				CandidateAmount:     amount,
				CandidatePeriodDays: period,
				RemainingLockDays:   remainingD,
				Pool:                calc.PoolAggregate{TotalStaked: totalD, YearlyRewards: yearlyD},
				Curve:               calc.BoostCurve(curve),
				Decimals:            decimals,
				RewardDecimals:      rewardDecimals,
			})
			return printJSON(cmd, projection)
		},
	}
	cmd.Flags().StringVar(&action, "action", "stake", "stake, add, extend or renew")
	cmd.Flags().StringVar(&amount, "amount", "", "candidate amount in display units")
	cmd.Flags().StringVar(&period, "period", "", "candidate lock period in days")
	cmd.Flags().StringVar(&existing, "existing", "", "existing stake in display units")
	cmd.Flags().StringVar(&remaining, "remaining", "0", "remaining lock days of the existing stake")
	cmd.Flags().StringVar(&curve, "curve", "", "boost curve")
	cmd.Flags().IntVar(&decimals, "decimals", 8, "stake token decimals")
	cmd.Flags().IntVar(&rewardDecimals, "reward-decimals", 8, "reward token decimals")
	cmd.Flags().StringVar(&total, "total", "0", "pool total boosted stake in raw units")
	cmd.Flags().StringVar(&yearly, "yearly", "0", "pool yearly rewards in raw units")
	return cmd
}

func newShareCmd() *cobra.Command {
	var tokens []string
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Estimate the pool share of a liquidity deposit",
		Long:  "Each --token is amount:decimals:reserve, with reserve in raw units.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := make([]calc.ShareInput, 0, len(tokens))
			for _, t := range tokens {
				in, err := parseShareToken(t)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}
			return printJSON(cmd, map[string]string{"share": calc.EstimatedShare(inputs)})
		},
	}
	cmd.Flags().StringArrayVar(&tokens, "token", nil, "amount:decimals:reserve (repeatable)")
	return cmd
}

func parseShareToken(s string) (calc.ShareInput, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return calc.ShareInput{}, fmt.Errorf("invalid token %q, want amount:decimals:reserve", s)
	}
	dec, ok := calc.ParseAmount(parts[1])
	if !ok || !dec.IsInteger() {
		return calc.ShareInput{}, fmt.Errorf("invalid decimals in %q", s)
	}
	return calc.ShareInput{Amount: parts[0], Decimals: int(dec.IntPart()), Reserve: parts[2]}, nil
}
