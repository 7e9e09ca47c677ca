package auction

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Params are the owner-gated engine settings. Changes apply from the next
// batch opened; the current batch keeps the boundaries it was opened with.
type Params struct {
	MinDeposit     decimal.Decimal `json:"min_deposit"`
	CommitDuration time.Duration   `json:"commit_duration"`
	RevealDuration time.Duration   `json:"reveal_duration"`

	// MaxOrdersPerBatch caps commitments per batch. 0 means unbounded and
	// disables early settlement.
	MaxOrdersPerBatch int `json:"max_orders_per_batch"`

	// SlashTreasuryBps is the treasury share of a slashed deposit in basis
	// points; the remainder goes to the slasher.
	SlashTreasuryBps int64 `json:"slash_treasury_bps"`

	// EarlySettleMinReveals is the minimum number of secrets that must have
	// contributed entropy before a full batch may settle early.
	EarlySettleMinReveals int `json:"early_settle_min_reveals"`

	Treasury common.Address   `json:"treasury"`
	Settlers []common.Address `json:"settlers"` // empty = permissionless

	Adaptive AdaptiveParams `json:"adaptive"`
}

// AdaptiveParams bound the congestion-driven duration policy.
type AdaptiveParams struct {
	Enabled       bool          `json:"enabled"`
	TargetOrders  int           `json:"target_orders"`
	LowRevealRate float64       `json:"low_reveal_rate"`
	Smoothing     float64       `json:"smoothing"` // EMA alpha in (0, 1]
	MinCommit     time.Duration `json:"min_commit"`
	MaxCommit     time.Duration `json:"max_commit"`
	MinReveal     time.Duration `json:"min_reveal"`
	MaxReveal     time.Duration `json:"max_reveal"`
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{
		MinDeposit:            decimal.NewFromInt(10_000_000_000_000_000), // 0.01 ether
		CommitDuration:        8 * time.Second,
		RevealDuration:        2 * time.Second,
		SlashTreasuryBps:      5000,
		EarlySettleMinReveals: 2,
		Adaptive: AdaptiveParams{
			TargetOrders:  50,
			LowRevealRate: 0.5,
			Smoothing:     0.3,
			MinCommit:     4 * time.Second,
			MaxCommit:     30 * time.Second,
			MinReveal:     1 * time.Second,
			MaxReveal:     10 * time.Second,
		},
	}
}

// Validate checks internal consistency.
func (p Params) Validate() error {
	switch {
	case p.MinDeposit.IsNegative() || !p.MinDeposit.IsInteger():
		return fmt.Errorf("%w: min_deposit must be a non-negative integer", ErrInvalidParams)
	case p.CommitDuration <= 0 || p.RevealDuration <= 0:
		return fmt.Errorf("%w: phase durations must be positive", ErrInvalidParams)
	case p.MaxOrdersPerBatch < 0:
		return fmt.Errorf("%w: max_orders_per_batch must be >= 0", ErrInvalidParams)
	case p.SlashTreasuryBps < 0 || p.SlashTreasuryBps > 10_000:
		return fmt.Errorf("%w: slash_treasury_bps must be in [0, 10000]", ErrInvalidParams)
	case p.EarlySettleMinReveals < 0:
		return fmt.Errorf("%w: early_settle_min_reveals must be >= 0", ErrInvalidParams)
	}
	if a := p.Adaptive; a.Enabled {
		switch {
		case a.TargetOrders <= 0:
			return fmt.Errorf("%w: adaptive.target_orders must be positive", ErrInvalidParams)
		case a.Smoothing <= 0 || a.Smoothing > 1:
			return fmt.Errorf("%w: adaptive.smoothing must be in (0, 1]", ErrInvalidParams)
		case a.MinCommit <= 0 || a.MaxCommit < a.MinCommit:
			return fmt.Errorf("%w: adaptive commit bounds", ErrInvalidParams)
		case a.MinReveal <= 0 || a.MaxReveal < a.MinReveal:
			return fmt.Errorf("%w: adaptive reveal bounds", ErrInvalidParams)
		}
	}
	return nil
}

func (p Params) clone() Params {
	cp := p
	cp.Settlers = append([]common.Address(nil), p.Settlers...)
	return cp
}

func (p Params) isSettler(addr common.Address) bool {
	if len(p.Settlers) == 0 {
		return true
	}
	for _, s := range p.Settlers {
		if s == addr {
			return true
		}
	}
	return false
}
