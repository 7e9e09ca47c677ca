package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

const bpsDenominator = 10_000

// SlashResult reports how a forfeited deposit was split.
type SlashResult struct {
	Commitment    *model.Commitment `json:"commitment"`
	TreasuryShare decimal.Decimal   `json:"treasury_share"`
	CallerShare   decimal.Decimal   `json:"caller_share"`
}

// Slash forfeits the deposit of a commitment that was never revealed.
// Permissionless: anyone may call it once the commitment's batch is settled.
// The deposit is split SlashTreasuryBps to the treasury and the rest to the
// caller; a zero caller (protocol-operated cleanup) sends everything to the
// treasury.
func (e *Engine) Slash(_ context.Context, caller common.Address, commitID common.Hash) (*SlashResult, error) {
	e.mu.Lock()
	now := e.now()
	bs, c, err := e.lookup(commitID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if !bs.batch.Settled {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %d not settled", ErrNotSlashable, c.BatchID)
	}
	if c.Status != model.StatusPending {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrNotSlashable, c.Status)
	}

	treasuryShare := c.Deposit.
		Mul(decimal.NewFromInt(bs.params.SlashTreasuryBps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		Floor()
	if caller == (common.Address{}) {
		treasuryShare = c.Deposit
	}
	callerShare := c.Deposit.Sub(treasuryShare)

	c.Status = model.StatusSlashed

	var balances []model.Balance
	if treasuryShare.IsPositive() {
		balances = append(balances, e.ledger.credit(bs.params.Treasury, treasuryShare))
	}
	if callerShare.IsPositive() {
		balances = append(balances, e.ledger.credit(caller, callerShare))
	}

	ev := e.event(model.EventCommitmentSlashed, nil, c, now)
	ev.Balances = balances
	result := &SlashResult{
		Commitment:    c.Clone(),
		TreasuryShare: treasuryShare,
		CallerShare:   callerShare,
	}
	e.unlockAndEmit(ev)

	slog.Info("commitment slashed",
		"batch_id", result.Commitment.BatchID,
		"commit_id", commitID.Hex(),
		"slasher", caller.Hex(),
		"treasury_share", treasuryShare.String(),
		"caller_share", callerShare.String(),
	)
	return result, nil
}

// WithdrawDeposit refunds the deposit of a revealed commitment to its owner
// once the batch has settled. Each deposit can be refunded once.
func (e *Engine) WithdrawDeposit(_ context.Context, caller common.Address, commitID common.Hash) (*model.Commitment, error) {
	e.mu.Lock()
	now := e.now()
	bs, c, err := e.lookup(commitID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if c.Depositor != caller {
		e.mu.Unlock()
		return nil, ErrNotCommitOwner
	}
	switch {
	case !bs.batch.Settled:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %d not settled", ErrNotRefundable, c.BatchID)
	case c.Status != model.StatusRevealed:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrNotRefundable, c.Status)
	case c.Refunded:
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: already refunded", ErrNotRefundable)
	}

	c.Refunded = true
	bal := e.ledger.credit(caller, c.Deposit)

	ev := e.event(model.EventDepositRefunded, nil, c, now)
	ev.Balances = []model.Balance{bal}
	out := c.Clone()
	e.unlockAndEmit(ev)

	slog.Info("deposit refunded", "commit_id", commitID.Hex(), "depositor", caller.Hex(), "amount", out.Deposit.String())
	return out, nil
}

// Claim zeroes addr's withdrawable balance and returns the amount. Moving
// the funds out is the caller's custody layer.
func (e *Engine) Claim(_ context.Context, addr common.Address) decimal.Decimal {
	e.mu.Lock()
	amount := e.ledger.claim(addr)
	if amount.IsZero() {
		e.mu.Unlock()
		return amount
	}
	ev := model.Event{
		Type:     model.EventBalanceCredited,
		Balances: []model.Balance{{Address: addr, Amount: decimal.Zero}},
		At:       e.now(),
	}
	e.unlockAndEmit(ev)

	slog.Info("balance claimed", "address", addr.Hex(), "amount", amount.String())
	return amount
}
