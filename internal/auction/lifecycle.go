package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/atmx/auction-engine/internal/model"
)

// Settlement is the outcome of SettleBatch.
type Settlement struct {
	Batch  *model.Batch          // the frozen batch
	Orders []model.RevealedOrder // revealed orders in execution order
	Next   *model.Batch          // the batch opened in its place
}

// AdvancePhase records the COMMIT -> REVEAL transition of the current batch
// once its commit window has passed. It is permissionless and idempotent:
// it reports false when there is nothing to advance.
func (e *Engine) AdvancePhase(_ context.Context) bool {
	e.mu.Lock()
	now := e.now()
	b := e.currentState().batch
	if b.Phase != model.PhaseCommit || now.Before(b.CommitPhaseEnd) {
		e.mu.Unlock()
		return false
	}
	b.Phase = model.PhaseReveal
	ev := e.event(model.EventPhaseAdvanced, b, nil, now)
	e.unlockAndEmit(ev)

	slog.Info("batch phase advanced", "batch_id", ev.BatchID, "phase", model.PhaseReveal)
	return true
}

// SettleBatch freezes batchID, computes its execution order, opens the next
// batch and hands the ordered reveals to the settlement sink.
//
// It is allowed once the reveal window has elapsed, or early when the batch
// is at capacity, fully revealed and has enough contributed entropy.
func (e *Engine) SettleBatch(ctx context.Context, caller common.Address, batchID uint64) (*Settlement, error) {
	e.mu.Lock()
	err := e.checkSettleable(caller, batchID, e.now())
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Block entropy may come from an external source; fetch it without the
	// lock and re-validate afterwards. A concurrent settler wins the race and
	// this call then fails with ErrAlreadySettled.
	var blockEntropy common.Hash
	if e.entropy != nil {
		if blockEntropy, err = e.entropy.Entropy(ctx, batchID); err != nil {
			return nil, fmt.Errorf("auction: block entropy for batch %d: %w", batchID, err)
		}
	}

	e.mu.Lock()
	now := e.now()
	if err := e.checkSettleable(caller, batchID, now); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	bs := e.batches[batchID]
	b := bs.batch
	if e.entropy == nil {
		blockEntropy = e.chainedEntropy(batchID, now)
	}

	seed := ShuffleSeed(b.ID, b.EntropyAccumulator, blockEntropy)
	order := Sequence(b.RevealedOrders, seed)
	if err := VerifyPermutation(order, len(b.RevealedOrders)); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("auction: batch %d: %w", b.ID, err)
	}

	settledAt := now
	b.BlockEntropy = blockEntropy
	b.ShuffleSeed = seed
	b.ExecutionOrder = order
	b.Settled = true
	b.SettledAt = &settledAt
	b.Phase = model.PhaseSettled

	events := []model.Event{e.event(model.EventBatchSettled, b, nil, now)}
	if b.EscrowedBids.IsPositive() {
		bal := e.ledger.credit(bs.params.Treasury, b.EscrowedBids)
		events = append(events, model.Event{
			Type:     model.EventBalanceCredited,
			BatchID:  b.ID,
			Balances: []model.Balance{bal},
			At:       now,
		})
	}
	next := e.openBatch(b.ID+1, b)
	events = append(events, e.event(model.EventBatchOpened, next, nil, now))

	result := &Settlement{
		Batch:  b.Clone(),
		Orders: b.OrderedReveals(),
		Next:   next.Clone(),
	}
	e.unlockAndEmit(events...)

	slog.Info("batch settled",
		"batch_id", result.Batch.ID,
		"commits", result.Batch.CommitCount,
		"reveals", len(result.Orders),
		"shuffle_seed", seed.Hex(),
		"next_batch_id", result.Next.ID,
		"next_commit_duration", result.Next.CommitDuration.String(),
		"next_reveal_duration", result.Next.RevealDuration.String(),
	)

	if e.sink != nil {
		if err := e.sink.Settle(ctx, result.Batch, result.Orders); err != nil {
			slog.Error("settlement sink failed", "batch_id", result.Batch.ID, "err", err)
		}
	}
	return result, nil
}

// checkSettleable validates SettleBatch preconditions. Caller holds the lock.
func (e *Engine) checkSettleable(caller common.Address, batchID uint64, now time.Time) error {
	bs, ok := e.batches[batchID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBatchNotFound, batchID)
	}
	b := bs.batch
	if b.Settled {
		return fmt.Errorf("%w: %d", ErrAlreadySettled, batchID)
	}
	if !bs.params.isSettler(caller) {
		return fmt.Errorf("%w: %s may not settle", ErrUnauthorized, caller.Hex())
	}
	switch phase := PhaseAt(b, now); phase {
	case model.PhaseSettlementReady:
		return nil
	case model.PhaseReveal:
		if earlySettleAllowed(bs) {
			return nil
		}
		return fmt.Errorf("%w: batch %d reveal window ends %s", ErrRevealWindowOpen, b.ID, b.RevealPhaseEnd.Format(time.RFC3339))
	default:
		return fmt.Errorf("%w: batch %d is in %s", ErrPhaseViolation, b.ID, phase)
	}
}

// earlySettleAllowed reports whether a batch in its reveal window may settle
// before the window closes: capacity is bounded and reached, every
// commitment has been revealed, and at least EarlySettleMinReveals secrets
// went into the shuffle seed. Limits come from the batch's own snapshot.
func earlySettleAllowed(bs *batchState) bool {
	b := bs.batch
	capacity := bs.params.MaxOrdersPerBatch
	revealed := len(b.RevealedOrders)
	return capacity > 0 &&
		b.CommitCount >= capacity &&
		revealed == b.CommitCount &&
		revealed >= bs.params.EarlySettleMinReveals
}

// chainedEntropy links a batch to its predecessor's seed and the settlement
// time: keccak256(previous seed || uint256(batchID) || uint256(unix nanos)).
// Caller holds the lock.
func (e *Engine) chainedEntropy(batchID uint64, now time.Time) common.Hash {
	var prevSeed common.Hash
	if prev, ok := e.batches[batchID-1]; ok {
		prevSeed = prev.batch.ShuffleSeed
	}
	return crypto.Keccak256Hash(prevSeed.Bytes(), uint64Word(batchID), uint64Word(uint64(now.UnixNano())))
}
