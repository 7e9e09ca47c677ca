package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

// CurrentBatchID returns the id of the batch accepting commitments or reveals.
func (e *Engine) CurrentBatchID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// CurrentBatch returns a copy of the current batch.
func (e *Engine) CurrentBatch() *model.Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentState().batch.Clone()
}

// CurrentPhase reports the phase clock for the current batch.
func (e *Engine) CurrentPhase() model.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return PhaseAt(e.currentState().batch, e.now())
}

// Batch returns a copy of batch id.
func (e *Engine) Batch(id uint64) (*model.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs, ok := e.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	return bs.batch.Clone(), nil
}

// ExecutionOrder returns the settled execution order of batch id.
func (e *Engine) ExecutionOrder(id uint64) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs, ok := e.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	if !bs.batch.Settled {
		return nil, fmt.Errorf("%w: batch %d not settled", ErrPhaseViolation, id)
	}
	return append([]int{}, bs.batch.ExecutionOrder...), nil
}

// RevealedOrders returns the reveals of batch id in arrival order.
func (e *Engine) RevealedOrders(id uint64) ([]model.RevealedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs, ok := e.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	return append([]model.RevealedOrder{}, bs.batch.RevealedOrders...), nil
}

// Commitment returns a copy of the commitment with the given id.
func (e *Engine) Commitment(commitID common.Hash) (*model.Commitment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, c, err := e.lookup(commitID)
	if err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

// Commitments returns copies of every commitment in batch id.
func (e *Engine) Commitments(id uint64) ([]model.Commitment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bs, ok := e.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBatchNotFound, id)
	}
	out := make([]model.Commitment, 0, len(bs.commits))
	for _, c := range bs.commits {
		out = append(out, *c.Clone())
	}
	return out, nil
}

// Balance returns addr's withdrawable balance.
func (e *Engine) Balance(addr common.Address) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.balance(addr)
}

// Params returns a copy of the active parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.clone()
}

// UpdateParams replaces the engine parameters. Only the owner may call it.
// The current batch keeps its boundaries; new values apply from the next one.
func (e *Engine) UpdateParams(_ context.Context, caller common.Address, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.owner == (common.Address{}) || caller != e.owner {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	e.params = p.clone()
	ev := model.Event{Type: model.EventParamsUpdated, BatchID: e.current, At: e.now()}
	e.unlockAndEmit(ev)

	slog.Info("auction params updated",
		"min_deposit", p.MinDeposit.String(),
		"commit_duration", p.CommitDuration.String(),
		"reveal_duration", p.RevealDuration.String(),
		"adaptive", p.Adaptive.Enabled,
	)
	return nil
}
