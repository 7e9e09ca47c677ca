package auction

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

// State is the persisted engine history used to rebuild an engine at startup.
type State struct {
	Batches     []model.Batch
	Commitments []model.Commitment
	Balances    []model.Balance
}

// Restore replaces the engine's history with st. The highest batch id becomes
// current; if it is already settled, its successor is opened. Listeners are
// not notified. An empty State leaves the engine untouched. Restored batches
// take the engine's current parameters as their snapshot.
func (e *Engine) Restore(st State) error {
	if len(st.Batches) == 0 {
		return nil
	}
	params := e.Params()

	batches := make(map[uint64]*batchState, len(st.Batches))
	var latest uint64
	for i := range st.Batches {
		b := st.Batches[i].Clone()
		if b.ExecutionOrder == nil {
			b.ExecutionOrder = []int{}
		}
		if b.RevealedOrders == nil {
			b.RevealedOrders = []model.RevealedOrder{}
		}
		if b.Settled {
			if err := VerifyPermutation(b.ExecutionOrder, len(b.RevealedOrders)); err != nil {
				return fmt.Errorf("auction: restore batch %d: %w", b.ID, err)
			}
		}
		batches[b.ID] = newBatchState(b, params)
		if b.ID > latest {
			latest = b.ID
		}
	}

	commitOwners := make(map[common.Hash]uint64, len(st.Commitments))
	for i := range st.Commitments {
		c := st.Commitments[i].Clone()
		bs, ok := batches[c.BatchID]
		if !ok {
			return fmt.Errorf("auction: restore commitment %s: %w: %d", c.ID.Hex(), ErrBatchNotFound, c.BatchID)
		}
		if _, dup := bs.hashes[c.Hash]; dup {
			return fmt.Errorf("auction: restore commitment %s: %w", c.ID.Hex(), ErrDuplicateCommitment)
		}
		bs.commits[c.ID] = c
		bs.hashes[c.Hash] = c.ID
		commitOwners[c.ID] = c.BatchID
	}

	led := newLedger()
	for _, bal := range st.Balances {
		if bal.Amount.IsPositive() {
			led.credit(bal.Address, bal.Amount)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = batches
	e.owners = commitOwners
	e.ledger = led
	e.current = latest
	if last := batches[latest].batch; last.Settled {
		e.openBatch(latest+1, last)
	}

	slog.Info("auction state restored",
		"batches", len(batches),
		"commitments", len(commitOwners),
		"current_batch_id", e.current,
	)
	return nil
}
