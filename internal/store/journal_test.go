package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/store"
)

func TestJournal_RecordsEngineHistory(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	p := auction.DefaultParams()
	p.MinDeposit = decimal.NewFromInt(100)
	e, err := auction.New(p, auction.WithClock(clock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ms := store.NewMemoryStore()
	j := store.NewJournal(ms)
	e.Subscribe(j.Record)

	ctx := context.Background()
	c, err := e.Commit(ctx, alice, common.HexToHash("0xc0ffee"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	now = now.Add(10 * time.Second)
	if _, err := e.SettleBatch(ctx, alice, 1); err != nil {
		t.Fatalf("SettleBatch: %v", err)
	}
	if _, err := e.Slash(ctx, alice, c.ID); err != nil {
		t.Fatalf("Slash: %v", err)
	}

	// A cancelled context makes Run flush the queue and return.
	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := j.Run(runCtx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st, err := store.LoadState(ctx, ms)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(st.Batches) != 2 {
		t.Fatalf("expected batches 1 and 2 journaled, got %d", len(st.Batches))
	}
	if !st.Batches[0].Settled {
		t.Error("batch 1 should be journaled as settled")
	}
	if len(st.Commitments) != 1 || st.Commitments[0].Status != "SLASHED" {
		t.Errorf("expected slashed commitment, got %+v", st.Commitments)
	}

	restored, _ := auction.New(p, auction.WithClock(clock))
	if err := restored.Restore(st); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.CurrentBatchID() != 2 {
		t.Errorf("expected current batch 2, got %d", restored.CurrentBatchID())
	}
}
