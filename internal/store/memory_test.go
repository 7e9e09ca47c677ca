package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
	"github.com/atmx/auction-engine/internal/store"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	t0    = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

func testBatch(id uint64, settled bool) *model.Batch {
	b := &model.Batch{
		ID:             id,
		OpenedAt:       t0,
		CommitPhaseEnd: t0.Add(8 * time.Second),
		RevealPhaseEnd: t0.Add(10 * time.Second),
		CommitDuration: 8 * time.Second,
		RevealDuration: 2 * time.Second,
		Phase:          model.PhaseCommit,
		ExecutionOrder: []int{},
		RevealedOrders: []model.RevealedOrder{},
		EscrowedBids:   decimal.Zero,
	}
	if settled {
		at := t0.Add(10 * time.Second)
		b.Settled = true
		b.SettledAt = &at
		b.Phase = model.PhaseSettled
		b.ShuffleSeed = common.HexToHash("0x5eed")
	}
	return b
}

func testCommitment(id byte, batchID uint64) *model.Commitment {
	return &model.Commitment{
		ID:          common.BytesToHash([]byte{id}),
		Hash:        common.BytesToHash([]byte{0xc0, id}),
		Depositor:   alice,
		Deposit:     decimal.NewFromInt(100),
		BatchID:     batchID,
		Status:      model.StatusPending,
		SubmittedAt: t0.Add(time.Duration(id) * time.Millisecond),
	}
}

func TestMemoryStore_Batches(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	b := testBatch(2, false)
	if err := s.SaveBatch(ctx, b); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if err := s.SaveBatch(ctx, testBatch(1, true)); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	b.CommitCount = 99
	got, err := s.GetBatch(ctx, 2)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.CommitCount != 0 {
		t.Error("store must keep its own copy")
	}

	list, _ := s.ListBatches(ctx)
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
		t.Errorf("expected batches ordered by id, got %+v", list)
	}

	if _, err := s.GetBatch(ctx, 9); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_CommitmentsAndBalances(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	_ = s.SaveCommitment(ctx, testCommitment(2, 1))
	_ = s.SaveCommitment(ctx, testCommitment(1, 1))
	_ = s.SaveCommitment(ctx, testCommitment(3, 2))

	c := testCommitment(1, 1)
	c.Status = model.StatusRevealed
	if err := s.SaveCommitment(ctx, c); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}
	got, err := s.GetCommitment(ctx, c.ID)
	if err != nil || got.Status != model.StatusRevealed {
		t.Errorf("expected updated commitment, got %+v (%v)", got, err)
	}

	list, _ := s.ListCommitments(ctx, 1)
	if len(list) != 2 || list[0].ID != c.ID {
		t.Errorf("expected 2 commitments in submission order, got %+v", list)
	}

	_ = s.SaveBalance(ctx, model.Balance{Address: alice, Amount: decimal.NewFromInt(5)})
	bals, _ := s.ListBalances(ctx)
	if len(bals) != 1 || !bals[0].Amount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected balances %+v", bals)
	}
	_ = s.SaveBalance(ctx, model.Balance{Address: alice, Amount: decimal.Zero})
	if bals, _ := s.ListBalances(ctx); len(bals) != 0 {
		t.Errorf("zero balance should be removed, got %+v", bals)
	}
}

func TestLoadState(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.SaveBatch(ctx, testBatch(1, true))
	_ = s.SaveBatch(ctx, testBatch(2, false))
	_ = s.SaveCommitment(ctx, testCommitment(1, 1))
	_ = s.SaveCommitment(ctx, testCommitment(2, 2))
	_ = s.SaveBalance(ctx, model.Balance{Address: alice, Amount: decimal.NewFromInt(7)})

	st, err := store.LoadState(ctx, s)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if len(st.Batches) != 2 || len(st.Commitments) != 2 || len(st.Balances) != 1 {
		t.Errorf("unexpected state: %d batches, %d commitments, %d balances",
			len(st.Batches), len(st.Commitments), len(st.Balances))
	}
}
