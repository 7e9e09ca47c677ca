package keeper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/keeper"
	"github.com/atmx/auction-engine/internal/model"
)

var (
	trader    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	keeperAcc = common.HexToAddress("0x000000000000000000000000000000000000cee9")
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newEngine(t *testing.T, p auction.Params) (*auction.Engine, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, err := auction.New(p, auction.WithClock(clk.now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, clk
}

func testParams() auction.Params {
	p := auction.DefaultParams()
	p.MinDeposit = decimal.NewFromInt(100)
	return p
}

func TestTick_Lifecycle(t *testing.T) {
	e, clk := newEngine(t, testParams())
	k := keeper.New(e, keeper.Config{Address: keeperAcc, SlashUnrevealed: true})
	ctx := context.Background()

	c, err := e.Commit(ctx, trader, common.HexToHash("0x01"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if s := k.Tick(ctx); s != nil {
		t.Fatal("nothing to do during commit phase")
	}

	clk.advance(8 * time.Second)
	k.Tick(ctx)
	if b := e.CurrentBatch(); b.Phase != model.PhaseReveal {
		t.Errorf("expected keeper to record REVEAL, got %s", b.Phase)
	}

	clk.advance(2 * time.Second)
	s := k.Tick(ctx)
	if s == nil || s.Batch.ID != 1 {
		t.Fatalf("expected batch 1 settled, got %+v", s)
	}
	if e.CurrentBatchID() != 2 {
		t.Errorf("expected batch 2 open, got %d", e.CurrentBatchID())
	}

	got, _ := e.Commitment(c.ID)
	if got.Status != model.StatusSlashed {
		t.Errorf("expected unrevealed commitment swept, got %s", got.Status)
	}
	if !e.Balance(keeperAcc).Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected keeper slasher share 50, got %s", e.Balance(keeperAcc))
	}
}

func TestTick_EarlySettlement(t *testing.T) {
	p := testParams()
	p.MaxOrdersPerBatch = 2
	p.EarlySettleMinReveals = 0
	e, clk := newEngine(t, p)
	k := keeper.New(e, keeper.Config{Address: keeperAcc})

	clk.advance(8 * time.Second)
	// An empty batch is not at capacity, so it cannot settle early.
	if s := k.Tick(context.Background()); s != nil {
		t.Fatalf("unexpected early settlement %+v", s)
	}
	clk.advance(2 * time.Second)
	if s := k.Tick(context.Background()); s == nil {
		t.Fatal("expected settlement once the reveal window closed")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	e, clk := newEngine(t, testParams())
	clk.advance(10 * time.Second)
	k := keeper.New(e, keeper.Config{Interval: 5 * time.Millisecond, Address: keeperAcc})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for e.CurrentBatchID() == 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.CurrentBatchID() < 2 {
		t.Error("keeper loop never settled the ready batch")
	}
}
