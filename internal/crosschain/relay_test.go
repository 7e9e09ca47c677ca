package crosschain_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/crosschain"
	"github.com/atmx/auction-engine/internal/model"
)

func TestResultRelay_PublishesSettlement(t *testing.T) {
	bus := crosschain.NewBus(newRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "auction:results")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	relay := crosschain.NewResultRelay(bus, "auction:results", "mainnet", endpoint)
	batch := &model.Batch{
		ID:             4,
		Settled:        true,
		ShuffleSeed:    common.HexToHash("0x5eed"),
		ExecutionOrder: []int{1, 0},
	}
	orders := []model.RevealedOrder{
		{CommitID: common.HexToHash("0xb")},
		{CommitID: common.HexToHash("0xa")},
	}
	if err := relay.Settle(ctx, batch, orders); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	select {
	case raw := <-sub:
		var msg crosschain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Kind != crosschain.KindResult || msg.ID == "" || msg.Sender != endpoint {
			t.Errorf("unexpected envelope %+v", msg)
		}
		var p crosschain.ResultPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.BatchID != 4 || len(p.CommitIDs) != 2 || p.CommitIDs[0] != common.HexToHash("0xb") {
			t.Errorf("unexpected payload %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result published")
	}
}

func TestReceiver_RunConsumesBus(t *testing.T) {
	rdb := newRedis(t)
	bus := crosschain.NewBus(rdb)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, &now)
	r := crosschain.NewReceiver(e, map[string]common.Address{"arbitrum": endpoint}, crosschain.NewMemoryProcessedSet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, bus, "auction:inbound") }()

	msg := message(t, "m1", "arbitrum", endpoint, crosschain.KindCommit, crosschain.CommitPayload{
		Trader: trader, CommitHash: common.HexToHash("0x01"), Deposit: decimal.NewFromInt(100),
	})
	raw, _ := json.Marshal(msg)

	deadline := time.Now().Add(2 * time.Second)
	for e.CurrentBatch().CommitCount == 0 && time.Now().Before(deadline) {
		// Publish until the subscription is up; replays are rejected.
		_ = bus.Publish(context.Background(), "auction:inbound", raw)
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := e.CurrentBatch().CommitCount; got != 1 {
		t.Errorf("expected exactly 1 commitment, got %d", got)
	}
}
