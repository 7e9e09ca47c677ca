package crosschain_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/crosschain"
	"github.com/atmx/auction-engine/internal/model"
)

var (
	trader   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	endpoint = common.HexToAddress("0x000000000000000000000000000000000000e4d0")
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newEngine(t *testing.T, now *time.Time) *auction.Engine {
	t.Helper()
	p := auction.DefaultParams()
	p.MinDeposit = decimal.NewFromInt(100)
	e, err := auction.New(p, auction.WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func message(t *testing.T, id, chain string, sender common.Address, kind crosschain.Kind, payload any) crosschain.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return crosschain.Message{ID: id, SourceChain: chain, Sender: sender, Kind: kind, Payload: raw}
}

func TestReceiver_CommitAndReveal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, &now)
	r := crosschain.NewReceiver(e, map[string]common.Address{"arbitrum": endpoint}, crosschain.NewMemoryProcessedSet())
	ctx := context.Background()

	secret := common.HexToHash("0x5ec2e7")
	h, _ := auction.CommitHash(auction.OrderFields{
		Trader: trader, TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: decimal.NewFromInt(1000), MinAmountOut: decimal.NewFromInt(900), Secret: secret,
	})
	out, err := r.Handle(ctx, message(t, "m1", "arbitrum", endpoint, crosschain.KindCommit, crosschain.CommitPayload{
		Trader: trader, CommitHash: h, Deposit: decimal.NewFromInt(100),
	}))
	if err != nil {
		t.Fatalf("commit message: %v", err)
	}
	c := out.(*model.Commitment)
	if c.Depositor != trader {
		t.Errorf("expected depositor %s, got %s", trader.Hex(), c.Depositor.Hex())
	}

	now = now.Add(8 * time.Second)
	out, err = r.Handle(ctx, message(t, "m2", "arbitrum", endpoint, crosschain.KindReveal, crosschain.RevealPayload{
		Trader: trader, CommitID: c.ID, TokenIn: tokenA, TokenOut: tokenB,
		AmountIn: decimal.NewFromInt(1000), MinAmountOut: decimal.NewFromInt(900), Secret: secret,
		PriorityBid: decimal.Zero, Value: decimal.Zero,
	}))
	if err != nil {
		t.Fatalf("reveal message: %v", err)
	}
	if o := out.(*model.RevealedOrder); o.CommitID != c.ID {
		t.Errorf("revealed wrong commitment %s", o.CommitID.Hex())
	}
}

func TestReceiver_Rejections(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, &now)
	r := crosschain.NewReceiver(e, map[string]common.Address{"arbitrum": endpoint}, crosschain.NewMemoryProcessedSet())
	ctx := context.Background()
	payload := crosschain.CommitPayload{Trader: trader, CommitHash: common.HexToHash("0x01"), Deposit: decimal.NewFromInt(100)}

	tests := []struct {
		name string
		msg  crosschain.Message
		want error
	}{
		{"unknown chain", message(t, "a", "base", endpoint, crosschain.KindCommit, payload), crosschain.ErrUntrustedSender},
		{"wrong sender", message(t, "b", "arbitrum", trader, crosschain.KindCommit, payload), crosschain.ErrUntrustedSender},
		{"missing id", message(t, "", "arbitrum", endpoint, crosschain.KindCommit, payload), crosschain.ErrBadPayload},
		{"unknown kind", message(t, "c", "arbitrum", endpoint, crosschain.KindResult, payload), crosschain.ErrUnknownKind},
		{"bad payload", crosschain.Message{ID: "d", SourceChain: "arbitrum", Sender: endpoint, Kind: crosschain.KindCommit, Payload: []byte(`[`)}, crosschain.ErrBadPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Handle(ctx, tt.msg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if b := e.CurrentBatch(); b.CommitCount != 0 {
		t.Errorf("rejected messages must not reach the engine, commit count %d", b.CommitCount)
	}
}

func TestReceiver_Replay(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEngine(t, &now)
	set := crosschain.NewRedisProcessedSet(newRedis(t), 0)
	r := crosschain.NewReceiver(e, map[string]common.Address{"arbitrum": endpoint}, set)
	ctx := context.Background()

	msg := message(t, "m1", "arbitrum", endpoint, crosschain.KindCommit, crosschain.CommitPayload{
		Trader: trader, CommitHash: common.HexToHash("0x01"), Deposit: decimal.NewFromInt(100),
	})
	if _, err := r.Handle(ctx, msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := r.Handle(ctx, msg); !errors.Is(err, crosschain.ErrReplay) {
		t.Errorf("expected ErrReplay, got %v", err)
	}

	// The same id from another chain is a different message.
	r2 := crosschain.NewReceiver(e, map[string]common.Address{"base": endpoint}, set)
	other := message(t, "m1", "base", endpoint, crosschain.KindCommit, crosschain.CommitPayload{
		Trader: trader, CommitHash: common.HexToHash("0x02"), Deposit: decimal.NewFromInt(100),
	})
	if _, err := r2.Handle(ctx, other); err != nil {
		t.Errorf("same id on another chain: %v", err)
	}
}

func TestMemoryProcessedSet(t *testing.T) {
	s := crosschain.NewMemoryProcessedSet()
	ctx := context.Background()
	if ok, _ := s.MarkProcessed(ctx, "x"); !ok {
		t.Error("first mark should be fresh")
	}
	if ok, _ := s.MarkProcessed(ctx, "x"); ok {
		t.Error("second mark should not be fresh")
	}
}
