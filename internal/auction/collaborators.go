package auction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

// Authorizer gates Commit. Implemented by compliance or allow-list services.
type Authorizer interface {
	IsAuthorized(ctx context.Context, trader common.Address) (bool, error)
}

// SettlementSink consumes a settled batch. orders are the revealed orders in
// execution order. The engine decides order and admission only; fills and
// prices are the sink's business and are not validated here.
type SettlementSink interface {
	Settle(ctx context.Context, batch *model.Batch, orders []model.RevealedOrder) error
}

// EntropySource supplies the block-level entropy mixed into a batch's
// shuffle seed at settlement.
type EntropySource interface {
	Entropy(ctx context.Context, batchID uint64) (common.Hash, error)
}

// EntropyFunc adapts a function to EntropySource.
type EntropyFunc func(ctx context.Context, batchID uint64) (common.Hash, error)

func (f EntropyFunc) Entropy(ctx context.Context, batchID uint64) (common.Hash, error) {
	return f(ctx, batchID)
}

// Listener receives engine events after the state change is complete.
// Events reach listeners one at a time in mutation order, outside the engine
// lock. Delivery is synchronous for the caller that performs it; a call that
// mutates while another delivery is in progress returns before its events
// are delivered.
type Listener func(model.Event)

// AllowList is an in-memory Authorizer. An empty list authorizes everyone.
type AllowList struct {
	mu      sync.RWMutex
	allowed map[common.Address]bool
}

// NewAllowList creates an allow-list seeded with addrs.
func NewAllowList(addrs ...common.Address) *AllowList {
	l := &AllowList{allowed: make(map[common.Address]bool)}
	for _, a := range addrs {
		l.allowed[a] = true
	}
	return l
}

// Allow adds addr to the list.
func (l *AllowList) Allow(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowed[addr] = true
}

// Revoke removes addr from the list.
func (l *AllowList) Revoke(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.allowed, addr)
}

func (l *AllowList) IsAuthorized(_ context.Context, trader common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.allowed) == 0 {
		return true, nil
	}
	return l.allowed[trader], nil
}

// LogSink is a SettlementSink that only logs the execution order. Used when
// no execution venue is configured.
type LogSink struct{}

func (LogSink) Settle(_ context.Context, batch *model.Batch, orders []model.RevealedOrder) error {
	slog.Info("batch ready for execution",
		"batch_id", batch.ID,
		"orders", len(orders),
		"shuffle_seed", batch.ShuffleSeed.Hex(),
	)
	return nil
}

// MultiSink fans a settlement out to several sinks, returning the first error.
type MultiSink []SettlementSink

func (m MultiSink) Settle(ctx context.Context, batch *model.Batch, orders []model.RevealedOrder) error {
	var first error
	for _, s := range m {
		if err := s.Settle(ctx, batch, orders); err != nil && first == nil {
			first = err
		}
	}
	return first
}
