package crosschain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
)

// Engine is the subset of auction.Engine the receiver dispatches into.
type Engine interface {
	Commit(ctx context.Context, caller common.Address, commitHash common.Hash, deposit decimal.Decimal) (*model.Commitment, error)
	Reveal(ctx context.Context, caller common.Address, req auction.RevealRequest, value decimal.Decimal) (*model.RevealedOrder, error)
}

// Receiver validates inbound messages and dispatches them into the engine.
type Receiver struct {
	engine    Engine
	trusted   map[string]common.Address // source chain -> sender contract
	processed ProcessedSet
}

// NewReceiver creates a receiver accepting messages only from trusted, keyed
// by source chain name.
func NewReceiver(engine Engine, trusted map[string]common.Address, processed ProcessedSet) *Receiver {
	t := make(map[string]common.Address, len(trusted))
	for chain, sender := range trusted {
		t[chain] = sender
	}
	return &Receiver{engine: engine, trusted: t, processed: processed}
}

// Handle authenticates msg, enforces at-most-once delivery and dispatches it.
// It returns the created *model.Commitment or *model.RevealedOrder.
//
// A message id is consumed once the payload decodes, even if the engine then
// rejects the call; the remote side must send a fresh message to retry.
func (r *Receiver) Handle(ctx context.Context, msg Message) (any, error) {
	sender, ok := r.trusted[msg.SourceChain]
	if !ok || sender != msg.Sender {
		return nil, fmt.Errorf("%w: %s on %q", ErrUntrustedSender, msg.Sender.Hex(), msg.SourceChain)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("%w: missing message id", ErrBadPayload)
	}

	var dispatch func() (any, error)
	switch msg.Kind {
	case KindCommit:
		var p CommitPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		dispatch = func() (any, error) {
			return r.engine.Commit(ctx, p.Trader, p.CommitHash, p.Deposit)
		}
	case KindReveal:
		var p RevealPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		dispatch = func() (any, error) {
			return r.engine.Reveal(ctx, p.Trader, auction.RevealRequest{
				CommitID:     p.CommitID,
				TokenIn:      p.TokenIn,
				TokenOut:     p.TokenOut,
				AmountIn:     p.AmountIn,
				MinAmountOut: p.MinAmountOut,
				Secret:       p.Secret,
				PriorityBid:  p.PriorityBid,
			}, p.Value)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}

	fresh, err := r.processed.MarkProcessed(ctx, msg.SourceChain+":"+msg.ID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		metrics.ReplayRejections.Inc()
		return nil, fmt.Errorf("%w: %s", ErrReplay, msg.ID)
	}
	return dispatch()
}

// Run consumes JSON-encoded messages from channel on bus until ctx is
// cancelled. Rejected messages are logged and dropped.
func (r *Receiver) Run(ctx context.Context, bus *Bus, channel string) error {
	in, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	slog.Info("crosschain receiver listening", "channel", channel, "trusted_chains", len(r.trusted))

	for raw := range in {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			metrics.CrossChainMessages.WithLabelValues("unknown", "malformed").Inc()
			slog.Warn("crosschain: dropping malformed message", "err", err)
			continue
		}
		if _, err := r.Handle(ctx, msg); err != nil {
			metrics.CrossChainMessages.WithLabelValues(string(msg.Kind), resultLabel(err)).Inc()
			slog.Warn("crosschain: message rejected",
				"id", msg.ID,
				"source_chain", msg.SourceChain,
				"kind", msg.Kind,
				"err", err,
			)
			continue
		}
		metrics.CrossChainMessages.WithLabelValues(string(msg.Kind), "ok").Inc()
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrUntrustedSender):
		return "untrusted"
	case errors.Is(err, ErrReplay):
		return "replay"
	case errors.Is(err, ErrBadPayload), errors.Is(err, ErrUnknownKind):
		return "malformed"
	default:
		return "rejected"
	}
}
