package crosschain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/atmx/auction-engine/internal/model"
)

// Publisher is satisfied by *Bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ResultRelay is an auction.SettlementSink that announces settled batches to
// remote chains as KindResult messages.
type ResultRelay struct {
	pub     Publisher
	channel string
	chain   string
	sender  common.Address
}

// NewResultRelay creates a relay publishing on channel. chain and sender
// identify this engine to receivers on the other side.
func NewResultRelay(pub Publisher, channel, chain string, sender common.Address) *ResultRelay {
	return &ResultRelay{pub: pub, channel: channel, chain: chain, sender: sender}
}

func (r *ResultRelay) Settle(ctx context.Context, batch *model.Batch, orders []model.RevealedOrder) error {
	ids := make([]common.Hash, len(orders))
	for i, o := range orders {
		ids[i] = o.CommitID
	}
	payload, err := json.Marshal(ResultPayload{
		BatchID:        batch.ID,
		ShuffleSeed:    batch.ShuffleSeed,
		ExecutionOrder: batch.ExecutionOrder,
		CommitIDs:      ids,
	})
	if err != nil {
		return fmt.Errorf("crosschain: encode result for batch %d: %w", batch.ID, err)
	}
	msg := Message{
		ID:          uuid.NewString(),
		SourceChain: r.chain,
		Sender:      r.sender,
		Kind:        KindResult,
		Payload:     payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("crosschain: encode message: %w", err)
	}
	if err := r.pub.Publish(ctx, r.channel, data); err != nil {
		return err
	}
	slog.Info("settlement result relayed", "batch_id", batch.ID, "message_id", msg.ID, "channel", r.channel)
	return nil
}
