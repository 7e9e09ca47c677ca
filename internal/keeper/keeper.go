// Package keeper drives the batch lifecycle on a timer. Every engine
// transition is permissionless, so the keeper holds no special rights: it
// records phase advances, settles batches once they are ready, and can sweep
// unrevealed commitments of settled batches.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
)

// Engine is the subset of auction.Engine the keeper drives.
type Engine interface {
	CurrentBatchID() uint64
	CurrentPhase() model.Phase
	Params() auction.Params
	AdvancePhase(ctx context.Context) bool
	SettleBatch(ctx context.Context, caller common.Address, batchID uint64) (*auction.Settlement, error)
	Commitments(batchID uint64) ([]model.Commitment, error)
	Slash(ctx context.Context, caller common.Address, commitID common.Hash) (*auction.SlashResult, error)
}

// Config controls the keeper loop.
type Config struct {
	Interval        time.Duration
	Address         common.Address // caller identity; receives slasher shares
	SlashUnrevealed bool
}

// Keeper periodically pushes the engine through its lifecycle.
type Keeper struct {
	engine Engine
	cfg    Config
}

// New creates a keeper.
func New(engine Engine, cfg Config) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &Keeper{engine: engine, cfg: cfg}
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	slog.Info("keeper started", "interval", k.cfg.Interval.String(), "address", k.cfg.Address.Hex())

	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper stopped")
			return nil
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick performs at most one lifecycle step for the current batch and returns
// the settlement when it settled one.
func (k *Keeper) Tick(ctx context.Context) *auction.Settlement {
	batchID := k.engine.CurrentBatchID()

	switch k.engine.CurrentPhase() {
	case model.PhaseReveal:
		if k.engine.AdvancePhase(ctx) {
			metrics.KeeperActions.WithLabelValues("advance", "ok").Inc()
		}
		if k.engine.Params().MaxOrdersPerBatch > 0 {
			// Early settlement; most ticks are expected to find the window still open.
			return k.settle(ctx, batchID, true)
		}
	case model.PhaseSettlementReady:
		return k.settle(ctx, batchID, false)
	}
	return nil
}

func (k *Keeper) settle(ctx context.Context, batchID uint64, early bool) *auction.Settlement {
	s, err := k.engine.SettleBatch(ctx, k.cfg.Address, batchID)
	switch {
	case err == nil:
	case early && errors.Is(err, auction.ErrRevealWindowOpen):
		return nil
	case errors.Is(err, auction.ErrAlreadySettled):
		// Another settler got there first.
		metrics.KeeperActions.WithLabelValues("settle", "raced").Inc()
		return nil
	default:
		metrics.KeeperActions.WithLabelValues("settle", "error").Inc()
		slog.Error("keeper: settle failed", "batch_id", batchID, "err", err)
		return nil
	}
	metrics.KeeperActions.WithLabelValues("settle", "ok").Inc()

	if k.cfg.SlashUnrevealed {
		k.sweep(ctx, batchID)
	}
	return s
}

// sweep slashes every commitment of a settled batch that was never revealed.
func (k *Keeper) sweep(ctx context.Context, batchID uint64) {
	commits, err := k.engine.Commitments(batchID)
	if err != nil {
		slog.Error("keeper: list commitments", "batch_id", batchID, "err", err)
		return
	}
	for _, c := range commits {
		if c.Status != model.StatusPending {
			continue
		}
		if _, err := k.engine.Slash(ctx, k.cfg.Address, c.ID); err != nil {
			metrics.KeeperActions.WithLabelValues("slash", "error").Inc()
			slog.Warn("keeper: slash failed", "batch_id", batchID, "commit_id", c.ID.Hex(), "err", err)
			continue
		}
		metrics.KeeperActions.WithLabelValues("slash", "ok").Inc()
	}
}
