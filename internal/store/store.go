// Package store defines the persistence interface for auction history.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The engine stays authoritative
// while running; the store is its journal and is read back at startup.
type Store interface {
	// --- Batches ---

	// SaveBatch inserts or replaces a batch snapshot.
	SaveBatch(ctx context.Context, b *model.Batch) error

	// GetBatch retrieves a batch by id.
	GetBatch(ctx context.Context, id uint64) (*model.Batch, error)

	// ListBatches returns all batches ordered by id.
	ListBatches(ctx context.Context) ([]model.Batch, error)

	// --- Commitments ---

	// SaveCommitment inserts or replaces a commitment snapshot.
	SaveCommitment(ctx context.Context, c *model.Commitment) error

	// GetCommitment retrieves a commitment by id.
	GetCommitment(ctx context.Context, id common.Hash) (*model.Commitment, error)

	// ListCommitments returns the commitments of one batch.
	ListCommitments(ctx context.Context, batchID uint64) ([]model.Commitment, error)

	// --- Ledger ---

	// SaveBalance records the current withdrawable amount for an address.
	SaveBalance(ctx context.Context, bal model.Balance) error

	// ListBalances returns every non-zero balance.
	ListBalances(ctx context.Context) ([]model.Balance, error)
}

// LoadState reads the full history needed by auction.Engine.Restore.
func LoadState(ctx context.Context, s Store) (auction.State, error) {
	var st auction.State
	batches, err := s.ListBatches(ctx)
	if err != nil {
		return st, fmt.Errorf("store: load batches: %w", err)
	}
	st.Batches = batches
	for _, b := range batches {
		commits, err := s.ListCommitments(ctx, b.ID)
		if err != nil {
			return st, fmt.Errorf("store: load commitments for batch %d: %w", b.ID, err)
		}
		st.Commitments = append(st.Commitments, commits...)
	}
	if st.Balances, err = s.ListBalances(ctx); err != nil {
		return st, fmt.Errorf("store: load balances: %w", err)
	}
	return st, nil
}
