package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	batches     map[uint64]*model.Batch
	commitments map[common.Hash]*model.Commitment
	balances    map[common.Address]model.Balance
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:     make(map[uint64]*model.Batch),
		commitments: make(map[common.Hash]*model.Commitment),
		balances:    make(map[common.Address]model.Balance),
	}
}

func (s *MemoryStore) SaveBatch(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.batches[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id uint64) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %d: %w", id, ErrNotFound)
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListBatches(_ context.Context) ([]model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]model.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, *b.Clone())
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (s *MemoryStore) SaveCommitment(_ context.Context, c *model.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitments[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) GetCommitment(_ context.Context, id common.Hash) (*model.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commitments[id]
	if !ok {
		return nil, fmt.Errorf("commitment %s: %w", id.Hex(), ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListCommitments(_ context.Context, batchID uint64) ([]model.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Commitment
	for _, c := range s.commitments {
		if c.BatchID == batchID {
			result = append(result, *c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.Before(result[j].SubmittedAt) })
	return result, nil
}

func (s *MemoryStore) SaveBalance(_ context.Context, bal model.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bal.Amount.IsZero() {
		delete(s.balances, bal.Address)
		return nil
	}
	s.balances[bal.Address] = bal
	return nil
}

func (s *MemoryStore) ListBalances(_ context.Context) ([]model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		result = append(result, b)
	}
	return result, nil
}
