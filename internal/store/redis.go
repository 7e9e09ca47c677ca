package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and then refresh or invalidate the
// cache; reads check Redis first then fall back to the primary. Settled
// batches are frozen, so they are cached without expiry.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveBatch(ctx context.Context, b *model.Batch) error {
	if err := s.primary.SaveBatch(ctx, b); err != nil {
		return err
	}
	if b.Settled {
		s.cacheBatch(ctx, b)
		return nil
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, batchKey(b.ID))
	return nil
}

func (s *CachedStore) SaveCommitment(ctx context.Context, c *model.Commitment) error {
	if err := s.primary.SaveCommitment(ctx, c); err != nil {
		return err
	}
	s.rdb.Del(ctx, commitmentKey(c.ID), commitmentsKey(c.BatchID))
	return nil
}

func (s *CachedStore) SaveBalance(ctx context.Context, bal model.Balance) error {
	return s.primary.SaveBalance(ctx, bal)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBatch(ctx context.Context, id uint64) (*model.Batch, error) {
	data, err := s.rdb.Get(ctx, batchKey(id)).Bytes()
	if err == nil {
		var b model.Batch
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	// Cache miss: read from primary.
	b, err := s.primary.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheBatch(ctx, b)
	return b, nil
}

func (s *CachedStore) GetCommitment(ctx context.Context, id common.Hash) (*model.Commitment, error) {
	data, err := s.rdb.Get(ctx, commitmentKey(id)).Bytes()
	if err == nil {
		var c model.Commitment
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetCommitment(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, commitmentKey(id), data, s.ttl)
	}
	return c, nil
}

func (s *CachedStore) ListCommitments(ctx context.Context, batchID uint64) ([]model.Commitment, error) {
	data, err := s.rdb.Get(ctx, commitmentsKey(batchID)).Bytes()
	if err == nil {
		var commitments []model.Commitment
		if json.Unmarshal(data, &commitments) == nil {
			return commitments, nil
		}
	}

	commitments, err := s.primary.ListCommitments(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(commitments); err == nil {
		s.rdb.Set(ctx, commitmentsKey(batchID), data, s.ttl)
	}
	return commitments, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListBatches(ctx context.Context) ([]model.Batch, error) {
	return s.primary.ListBatches(ctx)
}

func (s *CachedStore) ListBalances(ctx context.Context) ([]model.Balance, error) {
	return s.primary.ListBalances(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheBatch(ctx context.Context, b *model.Batch) {
	ttl := s.ttl
	if b.Settled {
		ttl = 0
	}
	if data, err := json.Marshal(b); err == nil {
		s.rdb.Set(ctx, batchKey(b.ID), data, ttl)
	}
}

func batchKey(id uint64) string            { return fmt.Sprintf("auction:batch:%d", id) }
func commitmentKey(id common.Hash) string  { return fmt.Sprintf("auction:commitment:%s", id.Hex()) }
func commitmentsKey(batchID uint64) string { return fmt.Sprintf("auction:commitments:%d", batchID) }
