package crosschain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProcessedSet records handled message ids.
type ProcessedSet interface {
	// MarkProcessed records id and reports false if it was already recorded.
	MarkProcessed(ctx context.Context, id string) (bool, error)
}

// MemoryProcessedSet is a ProcessedSet for a single process.
type MemoryProcessedSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryProcessedSet creates an empty set.
func NewMemoryProcessedSet() *MemoryProcessedSet {
	return &MemoryProcessedSet{ids: make(map[string]struct{})}
}

func (s *MemoryProcessedSet) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false, nil
	}
	s.ids[id] = struct{}{}
	return true, nil
}

// RedisProcessedSet shares replay protection across engine replicas using
// SETNX. A zero ttl keeps ids forever.
type RedisProcessedSet struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisProcessedSet creates a set backed by rdb.
func NewRedisProcessedSet(rdb *redis.Client, ttl time.Duration) *RedisProcessedSet {
	return &RedisProcessedSet{rdb: rdb, ttl: ttl}
}

func (s *RedisProcessedSet) MarkProcessed(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, processedKey(id), time.Now().UTC().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("crosschain: mark %s processed: %w", id, err)
	}
	return ok, nil
}

func processedKey(id string) string { return "auction:xchain:processed:" + id }
