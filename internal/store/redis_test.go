package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/auction-engine/internal/store"
)

func newCachedStore(t *testing.T) (*store.CachedStore, *store.MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	primary := store.NewMemoryStore()
	return store.NewCachedStore(primary, rdb, time.Minute), primary, mr
}

func TestCachedStore_SettledBatchCachedWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCachedStore(t)

	if err := cs.SaveBatch(ctx, testBatch(1, true)); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if !mr.Exists("auction:batch:1") {
		t.Fatal("settled batch should be cached on write")
	}
	if ttl := mr.TTL("auction:batch:1"); ttl != 0 {
		t.Errorf("settled batch should not expire, ttl %s", ttl)
	}

	got, err := cs.GetBatch(ctx, 1)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !got.Settled || got.ShuffleSeed != testBatch(1, true).ShuffleSeed {
		t.Errorf("cached batch mismatch: %+v", got)
	}
}

func TestCachedStore_OpenBatchInvalidated(t *testing.T) {
	ctx := context.Background()
	cs, _, mr := newCachedStore(t)

	b := testBatch(2, false)
	_ = cs.SaveBatch(ctx, b)
	if mr.Exists("auction:batch:2") {
		t.Fatal("open batch should not be cached on write")
	}

	if _, err := cs.GetBatch(ctx, 2); err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !mr.Exists("auction:batch:2") {
		t.Fatal("read should populate cache")
	}
	if ttl := mr.TTL("auction:batch:2"); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %s", ttl)
	}

	b.CommitCount = 3
	_ = cs.SaveBatch(ctx, b)
	got, _ := cs.GetBatch(ctx, 2)
	if got.CommitCount != 3 {
		t.Errorf("expected fresh batch after write, got commit count %d", got.CommitCount)
	}
}

func TestCachedStore_CommitmentReadThrough(t *testing.T) {
	ctx := context.Background()
	cs, primary, _ := newCachedStore(t)

	c := testCommitment(1, 1)
	_ = primary.SaveCommitment(ctx, c)

	if _, err := cs.GetCommitment(ctx, c.ID); err != nil {
		t.Fatalf("GetCommitment: %v", err)
	}
	list, err := cs.ListCommitments(ctx, 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListCommitments: %v %+v", err, list)
	}

	// A write through the cache invalidates both keys.
	_ = cs.SaveCommitment(ctx, testCommitment(2, 1))
	list, _ = cs.ListCommitments(ctx, 1)
	if len(list) != 2 {
		t.Errorf("expected 2 commitments after invalidation, got %d", len(list))
	}
}
