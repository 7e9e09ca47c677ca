package archive_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/archive"
	"github.com/atmx/auction-engine/internal/model"
)

type fakeWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeWriter) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = b
	f.types[key] = contentType
	return nil
}

func TestArchiver_UploadsSettledBatch(t *testing.T) {
	w := newFakeWriter()
	a := archive.NewArchiver(w, "auction/settled")

	batch := &model.Batch{ID: 42, Settled: true, ShuffleSeed: common.HexToHash("0x5eed"), ExecutionOrder: []int{0}}
	orders := []model.RevealedOrder{{CommitID: common.HexToHash("0xc1")}}
	if err := a.Settle(context.Background(), batch, orders); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	key := "auction/settled/batch-000000000042.json"
	if a.Key(42) != key {
		t.Errorf("unexpected key %s", a.Key(42))
	}
	raw, ok := w.objects[key]
	if !ok {
		t.Fatalf("object %s not written, have %v", key, w.objects)
	}
	if w.types[key] != "application/json" {
		t.Errorf("unexpected content type %s", w.types[key])
	}

	var rec archive.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Batch.ID != 42 || rec.Batch.ShuffleSeed != batch.ShuffleSeed || len(rec.Ordered) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ArchivedAt.IsZero() {
		t.Error("archived_at not set")
	}
}

func TestArchiver_PropagatesWriteError(t *testing.T) {
	w := newFakeWriter()
	w.err = errors.New("bucket unavailable")
	a := archive.NewArchiver(w, "")

	err := a.Settle(context.Background(), &model.Batch{ID: 1}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}
