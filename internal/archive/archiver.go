// Package archive stores an immutable record of every settled batch in
// object storage so execution orders can be audited after the fact.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/model"
)

// BlobWriter writes objects to a blob store. Implemented by *S3Writer.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

// Record is the archived form of a settled batch. Everything needed to
// recompute the shuffle seed and execution order is included.
type Record struct {
	Batch      *model.Batch          `json:"batch"`
	Ordered    []model.RevealedOrder `json:"ordered"`
	ArchivedAt time.Time             `json:"archived_at"`
}

// Archiver is an auction.SettlementSink that uploads settled batches.
type Archiver struct {
	w      BlobWriter
	prefix string
	now    func() time.Time
}

// NewArchiver creates an archiver writing under prefix.
func NewArchiver(w BlobWriter, prefix string) *Archiver {
	return &Archiver{w: w, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the object key for batchID. Zero-padded so keys sort by id.
func (a *Archiver) Key(batchID uint64) string {
	return path.Join(a.prefix, fmt.Sprintf("batch-%012d.json", batchID))
}

func (a *Archiver) Settle(ctx context.Context, batch *model.Batch, orders []model.RevealedOrder) error {
	data, err := json.Marshal(Record{Batch: batch, Ordered: orders, ArchivedAt: a.now()})
	if err != nil {
		return fmt.Errorf("archive: encode batch %d: %w", batch.ID, err)
	}
	key := a.Key(batch.ID)
	if err := a.w.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		metrics.ArchiveUploads.WithLabelValues("error").Inc()
		return err
	}
	metrics.ArchiveUploads.WithLabelValues("ok").Inc()
	slog.Info("batch archived", "batch_id", batch.ID, "key", key, "bytes", len(data))
	return nil
}
