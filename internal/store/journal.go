package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/atmx/auction-engine/internal/model"
)

const journalBuffer = 1024

// Journal persists engine events to a Store. Record is registered as an
// engine listener and only enqueues; Run performs the writes in event order
// so the engine never waits on database I/O.
type Journal struct {
	store   Store
	events  chan model.Event
	done    chan struct{} // closed when Run returns
	timeout time.Duration
}

// NewJournal creates a journal writing to s.
func NewJournal(s Store) *Journal {
	return &Journal{
		store:   s,
		events:  make(chan model.Event, journalBuffer),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
}

// Record enqueues ev. It blocks only when the buffer is full; once Run has
// returned, events are dropped with a warning.
func (j *Journal) Record(ev model.Event) {
	select {
	case j.events <- ev:
	case <-j.done:
		slog.Warn("journal stopped, event not persisted", "type", ev.Type, "batch_id", ev.BatchID)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (j *Journal) Run(ctx context.Context) error {
	defer close(j.done)
	for {
		select {
		case ev := <-j.events:
			j.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-j.events:
					j.write(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (j *Journal) write(ev model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if ev.Batch != nil {
		if err := j.store.SaveBatch(ctx, ev.Batch); err != nil {
			slog.Error("journal: save batch", "batch_id", ev.Batch.ID, "event", ev.Type, "err", err)
		}
	}
	if ev.Commitment != nil {
		if err := j.store.SaveCommitment(ctx, ev.Commitment); err != nil {
			slog.Error("journal: save commitment", "commit_id", ev.Commitment.ID.Hex(), "event", ev.Type, "err", err)
		}
	}
	for _, bal := range ev.Balances {
		if err := j.store.SaveBalance(ctx, bal); err != nil {
			slog.Error("journal: save balance", "address", bal.Address.Hex(), "event", ev.Type, "err", err)
		}
	}
}
