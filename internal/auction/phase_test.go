package auction_test

import (
	"testing"
	"time"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/model"
)

func TestPhaseAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &model.Batch{
		ID:             1,
		OpenedAt:       start,
		CommitPhaseEnd: start.Add(8 * time.Second),
		RevealPhaseEnd: start.Add(10 * time.Second),
	}

	tests := []struct {
		offset time.Duration
		want   model.Phase
	}{
		{0, model.PhaseCommit},
		{8*time.Second - time.Nanosecond, model.PhaseCommit},
		{8 * time.Second, model.PhaseReveal},
		{10*time.Second - time.Nanosecond, model.PhaseReveal},
		{10 * time.Second, model.PhaseSettlementReady},
		{time.Hour, model.PhaseSettlementReady},
	}
	for _, tt := range tests {
		if got := auction.PhaseAt(b, start.Add(tt.offset)); got != tt.want {
			t.Errorf("PhaseAt(+%s) = %s, want %s", tt.offset, got, tt.want)
		}
	}

	b.Settled = true
	if got := auction.PhaseAt(b, start); got != model.PhaseSettled {
		t.Errorf("settled batch reported %s", got)
	}
}
