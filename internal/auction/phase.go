package auction

import (
	"time"

	"github.com/atmx/auction-engine/internal/model"
)

// PhaseAt is the phase clock. It is a pure function of the batch boundaries
// and t, and is agnostic to how the durations were derived.
//
//	t <  CommitPhaseEnd                    -> COMMIT
//	CommitPhaseEnd <= t < RevealPhaseEnd   -> REVEAL
//	t >= RevealPhaseEnd                    -> SETTLEMENT_READY
//
// A settled batch always reports SETTLED.
func PhaseAt(b *model.Batch, t time.Time) model.Phase {
	switch {
	case b.Settled:
		return model.PhaseSettled
	case t.Before(b.CommitPhaseEnd):
		return model.PhaseCommit
	case t.Before(b.RevealPhaseEnd):
		return model.PhaseReveal
	default:
		return model.PhaseSettlementReady
	}
}
