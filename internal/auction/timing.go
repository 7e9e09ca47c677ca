package auction

import (
	"time"

	"github.com/atmx/auction-engine/internal/model"
)

const (
	minCongestionFactor = 0.5
	maxCongestionFactor = 2.0
	lowRevealWiden      = 1.5
)

// NextDurations returns the commit and reveal durations for the batch that
// follows prev. With adaptive timing disabled (or no previous batch) the
// configured base durations are used unchanged.
//
// Under adaptive timing, durations widen when the previous batch was
// congested (commit count above target) and the reveal window widens further
// when few commitments were revealed, giving stragglers more time. The result
// is smoothed with an exponential moving average against prev's durations and
// clamped to the configured bounds.
func NextDurations(p Params, prev *model.Batch) (commit, reveal time.Duration) {
	a := p.Adaptive
	if !a.Enabled || prev == nil {
		return p.CommitDuration, p.RevealDuration
	}

	congestion := float64(prev.CommitCount) / float64(a.TargetOrders)
	factor := clampFloat(congestion, minCongestionFactor, maxCongestionFactor)

	revealRate := 1.0
	if prev.CommitCount > 0 {
		revealRate = float64(len(prev.RevealedOrders)) / float64(prev.CommitCount)
	}

	desiredCommit := float64(p.CommitDuration) * factor
	desiredReveal := float64(p.RevealDuration) * factor
	if revealRate < a.LowRevealRate {
		desiredReveal *= lowRevealWiden
	}

	commit = ema(desiredCommit, prev.CommitDuration, a.Smoothing)
	reveal = ema(desiredReveal, prev.RevealDuration, a.Smoothing)
	return clampDuration(commit, a.MinCommit, a.MaxCommit), clampDuration(reveal, a.MinReveal, a.MaxReveal)
}

func ema(desired float64, previous time.Duration, alpha float64) time.Duration {
	if previous <= 0 {
		return time.Duration(desired)
	}
	return time.Duration(alpha*desired + (1-alpha)*float64(previous))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
