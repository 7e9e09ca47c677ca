package auction_test

import (
	"testing"
	"time"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/model"
)

func adaptiveParams() auction.Params {
	p := testParams()
	p.Adaptive.Enabled = true
	p.Adaptive.Smoothing = 1
	return p
}

func TestNextDurations_Disabled(t *testing.T) {
	p := testParams()
	prev := &model.Batch{CommitCount: 500, CommitDuration: 8 * time.Second, RevealDuration: 2 * time.Second}
	c, r := auction.NextDurations(p, prev)
	if c != p.CommitDuration || r != p.RevealDuration {
		t.Errorf("disabled policy changed durations: %s/%s", c, r)
	}
}

func TestNextDurations_Congested(t *testing.T) {
	p := adaptiveParams()
	prev := &model.Batch{
		CommitCount:    100, // 2x target
		RevealedOrders: make([]model.RevealedOrder, 100),
		CommitDuration: 8 * time.Second,
		RevealDuration: 2 * time.Second,
	}
	c, r := auction.NextDurations(p, prev)
	if c != 16*time.Second || r != 4*time.Second {
		t.Errorf("expected 16s/4s, got %s/%s", c, r)
	}
}

func TestNextDurations_LowRevealRateWidensReveal(t *testing.T) {
	p := adaptiveParams()
	prev := &model.Batch{
		CommitCount:    50,
		RevealedOrders: make([]model.RevealedOrder, 10),
		CommitDuration: 8 * time.Second,
		RevealDuration: 2 * time.Second,
	}
	c, r := auction.NextDurations(p, prev)
	if c != 8*time.Second || r != 3*time.Second {
		t.Errorf("expected 8s/3s, got %s/%s", c, r)
	}
}

func TestNextDurations_ClampedAndSmoothed(t *testing.T) {
	p := adaptiveParams()
	p.Adaptive.MaxCommit = 10 * time.Second
	prev := &model.Batch{CommitCount: 1000, CommitDuration: 8 * time.Second, RevealDuration: 2 * time.Second}
	if c, _ := auction.NextDurations(p, prev); c != 10*time.Second {
		t.Errorf("expected commit clamped to 10s, got %s", c)
	}

	p = adaptiveParams()
	p.Adaptive.Smoothing = 0.5
	prev = &model.Batch{CommitCount: 0, CommitDuration: 8 * time.Second, RevealDuration: 2 * time.Second}
	// desired commit 4s (factor 0.5), EMA with 8s -> 6s.
	if c, _ := auction.NextDurations(p, prev); c != 6*time.Second {
		t.Errorf("expected smoothed 6s, got %s", c)
	}
}
