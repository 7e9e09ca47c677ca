package auction_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/model"
)

func orders(bids ...int64) []model.RevealedOrder {
	out := make([]model.RevealedOrder, len(bids))
	for i, b := range bids {
		out[i] = model.RevealedOrder{PriorityBid: n(b), RevealIndex: i}
	}
	return out
}

func TestSequence_IsPermutation(t *testing.T) {
	seed := common.HexToHash("0x5eed")
	for size := 0; size <= 50; size++ {
		bids := make([]int64, size)
		for i := range bids {
			if i%3 == 0 {
				bids[i] = int64(i)
			}
		}
		order := auction.Sequence(orders(bids...), seed)
		if err := auction.VerifyPermutation(order, size); err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
	}
}

func TestSequence_PriorityFirst(t *testing.T) {
	// A bids 100, B and C tie at 50: B revealed first so goes first.
	order := auction.Sequence(orders(100, 50, 50), common.HexToHash("0x01"))
	want := []int{0, 1, 2}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}

	order = auction.Sequence(orders(0, 10, 0, 20), common.HexToHash("0x01"))
	if order[0] != 3 || order[1] != 1 {
		t.Errorf("priority orders must lead by bid, got %v", order)
	}
}

func TestSequence_Deterministic(t *testing.T) {
	in := orders(make([]int64, 50)...)
	seed := common.HexToHash("0xabc")
	a := auction.Sequence(in, seed)
	b := auction.Sequence(in, seed)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different orders at %d", i)
		}
	}

	c := auction.Sequence(in, common.HexToHash("0xabd"))
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical 50-order shuffles")
	}
}

func TestSequence_Trivial(t *testing.T) {
	if got := auction.Sequence(nil, common.Hash{}); len(got) != 0 {
		t.Errorf("empty batch: got %v", got)
	}
	if got := auction.Sequence(orders(0), common.Hash{}); len(got) != 1 || got[0] != 0 {
		t.Errorf("single order: got %v", got)
	}
}

func TestVerifyPermutation(t *testing.T) {
	bad := [][]int{{0, 0}, {0, 2}, {0}, {-1, 0}}
	for _, o := range bad {
		if err := auction.VerifyPermutation(o, 2); err == nil {
			t.Errorf("%v accepted as permutation of 2", o)
		}
	}
	if err := auction.VerifyPermutation([]int{1, 0}, 2); err != nil {
		t.Errorf("valid permutation rejected: %v", err)
	}
}
