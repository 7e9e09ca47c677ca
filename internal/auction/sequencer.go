package auction

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/atmx/auction-engine/internal/model"
)

// Sequence computes the execution order for a batch, expressed as indices
// into orders:
//
//  1. priority orders (PriorityBid > 0) sorted by bid descending, ties broken
//     by RevealIndex ascending;
//  2. followed by the non-priority orders, Fisher–Yates shuffled with
//     randomness re-derived from seed at every step.
//
// The result is a pure function of (orders, seed), so anyone holding the
// revealed secrets can recompute and audit it.
func Sequence(orders []model.RevealedOrder, seed common.Hash) []int {
	priority := make([]int, 0, len(orders))
	rest := make([]int, 0, len(orders))
	for i, o := range orders {
		if o.HasPriority() {
			priority = append(priority, i)
		} else {
			rest = append(rest, i)
		}
	}

	sort.SliceStable(priority, func(a, b int) bool {
		oa, ob := orders[priority[a]], orders[priority[b]]
		if c := oa.PriorityBid.Cmp(ob.PriorityBid); c != 0 {
			return c > 0
		}
		return oa.RevealIndex < ob.RevealIndex
	})

	Shuffle(rest, seed)

	return append(priority, rest...)
}

// Shuffle permutes idx in place. For i from n-1 down to 1 it draws
// j = uint256(keccak256(seed || uint256(i))) mod (i+1) and swaps i and j.
func Shuffle(idx []int, seed common.Hash) {
	for i := len(idx) - 1; i > 0; i-- {
		j := drawIndex(seed, i)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

func drawIndex(seed common.Hash, i int) int {
	h := crypto.Keccak256(seed.Bytes(), uint64Word(uint64(i)))
	r := new(big.Int).SetBytes(h)
	return int(r.Mod(r, big.NewInt(int64(i)+1)).Int64())
}

// VerifyPermutation checks that order is a bijection on [0, n).
func VerifyPermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("execution order has %d entries, want %d", len(order), n)
	}
	seen := make([]bool, n)
	for pos, idx := range order {
		if idx < 0 || idx >= n {
			return fmt.Errorf("index %d at position %d out of range", idx, pos)
		}
		if seen[idx] {
			return fmt.Errorf("index %d appears twice", idx)
		}
		seen[idx] = true
	}
	return nil
}
