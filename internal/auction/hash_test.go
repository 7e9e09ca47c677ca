package auction_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
)

func baseFields() auction.OrderFields {
	return auction.OrderFields{
		Trader:       alice,
		TokenIn:      tokenA,
		TokenOut:     tokenB,
		AmountIn:     n(1_000_000),
		MinAmountOut: n(990_000),
		Secret:       secretOf(7),
	}
}

func TestCommitHash_Deterministic(t *testing.T) {
	h1, err := auction.CommitHash(baseFields())
	if err != nil {
		t.Fatalf("CommitHash: %v", err)
	}
	h2, _ := auction.CommitHash(baseFields())
	if h1 != h2 {
		t.Errorf("same fields produced %s and %s", h1.Hex(), h2.Hex())
	}

	f := baseFields()
	f.Trader = bob
	h3, _ := auction.CommitHash(f)
	if h3 == h1 {
		t.Error("hash must bind the trader")
	}
}

func TestCommitHash_RejectsBadAmounts(t *testing.T) {
	for name, amt := range map[string]decimal.Decimal{
		"negative":   n(-1),
		"fractional": decimal.RequireFromString("1.5"),
		"overflow":   decimal.NewFromBigInt(common.Big1, 78),
	} {
		f := baseFields()
		f.AmountIn = amt
		if _, err := auction.CommitHash(f); err == nil {
			t.Errorf("%s amount accepted", name)
		}
	}
}

func TestShuffleSeed_DependsOnEveryInput(t *testing.T) {
	acc := auction.AccumulateEntropy(common.Hash{}, secretOf(1))
	block := common.HexToHash("0x01")
	base := auction.ShuffleSeed(1, acc, block)

	if auction.ShuffleSeed(2, acc, block) == base {
		t.Error("seed must depend on batch id")
	}
	if auction.ShuffleSeed(1, auction.AccumulateEntropy(acc, secretOf(2)), block) == base {
		t.Error("seed must depend on accumulated secrets")
	}
	if auction.ShuffleSeed(1, acc, common.HexToHash("0x02")) == base {
		t.Error("seed must depend on block entropy")
	}
}

func FuzzCommitHash(f *testing.F) {
	f.Add([]byte{1}, []byte{2}, int64(1000))
	f.Add([]byte{0xff, 0xee}, []byte{0x01}, int64(0))
	f.Fuzz(func(t *testing.T, s1, s2 []byte, amount int64) {
		if amount < 0 {
			amount = -amount
		}
		if amount < 0 {
			return
		}
		a, b := baseFields(), baseFields()
		a.AmountIn, b.AmountIn = n(amount), n(amount)
		a.Secret, b.Secret = common.BytesToHash(s1), common.BytesToHash(s2)

		ha, err := auction.CommitHash(a)
		if err != nil {
			t.Fatalf("CommitHash: %v", err)
		}
		hb, _ := auction.CommitHash(b)
		if (a.Secret == b.Secret) != (ha == hb) {
			t.Errorf("secrets %x / %x gave hashes %s / %s", s1, s2, ha.Hex(), hb.Hex())
		}
	})
}
