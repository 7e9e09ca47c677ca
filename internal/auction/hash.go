package auction

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// OrderFields are the order parameters bound by a commitment hash.
type OrderFields struct {
	Trader       common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	Secret       common.Hash
}

// CommitHash computes
//
//	keccak256(trader || tokenIn || tokenOut || uint256(amountIn) || uint256(minAmountOut) || secret)
//
// Binding every order field, not just a nonce, stops a revealer from
// substituting different parameters than committed.
func CommitHash(f OrderFields) (common.Hash, error) {
	amountIn, err := uint256Word(f.AmountIn)
	if err != nil {
		return common.Hash{}, fmt.Errorf("amount_in: %w", err)
	}
	minOut, err := uint256Word(f.MinAmountOut)
	if err != nil {
		return common.Hash{}, fmt.Errorf("min_amount_out: %w", err)
	}
	return crypto.Keccak256Hash(
		f.Trader.Bytes(),
		f.TokenIn.Bytes(),
		f.TokenOut.Bytes(),
		amountIn,
		minOut,
		f.Secret.Bytes(),
	), nil
}

// CommitID derives the collision-resistant commitment id from
// keccak256(depositor || commitHash || uint256(batchID) || uint256(unix seconds)).
func CommitID(depositor common.Address, commitHash common.Hash, batchID uint64, at time.Time) common.Hash {
	return crypto.Keccak256Hash(
		depositor.Bytes(),
		commitHash.Bytes(),
		uint64Word(batchID),
		uint64Word(uint64(at.Unix())),
	)
}

// AccumulateEntropy folds one revealed secret into the running accumulator.
func AccumulateEntropy(acc, secret common.Hash) common.Hash {
	return crypto.Keccak256Hash(acc.Bytes(), secret.Bytes())
}

// ShuffleSeed is keccak256(uint256(batchID) || accumulator || blockEntropy).
// It cannot be known before the last secret of the batch is revealed.
func ShuffleSeed(batchID uint64, acc, blockEntropy common.Hash) common.Hash {
	return crypto.Keccak256Hash(uint64Word(batchID), acc.Bytes(), blockEntropy.Bytes())
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// uint256Word encodes a non-negative integral amount as a 32-byte big-endian word.
func uint256Word(d decimal.Decimal) ([]byte, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", d)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("amount %s is not an integer", d)
	}
	v := d.BigInt()
	if v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("amount %s overflows uint256", d)
	}
	return common.LeftPadBytes(v.Bytes(), 32), nil
}

func uint64Word(v uint64) []byte {
	var w [32]byte
	binary.BigEndian.PutUint64(w[24:], v)
	return w[:]
}
