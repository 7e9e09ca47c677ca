package auction

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/model"
)

// ledger holds withdrawable balances. The engine only ever credits it after
// the state change that earned the credit; callers pull funds with Claim.
// Not safe for concurrent use; guarded by the engine mutex.
type ledger struct {
	balances map[common.Address]decimal.Decimal
}

func newLedger() *ledger {
	return &ledger{balances: make(map[common.Address]decimal.Decimal)}
}

func (l *ledger) credit(addr common.Address, amount decimal.Decimal) model.Balance {
	l.balances[addr] = l.balances[addr].Add(amount)
	return model.Balance{Address: addr, Amount: l.balances[addr]}
}

func (l *ledger) balance(addr common.Address) decimal.Decimal {
	return l.balances[addr]
}

func (l *ledger) claim(addr common.Address) decimal.Decimal {
	amt := l.balances[addr]
	delete(l.balances, addr)
	return amt
}
