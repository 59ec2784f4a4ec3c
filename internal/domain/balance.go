package domain

import (
	"fmt"

	"nft_market/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BalanceBook tracks token balances per account together with the total supply.
type BalanceBook struct {
	balances map[common.Address]*uint256.Int
	supply   *uint256.Int
}

// NewBalanceBook creates a new balance book.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
	}
}

// Balance returns a copy of the balance of owner.
func (bb *BalanceBook) Balance(owner common.Address) *uint256.Int {
	b, ok := bb.balances[owner]
	if !ok {
		return new(uint256.Int)
	}
	return b.Clone()
}

// TotalSupply returns a copy of the total supply.
func (bb *BalanceBook) TotalSupply() *uint256.Int {
	return bb.supply.Clone()
}

// Credit adds amount to owner.
func (bb *BalanceBook) Credit(owner common.Address, amount *uint256.Int) error {
	next, err := safe.SafeAdd(bb.Balance(owner), amount)
	if err != nil {
		return err
	}
	bb.set(owner, next)
	return nil
}

// Debit removes amount from owner.
func (bb *BalanceBook) Debit(owner common.Address, amount *uint256.Int) error {
	cur := bb.Balance(owner)
	if cur.Lt(amount) {
		return ErrTransferAmountExceedsBalance
	}
	bb.set(owner, new(uint256.Int).Sub(cur, amount))
	return nil
}

// Mint credits owner and grows the supply.
func (bb *BalanceBook) Mint(owner common.Address, amount *uint256.Int) error {
	supply, err := safe.SafeAdd(bb.supply, amount)
	if err != nil {
		return err
	}
	if err := bb.Credit(owner, amount); err != nil {
		return err
	}
	bb.supply = supply
	return nil
}

// Burn debits owner and shrinks the supply.
func (bb *BalanceBook) Burn(owner common.Address, amount *uint256.Int) error {
	if err := bb.Debit(owner, amount); err != nil {
		return err
	}
	bb.supply = new(uint256.Int).Sub(bb.supply, amount)
	return nil
}

func (bb *BalanceBook) set(owner common.Address, v *uint256.Int) {
	if v.IsZero() {
		delete(bb.balances, owner)
		return
	}
	bb.balances[owner] = v
}

// VerifyInvariant checks that the balances sum to the total supply.
// Call this after any state change to ensure data integrity.
func (bb *BalanceBook) VerifyInvariant() {
	sum := new(uint256.Int)
	for owner, b := range bb.balances {
		var overflow bool
		sum, overflow = sum.AddOverflow(sum, b)
		if overflow {
			panic(fmt.Sprintf("BALANCE_INVARIANT_OVERFLOW: at %s", owner.Hex()))
		}
	}
	if !sum.Eq(bb.supply) {
		panic(fmt.Sprintf("BALANCE_INVARIANT_SUPPLY_MISMATCH: sum=%s, supply=%s", sum.Dec(), bb.supply.Dec()))
	}
}

// Snapshot returns a copy of all balances (for state dump).
func (bb *BalanceBook) Snapshot() map[string]string {
	result := make(map[string]string, len(bb.balances))
	for k, v := range bb.balances {
		result[k.Hex()] = v.Dec()
	}
	return result
}
