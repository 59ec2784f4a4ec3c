package execution

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PaperToken is an in-process ERC-20 ledger. Every mutation is journaled.
type PaperToken struct {
	address    common.Address
	symbol     string
	book       *domain.BalanceBook
	allowances map[common.Address]map[common.Address]*uint256.Int
	journal    *state.Journal
}

// NewPaperToken creates an empty token at addr.
func NewPaperToken(addr common.Address, symbol string, j *state.Journal) *PaperToken {
	return &PaperToken{
		address:    addr,
		symbol:     symbol,
		book:       domain.NewBalanceBook(),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
		journal:    j,
	}
}

func (t *PaperToken) Address() common.Address { return t.address }
func (t *PaperToken) Symbol() string          { return t.symbol }

// BalanceOf returns a copy of the balance of owner.
func (t *PaperToken) BalanceOf(owner common.Address) *uint256.Int {
	return t.book.Balance(owner)
}

// TotalSupply returns a copy of the total supply.
func (t *PaperToken) TotalSupply() *uint256.Int {
	return t.book.TotalSupply()
}

// Allowance returns a copy of what spender may move on behalf of owner.
func (t *PaperToken) Allowance(owner, spender common.Address) *uint256.Int {
	a, ok := t.allowances[owner][spender]
	if !ok {
		return new(uint256.Int)
	}
	return a.Clone()
}

// Mint creates amount for to.
func (t *PaperToken) Mint(to common.Address, amount *uint256.Int) error {
	if to == domain.ZeroAddress {
		return domain.ErrERC20ZeroAddress
	}
	if err := t.book.Mint(to, amount); err != nil {
		return err
	}
	minted := amount.Clone()
	t.journal.Append(func() { _ = t.book.Burn(to, minted) })
	t.emitTransfer(domain.ZeroAddress, to, amount)
	return nil
}

// Approve sets the allowance of spender over owner's tokens.
func (t *PaperToken) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if spender == domain.ZeroAddress {
		return domain.ErrERC20ZeroAddress
	}
	t.setAllowance(owner, spender, amount.Clone())
	t.journal.Emit(&event.ApprovalEvent{
		BaseEvent: event.At(t.address),
		Owner:     owner,
		Spender:   spender,
		Value:     amount.Clone(),
	})
	return nil
}

// Transfer moves amount from -> to.
func (t *PaperToken) Transfer(from, to common.Address, amount *uint256.Int) error {
	if to == domain.ZeroAddress {
		return domain.ErrERC20ZeroAddress
	}
	if err := t.debit(from, amount); err != nil {
		return err
	}
	if err := t.credit(to, amount); err != nil {
		return err
	}
	t.emitTransfer(from, to, amount)
	return nil
}

// TransferFrom spends spender's allowance over from, then transfers.
// An allowance of 2^256-1 is never decreased.
func (t *PaperToken) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowance := t.Allowance(from, spender)
	if allowance.Lt(amount) {
		return domain.ErrInsufficientAllowance
	}
	if !isMax(allowance) {
		t.setAllowance(from, spender, allowance.Sub(allowance, amount))
	}
	return t.Transfer(from, to, amount)
}

func (t *PaperToken) debit(owner common.Address, amount *uint256.Int) error {
	if err := t.book.Debit(owner, amount); err != nil {
		return err
	}
	a := amount.Clone()
	t.journal.Append(func() { _ = t.book.Credit(owner, a) })
	return nil
}

func (t *PaperToken) credit(owner common.Address, amount *uint256.Int) error {
	if err := t.book.Credit(owner, amount); err != nil {
		return err
	}
	a := amount.Clone()
	t.journal.Append(func() { _ = t.book.Debit(owner, a) })
	return nil
}

func (t *PaperToken) setAllowance(owner, spender common.Address, v *uint256.Int) {
	prev, had := t.allowances[owner][spender]
	t.journal.Append(func() {
		if had {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	})
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[owner][spender] = v
}

func (t *PaperToken) emitTransfer(from, to common.Address, amount *uint256.Int) {
	t.journal.Emit(&event.TransferEvent{
		BaseEvent: event.At(t.address),
		From:      from,
		To:        to,
		Value:     amount.Clone(),
	})
}

// VerifyInvariant panics when balances do not sum to the supply.
func (t *PaperToken) VerifyInvariant() {
	t.book.VerifyInvariant()
}

// Balances returns every non-zero balance (for state dump).
func (t *PaperToken) Balances() map[string]string {
	return t.book.Snapshot()
}

func isMax(v *uint256.Int) bool {
	return v.Eq(maxUint256)
}

var maxUint256 = new(uint256.Int).SetAllOne()
