package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Collection is the asset ledger (ERC-721) of one collection as seen by the marketplace.
type Collection interface {
	OwnerOf(itemID *uint256.Int) (common.Address, error)
	// TransferFrom moves itemID from -> to on behalf of operator.
	TransferFrom(operator, from, to common.Address, itemID *uint256.Int) error
}

// RoyaltyProvider is implemented by collections that expose ERC-2981 royalty info.
type RoyaltyProvider interface {
	RoyaltyInfo(itemID, salePrice *uint256.Int) (common.Address, *uint256.Int)
}

// PaymentToken is the payment ledger (ERC-20) as seen by the marketplace.
type PaymentToken interface {
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	// Transfer moves amount from -> to; from is the caller.
	Transfer(from, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount from -> to using spender's allowance.
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// Ledgers resolves contract addresses to the ledgers deployed there.
type Ledgers interface {
	Token(addr common.Address) (PaymentToken, error)
	Collection(addr common.Address) (Collection, error)
}

// Clock supplies block time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TxContext is the explicit authorization and time context of one call.
type TxContext struct {
	Sender common.Address
	Now    uint64 // unix seconds
}
