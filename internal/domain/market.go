package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ZeroAddress is the unset address. A zero LatestBidder means "no bid yet".
var ZeroAddress = common.Address{}

// ItemKey identifies one asset: the collection contract plus the item id.
// uint256.Int is an array type, so ItemKey is usable as a map key.
type ItemKey struct {
	Collection common.Address
	ItemID     uint256.Int
}

// NewItemKey builds a key, copying the id.
func NewItemKey(collection common.Address, itemID *uint256.Int) ItemKey {
	return ItemKey{Collection: collection, ItemID: *itemID}
}

func (k ItemKey) String() string {
	return k.Collection.Hex() + "/" + k.ItemID.Dec()
}

// TokenMode is the registry classification of a payment token.
type TokenMode uint8

const (
	TokenNotAccepted TokenMode = iota
	TokenFeeApplies
	TokenNoFee
)

// Valid reports whether m is one of the three defined modes.
func (m TokenMode) Valid() bool {
	return m <= TokenNoFee
}

func (m TokenMode) String() string {
	switch m {
	case TokenNotAccepted:
		return "not_accepted"
	case TokenFeeApplies:
		return "fee_applies"
	case TokenNoFee:
		return "no_fee"
	default:
		return fmt.Sprintf("TokenMode(%d)", uint8(m))
	}
}

// ParseTokenMode accepts both the names returned by String and the numeric form.
func ParseTokenMode(s string) (TokenMode, error) {
	switch s {
	case "not_accepted", "0":
		return TokenNotAccepted, nil
	case "fee_applies", "fee", "1":
		return TokenFeeApplies, nil
	case "no_fee", "2":
		return TokenNoFee, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTokenMode, s)
}

// MarketItem is the latest fixed-price record of an item.
// IsActive means the item is held in escrow for Seller.
type MarketItem struct {
	Price        *uint256.Int   `json:"price"`
	PaymentToken common.Address `json:"erc20Token"`
	Seller       common.Address `json:"seller"`
	IsActive     bool           `json:"isActive"`
}

// Clone returns a deep copy.
func (m *MarketItem) Clone() *MarketItem {
	if m == nil {
		return nil
	}
	c := *m
	if m.Price != nil {
		c.Price = m.Price.Clone()
	}
	return &c
}

// AuctionState is the lifecycle of an English auction.
type AuctionState uint8

const (
	AuctionNotStarted AuctionState = iota
	AuctionStarted
	AuctionFinished
	AuctionUnsuccessful
)

func (s AuctionState) String() string {
	switch s {
	case AuctionNotStarted:
		return "not_started"
	case AuctionStarted:
		return "started"
	case AuctionFinished:
		return "finished"
	case AuctionUnsuccessful:
		return "unsuccessful"
	default:
		return fmt.Sprintf("AuctionState(%d)", uint8(s))
	}
}

func (s AuctionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// EnglishAuction is the latest auction record of an item.
// EndDate is a unix timestamp in seconds.
type EnglishAuction struct {
	CurrentPrice        *uint256.Int   `json:"currentPrice"`
	MinIncreaseInterval *uint256.Int   `json:"minIncreaseInterval"`
	InstantBuyPrice     *uint256.Int   `json:"instantBuyPrice"`
	ItemID              *uint256.Int   `json:"tokenId"`
	EndDate             uint64         `json:"endDate"`
	TokenOwner          common.Address `json:"tokenOwner"`
	PaymentToken        common.Address `json:"erc20Token"`
	Collection          common.Address `json:"collection"`
	LatestBidder        common.Address `json:"latestBidder"`
	State               AuctionState   `json:"state"`
}

// HasBid reports whether a bid is currently held in escrow.
func (a *EnglishAuction) HasBid() bool {
	return a.LatestBidder != ZeroAddress
}

// Clone returns a deep copy.
func (a *EnglishAuction) Clone() *EnglishAuction {
	if a == nil {
		return nil
	}
	c := *a
	c.CurrentPrice = cloneInt(a.CurrentPrice)
	c.MinIncreaseInterval = cloneInt(a.MinIncreaseInterval)
	c.InstantBuyPrice = cloneInt(a.InstantBuyPrice)
	c.ItemID = cloneInt(a.ItemID)
	return &c
}

// SaleKind names the sale structure that currently owns an escrowed item.
type SaleKind uint8

const (
	SaleNone SaleKind = iota
	SaleFixedPrice
	SaleAuction
)

func (k SaleKind) String() string {
	switch k {
	case SaleFixedPrice:
		return "fixed_price"
	case SaleAuction:
		return "auction"
	default:
		return "none"
	}
}

func (k SaleKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Slot is the per-item record shared by both sale modes. Active is the only
// source of truth for which sale holds the item; Fixed and Auction keep the
// latest record of each kind for the read views.
type Slot struct {
	Active  SaleKind        `json:"active"`
	Fixed   *MarketItem     `json:"fixed,omitempty"`
	Auction *EnglishAuction `json:"auction,omitempty"`
}

// Clone returns a deep copy.
func (s *Slot) Clone() *Slot {
	if s == nil {
		return nil
	}
	return &Slot{Active: s.Active, Fixed: s.Fixed.Clone(), Auction: s.Auction.Clone()}
}

// Consistent reports whether Active agrees with the flags of the records.
func (s *Slot) Consistent() bool {
	fixedLive := s.Fixed != nil && s.Fixed.IsActive
	auctionLive := s.Auction != nil && s.Auction.State == AuctionStarted
	switch s.Active {
	case SaleNone:
		return !fixedLive && !auctionLive
	case SaleFixedPrice:
		return fixedLive && !auctionLive
	case SaleAuction:
		return auctionLive && !fixedLive
	}
	return false
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return nil
	}
	return x.Clone()
}
