package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Type names an emitted log.
type Type string

const (
	TypeTransfer                     Type = "Transfer"
	TypeApproval                     Type = "Approval"
	TypeApprovalForAll               Type = "ApprovalForAll"
	TypeTokenListUpdated             Type = "TokenListUpdated"
	TypeFixedPriceMarketItemListed   Type = "FixedPriceMarketItemListed"
	TypeFixedPriceMarketItemDelisted Type = "FixedPriceMarketItemDelisted"
	TypeFixedPriceMarketItemBought   Type = "FixedPriceMarketItemBought"
	TypeEnglishAuctionStarted        Type = "EnglishAuctionStarted"
	TypeBidMade                      Type = "BidMade"
	TypeAuctionFinished              Type = "AuctionFinished"
	TypeFeeWithdrawn                 Type = "FeeWithdrawn"
	TypeRoleGranted                  Type = "RoleGranted"
	TypeRoleRevoked                  Type = "RoleRevoked"
)

// Event is a log emitted by a ledger or the marketplace during a transaction.
// Seq and Ts are stamped by the sequencer when the transaction commits.
type Event interface {
	GetType() Type
	GetSeq() uint64
	GetTs() uint64
	Emitter() common.Address
	Stamp(seq, ts uint64)
}

// BaseEvent carries the fields shared by every log.
type BaseEvent struct {
	Seq      uint64         `json:"seq"`
	Ts       uint64         `json:"ts"`
	Contract common.Address `json:"contract"`
}

func (b *BaseEvent) GetSeq() uint64          { return b.Seq }
func (b *BaseEvent) GetTs() uint64           { return b.Ts }
func (b *BaseEvent) Emitter() common.Address { return b.Contract }
func (b *BaseEvent) Stamp(seq, ts uint64)    { b.Seq, b.Ts = seq, ts }

// At returns a BaseEvent for a log emitted by contract.
func At(contract common.Address) BaseEvent {
	return BaseEvent{Contract: contract}
}

// TransferEvent is the ERC-20 Transfer log.
type TransferEvent struct {
	BaseEvent
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *uint256.Int   `json:"value"`
}

func (e *TransferEvent) GetType() Type { return TypeTransfer }

// ApprovalEvent is the ERC-20 Approval log.
type ApprovalEvent struct {
	BaseEvent
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

func (e *ApprovalEvent) GetType() Type { return TypeApproval }

// ItemTransferEvent is the ERC-721 Transfer log.
type ItemTransferEvent struct {
	BaseEvent
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	TokenID *uint256.Int   `json:"tokenId"`
}

func (e *ItemTransferEvent) GetType() Type { return TypeTransfer }

// ItemApprovalEvent is the ERC-721 Approval log.
type ItemApprovalEvent struct {
	BaseEvent
	Owner    common.Address `json:"owner"`
	Approved common.Address `json:"approved"`
	TokenID  *uint256.Int   `json:"tokenId"`
}

func (e *ItemApprovalEvent) GetType() Type { return TypeApproval }

// ApprovalForAllEvent is the ERC-721 operator approval log.
type ApprovalForAllEvent struct {
	BaseEvent
	Owner    common.Address `json:"owner"`
	Operator common.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

func (e *ApprovalForAllEvent) GetType() Type { return TypeApprovalForAll }

type TokenListUpdatedEvent struct {
	BaseEvent
	Token common.Address `json:"token"`
	Mode  uint8          `json:"mode"`
}

func (e *TokenListUpdatedEvent) GetType() Type { return TypeTokenListUpdated }

type FixedPriceMarketItemListedEvent struct {
	BaseEvent
	Collection   common.Address `json:"collection"`
	TokenID      *uint256.Int   `json:"tokenId"`
	Price        *uint256.Int   `json:"price"`
	PaymentToken common.Address `json:"erc20Token"`
}

func (e *FixedPriceMarketItemListedEvent) GetType() Type { return TypeFixedPriceMarketItemListed }

type FixedPriceMarketItemDelistedEvent struct {
	BaseEvent
	Collection common.Address `json:"collection"`
	TokenID    *uint256.Int   `json:"tokenId"`
	Seller     common.Address `json:"seller"`
}

func (e *FixedPriceMarketItemDelistedEvent) GetType() Type { return TypeFixedPriceMarketItemDelisted }

type FixedPriceMarketItemBoughtEvent struct {
	BaseEvent
	Buyer      common.Address `json:"buyer"`
	Seller     common.Address `json:"seller"`
	Collection common.Address `json:"collection"`
	TokenID    *uint256.Int   `json:"tokenId"`
	Price      *uint256.Int   `json:"price"`
}

func (e *FixedPriceMarketItemBoughtEvent) GetType() Type { return TypeFixedPriceMarketItemBought }

type EnglishAuctionStartedEvent struct {
	BaseEvent
	StartPrice          *uint256.Int   `json:"startPrice"`
	MinIncreaseInterval *uint256.Int   `json:"minIncreaseInterval"`
	InstantBuyPrice     *uint256.Int   `json:"instantBuyPrice"`
	TokenID             *uint256.Int   `json:"tokenId"`
	EndDate             uint64         `json:"endDate"`
	PaymentToken        common.Address `json:"erc20Token"`
	Collection          common.Address `json:"collection"`
	Seller              common.Address `json:"seller"`
}

func (e *EnglishAuctionStartedEvent) GetType() Type { return TypeEnglishAuctionStarted }

type BidMadeEvent struct {
	BaseEvent
	Bidder     common.Address `json:"bidder"`
	Amount     *uint256.Int   `json:"amount"`
	Collection common.Address `json:"collection"`
	TokenID    *uint256.Int   `json:"tokenId"`
}

func (e *BidMadeEvent) GetType() Type { return TypeBidMade }

// AuctionFinishedEvent is emitted for every auction resolution. An
// unsuccessful auction reports the seller as winner and a zero price.
type AuctionFinishedEvent struct {
	BaseEvent
	Seller     common.Address `json:"seller"`
	Winner     common.Address `json:"winner"`
	Collection common.Address `json:"collection"`
	TokenID    *uint256.Int   `json:"tokenId"`
	Price      *uint256.Int   `json:"price"`
}

func (e *AuctionFinishedEvent) GetType() Type { return TypeAuctionFinished }

type FeeWithdrawnEvent struct {
	BaseEvent
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

func (e *FeeWithdrawnEvent) GetType() Type { return TypeFeeWithdrawn }

type RoleGrantedEvent struct {
	BaseEvent
	Role    common.Hash    `json:"role"`
	Account common.Address `json:"account"`
	Sender  common.Address `json:"sender"`
}

func (e *RoleGrantedEvent) GetType() Type { return TypeRoleGranted }

type RoleRevokedEvent struct {
	BaseEvent
	Role    common.Hash    `json:"role"`
	Account common.Address `json:"account"`
	Sender  common.Address `json:"sender"`
}

func (e *RoleRevokedEvent) GetType() Type { return TypeRoleRevoked }
