package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"nft_market/internal/access"
	"nft_market/internal/domain"
	"nft_market/internal/execution"
	"nft_market/internal/market"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownMethod    = errors.New("unknown method")
	ErrInvalidParams    = errors.New("invalid params")
	ErrSequencerStopped = errors.New("sequencer stopped")
	ErrMissingSender    = errors.New("missing sender")
)

// Env is the state a transaction executes against.
type Env struct {
	Journal *state.Journal
	Chain   *execution.Chain
	Market  *market.Market
}

// Tx is the wire form of a transaction. Nonce counts the sender's sequenced
// transactions; Signature is a secp256k1 signature over SigningHash.
type Tx struct {
	From      common.Address  `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Signature hexutil.Bytes   `json:"signature"`
}

// Call is a decoded transaction payload.
type Call interface {
	Apply(env *Env, tx domain.TxContext) error
}

const (
	MethodUpdateTokenList       = "market.updateTokenList"
	MethodListFixedPrice        = "market.listFixedPrice"
	MethodDelistFixedPrice      = "market.delistFixedPrice"
	MethodBuyFixedPrice         = "market.buyFixedPrice"
	MethodListAuction           = "market.listAuction"
	MethodBid                   = "market.bid"
	MethodInstantBuy            = "market.instantBuy"
	MethodFinishAuction         = "market.finishAuction"
	MethodFinishUnsuccessful    = "market.finishUnsuccessfulAuction"
	MethodWithdrawFee           = "market.withdrawFee"
	MethodGrantRole             = "access.grantRole"
	MethodRevokeRole            = "access.revokeRole"
	MethodTokenMint             = "token.mint"
	MethodTokenApprove          = "token.approve"
	MethodTokenTransfer         = "token.transfer"
	MethodItemMint              = "item.mint"
	MethodItemApprove           = "item.approve"
	MethodItemSetApprovalForAll = "item.setApprovalForAll"
	MethodItemTransferFrom      = "item.transferFrom"
)

var registry = map[string]func() Call{
	MethodUpdateTokenList:       func() Call { return &UpdateTokenListCall{} },
	MethodListFixedPrice:        func() Call { return &ListFixedPriceCall{} },
	MethodDelistFixedPrice:      func() Call { return &DelistFixedPriceCall{} },
	MethodBuyFixedPrice:         func() Call { return &BuyFixedPriceCall{} },
	MethodListAuction:           func() Call { return &ListAuctionCall{} },
	MethodBid:                   func() Call { return &BidCall{} },
	MethodInstantBuy:            func() Call { return &InstantBuyCall{} },
	MethodFinishAuction:         func() Call { return &FinishAuctionCall{} },
	MethodFinishUnsuccessful:    func() Call { return &FinishUnsuccessfulCall{} },
	MethodWithdrawFee:           func() Call { return &WithdrawFeeCall{} },
	MethodGrantRole:             func() Call { return &RoleCall{} },
	MethodRevokeRole:            func() Call { return &RoleCall{Revoke: true} },
	MethodTokenMint:             func() Call { return &TokenMintCall{} },
	MethodTokenApprove:          func() Call { return &TokenApproveCall{} },
	MethodTokenTransfer:         func() Call { return &TokenTransferCall{} },
	MethodItemMint:              func() Call { return &ItemMintCall{} },
	MethodItemApprove:           func() Call { return &ItemApproveCall{} },
	MethodItemSetApprovalForAll: func() Call { return &ItemApprovalForAllCall{} },
	MethodItemTransferFrom:      func() Call { return &ItemTransferCall{} },
}

// Methods lists every method name Decode accepts.
func Methods() []string {
	out := make([]string, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Decode parses the params of method into its Call.
func Decode(method string, params json.RawMessage) (Call, error) {
	ctor, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	call := ctor()
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, call); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, method, err)
	}
	return call, nil
}

// ======================================================================================
// Marketplace
// ======================================================================================

type UpdateTokenListCall struct {
	Token common.Address `json:"token"`
	Mode  uint8          `json:"mode"`
}

func (c *UpdateTokenListCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.UpdateTokenList(tx, c.Token, domain.TokenMode(c.Mode))
}

type ListFixedPriceCall struct {
	Collection   common.Address `json:"collection"`
	ItemID       uint256.Int    `json:"itemId"`
	Price        uint256.Int    `json:"price"`
	PaymentToken common.Address `json:"paymentToken"`
}

func (c *ListFixedPriceCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.ListFixedPriceMarketItem(tx, c.Collection, &c.ItemID, &c.Price, c.PaymentToken)
}

// ItemRef addresses one item of a collection.
type ItemRef struct {
	Collection common.Address `json:"collection"`
	ItemID     uint256.Int    `json:"itemId"`
}

type DelistFixedPriceCall struct{ ItemRef }

func (c *DelistFixedPriceCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.DelistFixedPriceMarketItem(tx, c.Collection, &c.ItemID)
}

type BuyFixedPriceCall struct{ ItemRef }

func (c *BuyFixedPriceCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.BuyItemOnFixedPriceMarket(tx, c.Collection, &c.ItemID)
}

type ListAuctionCall struct {
	Collection          common.Address `json:"collection"`
	ItemID              uint256.Int    `json:"itemId"`
	PaymentToken        common.Address `json:"paymentToken"`
	StartPrice          uint256.Int    `json:"startPrice"`
	MinIncreaseInterval uint256.Int    `json:"minIncreaseInterval"`
	InstantBuyPrice     uint256.Int    `json:"instantBuyPrice"`
	EndDate             uint64         `json:"endDate"`
}

func (c *ListAuctionCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.ListMarketItemOnEnglishAuction(tx, c.Collection, &c.ItemID, c.PaymentToken, market.AuctionParams{
		StartPrice:          &c.StartPrice,
		MinIncreaseInterval: &c.MinIncreaseInterval,
		InstantBuyPrice:     &c.InstantBuyPrice,
		EndDate:             c.EndDate,
	})
}

type BidCall struct {
	Collection common.Address `json:"collection"`
	ItemID     uint256.Int    `json:"itemId"`
	Amount     uint256.Int    `json:"amount"`
}

func (c *BidCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.MakeBidAtEnglishAuction(tx, c.Collection, &c.ItemID, &c.Amount)
}

type InstantBuyCall struct{ ItemRef }

func (c *InstantBuyCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.InstantBuyAtEnglishAuction(tx, c.Collection, &c.ItemID)
}

type FinishAuctionCall struct{ ItemRef }

func (c *FinishAuctionCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.FinishEnglishAuction(tx, c.Collection, &c.ItemID)
}

type FinishUnsuccessfulCall struct{ ItemRef }

func (c *FinishUnsuccessfulCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.FinishUnsuccessfulAuction(tx, c.Collection, &c.ItemID)
}

type WithdrawFeeCall struct {
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	Amount    uint256.Int    `json:"amount"`
}

func (c *WithdrawFeeCall) Apply(env *Env, tx domain.TxContext) error {
	return env.Market.WithdrawFee(tx, c.Token, c.Recipient, &c.Amount)
}

// RoleCall grants or revokes a marketplace role. Role is either a role name
// ("ADMIN_ROLE", "DEFAULT_ADMIN_ROLE") or its 32-byte hex id.
type RoleCall struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
	Revoke  bool           `json:"-"`
}

func (c *RoleCall) Apply(env *Env, tx domain.TxContext) error {
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return domain.Revert("role", err)
	}
	if c.Revoke {
		return env.Market.Access().RevokeRole(tx, role, c.Account)
	}
	return env.Market.Access().GrantRole(tx, role, c.Account)
}

// ======================================================================================
// Paper ledgers
// ======================================================================================

// Minting is a faucet restricted to marketplace admins.
func requireMinter(env *Env, tx domain.TxContext) error {
	return env.Market.Access().CheckRole(access.AdminRole, tx.Sender)
}

type TokenMintCall struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount uint256.Int    `json:"amount"`
}

func (c *TokenMintCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodTokenMint
	if err := requireMinter(env, tx); err != nil {
		return domain.Revert(op, err)
	}
	t, err := env.Chain.PaperToken(c.Token)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, t.Mint(c.To, &c.Amount))
}

type TokenApproveCall struct {
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  uint256.Int    `json:"amount"`
}

func (c *TokenApproveCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodTokenApprove
	t, err := env.Chain.PaperToken(c.Token)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, t.Approve(tx.Sender, c.Spender, &c.Amount))
}

type TokenTransferCall struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount uint256.Int    `json:"amount"`
}

func (c *TokenTransferCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodTokenTransfer
	t, err := env.Chain.PaperToken(c.Token)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, t.Transfer(tx.Sender, c.To, &c.Amount))
}

// ItemMintCall mints a new item. A non-zero RoyaltyReceiver sets a
// per-item royalty of RoyaltyBps.
type ItemMintCall struct {
	Collection      common.Address `json:"collection"`
	To              common.Address `json:"to"`
	ItemID          uint256.Int    `json:"itemId"`
	RoyaltyReceiver common.Address `json:"royaltyReceiver"`
	RoyaltyBps      uint64         `json:"royaltyBps"`
}

func (c *ItemMintCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodItemMint
	if err := requireMinter(env, tx); err != nil {
		return domain.Revert(op, err)
	}
	coll, err := env.Chain.PaperCollection(c.Collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	if c.RoyaltyReceiver != domain.ZeroAddress {
		return domain.Revert(op, coll.MintWithRoyalty(c.To, &c.ItemID, c.RoyaltyReceiver, c.RoyaltyBps))
	}
	return domain.Revert(op, coll.Mint(c.To, &c.ItemID))
}

type ItemApproveCall struct {
	Collection common.Address `json:"collection"`
	To         common.Address `json:"to"`
	ItemID     uint256.Int    `json:"itemId"`
}

func (c *ItemApproveCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodItemApprove
	coll, err := env.Chain.PaperCollection(c.Collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, coll.Approve(tx.Sender, c.To, &c.ItemID))
}

type ItemApprovalForAllCall struct {
	Collection common.Address `json:"collection"`
	Operator   common.Address `json:"operator"`
	Approved   bool           `json:"approved"`
}

func (c *ItemApprovalForAllCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodItemSetApprovalForAll
	coll, err := env.Chain.PaperCollection(c.Collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, coll.SetApprovalForAll(tx.Sender, c.Operator, c.Approved))
}

type ItemTransferCall struct {
	Collection common.Address `json:"collection"`
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	ItemID     uint256.Int    `json:"itemId"`
}

func (c *ItemTransferCall) Apply(env *Env, tx domain.TxContext) error {
	const op = MethodItemTransferFrom
	coll, err := env.Chain.PaperCollection(c.Collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	return domain.Revert(op, coll.TransferFrom(tx.Sender, c.From, c.To, &c.ItemID))
}
