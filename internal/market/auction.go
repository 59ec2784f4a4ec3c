package market

import (
	"log/slog"

	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AuctionParams are the seller-chosen terms of an English auction.
// A zero InstantBuyPrice disables instant buy.
type AuctionParams struct {
	StartPrice          *uint256.Int
	MinIncreaseInterval *uint256.Int
	InstantBuyPrice     *uint256.Int
	EndDate             uint64
}

func (p AuctionParams) validate(now uint64) error {
	if p.StartPrice.IsZero() || p.MinIncreaseInterval.IsZero() {
		return domain.ErrAmountCanNotBeZero
	}
	if p.StartPrice.Lt(p.MinIncreaseInterval) {
		return domain.ErrInvalidAuctionParameters
	}
	if !p.InstantBuyPrice.IsZero() && p.InstantBuyPrice.Lt(p.StartPrice) {
		return domain.ErrInvalidAuctionParameters
	}
	if p.EndDate <= now {
		return domain.ErrInvalidTimeForFunction
	}
	return nil
}

// ListMarketItemOnEnglishAuction escrows the item and opens an auction. The
// first valid bid is startPrice, so the stored current price starts one
// interval below it.
func (m *Market) ListMarketItemOnEnglishAuction(tx domain.TxContext, collection common.Address, itemID *uint256.Int, paymentToken common.Address, p AuctionParams) error {
	const op = "listMarketItemOnEnglishAuction"
	p.InstantBuyPrice = safe.OrZero(p.InstantBuyPrice)
	if err := p.validate(tx.Now); err != nil {
		return domain.Revert(op, err)
	}
	if err := m.requireAccepted(paymentToken); err != nil {
		return domain.Revert(op, err)
	}
	coll, err := m.ledgers.Collection(collection)
	if err != nil {
		return domain.Revert(op, err)
	}

	key := domain.NewItemKey(collection, itemID)
	if err := m.take(key, coll, tx.Sender); err != nil {
		return domain.Revert(op, err)
	}

	s := m.mutableSlot(key)
	s.Auction = &domain.EnglishAuction{
		CurrentPrice:        new(uint256.Int).Sub(p.StartPrice, p.MinIncreaseInterval),
		MinIncreaseInterval: p.MinIncreaseInterval.Clone(),
		InstantBuyPrice:     p.InstantBuyPrice.Clone(),
		ItemID:              itemID.Clone(),
		EndDate:             p.EndDate,
		TokenOwner:          tx.Sender,
		PaymentToken:        paymentToken,
		Collection:          collection,
		LatestBidder:        domain.ZeroAddress,
		State:               domain.AuctionStarted,
	}
	s.Active = domain.SaleAuction

	m.journal.Emit(&event.EnglishAuctionStartedEvent{
		BaseEvent:           event.At(m.address),
		StartPrice:          p.StartPrice.Clone(),
		MinIncreaseInterval: p.MinIncreaseInterval.Clone(),
		InstantBuyPrice:     p.InstantBuyPrice.Clone(),
		TokenID:             itemID.Clone(),
		EndDate:             p.EndDate,
		PaymentToken:        paymentToken,
		Collection:          collection,
		Seller:              tx.Sender,
	})
	return nil
}

// MakeBidAtEnglishAuction places a bid of at least currentPrice+interval. The
// previous bid is refunded in full. A bid at or above the instant-buy price
// is capped to it and settles the auction immediately; the capped price may
// then be less than one interval above the previous bid.
func (m *Market) MakeBidAtEnglishAuction(tx domain.TxContext, collection common.Address, itemID, amount *uint256.Int) error {
	const op = "makeBidAtEnglishAuction"
	key := domain.NewItemKey(collection, itemID)
	a := m.auction(key)

	if tx.Now >= a.EndDate {
		return domain.Revert(op, domain.ErrInvalidTimeForFunction)
	}
	minBid, err := safe.SafeAdd(a.CurrentPrice, a.MinIncreaseInterval)
	if err != nil {
		return domain.Revert(op, err)
	}
	if amount.Lt(minBid) {
		return domain.Revert(op, domain.ErrInvalidBidAmount)
	}
	if a.State != domain.AuctionStarted {
		return domain.Revert(op, domain.ErrInvalidAuctionState)
	}

	coll, token, err := m.auctionLedgers(a)
	if err != nil {
		return domain.Revert(op, err)
	}
	s := m.mutableSlot(key)
	live := s.Auction

	if err := m.refundStandingBid(token, live); err != nil {
		return domain.Revert(op, err)
	}

	instant := !live.InstantBuyPrice.IsZero() && !amount.Lt(live.InstantBuyPrice)
	pay := amount
	if instant {
		pay = live.InstantBuyPrice
	}
	if err := token.TransferFrom(m.address, tx.Sender, m.address, pay); err != nil {
		return domain.Revert(op, err)
	}
	live.CurrentPrice = pay.Clone()
	live.LatestBidder = tx.Sender

	m.journal.Emit(&event.BidMadeEvent{
		BaseEvent:  event.At(m.address),
		Bidder:     tx.Sender,
		Amount:     pay.Clone(),
		Collection: collection,
		TokenID:    itemID.Clone(),
	})

	if instant {
		if err := m.concludeAuction(key, s, coll, token, tx.Sender, pay); err != nil {
			return domain.Revert(op, err)
		}
	}
	return nil
}

// InstantBuyAtEnglishAuction buys the item at the instant-buy price while the
// auction runs. The standing bid is refunded; currentPrice and latestBidder
// keep their last bid values.
func (m *Market) InstantBuyAtEnglishAuction(tx domain.TxContext, collection common.Address, itemID *uint256.Int) error {
	const op = "instantBuyAtEnglishAuction"
	key := domain.NewItemKey(collection, itemID)
	a := m.auction(key)

	if tx.Now >= a.EndDate {
		return domain.Revert(op, domain.ErrInvalidTimeForFunction)
	}
	if a.State != domain.AuctionStarted {
		return domain.Revert(op, domain.ErrInvalidAuctionState)
	}
	if a.InstantBuyPrice.IsZero() {
		return domain.Revert(op, domain.ErrInstantBuyDisabled)
	}

	coll, token, err := m.auctionLedgers(a)
	if err != nil {
		return domain.Revert(op, err)
	}
	s := m.mutableSlot(key)

	if err := m.refundStandingBid(token, s.Auction); err != nil {
		return domain.Revert(op, err)
	}
	price := s.Auction.InstantBuyPrice.Clone()
	if err := token.TransferFrom(m.address, tx.Sender, m.address, price); err != nil {
		return domain.Revert(op, err)
	}
	if err := m.concludeAuction(key, s, coll, token, tx.Sender, price); err != nil {
		return domain.Revert(op, err)
	}
	return nil
}

// FinishEnglishAuction settles an expired auction in favor of the latest bidder.
func (m *Market) FinishEnglishAuction(tx domain.TxContext, collection common.Address, itemID *uint256.Int) error {
	const op = "finishEnglishAuction"
	key := domain.NewItemKey(collection, itemID)
	a := m.auction(key)

	if tx.Now <= a.EndDate {
		return domain.Revert(op, domain.ErrInvalidTimeForFunction)
	}
	if a.State != domain.AuctionStarted {
		return domain.Revert(op, domain.ErrInvalidAuctionState)
	}
	if !a.HasBid() {
		return domain.Revert(op, domain.ErrIncorrectProcessingOfTheAuctionResult)
	}

	coll, token, err := m.auctionLedgers(a)
	if err != nil {
		return domain.Revert(op, err)
	}
	s := m.mutableSlot(key)
	winner, price := s.Auction.LatestBidder, s.Auction.CurrentPrice.Clone()
	if err := m.concludeAuction(key, s, coll, token, winner, price); err != nil {
		return domain.Revert(op, err)
	}
	return nil
}

// FinishUnsuccessfulAuction returns the item of an expired auction without bids to its owner.
func (m *Market) FinishUnsuccessfulAuction(tx domain.TxContext, collection common.Address, itemID *uint256.Int) error {
	const op = "finishUnsuccessfulAuction"
	key := domain.NewItemKey(collection, itemID)
	a := m.auction(key)

	if tx.Now <= a.EndDate {
		return domain.Revert(op, domain.ErrInvalidTimeForFunction)
	}
	if a.State != domain.AuctionStarted {
		return domain.Revert(op, domain.ErrInvalidAuctionState)
	}
	if a.HasBid() {
		return domain.Revert(op, domain.ErrIncorrectProcessingOfTheAuctionResult)
	}

	coll, err := m.ledgers.Collection(collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	s := m.mutableSlot(key)
	owner := s.Auction.TokenOwner
	if err := m.release(key, coll, owner); err != nil {
		return domain.Revert(op, err)
	}
	s.Auction.State = domain.AuctionUnsuccessful
	s.Active = domain.SaleNone

	m.journal.Emit(&event.AuctionFinishedEvent{
		BaseEvent:  event.At(m.address),
		Seller:     owner,
		Winner:     owner,
		Collection: collection,
		TokenID:    itemID.Clone(),
		Price:      new(uint256.Int),
	})
	return nil
}

// auction returns the latest auction of key, or a zero auction.
func (m *Market) auction(key domain.ItemKey) domain.EnglishAuction {
	s := m.slots[key]
	if s == nil || s.Auction == nil {
		return zeroAuction()
	}
	return *s.Auction
}

func (m *Market) auctionLedgers(a domain.EnglishAuction) (domain.Collection, domain.PaymentToken, error) {
	coll, err := m.ledgers.Collection(a.Collection)
	if err != nil {
		return nil, nil, err
	}
	token, err := m.ledgers.Token(a.PaymentToken)
	if err != nil {
		return nil, nil, err
	}
	return coll, token, nil
}

func (m *Market) refundStandingBid(token domain.PaymentToken, a *domain.EnglishAuction) error {
	if !a.HasBid() {
		return nil
	}
	return token.Transfer(m.address, a.LatestBidder, a.CurrentPrice)
}

// concludeAuction settles price held in escrow, hands the item to winner and
// closes the auction.
func (m *Market) concludeAuction(key domain.ItemKey, s *domain.Slot, coll domain.Collection,
	token domain.PaymentToken, winner common.Address, price *uint256.Int) error {
	a := s.Auction
	if _, err := m.settle(a.PaymentToken, token, coll, a.ItemID, a.TokenOwner, price); err != nil {
		return err
	}
	if err := m.release(key, coll, winner); err != nil {
		return err
	}
	a.State = domain.AuctionFinished
	s.Active = domain.SaleNone

	m.journal.Emit(&event.AuctionFinishedEvent{
		BaseEvent:  event.At(m.address),
		Seller:     a.TokenOwner,
		Winner:     winner,
		Collection: a.Collection,
		TokenID:    a.ItemID.Clone(),
		Price:      price.Clone(),
	})
	m.logger.Info("auction finished",
		slog.String("item", key.String()),
		slog.String("winner", winner.Hex()),
		slog.String("price", price.Dec()),
	)
	return nil
}
