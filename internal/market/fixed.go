package market

import (
	"log/slog"

	"nft_market/internal/domain"
	"nft_market/internal/event"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ListFixedPriceMarketItem escrows the item and offers it at price in paymentToken.
func (m *Market) ListFixedPriceMarketItem(tx domain.TxContext, collection common.Address, itemID, price *uint256.Int, paymentToken common.Address) error {
	const op = "listFixedPriceMarketItem"
	if price.IsZero() {
		return domain.Revert(op, domain.ErrAmountCanNotBeZero)
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
	s.Fixed = &domain.MarketItem{
		Price:        price.Clone(),
		PaymentToken: paymentToken,
		Seller:       tx.Sender,
		IsActive:     true,
	}
	s.Active = domain.SaleFixedPrice

	m.journal.Emit(&event.FixedPriceMarketItemListedEvent{
		BaseEvent:    event.At(m.address),
		Collection:   collection,
		TokenID:      itemID.Clone(),
		Price:        price.Clone(),
		PaymentToken: paymentToken,
	})
	return nil
}

// DelistFixedPriceMarketItem returns an active listing to its seller.
func (m *Market) DelistFixedPriceMarketItem(tx domain.TxContext, collection common.Address, itemID *uint256.Int) error {
	const op = "delistFixedPriceMarketItem"
	key := domain.NewItemKey(collection, itemID)
	cur := m.slots[key]
	if cur == nil || cur.Active != domain.SaleFixedPrice {
		return domain.Revert(op, domain.ErrItemDidNotListed)
	}
	if cur.Fixed.Seller != tx.Sender {
		return domain.Revert(op, domain.ErrNotItemSeller)
	}
	coll, err := m.ledgers.Collection(collection)
	if err != nil {
		return domain.Revert(op, err)
	}

	s := m.mutableSlot(key)
	if err := m.release(key, coll, s.Fixed.Seller); err != nil {
		return domain.Revert(op, err)
	}
	s.Fixed.IsActive = false
	s.Active = domain.SaleNone

	m.journal.Emit(&event.FixedPriceMarketItemDelistedEvent{
		BaseEvent:  event.At(m.address),
		Collection: collection,
		TokenID:    itemID.Clone(),
		Seller:     tx.Sender,
	})
	return nil
}

// BuyItemOnFixedPriceMarket pays the listing price and transfers the item to the caller.
func (m *Market) BuyItemOnFixedPriceMarket(tx domain.TxContext, collection common.Address, itemID *uint256.Int) error {
	const op = "buyItemOnFixedPriceMarket"
	key := domain.NewItemKey(collection, itemID)
	cur := m.slots[key]
	if cur == nil || cur.Active != domain.SaleFixedPrice {
		return domain.Revert(op, domain.ErrItemDidNotListed)
	}
	coll, err := m.ledgers.Collection(collection)
	if err != nil {
		return domain.Revert(op, err)
	}
	item := cur.Fixed.Clone()
	token, err := m.ledgers.Token(item.PaymentToken)
	if err != nil {
		return domain.Revert(op, err)
	}

	if err := token.TransferFrom(m.address, tx.Sender, m.address, item.Price); err != nil {
		return domain.Revert(op, err)
	}
	if _, err := m.settle(item.PaymentToken, token, coll, itemID, item.Seller, item.Price); err != nil {
		return domain.Revert(op, err)
	}
	if err := m.release(key, coll, tx.Sender); err != nil {
		return domain.Revert(op, err)
	}

	s := m.mutableSlot(key)
	s.Fixed.IsActive = false
	s.Active = domain.SaleNone

	m.journal.Emit(&event.FixedPriceMarketItemBoughtEvent{
		BaseEvent:  event.At(m.address),
		Buyer:      tx.Sender,
		Seller:     item.Seller,
		Collection: collection,
		TokenID:    itemID.Clone(),
		Price:      item.Price.Clone(),
	})
	m.logger.Info("fixed price sale",
		slog.String("item", key.String()),
		slog.String("buyer", tx.Sender.Hex()),
		slog.String("price", item.Price.Dec()),
	)
	return nil
}
