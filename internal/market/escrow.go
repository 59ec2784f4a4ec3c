package market

import (
	"nft_market/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// take moves the item from seller into marketplace custody. An item already
// held by a sale is rejected the same way the asset ledger would reject it.
func (m *Market) take(key domain.ItemKey, coll domain.Collection, seller common.Address) error {
	if s := m.slots[key]; s != nil && s.Active != domain.SaleNone {
		return domain.ErrTransferFromIncorrectOwner
	}
	id := key.ItemID
	return coll.TransferFrom(m.address, seller, m.address, &id)
}

// release hands an escrowed item to its new holder.
func (m *Market) release(key domain.ItemKey, coll domain.Collection, to common.Address) error {
	id := key.ItemID
	return coll.TransferFrom(m.address, m.address, to, &id)
}
