package market

import (
	"log/slog"

	"nft_market/internal/access"
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/fee"
	"nft_market/pkg/safe"
	"nft_market/pkg/units"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CollectedFee returns the marketplace fees accrued in token and not yet withdrawn.
func (m *Market) CollectedFee(token common.Address) *uint256.Int {
	if v, ok := m.collected[token]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// WithdrawFee pays amount of the collected fees in token to recipient. Admin only.
func (m *Market) WithdrawFee(tx domain.TxContext, token, recipient common.Address, amount *uint256.Int) error {
	const op = "withdrawFee"
	if err := m.acl.CheckRole(access.AdminRole, tx.Sender); err != nil {
		return domain.Revert(op, err)
	}
	if amount.IsZero() {
		return domain.Revert(op, domain.ErrAmountCanNotBeZero)
	}
	collected := m.CollectedFee(token)
	if collected.Lt(amount) {
		return domain.Revert(op, domain.ErrInsufficientCollectedFee)
	}
	ledger, err := m.ledgers.Token(token)
	if err != nil {
		return domain.Revert(op, err)
	}

	m.setCollected(token, collected.Sub(collected, amount))
	if err := ledger.Transfer(m.address, recipient, amount); err != nil {
		return domain.Revert(op, err)
	}
	m.journal.Emit(&event.FeeWithdrawnEvent{
		BaseEvent: event.At(m.address),
		Token:     token,
		Recipient: recipient,
		Amount:    amount.Clone(),
	})
	return nil
}

// settle distributes amount, already held by the marketplace in token, to the
// royalty receiver and the seller, and books the marketplace fee.
func (m *Market) settle(tokenAddr common.Address, token domain.PaymentToken, coll domain.Collection,
	itemID *uint256.Int, seller common.Address, amount *uint256.Int) (fee.Shares, error) {
	receiver, royalty := common.Address{}, new(uint256.Int)
	if rp, ok := coll.(domain.RoyaltyProvider); ok {
		receiver, royalty = rp.RoyaltyInfo(itemID, amount)
		if receiver == domain.ZeroAddress {
			royalty = new(uint256.Int)
		}
	}

	shares, err := m.splitter.Compute(amount, m.tokens[tokenAddr] == domain.TokenFeeApplies, royalty)
	if err != nil {
		return fee.Shares{}, err
	}
	if !shares.Royalty.IsZero() {
		if err := token.Transfer(m.address, receiver, shares.Royalty); err != nil {
			return fee.Shares{}, err
		}
	}
	if !shares.Seller.IsZero() {
		if err := token.Transfer(m.address, seller, shares.Seller); err != nil {
			return fee.Shares{}, err
		}
	}
	if err := m.creditFee(tokenAddr, shares.Marketplace); err != nil {
		return fee.Shares{}, err
	}

	m.logger.Debug("settled",
		slog.String("token", tokenAddr.Hex()),
		slog.String("item", itemID.Dec()),
		slog.String("amount", units.FormatEther(amount)),
		slog.String("fee", units.FormatEther(shares.Marketplace)),
		slog.String("royalty", units.FormatEther(shares.Royalty)),
		slog.String("seller_proceeds", units.FormatEther(shares.Seller)),
	)
	return shares, nil
}

func (m *Market) creditFee(token common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	next, err := safe.SafeAdd(m.CollectedFee(token), amount)
	if err != nil {
		return err
	}
	m.setCollected(token, next)
	return nil
}

func (m *Market) setCollected(token common.Address, v *uint256.Int) {
	prev, had := m.collected[token]
	m.journal.Append(func() {
		if had {
			m.collected[token] = prev
		} else {
			delete(m.collected, token)
		}
	})
	if v.IsZero() {
		delete(m.collected, token)
		return
	}
	m.collected[token] = v
}
