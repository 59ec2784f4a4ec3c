package market

import (
	"fmt"

	"nft_market/internal/access"
	"nft_market/internal/domain"
	"nft_market/internal/event"

	"github.com/ethereum/go-ethereum/common"
)

// UpdateTokenList sets the registry mode of token. Admin only.
func (m *Market) UpdateTokenList(tx domain.TxContext, token common.Address, mode domain.TokenMode) error {
	const op = "updateTokenList"
	if err := m.acl.CheckRole(access.AdminRole, tx.Sender); err != nil {
		return domain.Revert(op, err)
	}
	if !mode.Valid() {
		return domain.Revert(op, fmt.Errorf("%w: %d", domain.ErrInvalidTokenMode, mode))
	}
	m.setTokenMode(token, mode)
	m.journal.Emit(&event.TokenListUpdatedEvent{
		BaseEvent: event.At(m.address),
		Token:     token,
		Mode:      uint8(mode),
	})
	return nil
}

// SetupToken sets a token mode without authorization. Used for genesis only.
func (m *Market) SetupToken(token common.Address, mode domain.TokenMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidTokenMode, mode)
	}
	m.setTokenMode(token, mode)
	return nil
}

// TokenMode returns the registry mode of token. Unknown tokens are not accepted.
func (m *Market) TokenMode(token common.Address) domain.TokenMode {
	return m.tokens[token]
}

func (m *Market) requireAccepted(token common.Address) error {
	if m.tokens[token] == domain.TokenNotAccepted {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedToken, token.Hex())
	}
	if _, err := m.ledgers.Token(token); err != nil {
		return err
	}
	return nil
}

func (m *Market) setTokenMode(token common.Address, mode domain.TokenMode) {
	prev, had := m.tokens[token]
	m.journal.Append(func() {
		if had {
			m.tokens[token] = prev
		} else {
			delete(m.tokens, token)
		}
	})
	if mode == domain.TokenNotAccepted {
		delete(m.tokens, token)
		return
	}
	m.tokens[token] = mode
}
