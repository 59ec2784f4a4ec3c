package engine

import (
	"fmt"
	"log/slog"

	"nft_market/internal/access"
	"nft_market/internal/domain"
	"nft_market/internal/execution"
	"nft_market/internal/market"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Genesis describes the state every node starts from before the log is
// replayed. Two nodes with the same Genesis and the same log reach the same
// state.
type Genesis struct {
	Market         common.Address
	Admin          common.Address
	FeeBps         uint64
	Tokens         []GenesisToken
	Collections    []GenesisCollection
	AcceptedTokens []GenesisListing
	Balances       []GenesisBalance
}

type GenesisToken struct {
	Address common.Address
	Symbol  string
}

type GenesisCollection struct {
	Address         common.Address
	Name            string
	RoyaltyReceiver common.Address // zero disables the default royalty
	RoyaltyBps      uint64
}

type GenesisListing struct {
	Token common.Address
	Mode  domain.TokenMode
}

type GenesisBalance struct {
	Token   common.Address
	Account common.Address
	Amount  *uint256.Int
}

// NewEnv deploys the genesis contracts and returns the committed state.
func NewEnv(g Genesis, logger *slog.Logger) (*Env, error) {
	j := state.NewJournal()
	chain := execution.NewChain(j)

	for _, t := range g.Tokens {
		if _, err := chain.DeployToken(t.Address, t.Symbol); err != nil {
			return nil, fmt.Errorf("genesis token %s: %w", t.Symbol, err)
		}
	}
	for _, c := range g.Collections {
		coll, err := chain.DeployCollection(c.Address, c.Name)
		if err != nil {
			return nil, fmt.Errorf("genesis collection %s: %w", c.Name, err)
		}
		if c.RoyaltyReceiver != domain.ZeroAddress {
			if err := coll.SetDefaultRoyalty(c.RoyaltyReceiver, c.RoyaltyBps); err != nil {
				return nil, fmt.Errorf("genesis collection %s: %w", c.Name, err)
			}
		}
	}

	m, err := market.New(market.Config{Address: g.Market, FeeNumerator: g.FeeBps}, chain, j, logger)
	if err != nil {
		return nil, fmt.Errorf("genesis market: %w", err)
	}
	if g.Admin == domain.ZeroAddress {
		return nil, fmt.Errorf("genesis admin: %w", domain.ErrZeroAddress)
	}
	m.Access().Setup(access.DefaultAdminRole, g.Admin)
	m.Access().Setup(access.AdminRole, g.Admin)

	for _, l := range g.AcceptedTokens {
		if err := m.SetupToken(l.Token, l.Mode); err != nil {
			return nil, fmt.Errorf("genesis token list %s: %w", l.Token.Hex(), err)
		}
	}
	for _, b := range g.Balances {
		t, err := chain.PaperToken(b.Token)
		if err != nil {
			return nil, fmt.Errorf("genesis balance: %w", err)
		}
		if err := t.Mint(b.Account, b.Amount); err != nil {
			return nil, fmt.Errorf("genesis balance %s: %w", b.Account.Hex(), err)
		}
	}

	j.Commit()
	return &Env{Journal: j, Chain: chain, Market: m}, nil
}
