package execution

import (
	"fmt"
	"sort"

	"nft_market/internal/domain"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is the set of paper ledgers deployed on the node. It resolves
// contract addresses for the marketplace (domain.Ledgers).
type Chain struct {
	journal     *state.Journal
	tokens      map[common.Address]*PaperToken
	collections map[common.Address]*PaperCollection
}

// NewChain creates an empty chain whose ledgers share journal j.
func NewChain(j *state.Journal) *Chain {
	return &Chain{
		journal:     j,
		tokens:      make(map[common.Address]*PaperToken),
		collections: make(map[common.Address]*PaperCollection),
	}
}

// DeployToken registers a new ERC-20 ledger at addr.
func (c *Chain) DeployToken(addr common.Address, symbol string) (*PaperToken, error) {
	if err := c.checkFree(addr); err != nil {
		return nil, err
	}
	t := NewPaperToken(addr, symbol, c.journal)
	c.tokens[addr] = t
	return t, nil
}

// DeployCollection registers a new ERC-721 ledger at addr.
func (c *Chain) DeployCollection(addr common.Address, name string) (*PaperCollection, error) {
	if err := c.checkFree(addr); err != nil {
		return nil, err
	}
	col := NewPaperCollection(addr, name, c.journal)
	c.collections[addr] = col
	return col, nil
}

func (c *Chain) checkFree(addr common.Address) error {
	if addr == domain.ZeroAddress {
		return domain.ErrZeroAddress
	}
	_, isToken := c.tokens[addr]
	_, isCollection := c.collections[addr]
	if isToken || isCollection {
		return fmt.Errorf("address %s already in use", addr.Hex())
	}
	return nil
}

// Token implements domain.Ledgers.
func (c *Chain) Token(addr common.Address) (domain.PaymentToken, error) {
	t, err := c.PaperToken(addr)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Collection implements domain.Ledgers.
func (c *Chain) Collection(addr common.Address) (domain.Collection, error) {
	col, err := c.PaperCollection(addr)
	if err != nil {
		return nil, err
	}
	return col, nil
}

// PaperToken returns the concrete token at addr.
func (c *Chain) PaperToken(addr common.Address) (*PaperToken, error) {
	t, ok := c.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", domain.ErrUnknownContract, addr.Hex())
	}
	return t, nil
}

// PaperCollection returns the concrete collection at addr.
func (c *Chain) PaperCollection(addr common.Address) (*PaperCollection, error) {
	col, ok := c.collections[addr]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrUnknownContract, addr.Hex())
	}
	return col, nil
}

// VerifyInvariants checks every token ledger. Panics on violation.
func (c *Chain) VerifyInvariants() {
	for _, t := range c.tokens {
		t.VerifyInvariant()
	}
}

// ChainSnapshot is the dumpable state of every ledger.
type ChainSnapshot struct {
	Tokens      map[string]TokenSnapshot      `json:"tokens"`
	Collections map[string]CollectionSnapshot `json:"collections"`
}

type TokenSnapshot struct {
	Symbol   string            `json:"symbol"`
	Supply   string            `json:"supply"`
	Balances map[string]string `json:"balances"`
}

type CollectionSnapshot struct {
	Name   string            `json:"name"`
	Owners map[string]string `json:"owners"`
}

// Snapshot returns a copy of every ledger (for state dump).
func (c *Chain) Snapshot() ChainSnapshot {
	snap := ChainSnapshot{
		Tokens:      make(map[string]TokenSnapshot, len(c.tokens)),
		Collections: make(map[string]CollectionSnapshot, len(c.collections)),
	}
	for addr, t := range c.tokens {
		snap.Tokens[addr.Hex()] = TokenSnapshot{
			Symbol:   t.Symbol(),
			Supply:   t.TotalSupply().Dec(),
			Balances: t.Balances(),
		}
	}
	for addr, col := range c.collections {
		snap.Collections[addr.Hex()] = CollectionSnapshot{Name: col.Name(), Owners: col.Owners()}
	}
	return snap
}

// TokenAddresses returns the deployed token addresses in ascending order.
func (c *Chain) TokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.tokens))
	for a := range c.tokens {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
