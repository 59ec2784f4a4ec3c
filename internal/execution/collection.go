package execution

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/fee"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type royalty struct {
	receiver common.Address
	bps      uint64
}

// PaperCollection is an in-process ERC-721 ledger with optional ERC-2981 royalties.
type PaperCollection struct {
	address   common.Address
	name      string
	owners    map[uint256.Int]common.Address
	balances  map[common.Address]uint64
	approvals map[uint256.Int]common.Address
	operators map[common.Address]map[common.Address]bool
	royalties map[uint256.Int]royalty
	fallback  *royalty
	journal   *state.Journal
}

// NewPaperCollection creates an empty collection at addr.
func NewPaperCollection(addr common.Address, name string, j *state.Journal) *PaperCollection {
	return &PaperCollection{
		address:   addr,
		name:      name,
		owners:    make(map[uint256.Int]common.Address),
		balances:  make(map[common.Address]uint64),
		approvals: make(map[uint256.Int]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		royalties: make(map[uint256.Int]royalty),
		journal:   j,
	}
}

func (c *PaperCollection) Address() common.Address { return c.address }
func (c *PaperCollection) Name() string            { return c.name }

// OwnerOf returns the holder of id.
func (c *PaperCollection) OwnerOf(id *uint256.Int) (common.Address, error) {
	owner, ok := c.owners[*id]
	if !ok {
		return common.Address{}, domain.ErrInvalidTokenID
	}
	return owner, nil
}

// BalanceOf returns the number of items held by owner.
func (c *PaperCollection) BalanceOf(owner common.Address) uint64 {
	return c.balances[owner]
}

// GetApproved returns the single-item approval of id.
func (c *PaperCollection) GetApproved(id *uint256.Int) common.Address {
	return c.approvals[*id]
}

// IsApprovedForAll reports whether operator manages every item of owner.
func (c *PaperCollection) IsApprovedForAll(owner, operator common.Address) bool {
	return c.operators[owner][operator]
}

// Mint creates id for to.
func (c *PaperCollection) Mint(to common.Address, id *uint256.Int) error {
	if to == domain.ZeroAddress {
		return domain.ErrTransferToZeroAddress
	}
	if _, exists := c.owners[*id]; exists {
		return domain.ErrTokenAlreadyMinted
	}
	c.setOwner(id, to)
	c.addBalance(to, 1)
	c.emitTransfer(domain.ZeroAddress, to, id)
	return nil
}

// MintWithRoyalty mints id and attaches a per-item royalty.
func (c *PaperCollection) MintWithRoyalty(to common.Address, id *uint256.Int, receiver common.Address, bps uint64) error {
	if err := c.Mint(to, id); err != nil {
		return err
	}
	return c.SetTokenRoyalty(id, receiver, bps)
}

// SetDefaultRoyalty applies to every item without its own royalty.
func (c *PaperCollection) SetDefaultRoyalty(receiver common.Address, bps uint64) error {
	if bps > fee.Denominator {
		return domain.ErrRoyaltyTooHigh
	}
	prev := c.fallback
	c.journal.Append(func() { c.fallback = prev })
	c.fallback = &royalty{receiver: receiver, bps: bps}
	return nil
}

// SetTokenRoyalty sets the royalty of a single item.
func (c *PaperCollection) SetTokenRoyalty(id *uint256.Int, receiver common.Address, bps uint64) error {
	if bps > fee.Denominator {
		return domain.ErrRoyaltyTooHigh
	}
	key := *id
	prev, had := c.royalties[key]
	c.journal.Append(func() {
		if had {
			c.royalties[key] = prev
		} else {
			delete(c.royalties, key)
		}
	})
	c.royalties[key] = royalty{receiver: receiver, bps: bps}
	return nil
}

// RoyaltyInfo implements domain.RoyaltyProvider.
func (c *PaperCollection) RoyaltyInfo(id, salePrice *uint256.Int) (common.Address, *uint256.Int) {
	r, ok := c.royalties[*id]
	if !ok {
		if c.fallback == nil {
			return common.Address{}, new(uint256.Int)
		}
		r = *c.fallback
	}
	amount, err := fee.Percent(salePrice, r.bps)
	if err != nil {
		return common.Address{}, new(uint256.Int)
	}
	return r.receiver, amount
}

// Approve lets to move id. caller must be the owner or an operator of the owner.
func (c *PaperCollection) Approve(caller, to common.Address, id *uint256.Int) error {
	owner, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if to == owner {
		return domain.ErrApprovalToCurrentOwner
	}
	if caller != owner && !c.IsApprovedForAll(owner, caller) {
		return domain.ErrNotTokenOwnerOrApproved
	}
	c.setApproval(id, to)
	c.journal.Emit(&event.ItemApprovalEvent{
		BaseEvent: event.At(c.address),
		Owner:     owner,
		Approved:  to,
		TokenID:   id.Clone(),
	})
	return nil
}

// SetApprovalForAll toggles operator over every item of owner.
func (c *PaperCollection) SetApprovalForAll(owner, operator common.Address, approved bool) error {
	if owner == operator {
		return domain.ErrApprovalToCurrentOwner
	}
	prev := c.operators[owner][operator]
	c.journal.Append(func() { c.writeOperator(owner, operator, prev) })
	c.writeOperator(owner, operator, approved)
	c.journal.Emit(&event.ApprovalForAllEvent{
		BaseEvent: event.At(c.address),
		Owner:     owner,
		Operator:  operator,
		Approved:  approved,
	})
	return nil
}

// TransferFrom moves id from -> to on behalf of operator. Authorization is
// checked before ownership, so an approved operator naming the wrong owner
// gets ErrTransferFromIncorrectOwner.
func (c *PaperCollection) TransferFrom(operator, from, to common.Address, id *uint256.Int) error {
	owner, err := c.OwnerOf(id)
	if err != nil {
		return err
	}
	if operator != owner && c.GetApproved(id) != operator && !c.IsApprovedForAll(owner, operator) {
		return domain.ErrNotTokenOwnerOrApproved
	}
	if owner != from {
		return domain.ErrTransferFromIncorrectOwner
	}
	if to == domain.ZeroAddress {
		return domain.ErrTransferToZeroAddress
	}

	if c.GetApproved(id) != domain.ZeroAddress {
		c.setApproval(id, domain.ZeroAddress)
	}
	c.subBalance(from, 1)
	c.addBalance(to, 1)
	c.setOwner(id, to)
	c.emitTransfer(from, to, id)
	return nil
}

func (c *PaperCollection) setOwner(id *uint256.Int, owner common.Address) {
	key := *id
	prev, had := c.owners[key]
	c.journal.Append(func() {
		if had {
			c.owners[key] = prev
		} else {
			delete(c.owners, key)
		}
	})
	c.owners[key] = owner
}

func (c *PaperCollection) setApproval(id *uint256.Int, to common.Address) {
	key := *id
	prev := c.approvals[key]
	c.journal.Append(func() { c.writeApproval(key, prev) })
	c.writeApproval(key, to)
}

func (c *PaperCollection) writeApproval(key uint256.Int, to common.Address) {
	if to == domain.ZeroAddress {
		delete(c.approvals, key)
		return
	}
	c.approvals[key] = to
}

func (c *PaperCollection) writeOperator(owner, operator common.Address, approved bool) {
	if !approved {
		delete(c.operators[owner], operator)
		return
	}
	if c.operators[owner] == nil {
		c.operators[owner] = make(map[common.Address]bool)
	}
	c.operators[owner][operator] = true
}

func (c *PaperCollection) addBalance(owner common.Address, n uint64) {
	c.balances[owner] += n
	c.journal.Append(func() { c.balances[owner] -= n })
}

func (c *PaperCollection) subBalance(owner common.Address, n uint64) {
	c.balances[owner] -= n
	c.journal.Append(func() { c.balances[owner] += n })
}

func (c *PaperCollection) emitTransfer(from, to common.Address, id *uint256.Int) {
	c.journal.Emit(&event.ItemTransferEvent{
		BaseEvent: event.At(c.address),
		From:      from,
		To:        to,
		TokenID:   id.Clone(),
	})
}

// Owners returns item id -> owner (for state dump).
func (c *PaperCollection) Owners() map[string]string {
	out := make(map[string]string, len(c.owners))
	for id, owner := range c.owners {
		out[id.Dec()] = owner.Hex()
	}
	return out
}
