// Package access implements role based authorization keyed by keccak256 role ids.
package access

import (
	"fmt"

	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// DefaultAdminRole administers every role.
	DefaultAdminRole = common.Hash{}

	// AdminRole guards the marketplace admin surface.
	AdminRole = crypto.Keccak256Hash([]byte("ADMIN_ROLE"))
)

// RoleName returns a readable name for the well known roles.
func RoleName(role common.Hash) string {
	switch role {
	case DefaultAdminRole:
		return "DEFAULT_ADMIN_ROLE"
	case AdminRole:
		return "ADMIN_ROLE"
	}
	return role.Hex()
}

// ParseRole accepts a well known role name or a 32-byte hex role id.
func ParseRole(s string) (common.Hash, error) {
	switch s {
	case "DEFAULT_ADMIN_ROLE":
		return DefaultAdminRole, nil
	case "ADMIN_ROLE":
		return AdminRole, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid role %q", s)
	}
	return common.BytesToHash(b), nil
}

// Control stores role membership. Mutations are journaled.
type Control struct {
	self    common.Address
	members map[common.Hash]map[common.Address]bool
	journal *state.Journal
}

// NewControl creates a Control emitting logs as contract self.
func NewControl(self common.Address, j *state.Journal) *Control {
	return &Control{
		self:    self,
		members: make(map[common.Hash]map[common.Address]bool),
		journal: j,
	}
}

// HasRole reports whether account holds role.
func (c *Control) HasRole(role common.Hash, account common.Address) bool {
	return c.members[role][account]
}

// CheckRole returns ErrMissingRole when account does not hold role.
func (c *Control) CheckRole(role common.Hash, account common.Address) error {
	if !c.HasRole(role, account) {
		return fmt.Errorf("%w %s: %s", domain.ErrMissingRole, RoleName(role), account.Hex())
	}
	return nil
}

// GrantRole gives role to account. The sender must be a default admin.
func (c *Control) GrantRole(tx domain.TxContext, role common.Hash, account common.Address) error {
	if err := c.CheckRole(DefaultAdminRole, tx.Sender); err != nil {
		return err
	}
	c.grant(role, account, tx.Sender)
	return nil
}

// RevokeRole removes role from account. The sender must be a default admin.
func (c *Control) RevokeRole(tx domain.TxContext, role common.Hash, account common.Address) error {
	if err := c.CheckRole(DefaultAdminRole, tx.Sender); err != nil {
		return err
	}
	if !c.HasRole(role, account) {
		return nil
	}
	c.set(role, account, false)
	c.journal.Emit(&event.RoleRevokedEvent{
		BaseEvent: event.At(c.self),
		Role:      role,
		Account:   account,
		Sender:    tx.Sender,
	})
	return nil
}

// Setup grants role without an authorization check. Used for genesis only.
func (c *Control) Setup(role common.Hash, account common.Address) {
	c.grant(role, account, common.Address{})
}

func (c *Control) grant(role common.Hash, account, sender common.Address) {
	if c.HasRole(role, account) {
		return
	}
	c.set(role, account, true)
	c.journal.Emit(&event.RoleGrantedEvent{
		BaseEvent: event.At(c.self),
		Role:      role,
		Account:   account,
		Sender:    sender,
	})
}

func (c *Control) set(role common.Hash, account common.Address, member bool) {
	prev := c.HasRole(role, account)
	c.journal.Append(func() { c.write(role, account, prev) })
	c.write(role, account, member)
}

func (c *Control) write(role common.Hash, account common.Address, member bool) {
	if !member {
		delete(c.members[role], account)
		return
	}
	if c.members[role] == nil {
		c.members[role] = make(map[common.Address]bool)
	}
	c.members[role][account] = true
}

// Members returns the holders of role (for state dump).
func (c *Control) Members(role common.Hash) []common.Address {
	out := make([]common.Address, 0, len(c.members[role]))
	for a := range c.members[role] {
		out = append(out, a)
	}
	return out
}
