package access

import (
	"errors"
	"testing"

	"nft_market/internal/domain"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestAdminRoleID(t *testing.T) {
	want := common.BytesToHash(crypto.Keccak256([]byte("ADMIN_ROLE")))
	if AdminRole != want {
		t.Errorf("AdminRole = %s, want %s", AdminRole.Hex(), want.Hex())
	}
	if RoleName(AdminRole) != "ADMIN_ROLE" {
		t.Errorf("RoleName = %s", RoleName(AdminRole))
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    common.Hash
		wantErr bool
	}{
		{"ADMIN_ROLE", AdminRole, false},
		{"DEFAULT_ADMIN_ROLE", DefaultAdminRole, false},
		{AdminRole.Hex(), AdminRole, false},
		{"0x1234", common.Hash{}, true},
		{"MINTER", common.Hash{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %s, want %s", tt.in, got.Hex(), tt.want.Hex())
		}
	}
}

func TestControl_GrantRevoke(t *testing.T) {
	j := state.NewJournal()
	admin := common.HexToAddress("0xad")
	user := common.HexToAddress("0x05")
	c := NewControl(common.HexToAddress("0x1000"), j)
	c.Setup(DefaultAdminRole, admin)

	t.Run("non admin cannot grant", func(t *testing.T) {
		err := c.GrantRole(domain.TxContext{Sender: user}, AdminRole, user)
		if !errors.Is(err, domain.ErrMissingRole) {
			t.Errorf("expected ErrMissingRole, got %v", err)
		}
	})

	t.Run("admin grants", func(t *testing.T) {
		if err := c.GrantRole(domain.TxContext{Sender: admin}, AdminRole, user); err != nil {
			t.Fatalf("GrantRole failed: %v", err)
		}
		if err := c.CheckRole(AdminRole, user); err != nil {
			t.Errorf("user should hold ADMIN_ROLE: %v", err)
		}
	})

	t.Run("admin revokes", func(t *testing.T) {
		if err := c.RevokeRole(domain.TxContext{Sender: admin}, AdminRole, user); err != nil {
			t.Fatalf("RevokeRole failed: %v", err)
		}
		if c.HasRole(AdminRole, user) {
			t.Error("user should no longer hold ADMIN_ROLE")
		}
	})

	logs := j.Commit()
	if len(logs) != 3 {
		t.Errorf("logs = %d, want 3 (setup, grant, revoke)", len(logs))
	}
}

func TestControl_GrantReverts(t *testing.T) {
	j := state.NewJournal()
	admin := common.HexToAddress("0xad")
	c := NewControl(common.HexToAddress("0x1000"), j)
	c.Setup(DefaultAdminRole, admin)
	j.Commit()

	snap := j.Snapshot()
	if err := c.GrantRole(domain.TxContext{Sender: admin}, AdminRole, admin); err != nil {
		t.Fatalf("GrantRole failed: %v", err)
	}
	j.RevertToSnapshot(snap)

	if c.HasRole(AdminRole, admin) {
		t.Error("grant should have been reverted")
	}
}
