// Package market implements the marketplace: accepted-token registry, escrow,
// fixed-price sales, English auctions and the collected-fee ledger.
//
// Every public operation takes a domain.TxContext and either applies fully or
// returns a *domain.RevertError. Partial effects of a failed call are rolled
// back by the caller through the shared state.Journal.
package market

import (
	"fmt"
	"log/slog"

	"nft_market/internal/access"
	"nft_market/internal/domain"
	"nft_market/internal/fee"
	"nft_market/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Config holds the construction parameters of a Market.
type Config struct {
	Address      common.Address
	FeeNumerator uint64 // marketplace fee in basis points
}

// Market is the marketplace state machine. It is not safe for concurrent
// use; the engine sequencer is its only caller.
type Market struct {
	address   common.Address
	splitter  *fee.Splitter
	acl       *access.Control
	ledgers   domain.Ledgers
	journal   *state.Journal
	tokens    map[common.Address]domain.TokenMode
	slots     map[domain.ItemKey]*domain.Slot
	collected map[common.Address]*uint256.Int
	logger    *slog.Logger
}

// New creates an empty marketplace.
func New(cfg Config, ledgers domain.Ledgers, j *state.Journal, logger *slog.Logger) (*Market, error) {
	if cfg.Address == domain.ZeroAddress {
		return nil, fmt.Errorf("market address: %w", domain.ErrZeroAddress)
	}
	splitter, err := fee.NewSplitter(cfg.FeeNumerator)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{
		address:   cfg.Address,
		splitter:  splitter,
		acl:       access.NewControl(cfg.Address, j),
		ledgers:   ledgers,
		journal:   j,
		tokens:    make(map[common.Address]domain.TokenMode),
		slots:     make(map[domain.ItemKey]*domain.Slot),
		collected: make(map[common.Address]*uint256.Int),
		logger:    logger.With(slog.String("module", "market")),
	}, nil
}

// Address returns the custody address of the marketplace.
func (m *Market) Address() common.Address { return m.address }

// FeeNumerator returns the marketplace fee in basis points.
func (m *Market) FeeNumerator() uint64 { return m.splitter.Numerator() }

// Access returns the role registry of the marketplace.
func (m *Market) Access() *access.Control { return m.acl }

// GetLatestMarketItem returns a copy of the latest fixed-price record, or the
// zero value if the item was never listed at a fixed price.
func (m *Market) GetLatestMarketItem(collection common.Address, itemID *uint256.Int) domain.MarketItem {
	s := m.slots[domain.NewItemKey(collection, itemID)]
	if s == nil || s.Fixed == nil {
		return domain.MarketItem{Price: new(uint256.Int)}
	}
	return *s.Fixed.Clone()
}

// GetLatestEnglishAuction returns a copy of the latest auction record, or the
// zero value if the item was never auctioned.
func (m *Market) GetLatestEnglishAuction(collection common.Address, itemID *uint256.Int) domain.EnglishAuction {
	s := m.slots[domain.NewItemKey(collection, itemID)]
	if s == nil || s.Auction == nil {
		return zeroAuction()
	}
	return *s.Auction.Clone()
}

// ActiveSale reports which sale currently holds the item in escrow.
func (m *Market) ActiveSale(collection common.Address, itemID *uint256.Int) domain.SaleKind {
	s := m.slots[domain.NewItemKey(collection, itemID)]
	if s == nil {
		return domain.SaleNone
	}
	return s.Active
}

func zeroAuction() domain.EnglishAuction {
	return domain.EnglishAuction{
		CurrentPrice:        new(uint256.Int),
		MinIncreaseInterval: new(uint256.Int),
		InstantBuyPrice:     new(uint256.Int),
		ItemID:              new(uint256.Int),
	}
}

// mutableSlot journals the current slot of key and returns the live record,
// creating an empty one if needed.
func (m *Market) mutableSlot(key domain.ItemKey) *domain.Slot {
	cur, had := m.slots[key]
	saved := cur.Clone()
	m.journal.Append(func() {
		if had {
			m.slots[key] = saved
		} else {
			delete(m.slots, key)
		}
	})
	if !had {
		cur = &domain.Slot{}
		m.slots[key] = cur
	}
	return cur
}

// Snapshot is the dumpable state of the marketplace.
type Snapshot struct {
	Address      string                  `json:"address"`
	FeeNumerator uint64                  `json:"fee_numerator"`
	Tokens       map[string]string       `json:"tokens"`
	Collected    map[string]string       `json:"collected"`
	Slots        map[string]*domain.Slot `json:"slots"`
}

// Snapshot returns a copy of the whole marketplace state (for post-mortem).
func (m *Market) Snapshot() Snapshot {
	snap := Snapshot{
		Address:      m.address.Hex(),
		FeeNumerator: m.FeeNumerator(),
		Tokens:       make(map[string]string, len(m.tokens)),
		Collected:    make(map[string]string, len(m.collected)),
		Slots:        make(map[string]*domain.Slot, len(m.slots)),
	}
	for t, mode := range m.tokens {
		snap.Tokens[t.Hex()] = mode.String()
	}
	for t, amt := range m.collected {
		snap.Collected[t.Hex()] = amt.Dec()
	}
	for k, s := range m.slots {
		snap.Slots[k.String()] = s.Clone()
	}
	return snap
}

// VerifyInvariants checks that every slot agrees with itself and with the
// asset ledger, and that the marketplace holds enough of each token to cover
// collected fees plus standing bids.
func (m *Market) VerifyInvariants() error {
	owed := make(map[common.Address]*uint256.Int)
	add := func(token common.Address, v *uint256.Int) {
		if owed[token] == nil {
			owed[token] = new(uint256.Int)
		}
		owed[token].Add(owed[token], v)
	}
	for t, amt := range m.collected {
		add(t, amt)
	}

	for key, s := range m.slots {
		if !s.Consistent() {
			return fmt.Errorf("slot %s: active=%s disagrees with records", key, s.Active)
		}
		if s.Active == domain.SaleNone {
			continue
		}
		coll, err := m.ledgers.Collection(key.Collection)
		if err != nil {
			return err
		}
		owner, err := coll.OwnerOf(&key.ItemID)
		if err != nil {
			return fmt.Errorf("slot %s: %w", key, err)
		}
		if owner != m.address {
			return fmt.Errorf("slot %s: escrowed item held by %s", key, owner.Hex())
		}
		if s.Active == domain.SaleAuction && s.Auction.HasBid() {
			add(s.Auction.PaymentToken, s.Auction.CurrentPrice)
		}
	}

	for t, need := range owed {
		token, err := m.ledgers.Token(t)
		if err != nil {
			return err
		}
		if have := token.BalanceOf(m.address); have.Lt(need) {
			return fmt.Errorf("token %s: marketplace holds %s, owes %s", t.Hex(), have.Dec(), need.Dec())
		}
	}
	return nil
}
