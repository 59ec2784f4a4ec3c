// Package fee splits a sale amount into marketplace fee, royalty and seller proceeds.
package fee

import (
	"errors"
	"fmt"

	"nft_market/pkg/safe"

	"github.com/holiman/uint256"
)

// Denominator is the basis-point scale: 10000 = 100%.
const Denominator = 10000

var denominator = uint256.NewInt(Denominator)

// ErrFeesExceedAmount is returned when marketplace fee plus royalty is larger than the sale amount.
var ErrFeesExceedAmount = errors.New("fees exceed sale amount")

// ErrInvalidBps is returned for a numerator above Denominator.
var ErrInvalidBps = errors.New("basis points above 10000")

// Percent returns floor(amount * bps / 10000).
func Percent(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps > Denominator {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return safe.SafeMulDiv(amount, uint256.NewInt(bps), denominator)
}

// Shares is the distribution of one sale. The three parts always sum to the sale amount.
type Shares struct {
	Marketplace *uint256.Int
	Royalty     *uint256.Int
	Seller      *uint256.Int
}

// Total returns Marketplace + Royalty + Seller.
func (s Shares) Total() *uint256.Int {
	t := new(uint256.Int).Add(s.Marketplace, s.Royalty)
	return t.Add(t, s.Seller)
}

// Split assigns the remainder of amount after marketplace fee and royalty to
// the seller. Rounding dust therefore always ends up with the seller.
func Split(amount, marketplace, royalty *uint256.Int) (Shares, error) {
	fees, err := safe.SafeAdd(marketplace, royalty)
	if err != nil {
		return Shares{}, ErrFeesExceedAmount
	}
	seller, err := safe.SafeSub(amount, fees)
	if err != nil {
		return Shares{}, fmt.Errorf("%w: amount=%s fee=%s royalty=%s",
			ErrFeesExceedAmount, amount.Dec(), marketplace.Dec(), royalty.Dec())
	}
	return Shares{
		Marketplace: marketplace.Clone(),
		Royalty:     royalty.Clone(),
		Seller:      seller,
	}, nil
}

// Splitter computes shares for a fixed marketplace fee numerator.
type Splitter struct {
	bps uint64
}

// NewSplitter validates bps and returns a Splitter.
func NewSplitter(bps uint64) (*Splitter, error) {
	if bps > Denominator {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return &Splitter{bps: bps}, nil
}

// Numerator returns the marketplace fee in basis points.
func (s *Splitter) Numerator() uint64 {
	return s.bps
}

// Compute splits amount. chargeFee selects whether the marketplace fee applies;
// royalty is the amount already resolved from the asset ledger.
func (s *Splitter) Compute(amount *uint256.Int, chargeFee bool, royalty *uint256.Int) (Shares, error) {
	marketplace := new(uint256.Int)
	if chargeFee {
		var err error
		if marketplace, err = Percent(amount, s.bps); err != nil {
			return Shares{}, err
		}
	}
	return Split(amount, marketplace, safe.OrZero(royalty))
}
