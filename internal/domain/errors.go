package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// RevertError is returned by a marketplace or ledger call that was rejected.
// The state changes of the call are discarded; the call is never retried.
type RevertError struct {
	Op  string // Operation that reverted (e.g., "buyItemOnFixedPriceMarket")
	Err error  // Reason, usually one of the sentinels below
}

func (e *RevertError) Error() string {
	return "revert " + e.Op + ": " + e.Err.Error()
}

func (e *RevertError) IsRetriable() bool {
	return false
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// Revert wraps err as a RevertError for op. A nil err stays nil and an
// existing RevertError is returned unchanged.
func Revert(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RevertError
	if errors.As(err, &re) {
		return err
	}
	return &RevertError{Op: op, Err: err}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Marketplace errors.
var (
	ErrAmountCanNotBeZero                    = errors.New("AmountCanNotBeZero")
	ErrUnsupportedToken                      = errors.New("UnsupportedToken")
	ErrItemDidNotListed                      = errors.New("ItemDidNotListed")
	ErrInvalidTimeForFunction                = errors.New("InvalidTimeForFunction")
	ErrInvalidAuctionState                   = errors.New("InvalidAuctionState")
	ErrInvalidBidAmount                      = errors.New("InvalidBidAmount")
	ErrIncorrectProcessingOfTheAuctionResult = errors.New("IncorrectProcessingOfTheAuctionResult")
	ErrInvalidAuctionParameters              = errors.New("InvalidAuctionParameters")
	ErrInstantBuyDisabled                    = errors.New("InstantBuyDisabled")
	ErrNotItemSeller                         = errors.New("NotItemSeller")
	ErrInvalidTokenMode                      = errors.New("InvalidTokenMode")
	ErrInsufficientCollectedFee              = errors.New("InsufficientCollectedFee")
	ErrZeroAddress                           = errors.New("ZeroAddress")

	// ErrMissingRole is returned when the caller lacks a required role.
	ErrMissingRole = errors.New("AccessControl: account is missing role")

	// ErrUnknownContract is returned when an address resolves to no deployed ledger.
	ErrUnknownContract = errors.New("unknown contract")
)

// Asset ledger (ERC-721) errors.
var (
	ErrTransferFromIncorrectOwner = errors.New("ERC721: transfer from incorrect owner")
	ErrNotTokenOwnerOrApproved    = errors.New("ERC721: caller is not token owner or approved")
	ErrInvalidTokenID             = errors.New("ERC721: invalid token ID")
	ErrTokenAlreadyMinted         = errors.New("ERC721: token already minted")
	ErrTransferToZeroAddress      = errors.New("ERC721: transfer to the zero address")
	ErrApprovalToCurrentOwner     = errors.New("ERC721: approval to current owner")
	ErrRoyaltyTooHigh             = errors.New("ERC2981: royalty fee will exceed salePrice")
)

// Payment ledger (ERC-20) errors.
var (
	ErrInsufficientAllowance        = errors.New("ERC20: insufficient allowance")
	ErrTransferAmountExceedsBalance = errors.New("ERC20: transfer amount exceeds balance")
	ErrERC20ZeroAddress             = errors.New("ERC20: transfer to the zero address")
)

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
