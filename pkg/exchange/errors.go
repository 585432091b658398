package exchange

import "errors"

// Sentinel errors for the exchange's public operations.
// The API layer maps these to HTTP status codes; everything else matches
// with errors.Is. Every failure is local and synchronous: the operation
// that reports it has left no state change behind.
var (
	// ErrInvalidAsset: the native-asset sentinel was used where a token
	// asset is required (token deposits/withdrawals).
	ErrInvalidAsset = errors.New("invalid_asset")

	// ErrInsufficientBalance: a debit exceeds the stored balance.
	ErrInsufficientBalance = errors.New("insufficient_balance")

	// ErrTransferFailed: the external token ledger rejected a pull or push.
	ErrTransferFailed = errors.New("transfer_failed")

	// ErrOrderNotFound: no order exists with the given ID.
	ErrOrderNotFound = errors.New("order_not_found")

	// ErrUnauthorized: the caller is not the order owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyFinalized: the order is already filled or cancelled.
	ErrAlreadyFinalized = errors.New("order_already_finalized")

	// ErrUnsupportedDeposit: native asset sent through any path other than
	// the dedicated ether deposit.
	ErrUnsupportedDeposit = errors.New("unsupported_deposit")
)
