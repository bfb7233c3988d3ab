// Package dexerr defines the typed failures returned by the exchange.
// Every failure carries a Kind for programmatic checks and the reason text
// shown to traders.
package dexerr

import (
	"errors"
	"fmt"
)

// Kind classifies an exchange failure
type Kind uint8

const (
	KindUnknown Kind = iota
	UnknownAsset
	DuplicateAsset
	CannotTradeQuoteAsset
	InsufficientAssetBalance
	InsufficientQuoteBalance
	InsufficientBalance
	ExternalTransferFailed
	InvalidArgument
)

func (k Kind) String() string {
	switch k {
	case UnknownAsset:
		return "UnknownAsset"
	case DuplicateAsset:
		return "DuplicateAsset"
	case CannotTradeQuoteAsset:
		return "CannotTradeQuoteAsset"
	case InsufficientAssetBalance:
		return "InsufficientAssetBalance"
	case InsufficientQuoteBalance:
		return "InsufficientQuoteBalance"
	case InsufficientBalance:
		return "InsufficientBalance"
	case ExternalTransferFailed:
		return "ExternalTransferFailed"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// Error is a failure of a given Kind with a human readable reason.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks. Messages that mention the quote asset are
// built with the constructors below.
var (
	ErrUnknownAsset             = &Error{Kind: UnknownAsset, Reason: "this token does not exist"}
	ErrDuplicateAsset           = &Error{Kind: DuplicateAsset, Reason: "this token already exists"}
	ErrCannotTradeQuoteAsset    = &Error{Kind: CannotTradeQuoteAsset, Reason: "cannot trade quote asset"}
	ErrInsufficientAssetBalance = &Error{Kind: InsufficientAssetBalance, Reason: "token balance too low"}
	ErrInsufficientQuoteBalance = &Error{Kind: InsufficientQuoteBalance, Reason: "quote balance too low"}
	ErrInsufficientBalance      = &Error{Kind: InsufficientBalance, Reason: "trader does not have enough funds to withdraw"}
	ErrExternalTransferFailed   = &Error{Kind: ExternalTransferFailed, Reason: "external transfer failed"}
	ErrInvalidArgument          = &Error{Kind: InvalidArgument, Reason: "invalid argument"}
)

// CannotTradeQuote reports an order placed on the quote asset
func CannotTradeQuote(quote string) error {
	return &Error{Kind: CannotTradeQuoteAsset, Reason: "cannot trade " + quote}
}

// QuoteBalanceTooLow reports a buyer (or resting bid) short of quote funds
func QuoteBalanceTooLow(quote string) error {
	return &Error{Kind: InsufficientQuoteBalance, Reason: quote + " balance too low"}
}

// TransferFailed wraps an error returned by the asset's own ledger
func TransferFailed(cause error) error {
	return &Error{Kind: ExternalTransferFailed, Reason: "external transfer failed", Err: cause}
}

// Invalid reports a malformed request
func Invalid(format string, args ...any) error {
	return &Error{Kind: InvalidArgument, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Reason returns the trader-facing reason text of err
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
