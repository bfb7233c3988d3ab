package dexerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsMatchByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   string
	}{
		{"quote trade", CannotTradeQuote("DAI"), ErrCannotTradeQuoteAsset, "cannot trade DAI"},
		{"quote balance", QuoteBalanceTooLow("DAI"), ErrInsufficientQuoteBalance, "DAI balance too low"},
		{"unknown", ErrUnknownAsset, ErrUnknownAsset, "this token does not exist"},
		{"withdraw", ErrInsufficientBalance, ErrInsufficientBalance, "trader does not have enough funds to withdraw"},
		{"wrapped", fmt.Errorf("deposit: %w", ErrUnknownAsset), ErrUnknownAsset, "deposit: this token does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Fatalf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
			if tt.err.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	if errors.Is(ErrInsufficientAssetBalance, ErrInsufficientQuoteBalance) {
		t.Fatal("asset and quote shortfalls must be distinguishable")
	}
	if errors.Is(errors.New("token balance too low"), ErrInsufficientAssetBalance) {
		t.Fatal("plain errors must not match by text")
	}
}

func TestTransferFailedUnwraps(t *testing.T) {
	cause := errors.New("ERC20: insufficient allowance")
	err := TransferFailed(cause)

	if !errors.Is(err, ErrExternalTransferFailed) {
		t.Fatal("expected ExternalTransferFailed kind")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if KindOf(err) != ExternalTransferFailed {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if Reason(err) != "external transfer failed" {
		t.Errorf("Reason = %q", Reason(err))
	}
}
