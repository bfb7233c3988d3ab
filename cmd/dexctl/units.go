package main

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// toBaseUnits converts a human amount such as "1.5" into base units of a
// token with the given decimals
func toBaseUnits(amount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q", amount)
	}
	if d.IsNegative() {
		return "", fmt.Errorf("amount %q is negative", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return "", fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	return shifted.BigInt().String(), nil
}

// fromBaseUnits renders base units of a token with the given decimals
func fromBaseUnits(base string, decimals int32) string {
	d, err := decimal.NewFromString(base)
	if err != nil {
		return base
	}
	return d.Shift(-decimals).String()
}

// priceShift is the decimal shift between a human price (quote per whole
// token) and the engine price (quote base units per token base unit)
func priceShift(quoteDecimals, assetDecimals uint8) int32 {
	return int32(quoteDecimals) - int32(assetDecimals)
}
