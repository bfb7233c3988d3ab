// Package token models the external ledgers that hold each asset outside the
// exchange. The exchange pulls funds in on deposit and pushes them out on
// withdrawal; either move may be refused by the token.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the exchange's view of an asset's own ledger
type Token interface {
	// TransferIn moves amount from the trader into exchange custody
	// Requires a prior allowance from the trader.
	TransferIn(from common.Address, amount *uint256.Int) error
	// TransferOut moves amount from exchange custody to the trader
	TransferOut(to common.Address, amount *uint256.Int) error
}

// Resolver finds the token behind an asset handle
type Resolver interface {
	Resolve(handle common.Address) (Token, error)
}

// Decimaler is implemented by tokens that report their precision
type Decimaler interface {
	Decimals() uint8
}
