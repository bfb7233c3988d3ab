package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
// Prefix-based so every record family can be range scanned.
// Numeric ids are zero-padded so lexicographic order equals numeric order.
const (
	prefixAsset   = "asset:" // asset:{ticker}
	prefixBalance = "bal:"   // bal:{address}:{ticker}
	prefixOrder   = "ord:"   // ord:{id}
	prefixTrade   = "trade:" // trade:{ticker}:{id}
	prefixSeq     = "seq:"   // seq:{name}
	prefixPayout  = "wd:"    // wd:{address}:{ticker}
)

func assetKey(ticker string) []byte {
	return []byte(prefixAsset + ticker)
}

// balanceKey returns the key for one balance
// Format: "bal:{address}:{ticker}"
func balanceKey(trader common.Address, ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, trader.Hex(), ticker))
}

// orderKey returns the key for a resting order
// Format: "ord:{id:020d}"
func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

// tradeKey returns the key for a trade
// Format: "trade:{ticker}:{id:020d}"
func tradeKey(ticker string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, ticker, id))
}

// tradePrefix returns the prefix of all trades of a ticker
func tradePrefix(ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, ticker))
}

// payoutKey returns the key of a withdrawal whose payout has not settled
// Format: "wd:{address}:{ticker}"
func payoutKey(trader common.Address, ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixPayout, trader.Hex(), ticker))
}

func seqKey(name string) []byte {
	return []byte(prefixSeq + name)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:" -> upper bound "ord;"
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
