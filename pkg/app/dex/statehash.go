package dex

import (
	"encoding/binary"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperdex/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// StateHash returns a Keccak-256 digest of assets, balances, books and id sequences
// Two exchanges that processed the same calls report the same hash.
func (e *Exchange) StateHash() common.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()

	h := sha3.NewLegacyKeccak256()

	for _, a := range e.assets.List() {
		writeString(h, a.Ticker)
		h.Write(a.Handle.Bytes())
		h.Write([]byte{a.Decimals})
	}

	e.ledger.Each(func(k ledger.Key, amount *uint256.Int) {
		h.Write(k.Trader.Bytes())
		writeString(h, k.Ticker)
		writeAmount(h, amount)
	})

	for _, ticker := range e.book.Tickers() {
		writeString(h, ticker)
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			for _, o := range e.book.Orders(ticker, side) {
				writeUint64(h, o.ID)
				h.Write(o.Trader.Bytes())
				h.Write([]byte{byte(o.Side)})
				writeAmount(h, o.Price)
				writeAmount(h, o.Amount)
				writeAmount(h, o.Filled)
			}
		}
	}

	writeUint64(h, e.orderIDs.Current())
	writeUint64(h, e.tradeIDs.Current())

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func writeString(h hash.Hash, s string) {
	writeUint64(h, uint64(len(s)))
	h.Write([]byte(s))
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func writeAmount(h hash.Hash, v *uint256.Int) {
	b := v.Bytes32()
	h.Write(b[:])
}
