package orderbook

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side of an order. Values follow the on-chain enum (BUY = 0, SELL = 1).
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the side a taker on s matches against
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide accepts "buy"/"sell" in any case, or "0"/"1"
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(s) {
	case "buy", "bid", "0":
		return Buy, true
	case "sell", "ask", "1":
		return Sell, true
	}
	return 0, false
}

// Order is a resting limit order
// Filled is the only field mutated after creation, only upward.
type Order struct {
	ID        uint64
	Trader    common.Address
	Side      Side
	Ticker    string
	Price     *uint256.Int // quote units per base unit
	Amount    *uint256.Int // base units
	Filled    *uint256.Int
	CreatedAt int64 // unix millis
}

// Remaining returns Amount - Filled
func (o *Order) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(o.Amount, o.Filled)
}

// IsFilled reports whether nothing is left to match
func (o *Order) IsFilled() bool {
	return !o.Filled.Lt(o.Amount)
}

// Clone returns a deep copy
func (o *Order) Clone() Order {
	c := *o
	c.Price = new(uint256.Int).Set(o.Price)
	c.Amount = new(uint256.Int).Set(o.Amount)
	c.Filled = new(uint256.Int).Set(o.Filled)
	return c
}

// Trade is one fill between a taker and a resting order
type Trade struct {
	ID        uint64
	OrderID   uint64 // resting (maker) order
	Ticker    string
	Taker     common.Address
	Maker     common.Address
	TakerSide Side
	Amount    *uint256.Int
	Price     *uint256.Int
	Timestamp int64 // unix millis
}

// PriceLevel aggregates the remaining size resting at one price
type PriceLevel struct {
	Price  *uint256.Int
	Amount *uint256.Int
	Orders int
}
