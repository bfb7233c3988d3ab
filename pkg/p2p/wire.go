package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

func init() {
	gob.Register(MarketEvent{})
}

// EventKind tags a market event
type EventKind uint8

const (
	EventOrder EventKind = iota + 1
	EventTrades
)

// MarketEvent is one gossiped exchange event
// Exactly one of Order and Trades is set, matching Kind.
type MarketEvent struct {
	Kind   EventKind
	Order  *OrderWire
	Trades []TradeWire
}

// OrderWire is a resting order with decimal-string amounts
type OrderWire struct {
	ID        uint64
	Trader    common.Address
	Side      uint8
	Ticker    string
	Price     string
	Amount    string
	Filled    string
	CreatedAt int64
}

// TradeWire is a fill with decimal-string amounts
type TradeWire struct {
	ID        uint64
	OrderID   uint64
	Ticker    string
	Taker     common.Address
	Maker     common.Address
	TakerSide uint8
	Amount    string
	Price     string
	Timestamp int64
}

func orderToWire(o orderbook.Order) *OrderWire {
	return &OrderWire{
		ID:        o.ID,
		Trader:    o.Trader,
		Side:      uint8(o.Side),
		Ticker:    o.Ticker,
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Filled:    o.Filled.Dec(),
		CreatedAt: o.CreatedAt,
	}
}

func tradesToWire(trades []orderbook.Trade) []TradeWire {
	out := make([]TradeWire, len(trades))
	for i, t := range trades {
		out[i] = TradeWire{
			ID:        t.ID,
			OrderID:   t.OrderID,
			Ticker:    t.Ticker,
			Taker:     t.Taker,
			Maker:     t.Maker,
			TakerSide: uint8(t.TakerSide),
			Amount:    t.Amount.Dec(),
			Price:     t.Price.Dec(),
			Timestamp: t.Timestamp,
		}
	}
	return out
}

// Order converts back to the book's representation
func (w *OrderWire) Order() (orderbook.Order, error) {
	price, err := uint256.FromDecimal(w.Price)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d price: %w", w.ID, err)
	}
	amount, err := uint256.FromDecimal(w.Amount)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d amount: %w", w.ID, err)
	}
	filled, err := uint256.FromDecimal(w.Filled)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d filled: %w", w.ID, err)
	}
	return orderbook.Order{
		ID:        w.ID,
		Trader:    w.Trader,
		Side:      orderbook.Side(w.Side),
		Ticker:    w.Ticker,
		Price:     price,
		Amount:    amount,
		Filled:    filled,
		CreatedAt: w.CreatedAt,
	}, nil
}

// Trade converts back to the book's representation
func (w TradeWire) Trade() (orderbook.Trade, error) {
	amount, err := uint256.FromDecimal(w.Amount)
	if err != nil {
		return orderbook.Trade{}, fmt.Errorf("trade %d amount: %w", w.ID, err)
	}
	price, err := uint256.FromDecimal(w.Price)
	if err != nil {
		return orderbook.Trade{}, fmt.Errorf("trade %d price: %w", w.ID, err)
	}
	return orderbook.Trade{
		ID:        w.ID,
		OrderID:   w.OrderID,
		Ticker:    w.Ticker,
		Taker:     w.Taker,
		Maker:     w.Maker,
		TakerSide: orderbook.Side(w.TakerSide),
		Amount:    amount,
		Price:     price,
		Timestamp: w.Timestamp,
	}, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
