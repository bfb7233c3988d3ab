package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/asset"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// On-disk JSON records. Amounts are decimal strings so 256-bit values survive
// any JSON reader.

type assetRecord struct {
	Ticker   string `json:"ticker"`
	Handle   string `json:"handle"`
	Decimals uint8  `json:"decimals"`
	IsQuote  bool   `json:"isQuote"`
	Index    int    `json:"index"`
}

type balanceRecord struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

type payoutRecord struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
}

type orderRecord struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Side      uint8  `json:"side"`
	Ticker    string `json:"ticker"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Filled    string `json:"filled"`
	CreatedAt int64  `json:"createdAt"`
}

type tradeRecord struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"orderId"`
	Ticker    string `json:"ticker"`
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	TakerSide uint8  `json:"takerSide"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

func toAssetRecord(a asset.Asset) assetRecord {
	return assetRecord{
		Ticker:   a.Ticker,
		Handle:   a.Handle.Hex(),
		Decimals: a.Decimals,
		IsQuote:  a.IsQuote,
		Index:    a.Index,
	}
}

func (r assetRecord) asset() asset.Asset {
	return asset.Asset{
		Ticker:   r.Ticker,
		Handle:   common.HexToAddress(r.Handle),
		Decimals: r.Decimals,
		IsQuote:  r.IsQuote,
		Index:    r.Index,
	}
}

func toOrderRecord(o orderbook.Order) orderRecord {
	return orderRecord{
		ID:        o.ID,
		Trader:    o.Trader.Hex(),
		Side:      uint8(o.Side),
		Ticker:    o.Ticker,
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Filled:    o.Filled.Dec(),
		CreatedAt: o.CreatedAt,
	}
}

func (r orderRecord) order() (orderbook.Order, error) {
	price, err := parseAmount(r.Price)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d price: %w", r.ID, err)
	}
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d amount: %w", r.ID, err)
	}
	filled, err := parseAmount(r.Filled)
	if err != nil {
		return orderbook.Order{}, fmt.Errorf("order %d filled: %w", r.ID, err)
	}
	return orderbook.Order{
		ID:        r.ID,
		Trader:    common.HexToAddress(r.Trader),
		Side:      orderbook.Side(r.Side),
		Ticker:    r.Ticker,
		Price:     price,
		Amount:    amount,
		Filled:    filled,
		CreatedAt: r.CreatedAt,
	}, nil
}

func toTradeRecord(t orderbook.Trade) tradeRecord {
	return tradeRecord{
		ID:        t.ID,
		OrderID:   t.OrderID,
		Ticker:    t.Ticker,
		Taker:     t.Taker.Hex(),
		Maker:     t.Maker.Hex(),
		TakerSide: uint8(t.TakerSide),
		Amount:    t.Amount.Dec(),
		Price:     t.Price.Dec(),
		Timestamp: t.Timestamp,
	}
}

func (r tradeRecord) trade() (orderbook.Trade, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return orderbook.Trade{}, fmt.Errorf("trade %d amount: %w", r.ID, err)
	}
	price, err := parseAmount(r.Price)
	if err != nil {
		return orderbook.Trade{}, fmt.Errorf("trade %d price: %w", r.ID, err)
	}
	return orderbook.Trade{
		ID:        r.ID,
		OrderID:   r.OrderID,
		Ticker:    r.Ticker,
		Taker:     common.HexToAddress(r.Taker),
		Maker:     common.HexToAddress(r.Maker),
		TakerSide: orderbook.Side(r.TakerSide),
		Amount:    amount,
		Price:     price,
		Timestamp: r.Timestamp,
	}, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	return uint256.FromDecimal(s)
}
