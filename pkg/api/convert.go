package api

import (
	"strings"

	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/asset"
	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

func toAssetInfo(a asset.Asset) AssetInfo {
	return AssetInfo{
		Ticker:   a.Ticker,
		Handle:   a.Handle.Hex(),
		Decimals: a.Decimals,
		IsQuote:  a.IsQuote,
	}
}

func toOrderInfo(o orderbook.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Trader:    o.Trader.Hex(),
		Ticker:    o.Ticker,
		Side:      sideName(o.Side),
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Filled:    o.Filled.Dec(),
		CreatedAt: o.CreatedAt,
	}
}

func toTradeInfos(trades []orderbook.Trade) []TradeInfo {
	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = TradeInfo{
			ID:        t.ID,
			OrderID:   t.OrderID,
			Ticker:    t.Ticker,
			Taker:     t.Taker.Hex(),
			Maker:     t.Maker.Hex(),
			Side:      sideName(t.TakerSide),
			Price:     t.Price.Dec(),
			Amount:    t.Amount.Dec(),
			Timestamp: t.Timestamp,
		}
	}
	return out
}

func toPriceLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price.Dec(), Size: l.Amount.Dec(), Orders: l.Orders}
	}
	return out
}

func sideName(s orderbook.Side) string {
	return strings.ToLower(s.String())
}

// parseAmount reads a base-unit decimal string
func parseAmount(name, s string) (*uint256.Int, error) {
	if s == "" {
		return nil, dexerr.Invalid("missing %s", name)
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, dexerr.Invalid("invalid %s %q", name, s)
	}
	return v, nil
}

func parseSide(s string) (orderbook.Side, error) {
	side, ok := orderbook.ParseSide(s)
	if !ok {
		return 0, dexerr.Invalid("invalid side %q", s)
	}
	return side, nil
}
