package dex

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/storage"
)

// CreateLimitOrder rests a new order on the book and returns its id
// Balances are checked against the order's full value but not reserved.
func (e *Exchange) CreateLimitOrder(trader common.Address, ticker string, amount, price *uint256.Int, side orderbook.Side) (uint64, error) {
	e.mu.Lock()
	order, err := e.placeLimitLocked(trader, ticker, amount, price, side)
	e.mu.Unlock()

	if err != nil {
		return 0, err
	}
	e.notifyOrder(order)
	return order.ID, nil
}

func (e *Exchange) placeLimitLocked(trader common.Address, ticker string, amount, price *uint256.Int, side orderbook.Side) (orderbook.Order, error) {
	if err := e.tradable(ticker); err != nil {
		return orderbook.Order{}, err
	}
	if err := validSide(side); err != nil {
		return orderbook.Order{}, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return orderbook.Order{}, err
	}
	if err := requirePositive("price", price); err != nil {
		return orderbook.Order{}, err
	}

	switch side {
	case orderbook.Sell:
		if e.ledger.BalanceOf(trader, ticker).Lt(amount) {
			return orderbook.Order{}, dexerr.ErrInsufficientAssetBalance
		}
	case orderbook.Buy:
		cost, overflow := new(uint256.Int).MulOverflow(price, amount)
		if overflow {
			return orderbook.Order{}, dexerr.Invalid("order value overflows 256 bits")
		}
		if e.ledger.BalanceOf(trader, e.cfg.QuoteTicker).Lt(cost) {
			return orderbook.Order{}, dexerr.QuoteBalanceTooLow(e.cfg.QuoteTicker)
		}
	}

	order := orderbook.Order{
		ID:        e.orderIDs.Next(),
		Trader:    trader,
		Side:      side,
		Ticker:    ticker,
		Price:     new(uint256.Int).Set(price),
		Amount:    new(uint256.Int).Set(amount),
		Filled:    new(uint256.Int),
		CreatedAt: e.clock.Now().UnixMilli(),
	}

	err := e.persist(func(b *storage.Batch) error {
		if err := b.SaveOrder(order); err != nil {
			return err
		}
		return b.SaveSequence(seqOrders, order.ID)
	})
	if err != nil {
		return orderbook.Order{}, err
	}
	if err := e.book.Insert(order); err != nil {
		return orderbook.Order{}, err
	}

	e.log.Infow("limit_order_created",
		"id", order.ID,
		"trader", trader.Hex(),
		"ticker", ticker,
		"side", side.String(),
		"price", price.Dec(),
		"amount", amount.Dec(),
	)
	return order, nil
}

// fill is a staged match against one resting order
type fill struct {
	order   orderbook.Order
	matched *uint256.Int
	cost    *uint256.Int
}

// CreateMarketOrder matches amount against the opposite side, best price first
// Either every fill settles or none does. An unmatched remainder is dropped.
func (e *Exchange) CreateMarketOrder(trader common.Address, ticker string, amount *uint256.Int, side orderbook.Side) ([]orderbook.Trade, error) {
	e.mu.Lock()
	trades, err := e.matchMarketLocked(trader, ticker, amount, side)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(trades) > 0 {
		e.notifyTrades(trades)
	}
	return trades, nil
}

func (e *Exchange) matchMarketLocked(trader common.Address, ticker string, amount *uint256.Int, side orderbook.Side) ([]orderbook.Trade, error) {
	if err := e.tradable(ticker); err != nil {
		return nil, err
	}
	if err := validSide(side); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	if side == orderbook.Sell && e.ledger.BalanceOf(trader, ticker).Lt(amount) {
		return nil, dexerr.ErrInsufficientAssetBalance
	}

	// Stage every fill before touching anything
	tx := e.ledger.Begin()
	needed := new(uint256.Int).Set(amount)
	var (
		fills    []fill
		stageErr error
	)
	e.book.Each(ticker, side.Opposite(), func(o orderbook.Order) bool {
		if needed.IsZero() {
			return false
		}
		remaining := o.Remaining()
		if remaining.IsZero() {
			return true
		}

		matched := remaining
		if needed.Lt(remaining) {
			matched = new(uint256.Int).Set(needed)
		}
		cost, overflow := new(uint256.Int).MulOverflow(matched, o.Price)
		if overflow {
			stageErr = dexerr.Invalid("fill value overflows 256 bits")
			return false
		}
		if err := e.stageFill(tx, trader, side, o, matched, cost); err != nil {
			stageErr = err
			return false
		}

		fills = append(fills, fill{order: o, matched: matched, cost: cost})
		needed.Sub(needed, matched)
		return true
	})
	if stageErr != nil {
		e.log.Infow("market_order_rejected",
			"trader", trader.Hex(),
			"ticker", ticker,
			"side", side.String(),
			"amount", amount.Dec(),
			"fills_staged", len(fills),
			"reason", dexerr.Reason(stageErr),
		)
		return nil, stageErr
	}

	now := e.clock.Now().UnixMilli()
	trades := make([]orderbook.Trade, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, orderbook.Trade{
			ID:        e.tradeIDs.Next(),
			OrderID:   f.order.ID,
			Ticker:    ticker,
			Taker:     trader,
			Maker:     f.order.Trader,
			TakerSide: side,
			Amount:    f.matched,
			Price:     new(uint256.Int).Set(f.order.Price),
			Timestamp: now,
		})
	}

	err := e.persist(func(b *storage.Batch) error {
		if err := saveChanges(b, tx.Changes()); err != nil {
			return err
		}
		for _, f := range fills {
			updated := f.order.Clone()
			updated.Filled.Add(updated.Filled, f.matched)
			if e.cfg.CompactFilled && updated.IsFilled() {
				if err := b.DeleteOrder(updated.ID); err != nil {
					return err
				}
				continue
			}
			if err := b.SaveOrder(updated); err != nil {
				return err
			}
		}
		for _, t := range trades {
			if err := b.SaveTrade(t); err != nil {
				return err
			}
		}
		if len(trades) > 0 {
			return b.SaveSequence(seqTrades, e.tradeIDs.Current())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Commit
	tx.Commit()
	for _, f := range fills {
		if err := e.book.Fill(f.order.ID, f.matched); err != nil {
			e.log.Errorw("book_fill_failed", "order_id", f.order.ID, "err", err)
		}
	}
	if e.cfg.CompactFilled && len(fills) > 0 {
		e.book.Compact(ticker, side.Opposite())
	}

	e.log.Infow("market_order_executed",
		"trader", trader.Hex(),
		"ticker", ticker,
		"side", side.String(),
		"amount", amount.Dec(),
		"filled", new(uint256.Int).Sub(amount, needed).Dec(),
		"fills", len(fills),
	)
	return trades, nil
}

// stageFill stages both legs of one fill
// Every party's funds are checked here, resting makers included, since limit
// orders do not reserve balances.
func (e *Exchange) stageFill(tx *ledger.Tx, taker common.Address, side orderbook.Side, maker orderbook.Order, matched, cost *uint256.Int) error {
	quote := e.cfg.QuoteTicker
	ticker := maker.Ticker

	if side == orderbook.Sell {
		if err := tx.Debit(taker, ticker, matched); err != nil {
			return e.shortfall(err, ticker)
		}
		if err := tx.Credit(taker, quote, cost); err != nil {
			return e.shortfall(err, quote)
		}
		if err := tx.Credit(maker.Trader, ticker, matched); err != nil {
			return e.shortfall(err, ticker)
		}
		if err := tx.Debit(maker.Trader, quote, cost); err != nil {
			e.log.Warnw("maker_shortfall", "order_id", maker.ID, "maker", maker.Trader.Hex(), "ticker", quote, "need", cost.Dec())
			return e.shortfall(err, quote)
		}
		return nil
	}

	if err := tx.Debit(taker, quote, cost); err != nil {
		return e.shortfall(err, quote)
	}
	if err := tx.Credit(taker, ticker, matched); err != nil {
		return e.shortfall(err, ticker)
	}
	if err := tx.Debit(maker.Trader, ticker, matched); err != nil {
		e.log.Warnw("maker_shortfall", "order_id", maker.ID, "maker", maker.Trader.Hex(), "ticker", ticker, "need", matched.Dec())
		return e.shortfall(err, ticker)
	}
	if err := tx.Credit(maker.Trader, quote, cost); err != nil {
		return e.shortfall(err, quote)
	}
	return nil
}

// shortfall maps a ledger error to the exchange failure for ticker
func (e *Exchange) shortfall(err error, ticker string) error {
	if errors.Is(err, ledger.ErrOverflow) {
		return dexerr.Invalid("%s balance overflows 256 bits", ticker)
	}
	if ticker == e.cfg.QuoteTicker {
		return dexerr.QuoteBalanceTooLow(ticker)
	}
	return dexerr.ErrInsufficientAssetBalance
}
