package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
)

// Generator drives random trading activity against an exchange for load testing
// Traders are funded through the devnet token bank exactly as real traders are.
type Generator struct {
	ex      *dex.Exchange
	bank    *token.Bank
	traders []common.Address
	tickers []string // tradable (non-quote) assets
	rng     *rand.Rand

	refPrice uint64 // quote units per base unit
	stats    Stats
}

// Stats counts generated operations
type Stats struct {
	Limits   int
	Markets  int
	Trades   int
	Rejected int // orders the exchange refused, e.g. for lack of funds
}

// Total returns the number of orders submitted
func (s Stats) Total() int { return s.Limits + s.Markets }

// TraderAddress derives the address of simulated trader i
func TraderAddress(i int) common.Address {
	h := crypto.Keccak256([]byte(fmt.Sprintf("sim_trader_%d", i+1)))
	return common.BytesToAddress(h[12:])
}

// NewGenerator creates a generator over every asset currently listed on ex
func NewGenerator(ex *dex.Exchange, bank *token.Bank, numTraders int, seed int64) (*Generator, error) {
	if numTraders < 2 {
		return nil, fmt.Errorf("need at least 2 traders, got %d", numTraders)
	}

	var tickers []string
	for _, a := range ex.Assets() {
		if !a.IsQuote {
			tickers = append(tickers, a.Ticker)
		}
	}
	if len(tickers) == 0 {
		return nil, errors.New("no tradable assets listed")
	}

	traders := make([]common.Address, numTraders)
	for i := range traders {
		traders[i] = TraderAddress(i)
	}

	return &Generator{
		ex:       ex,
		bank:     bank,
		traders:  traders,
		tickers:  tickers,
		rng:      rand.New(rand.NewSource(seed)),
		refPrice: 100,
	}, nil
}

// Traders returns the simulated trader addresses
func (g *Generator) Traders() []common.Address {
	return append([]common.Address(nil), g.traders...)
}

// Fund mints, approves and deposits amount of every listed asset for every trader
func (g *Generator) Fund(amount *uint256.Int) error {
	custodian := g.bank.Custodian()
	for _, a := range g.ex.Assets() {
		tok, ok := g.bank.BySymbol(a.Ticker)
		if !ok {
			return fmt.Errorf("asset %s has no devnet token", a.Ticker)
		}
		for _, trader := range g.traders {
			if err := tok.Faucet(trader, amount); err != nil {
				return fmt.Errorf("faucet %s: %w", a.Ticker, err)
			}
			tok.Approve(trader, custodian, amount)
			if err := g.ex.Deposit(trader, a.Ticker, amount); err != nil {
				return fmt.Errorf("deposit %s: %w", a.Ticker, err)
			}
		}
	}
	return nil
}

// Step submits one random order: 70% limit, 30% market
// Exchange rejections are counted; any other error is returned.
func (g *Generator) Step() error {
	trader := g.traders[g.rng.Intn(len(g.traders))]
	ticker := g.tickers[g.rng.Intn(len(g.tickers))]

	side := orderbook.Buy
	if g.rng.Intn(2) == 1 {
		side = orderbook.Sell
	}

	// Random quantity: 1 to 100 base units
	amount := uint256.NewInt(uint64(g.rng.Intn(100) + 1))

	var err error
	if g.rng.Intn(100) < 70 {
		g.stats.Limits++
		_, err = g.ex.CreateLimitOrder(trader, ticker, amount, g.price(side), side)
	} else {
		g.stats.Markets++
		var trades []orderbook.Trade
		trades, err = g.ex.CreateMarketOrder(trader, ticker, amount, side)
		g.stats.Trades += len(trades)
	}

	if err != nil {
		if dexerr.KindOf(err) == dexerr.KindUnknown {
			return err
		}
		g.stats.Rejected++
	}
	return nil
}

// price picks a limit price within ±5% of the reference, bids below and asks above
func (g *Generator) price(side orderbook.Side) *uint256.Int {
	spread := g.refPrice / 20
	offset := uint64(g.rng.Int63n(int64(spread) + 1))
	if side == orderbook.Buy {
		return uint256.NewInt(g.refPrice - offset)
	}
	return uint256.NewInt(g.refPrice + offset)
}

// Batch runs count steps
func (g *Generator) Batch(count int) error {
	for i := 0; i < count; i++ {
		if err := g.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the counts so far
func (g *Generator) Stats() Stats {
	return g.stats
}
