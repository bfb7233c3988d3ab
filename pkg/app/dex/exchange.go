// Package dex implements a custodial spot exchange: traders deposit tokens,
// rest limit orders and take liquidity with market orders, all priced in a
// single quote asset.
//
// Every mutating call runs under one writer lock and follows the same
// sequence: validate, stage balance changes in a ledger transaction, write one
// storage batch, then publish the staged state in memory. A call that fails
// leaves no trace.
package dex

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/asset"
	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/app/core/sequence"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/storage"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

const (
	seqOrders = "order"
	seqTrades = "trade"
)

// ErrHalted is returned by every mutating call once storage and memory may
// disagree. Restarting rebuilds memory from storage.
var ErrHalted = errors.New("exchange halted after a storage fault")

// Config holds exchange settings
type Config struct {
	QuoteTicker string
	// CompactFilled drops fully filled orders from the book after each match.
	// When false they stay visible in GetOrders and are skipped by matching.
	CompactFilled bool
	Clock         util.Clock
}

// Exchange owns the registry, ledger and order book of one venue
type Exchange struct {
	mu sync.RWMutex

	cfg    Config
	log    *zap.SugaredLogger
	clock  util.Clock
	store  *storage.Store
	tokens token.Resolver

	assets   *asset.Registry
	handles  map[string]token.Token // ticker -> external ledger
	ledger   *ledger.Ledger
	book     *orderbook.Book
	orderIDs *sequence.Sequencer
	tradeIDs *sequence.Sequencer

	payouts map[ledger.Key]*uint256.Int // withdrawals debited but not settled
	commit  func(*storage.Batch) error
	halted  error

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Open creates an exchange backed by store and restores any persisted state
// Persisted asset handles are re-resolved through tokens.
func Open(cfg Config, store *storage.Store, tokens token.Resolver, log *zap.SugaredLogger) (*Exchange, error) {
	if cfg.QuoteTicker == "" {
		return nil, fmt.Errorf("quote ticker is required")
	}
	if store == nil || tokens == nil {
		return nil, fmt.Errorf("store and token resolver are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &Exchange{
		cfg:      cfg,
		log:      log,
		clock:    cfg.Clock,
		store:    store,
		tokens:   tokens,
		assets:   asset.NewRegistry(cfg.QuoteTicker),
		handles:  make(map[string]token.Token),
		ledger:   ledger.New(),
		book:     orderbook.NewBook(),
		orderIDs: sequence.New(0),
		tradeIDs: sequence.New(0),
		payouts:  make(map[ledger.Key]*uint256.Int),
		commit:   (*storage.Batch).Commit,
	}

	if err := e.restore(); err != nil {
		return nil, fmt.Errorf("restore exchange state: %w", err)
	}
	return e, nil
}

func (e *Exchange) restore() error {
	assets, err := e.store.LoadAssets()
	if err != nil {
		return err
	}
	for _, a := range assets {
		tok, err := e.tokens.Resolve(a.Handle)
		if err != nil {
			return fmt.Errorf("asset %s: %w", a.Ticker, err)
		}
		if _, err := e.assets.Register(a.Ticker, a.Handle, a.Decimals); err != nil {
			return fmt.Errorf("asset %s: %w", a.Ticker, err)
		}
		e.handles[a.Ticker] = tok
	}

	err = e.store.LoadBalances(func(trader common.Address, ticker string, amount *uint256.Int) {
		e.ledger.Restore(trader, ticker, amount)
	})
	if err != nil {
		return err
	}

	orders, err := e.store.LoadOrders()
	if err != nil {
		return err
	}
	resting := 0
	for _, o := range orders {
		if e.cfg.CompactFilled && o.IsFilled() {
			continue
		}
		if err := e.book.Insert(o); err != nil {
			return err
		}
		resting++
	}

	payouts, err := e.store.LoadPendingPayouts()
	if err != nil {
		return err
	}
	for _, p := range payouts {
		e.payouts[ledger.Key{Trader: p.Trader, Ticker: p.Ticker}] = p.Amount
		e.log.Errorw("payout_unsettled", "trader", p.Trader.Hex(), "ticker", p.Ticker, "amount", p.Amount.Dec())
	}

	for name, seq := range map[string]*sequence.Sequencer{seqOrders: e.orderIDs, seqTrades: e.tradeIDs} {
		v, err := e.store.LoadSequence(name)
		if err != nil {
			return err
		}
		seq.Reset(v)
	}

	if len(assets) > 0 || resting > 0 {
		e.log.Infow("exchange_restored",
			"assets", len(assets),
			"orders", resting,
			"last_order_id", e.orderIDs.Current(),
			"last_trade_id", e.tradeIDs.Current(),
		)
	}
	return nil
}

// Quote returns the quote ticker
func (e *Exchange) Quote() string {
	return e.cfg.QuoteTicker
}

// Subscribe registers a listener for committed orders and trades
func (e *Exchange) Subscribe(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// AddToken lists a new asset whose external ledger lives at handle
func (e *Exchange) AddToken(ticker string, handle common.Address) (asset.Asset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return asset.Asset{}, e.halted
	}
	if err := asset.ValidateTicker(ticker); err != nil {
		return asset.Asset{}, err
	}
	if e.assets.Exists(ticker) {
		return asset.Asset{}, dexerr.ErrDuplicateAsset
	}
	tok, err := e.tokens.Resolve(handle)
	if err != nil {
		return asset.Asset{}, dexerr.Invalid("unknown token handle %s", handle.Hex())
	}

	decimals := uint8(asset.DefaultDecimals)
	if d, ok := tok.(token.Decimaler); ok {
		decimals = d.Decimals()
	}
	a := asset.Asset{
		Ticker:   ticker,
		Handle:   handle,
		Decimals: decimals,
		IsQuote:  e.assets.IsQuote(ticker),
		Index:    e.assets.Count(),
	}

	if err := e.persist(func(b *storage.Batch) error { return b.SaveAsset(a) }); err != nil {
		return asset.Asset{}, err
	}
	if _, err := e.assets.Register(ticker, handle, decimals); err != nil {
		return asset.Asset{}, err
	}
	e.handles[ticker] = tok

	e.log.Infow("token_added", "ticker", ticker, "handle", handle.Hex(), "decimals", decimals, "quote", a.IsQuote)
	return a, nil
}

// Assets returns every listed asset in registration order
func (e *Exchange) Assets() []asset.Asset {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.assets.List()
}

// Asset returns one listed asset
func (e *Exchange) Asset(ticker string) (asset.Asset, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.assets.Get(ticker)
}

// BalanceOf returns the trader's custodial balance of ticker
func (e *Exchange) BalanceOf(trader common.Address, ticker string) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BalanceOf(trader, ticker)
}

// Balances returns the trader's non-zero balances keyed by ticker
func (e *Exchange) Balances(trader common.Address) map[string]*uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Balances(trader)
}

// TotalHeld returns the sum of every trader's balance of ticker
func (e *Exchange) TotalHeld(ticker string) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Total(ticker)
}

// GetOrders returns one side of a ticker's book in priority order
// Unknown tickers have an empty book.
func (e *Exchange) GetOrders(ticker string, side orderbook.Side) []orderbook.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Orders(ticker, side)
}

// Levels returns one side of a ticker's book aggregated by price
func (e *Exchange) Levels(ticker string, side orderbook.Side) []orderbook.PriceLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Levels(ticker, side)
}

// RecentTrades returns up to limit trades of ticker, newest first
func (e *Exchange) RecentTrades(ticker string, limit int) ([]orderbook.Trade, error) {
	if limit <= 0 {
		return []orderbook.Trade{}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.LoadRecentTrades(ticker, limit)
}

// persist writes one storage batch
func (e *Exchange) persist(fill func(b *storage.Batch) error) error {
	b := e.store.NewBatch()
	defer b.Close()

	if err := fill(b); err != nil {
		return fmt.Errorf("stage batch: %w", err)
	}
	return e.commit(b)
}

// halt refuses every later write; cause is what left storage behind memory
func (e *Exchange) halt(cause error) {
	e.halted = fmt.Errorf("%w: %v", ErrHalted, cause)
	e.log.Errorw("exchange_halted", "err", cause)
}

// Halted returns the fault that stopped writes, or nil
func (e *Exchange) Halted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.halted
}

func saveChanges(b *storage.Batch, changes []ledger.Change) error {
	for _, c := range changes {
		if err := b.SaveBalance(c.Trader, c.Ticker, c.Amount); err != nil {
			return err
		}
	}
	return nil
}

// tradable checks that writes are accepted and ticker is a listed non-quote asset
func (e *Exchange) tradable(ticker string) error {
	if e.halted != nil {
		return e.halted
	}
	if !e.assets.Exists(ticker) {
		return dexerr.ErrUnknownAsset
	}
	if e.assets.IsQuote(ticker) {
		return dexerr.CannotTradeQuote(e.cfg.QuoteTicker)
	}
	return nil
}

func requirePositive(name string, v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return dexerr.Invalid("%s must be positive", name)
	}
	return nil
}

func validSide(side orderbook.Side) error {
	if side != orderbook.Buy && side != orderbook.Sell {
		return dexerr.Invalid("unknown side %d", side)
	}
	return nil
}
