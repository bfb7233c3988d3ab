package asset

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
)

// MaxTickerLen matches the bytes32 symbol width used by token contracts
const MaxTickerLen = 32

// DefaultDecimals is used when a token does not report its precision
const DefaultDecimals = 18

// Asset is a tradable token known to the exchange
type Asset struct {
	Ticker   string
	Handle   common.Address // address of the token's own ledger
	Decimals uint8
	IsQuote  bool
	Index    int // position in registration order
}

// Registry maps tickers to assets in a thread-safe manner
// Exactly one ticker (fixed at construction) is the quote asset every other asset is priced in
type Registry struct {
	mu     sync.RWMutex
	quote  string
	assets map[string]*Asset
	order  []string // registration order
}

// NewRegistry creates an empty registry whose quote asset is quote
func NewRegistry(quote string) *Registry {
	return &Registry{
		quote:  quote,
		assets: make(map[string]*Asset),
	}
}

// Quote returns the quote ticker
func (r *Registry) Quote() string {
	return r.quote
}

// Register adds a new asset
// Returns DuplicateAsset if the ticker is already registered
func (r *Registry) Register(ticker string, handle common.Address, decimals uint8) (Asset, error) {
	if err := ValidateTicker(ticker); err != nil {
		return Asset{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[ticker]; exists {
		return Asset{}, dexerr.ErrDuplicateAsset
	}

	a := &Asset{
		Ticker:   ticker,
		Handle:   handle,
		Decimals: decimals,
		IsQuote:  ticker == r.quote,
		Index:    len(r.order),
	}
	r.assets[ticker] = a
	r.order = append(r.order, ticker)
	return *a, nil
}

// Get retrieves an asset by ticker
func (r *Registry) Get(ticker string) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.assets[ticker]
	if !exists {
		return Asset{}, dexerr.ErrUnknownAsset
	}
	return *a, nil
}

// Exists checks if a ticker is registered
func (r *Registry) Exists(ticker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.assets[ticker]
	return exists
}

// IsQuote reports whether ticker is the quote asset
func (r *Registry) IsQuote(ticker string) bool {
	return ticker == r.quote
}

// List returns all assets in registration order
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, *r.assets[t])
	}
	return out
}

// Count returns the number of registered assets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

// ValidateTicker rejects empty tickers, tickers wider than bytes32 and
// tickers containing the storage key separator ':'
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return dexerr.Invalid("ticker must not be empty")
	}
	if len(ticker) > MaxTickerLen {
		return dexerr.Invalid("ticker %q exceeds %d bytes", ticker, MaxTickerLen)
	}
	if strings.ContainsRune(ticker, ':') {
		return dexerr.Invalid("ticker %q must not contain ':'", ticker)
	}
	return nil
}
