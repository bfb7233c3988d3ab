package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Bank holds the in-process tokens of a devnet, keyed by handle
type Bank struct {
	mu        sync.RWMutex
	custodian common.Address
	tokens    map[common.Address]*ERC20
	bySymbol  map[string]common.Address
}

// NewBank creates a bank whose tokens all use custodian as exchange account
func NewBank(custodian common.Address) *Bank {
	return &Bank{
		custodian: custodian,
		tokens:    make(map[common.Address]*ERC20),
		bySymbol:  make(map[string]common.Address),
	}
}

// HandleFor derives a deterministic token address from the custodian and symbol
func HandleFor(custodian common.Address, symbol string) common.Address {
	return common.BytesToAddress(crypto.Keccak256(custodian.Bytes(), []byte(symbol)))
}

// Deploy creates (or returns the existing) token for symbol
func (b *Bank) Deploy(symbol string, decimals uint8) *ERC20 {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := HandleFor(b.custodian, symbol)
	if t, ok := b.tokens[handle]; ok {
		return t
	}
	t := NewERC20(symbol, decimals, b.custodian)
	b.tokens[handle] = t
	b.bySymbol[symbol] = handle
	return t
}

// Resolve implements Resolver
func (b *Bank) Resolve(handle common.Address) (Token, error) {
	t, ok := b.ByHandle(handle)
	if !ok {
		return nil, fmt.Errorf("no token deployed at %s", handle.Hex())
	}
	return t, nil
}

// ByHandle returns the token at handle
func (b *Bank) ByHandle(handle common.Address) (*ERC20, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tokens[handle]
	return t, ok
}

// BySymbol returns the token deployed for symbol
func (b *Bank) BySymbol(symbol string) (*ERC20, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.bySymbol[symbol]
	if !ok {
		return nil, false
	}
	return b.tokens[h], true
}

// Custodian returns the exchange account used by every token
func (b *Bank) Custodian() common.Address {
	return b.custodian
}
