package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrZeroAddress           = errors.New("ERC20: transfer to the zero address")
)

// ERC20 is an in-process fungible token ledger with allowances
// It backs devnet assets and tests. The custodian is the exchange account
// that TransferIn pulls into and TransferOut pays from.
type ERC20 struct {
	mu sync.RWMutex

	symbol    string
	decimals  uint8
	custodian common.Address
	supply    *uint256.Int

	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int // owner -> spender -> amount
}

// NewERC20 creates a token with zero supply
func NewERC20(symbol string, decimals uint8, custodian common.Address) *ERC20 {
	return &ERC20{
		symbol:     symbol,
		decimals:   decimals,
		custodian:  custodian,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *ERC20) Symbol() string            { return t.symbol }
func (t *ERC20) Decimals() uint8           { return t.decimals }
func (t *ERC20) Custodian() common.Address { return t.custodian }

// TotalSupply returns the amount minted so far
func (t *ERC20) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.supply)
}

// BalanceOf returns the holder's balance
func (t *ERC20) BalanceOf(holder common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(holder)
}

func (t *ERC20) balanceLocked(holder common.Address) *uint256.Int {
	if b, ok := t.balances[holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Allowance returns how much spender may still pull from owner
func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowanceLocked(owner, spender)
}

func (t *ERC20) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Faucet mints amount to the holder
func (t *ERC20) Faucet(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(t.supply, amount)
	if overflow {
		return errors.New("ERC20: supply overflow")
	}
	t.supply = supply
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), amount)
	return nil
}

// Approve sets the amount spender may pull from owner
func (t *ERC20) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	t.allowances[owner][spender] = new(uint256.Int).Set(amount)
}

// Transfer moves amount between two holders
func (t *ERC20) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

// TransferFrom moves amount from owner to `to`, spending spender's allowance
func (t *ERC20) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowanceLocked(from, spender)
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := t.moveLocked(from, to, amount); err != nil {
		return err
	}
	if t.allowances[from] != nil {
		t.allowances[from][spender] = allowed.Sub(allowed, amount)
	}
	return nil
}

func (t *ERC20) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := t.balanceLocked(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.balances[from] = fromBal.Sub(fromBal, amount)
	t.balances[to] = new(uint256.Int).Add(t.balanceLocked(to), amount)
	return nil
}

// TransferIn pulls amount from the trader into custody using the custodian's allowance
func (t *ERC20) TransferIn(from common.Address, amount *uint256.Int) error {
	return t.TransferFrom(t.custodian, from, t.custodian, amount)
}

// TransferOut pays amount from custody to the trader
func (t *ERC20) TransferOut(to common.Address, amount *uint256.Int) error {
	return t.Transfer(t.custodian, to, amount)
}
