package ledger

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrShortfall is returned by Tx.Debit when the staged balance is below the amount
	ErrShortfall = errors.New("balance too low")
	// ErrOverflow is returned by Tx.Credit when the balance would exceed 256 bits
	ErrOverflow = errors.New("balance overflows 256 bits")
)

// Key identifies one balance
type Key struct {
	Trader common.Address
	Ticker string
}

func less(a, b Key) bool {
	if c := bytes.Compare(a.Trader[:], b.Trader[:]); c != 0 {
		return c < 0
	}
	return a.Ticker < b.Ticker
}

// Ledger holds every trader's custodial balance per asset
// Amounts are integer base units. Balances only change through Tx.Commit.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Key]*uint256.Int
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{balances: make(map[Key]*uint256.Int)}
}

// BalanceOf returns a copy of the trader's balance (zero if never funded)
func (l *Ledger) BalanceOf(trader common.Address, ticker string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(Key{trader, ticker})
}

func (l *Ledger) balanceLocked(k Key) *uint256.Int {
	if b, ok := l.balances[k]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Balances returns all non-zero balances of a trader keyed by ticker
func (l *Ledger) Balances(trader common.Address) map[string]*uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]*uint256.Int)
	for k, v := range l.balances {
		if k.Trader == trader {
			out[k.Ticker] = new(uint256.Int).Set(v)
		}
	}
	return out
}

// Restore sets a balance directly. Only used while loading from storage.
func (l *Ledger) Restore(trader common.Address, ticker string, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(Key{trader, ticker}, amount)
}

func (l *Ledger) setLocked(k Key, amount *uint256.Int) {
	if amount.IsZero() {
		delete(l.balances, k)
		return
	}
	l.balances[k] = new(uint256.Int).Set(amount)
}

// Each visits every non-zero balance ordered by trader, then ticker
func (l *Ledger) Each(fn func(k Key, amount *uint256.Int)) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]Key, 0, len(l.balances))
	for k := range l.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })

	for _, k := range keys {
		fn(k, new(uint256.Int).Set(l.balances[k]))
	}
}

// Total returns the sum of all balances held in ticker
func (l *Ledger) Total(ticker string) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sum := new(uint256.Int)
	for k, v := range l.balances {
		if k.Ticker == ticker {
			sum.Add(sum, v)
		}
	}
	return sum
}

// Begin starts a staged transaction against the ledger
// Staged credits and debits are invisible to readers until Commit.
func (l *Ledger) Begin() *Tx {
	return &Tx{
		l:      l,
		staged: make(map[Key]*uint256.Int),
	}
}

// Change is a staged final balance
type Change struct {
	Key
	Amount *uint256.Int
}

// Tx accumulates balance mutations for one operation
// A Tx is used by a single goroutine; the caller serializes writers.
type Tx struct {
	l       *Ledger
	staged  map[Key]*uint256.Int
	touched []Key // first-touch order
}

// Balance returns the trader's balance as seen inside the transaction
func (tx *Tx) Balance(trader common.Address, ticker string) *uint256.Int {
	return new(uint256.Int).Set(tx.current(Key{trader, ticker}))
}

func (tx *Tx) current(k Key) *uint256.Int {
	if v, ok := tx.staged[k]; ok {
		return v
	}
	v := tx.l.BalanceOf(k.Trader, k.Ticker)
	tx.staged[k] = v
	tx.touched = append(tx.touched, k)
	return v
}

// Credit stages an increase of the trader's balance
func (tx *Tx) Credit(trader common.Address, ticker string, amount *uint256.Int) error {
	cur := tx.current(Key{trader, ticker})
	if _, overflow := new(uint256.Int).AddOverflow(cur, amount); overflow {
		return ErrOverflow
	}
	cur.Add(cur, amount)
	return nil
}

// Debit stages a decrease of the trader's balance
// Returns ErrShortfall, leaving the staged balance untouched, if funds are missing.
func (tx *Tx) Debit(trader common.Address, ticker string, amount *uint256.Int) error {
	cur := tx.current(Key{trader, ticker})
	if cur.Lt(amount) {
		return ErrShortfall
	}
	cur.Sub(cur, amount)
	return nil
}

// Changes returns the staged final balances in first-touch order
func (tx *Tx) Changes() []Change {
	out := make([]Change, 0, len(tx.touched))
	for _, k := range tx.touched {
		out = append(out, Change{Key: k, Amount: new(uint256.Int).Set(tx.staged[k])})
	}
	return out
}

// Commit publishes every staged balance in one step
func (tx *Tx) Commit() {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()

	for _, k := range tx.touched {
		tx.l.setLocked(k, tx.staged[k])
	}
	tx.staged = nil
	tx.touched = nil
}
