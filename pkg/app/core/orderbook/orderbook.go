package orderbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
)

// sides holds one ticker's resting orders
// bids: descending price, asks: ascending price, equal prices in arrival order
type sides struct {
	bids []*Order
	asks []*Order
}

func (s *sides) get(side Side) []*Order {
	if side == Buy {
		return s.bids
	}
	return s.asks
}

func (s *sides) set(side Side, orders []*Order) {
	if side == Buy {
		s.bids = orders
	} else {
		s.asks = orders
	}
}

// Book keeps every ticker's resting limit orders in price-time priority
type Book struct {
	mu sync.RWMutex

	markets map[string]*sides
	index   map[uint64]*Order // order ID -> order
}

func NewBook() *Book {
	return &Book{
		markets: make(map[string]*sides),
		index:   make(map[uint64]*Order),
	}
}

func (b *Book) sidesFor(ticker string) *sides {
	s, ok := b.markets[ticker]
	if !ok {
		s = &sides{}
		b.markets[ticker] = s
	}
	return s
}

// insertPos returns the index after every order with equal or better price
// Binary search is valid because each side is kept sorted.
func insertPos(orders []*Order, side Side, price *uint256.Int) int {
	if side == Buy {
		return sort.Search(len(orders), func(i int) bool { return orders[i].Price.Lt(price) })
	}
	return sort.Search(len(orders), func(i int) bool { return orders[i].Price.Gt(price) })
}

// Insert adds a resting order behind all orders at the same or a better price
func (b *Book) Insert(o Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[o.ID]; exists {
		return fmt.Errorf("order %d already in book", o.ID)
	}

	stored := o.Clone()
	s := b.sidesFor(o.Ticker)
	orders := s.get(o.Side)

	pos := insertPos(orders, o.Side, stored.Price)
	orders = append(orders, nil)
	copy(orders[pos+1:], orders[pos:])
	orders[pos] = &stored

	s.set(o.Side, orders)
	b.index[o.ID] = &stored
	return nil
}

// Orders returns a copy of one side in priority order
func (b *Book) Orders(ticker string, side Side) []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.markets[ticker]
	if !ok {
		return []Order{}
	}
	orders := s.get(side)
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Clone())
	}
	return out
}

// Each visits one side in priority order until fn returns false
// fn receives copies; use Fill to mutate.
func (b *Book) Each(ticker string, side Side, fn func(o Order) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.markets[ticker]
	if !ok {
		return
	}
	for _, o := range s.get(side) {
		if !fn(o.Clone()) {
			return
		}
	}
}

// Get returns a copy of an order by ID
func (b *Book) Get(id uint64) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	o, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	return o.Clone(), true
}

// Fill increases an order's filled amount
// Returns error if the order is unknown or qty exceeds what remains.
func (b *Book) Fill(id uint64, qty *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.index[id]
	if !ok {
		return fmt.Errorf("order %d not found", id)
	}
	if o.Remaining().Lt(qty) {
		return fmt.Errorf("fill %s exceeds remaining %s of order %d", qty.Dec(), o.Remaining().Dec(), id)
	}
	o.Filled = new(uint256.Int).Add(o.Filled, qty)
	return nil
}

// Compact drops fully filled orders from one side and returns their IDs
func (b *Book) Compact(ticker string, side Side) []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.markets[ticker]
	if !ok {
		return nil
	}

	var removed []uint64
	orders := s.get(side)
	kept := orders[:0]
	for _, o := range orders {
		if o.IsFilled() {
			removed = append(removed, o.ID)
			delete(b.index, o.ID)
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(orders); i++ {
		orders[i] = nil
	}
	s.set(side, kept)
	return removed
}

// Levels aggregates the remaining size of one side by price, best price first
// Fully filled orders are ignored.
func (b *Book) Levels(ticker string, side Side) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.markets[ticker]
	if !ok {
		return []PriceLevel{}
	}

	levels := make([]PriceLevel, 0)
	for _, o := range s.get(side) {
		if o.IsFilled() {
			continue
		}
		rem := o.Remaining()
		if n := len(levels); n > 0 && levels[n-1].Price.Eq(o.Price) {
			levels[n-1].Amount.Add(levels[n-1].Amount, rem)
			levels[n-1].Orders++
			continue
		}
		levels = append(levels, PriceLevel{
			Price:  new(uint256.Int).Set(o.Price),
			Amount: rem,
			Orders: 1,
		})
	}
	return levels
}

// Tickers returns every ticker that has a book, sorted
func (b *Book) Tickers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.markets))
	for t := range b.markets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of orders held, filled ones included
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}
