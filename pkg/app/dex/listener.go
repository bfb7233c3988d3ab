package dex

import "github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"

// Listener receives committed exchange events
// Callbacks run on the caller's goroutine after the exchange lock is released,
// so they may read from the exchange but must not block for long.
type Listener interface {
	OnOrder(o orderbook.Order)
	OnTrades(trades []orderbook.Trade)
}

func (e *Exchange) snapshotListeners() []Listener {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	return append([]Listener(nil), e.listeners...)
}

func (e *Exchange) notifyOrder(o orderbook.Order) {
	for _, l := range e.snapshotListeners() {
		l.OnOrder(o.Clone())
	}
}

func (e *Exchange) notifyTrades(trades []orderbook.Trade) {
	for _, l := range e.snapshotListeners() {
		cp := make([]orderbook.Trade, len(trades))
		copy(cp, trades)
		l.OnTrades(cp)
	}
}
