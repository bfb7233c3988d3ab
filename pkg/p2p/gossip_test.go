package p2p

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

func TestMarketEventCodec(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	order := orderbook.Order{
		ID:        9,
		Trader:    common.HexToAddress("0xAA"),
		Side:      orderbook.Sell,
		Ticker:    "REP",
		Price:     uint256.NewInt(12),
		Amount:    huge,
		Filled:    uint256.NewInt(3),
		CreatedAt: 1700000000000,
	}

	data, err := gobEncode(MarketEvent{Kind: EventOrder, Order: orderToWire(order)})
	if err != nil {
		t.Fatal(err)
	}
	var ev MarketEvent
	if err := gobDecode(data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventOrder || ev.Order == nil {
		t.Fatalf("decoded %+v", ev)
	}
	got, err := ev.Order.Order()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 9 || got.Side != orderbook.Sell || !got.Amount.Eq(huge) || got.Filled.Uint64() != 3 {
		t.Errorf("order = %+v", got)
	}

	bad := TradeWire{ID: 1, Amount: "x", Price: "1"}
	if _, err := bad.Trade(); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestGossip_DeliversTradesToPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts libp2p hosts")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	a, err := NewGossip(ctx, GossipConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err := NewGossip(ctx, GossipConfig{ListenAddr: "/ip4/127.0.0.1/tcp/0", Bootstrap: a.Addrs()[:1]})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var (
		mu  sync.Mutex
		got []orderbook.Trade
	)
	received := make(chan struct{}, 1)
	b.SetHandler(func(from peer.ID, ev MarketEvent) {
		if from != a.Host().ID() || ev.Kind != EventTrades {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, w := range ev.Trades {
			tr, err := w.Trade()
			if err != nil {
				t.Error(err)
				return
			}
			got = append(got, tr)
		}
		select {
		case received <- struct{}{}:
		default:
		}
	})

	trade := orderbook.Trade{
		ID: 1, OrderID: 2, Ticker: "REP", TakerSide: orderbook.Buy,
		Amount: uint256.NewInt(5), Price: uint256.NewInt(10), Timestamp: 1,
	}

	// the mesh forms on the first heartbeats; republish until it lands
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		a.OnTrades([]orderbook.Trade{trade})
		select {
		case <-received:
			mu.Lock()
			defer mu.Unlock()
			if got[0].Amount.Uint64() != 5 || got[0].Ticker != "REP" {
				t.Errorf("trade = %+v", got[0])
			}
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("trade never gossiped")
		}
	}
}
