package storage

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/asset"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func wei(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestStore_BatchRoundTrip(t *testing.T) {
	s := newTestStore(t)

	big := wei("1000000000000000000000") // 1000 * 10^18, wider than uint64
	order := orderbook.Order{
		ID: 7, Trader: alice, Side: orderbook.Sell, Ticker: "REP",
		Price: wei("10"), Amount: big, Filled: wei("5"), CreatedAt: 1700000000000,
	}

	b := s.NewBatch()
	if err := b.SaveAsset(asset.Asset{Ticker: "DAI", Handle: bob, Decimals: 18, IsQuote: true}); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveBalance(alice, "DAI", big); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveOrder(order); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveSequence("order", 7); err != nil {
		t.Fatal(err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	assets, err := s.LoadAssets()
	if err != nil || len(assets) != 1 {
		t.Fatalf("LoadAssets = %v, %v", assets, err)
	}
	if assets[0].Handle != bob || !assets[0].IsQuote {
		t.Errorf("asset = %+v", assets[0])
	}

	var found bool
	err = s.LoadBalances(func(trader common.Address, ticker string, amount *uint256.Int) {
		found = trader == alice && ticker == "DAI" && amount.Eq(big)
	})
	if err != nil || !found {
		t.Fatalf("LoadBalances found=%v err=%v", found, err)
	}

	orders, err := s.LoadOrders()
	if err != nil || len(orders) != 1 {
		t.Fatalf("LoadOrders = %v, %v", orders, err)
	}
	if !orders[0].Amount.Eq(big) || orders[0].Filled.Uint64() != 5 || orders[0].Side != orderbook.Sell {
		t.Errorf("order = %+v", orders[0])
	}

	seq, err := s.LoadSequence("order")
	if err != nil || seq != 7 {
		t.Errorf("LoadSequence = %d, %v", seq, err)
	}
	if seq, _ := s.LoadSequence("trade"); seq != 0 {
		t.Errorf("missing sequence = %d, want 0", seq)
	}
}

func TestStore_LoadAssetsInRegistrationOrder(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	for i, ticker := range []string{"DAI", "ZRX", "BAT", "REP"} {
		if err := b.SaveAsset(asset.Asset{Ticker: ticker, Decimals: 18, IsQuote: i == 0, Index: i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	b.Close()

	assets, err := s.LoadAssets()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, a := range assets {
		got = append(got, a.Ticker)
	}
	if strings.Join(got, ",") != "DAI,ZRX,BAT,REP" {
		t.Errorf("LoadAssets order = %v", got)
	}
}

func TestStore_UncommittedBatchInvisible(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	_ = b.SaveBalance(alice, "BAT", wei("1"))
	b.Close()

	count := 0
	_ = s.LoadBalances(func(common.Address, string, *uint256.Int) { count++ })
	if count != 0 {
		t.Fatalf("closed batch leaked %d balances", count)
	}
}

func TestStore_ZeroBalanceDeletes(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	_ = b.SaveBalance(alice, "BAT", wei("3"))
	_ = b.Commit()
	b.Close()

	b = s.NewBatch()
	_ = b.SaveBalance(alice, "BAT", wei("0"))
	_ = b.DeleteOrder(1)
	_ = b.Commit()
	b.Close()

	count := 0
	_ = s.LoadBalances(func(common.Address, string, *uint256.Int) { count++ })
	if count != 0 {
		t.Errorf("zero balance still stored")
	}
}

func TestStore_OrdersInIDOrder(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	for _, id := range []uint64{10, 2, 33, 1} {
		_ = b.SaveOrder(orderbook.Order{
			ID: id, Trader: alice, Ticker: "REP",
			Price: wei("1"), Amount: wei("1"), Filled: wei("0"),
		})
	}
	_ = b.Commit()
	b.Close()

	orders, err := s.LoadOrders()
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{1, 2, 10, 33}
	for i, o := range orders {
		if o.ID != want[i] {
			t.Fatalf("orders[%d].ID = %d, want %d", i, o.ID, want[i])
		}
	}
}

func TestStore_RecentTradesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	for id := uint64(1); id <= 5; id++ {
		_ = b.SaveTrade(orderbook.Trade{
			ID: id, OrderID: 1, Ticker: "REP", Taker: bob, Maker: alice,
			TakerSide: orderbook.Buy, Amount: wei("1"), Price: wei("10"),
		})
	}
	_ = b.SaveTrade(orderbook.Trade{ID: 6, Ticker: "ZRX", Amount: wei("1"), Price: wei("1")})
	_ = b.Commit()
	b.Close()

	trades, err := s.LoadRecentTrades("REP", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 3 || trades[0].ID != 5 || trades[2].ID != 3 {
		t.Fatalf("trades = %+v", trades)
	}
	if trades[0].Maker != alice || trades[0].Price.Uint64() != 10 {
		t.Errorf("trade = %+v", trades[0])
	}
}
