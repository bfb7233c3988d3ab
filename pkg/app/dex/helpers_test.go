package dex

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/storage"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

var (
	custody = common.HexToAddress("0xEE00000000000000000000000000000000000000")
	trader1 = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	trader2 = common.HexToAddress("0xBB00000000000000000000000000000000000000")

	tickers = []string{"DAI", "BAT", "REP", "ZRX"}
)

type testEnv struct {
	ex    *Exchange
	bank  *token.Bank
	store *storage.Store
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// toWei converts whole tokens to 18-decimal base units
func toWei(v uint64) *uint256.Int {
	exp := new(uint256.Int).Exp(u(10), u(18))
	return new(uint256.Int).Mul(u(v), exp)
}

func newTestEnv(t *testing.T, compact bool) *testEnv {
	t.Helper()

	store, err := storage.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bank := token.NewBank(custody)
	ex := openExchange(t, store, bank, compact)

	for _, ticker := range tickers {
		tok := bank.Deploy(ticker, 18)
		if _, err := ex.AddToken(ticker, token.HandleFor(custody, ticker)); err != nil {
			t.Fatalf("add token %s: %v", ticker, err)
		}
		// faucet + approve, as a trader would before depositing
		for _, tr := range []common.Address{trader1, trader2} {
			if err := tok.Faucet(tr, toWei(1000)); err != nil {
				t.Fatal(err)
			}
			tok.Approve(tr, custody, toWei(1000))
		}
	}

	return &testEnv{ex: ex, bank: bank, store: store}
}

func openExchange(t *testing.T, store *storage.Store, bank *token.Bank, compact bool) *Exchange {
	t.Helper()
	ex, err := Open(Config{
		QuoteTicker:   "DAI",
		CompactFilled: compact,
		Clock:         util.FixedClock{T: time.UnixMilli(1700000000000)},
	}, store, bank, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("open exchange: %v", err)
	}
	return ex
}

func (env *testEnv) deposit(t *testing.T, trader common.Address, ticker string, amount *uint256.Int) {
	t.Helper()
	if err := env.ex.Deposit(trader, ticker, amount); err != nil {
		t.Fatalf("deposit %s %s: %v", amount.Dec(), ticker, err)
	}
}

func (env *testEnv) limit(t *testing.T, trader common.Address, ticker string, amount, price *uint256.Int, side orderbook.Side) uint64 {
	t.Helper()
	id, err := env.ex.CreateLimitOrder(trader, ticker, amount, price, side)
	if err != nil {
		t.Fatalf("limit %s %s@%s: %v", side, amount.Dec(), price.Dec(), err)
	}
	return id
}

func (env *testEnv) external(ticker string, holder common.Address) *uint256.Int {
	tok, _ := env.bank.BySymbol(ticker)
	return tok.BalanceOf(holder)
}

func assertBalance(t *testing.T, ex *Exchange, trader common.Address, ticker string, want *uint256.Int) {
	t.Helper()
	if got := ex.BalanceOf(trader, ticker); !got.Eq(want) {
		t.Errorf("%s %s balance = %s, want %s", trader.Hex()[:6], ticker, got.Dec(), want.Dec())
	}
}

func assertErr(t *testing.T, err, want error, reason string) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want kind of %v", err, want)
	}
	if reason != "" && err.Error() != reason {
		t.Errorf("reason = %q, want %q", err.Error(), reason)
	}
}
