package dex

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/storage"
)

func TestDeposit(t *testing.T) {
	env := newTestEnv(t, false)
	amount := toWei(100)

	env.deposit(t, trader1, "DAI", amount)

	assertBalance(t, env.ex, trader1, "DAI", amount)
	if got := env.external("DAI", trader1); !got.Eq(toWei(900)) {
		t.Errorf("external DAI = %s, want 900e18", got.Dec())
	}
	if got := env.external("DAI", custody); !got.Eq(amount) {
		t.Errorf("custody DAI = %s, want 100e18", got.Dec())
	}
}

func TestDeposit_UnknownToken(t *testing.T) {
	env := newTestEnv(t, false)

	err := env.ex.Deposit(trader1, "TOKEN-DOES-NOT-EXIST", toWei(100))
	assertErr(t, err, dexerr.ErrUnknownAsset, "this token does not exist")
	assertBalance(t, env.ex, trader1, "TOKEN-DOES-NOT-EXIST", u(0))
}

func TestDeposit_ExternalTransferFails(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		prep   func(tok *token.ERC20)
		cause  error
	}{
		{"no allowance", 10, func(tok *token.ERC20) { tok.Approve(trader1, custody, u(0)) }, token.ErrInsufficientAllowance},
		{"no balance", 2000, func(tok *token.ERC20) { tok.Approve(trader1, custody, toWei(5000)) }, token.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			tok, _ := env.bank.BySymbol("BAT")
			tt.prep(tok)

			err := env.ex.Deposit(trader1, "BAT", toWei(tt.amount))
			assertErr(t, err, dexerr.ErrExternalTransferFailed, "")
			if !errors.Is(err, tt.cause) {
				t.Errorf("cause missing from %v", err)
			}
			assertBalance(t, env.ex, trader1, "BAT", u(0))
			if got := env.external("BAT", trader1); !got.Eq(toWei(1000)) {
				t.Errorf("external BAT changed to %s", got.Dec())
			}
		})
	}
}

func TestWithdraw_RoundTrip(t *testing.T) {
	env := newTestEnv(t, false)
	amount := toWei(100)

	env.deposit(t, trader1, "DAI", amount)
	if err := env.ex.Withdraw(trader1, "DAI", amount); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	assertBalance(t, env.ex, trader1, "DAI", u(0))
	if got := env.external("DAI", trader1); !got.Eq(toWei(1000)) {
		t.Errorf("external DAI = %s, want 1000e18", got.Dec())
	}
}

func TestWithdraw_Errors(t *testing.T) {
	env := newTestEnv(t, false)
	env.deposit(t, trader1, "DAI", toWei(100))

	err := env.ex.Withdraw(trader1, "TOKEN-DOES-NOT-EXIST", toWei(100))
	assertErr(t, err, dexerr.ErrUnknownAsset, "this token does not exist")

	err = env.ex.Withdraw(trader1, "DAI", toWei(1000))
	assertErr(t, err, dexerr.ErrInsufficientBalance, "trader does not have enough funds to withdraw")
	assertBalance(t, env.ex, trader1, "DAI", toWei(100))
}

// refusingToken accepts deposits but refuses every payout
type refusingToken struct{ *token.ERC20 }

func (refusingToken) TransferOut(common.Address, *uint256.Int) error {
	return errors.New("payouts paused")
}

type resolverFunc func(handle common.Address) (token.Token, error)

func (f resolverFunc) Resolve(handle common.Address) (token.Token, error) { return f(handle) }

// openRefusing lists BAT behind a token that refuses payouts and deposits 10 BAT for trader1
func openRefusing(t *testing.T) (*Exchange, *storage.Store, token.Resolver) {
	t.Helper()
	store, err := storage.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	bat := token.NewERC20("BAT", 18, custody)
	_ = bat.Faucet(trader1, toWei(10))
	bat.Approve(trader1, custody, toWei(10))

	handle := common.HexToAddress("0xBA70000000000000000000000000000000000000")
	resolver := resolverFunc(func(common.Address) (token.Token, error) { return refusingToken{bat}, nil })

	ex, err := Open(Config{QuoteTicker: "DAI"}, store, resolver, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.AddToken("BAT", handle); err != nil {
		t.Fatal(err)
	}
	if err := ex.Deposit(trader1, "BAT", toWei(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return ex, store, resolver
}

func TestWithdraw_PayoutRefused(t *testing.T) {
	ex, store, resolver := openRefusing(t)

	err := ex.Withdraw(trader1, "BAT", toWei(4))
	assertErr(t, err, dexerr.ErrExternalTransferFailed, "external transfer failed: payouts paused")
	assertBalance(t, ex, trader1, "BAT", toWei(10))

	// the reverted balance is what a restart sees
	reopened, err := Open(Config{QuoteTicker: "DAI"}, store, resolver, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	assertBalance(t, reopened, trader1, "BAT", toWei(10))
	if p := reopened.PendingPayouts(); len(p) != 0 {
		t.Errorf("pending payouts = %+v", p)
	}
}

// failAfter lets the first n batch commits through and fails the rest
func failAfter(n int) func(*storage.Batch) error {
	return func(b *storage.Batch) error {
		if n == 0 {
			return errors.New("disk full")
		}
		n--
		return b.Commit()
	}
}

func TestWithdraw_RevertFaultHaltsAndSurvivesRestart(t *testing.T) {
	ex, store, resolver := openRefusing(t)
	ex.commit = failAfter(1) // the debit lands, its revert does not

	err := ex.Withdraw(trader1, "BAT", toWei(4))
	assertErr(t, err, dexerr.ErrExternalTransferFailed, "")
	if !errors.Is(ex.Halted(), ErrHalted) {
		t.Fatalf("Halted() = %v", ex.Halted())
	}
	if err := ex.Deposit(trader1, "BAT", toWei(1)); !errors.Is(err, ErrHalted) {
		t.Errorf("deposit after fault: %v", err)
	}
	if _, err := ex.CreateLimitOrder(trader1, "BAT", u(1), u(1), orderbook.Sell); !errors.Is(err, ErrHalted) {
		t.Errorf("limit after fault: %v", err)
	}
	if _, err := ex.AddToken("ZRX", common.HexToAddress("0x01")); !errors.Is(err, ErrHalted) {
		t.Errorf("add token after fault: %v", err)
	}

	// storage kept the debit, and says so
	reopened, err := Open(Config{QuoteTicker: "DAI"}, store, resolver, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	assertBalance(t, reopened, trader1, "BAT", toWei(6))
	pending := reopened.PendingPayouts()
	if len(pending) != 1 || pending[0].Trader != trader1 || pending[0].Ticker != "BAT" || !pending[0].Amount.Eq(toWei(4)) {
		t.Fatalf("pending payouts = %+v", pending)
	}
	err = reopened.Withdraw(trader1, "BAT", toWei(1))
	assertErr(t, err, dexerr.ErrInvalidArgument, "")

	if err := reopened.SettlePayout(trader1, "BAT", false); err != nil {
		t.Fatalf("settle: %v", err)
	}
	assertBalance(t, reopened, trader1, "BAT", toWei(10))

	again, err := Open(Config{QuoteTicker: "DAI"}, store, resolver, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	assertBalance(t, again, trader1, "BAT", toWei(10))
	if p := again.PendingPayouts(); len(p) != 0 {
		t.Errorf("pending payouts after settle = %+v", p)
	}
}

func TestWithdraw_MarkerClearFault(t *testing.T) {
	env := newTestEnv(t, false)
	env.deposit(t, trader1, "DAI", toWei(100))
	env.ex.commit = failAfter(1) // the debit lands, clearing the marker does not

	if err := env.ex.Withdraw(trader1, "DAI", toWei(30)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := env.ex.Halted(); err != nil {
		t.Fatalf("halted on a paid withdrawal: %v", err)
	}
	if got := env.external("DAI", trader1); !got.Eq(toWei(930)) {
		t.Errorf("external DAI = %s", got.Dec())
	}

	env.ex.commit = (*storage.Batch).Commit
	if p := env.ex.PendingPayouts(); len(p) != 1 {
		t.Fatalf("pending payouts = %+v", p)
	}
	if err := env.ex.SettlePayout(trader1, "DAI", true); err != nil {
		t.Fatalf("settle: %v", err)
	}
	assertBalance(t, env.ex, trader1, "DAI", toWei(70))
	err := env.ex.SettlePayout(trader1, "DAI", true)
	assertErr(t, err, dexerr.ErrInvalidArgument, "")

	reopened := openExchange(t, env.store, env.bank, false)
	assertBalance(t, reopened, trader1, "DAI", toWei(70))
	if p := reopened.PendingPayouts(); len(p) != 0 {
		t.Errorf("pending payouts after restart = %+v", p)
	}
}
