package dex

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
	"github.com/uhyunpark/hyperdex/pkg/app/core/ledger"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/storage"
)

func (e *Exchange) tokenFor(ticker string) (token.Token, error) {
	tok, ok := e.handles[ticker]
	if !ok {
		return nil, dexerr.ErrUnknownAsset
	}
	return tok, nil
}

// Deposit pulls amount of ticker from the trader's external balance into custody
// The token must already allow the exchange to pull amount.
func (e *Exchange) Deposit(trader common.Address, ticker string, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return e.halted
	}
	tok, err := e.tokenFor(ticker)
	if err != nil {
		return err
	}
	if amount == nil {
		return dexerr.Invalid("amount is required")
	}

	tx := e.ledger.Begin()
	if err := tx.Credit(trader, ticker, amount); err != nil {
		return dexerr.Invalid("deposit overflows balance")
	}

	if err := tok.TransferIn(trader, amount); err != nil {
		e.log.Warnw("deposit_transfer_failed", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec(), "err", err)
		return dexerr.TransferFailed(err)
	}

	if err := e.persist(func(b *storage.Batch) error { return saveChanges(b, tx.Changes()) }); err != nil {
		// refund so the external ledger matches custody
		if rerr := tok.TransferOut(trader, amount); rerr != nil {
			e.log.Errorw("deposit_refund_failed", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec(), "err", rerr)
		}
		return err
	}
	tx.Commit()

	e.log.Infow("deposit", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec())
	return nil
}

// Withdraw pays amount of ticker from custody back to the trader's external balance
func (e *Exchange) Withdraw(trader common.Address, ticker string, amount *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return e.halted
	}
	tok, err := e.tokenFor(ticker)
	if err != nil {
		return err
	}
	if amount == nil {
		return dexerr.Invalid("amount is required")
	}
	key := ledger.Key{Trader: trader, Ticker: ticker}
	if _, ok := e.payouts[key]; ok {
		return dexerr.Invalid("a previous %s withdrawal is unsettled", ticker)
	}

	before := e.ledger.BalanceOf(trader, ticker)
	tx := e.ledger.Begin()
	if err := tx.Debit(trader, ticker, amount); err != nil {
		return dexerr.ErrInsufficientBalance
	}

	// The debit is stored with a pending payout marker, cleared once the
	// payout settles either way. A marker found at startup is unsettled.
	pending := storage.PendingPayout{Trader: trader, Ticker: ticker, Amount: amount}
	err = e.persist(func(b *storage.Batch) error {
		if err := saveChanges(b, tx.Changes()); err != nil {
			return err
		}
		return b.SavePendingPayout(pending)
	})
	if err != nil {
		return err
	}

	if err := tok.TransferOut(trader, amount); err != nil {
		e.log.Warnw("withdraw_transfer_failed", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec(), "err", err)
		revert := []ledger.Change{{Key: key, Amount: before}}
		perr := e.persist(func(b *storage.Batch) error {
			if err := saveChanges(b, revert); err != nil {
				return err
			}
			return b.DeletePendingPayout(trader, ticker)
		})
		if perr != nil {
			e.payouts[key] = amount
			e.halt(fmt.Errorf("revert %s withdrawal of %s: %w", ticker, trader.Hex(), perr))
		}
		return dexerr.TransferFailed(err)
	}
	tx.Commit()

	// balances already agree; only the marker is left behind
	if err := e.persist(func(b *storage.Batch) error { return b.DeletePendingPayout(trader, ticker) }); err != nil {
		e.payouts[key] = amount
		e.log.Errorw("payout_marker_clear_failed", "trader", trader.Hex(), "ticker", ticker, "err", err)
	}

	e.log.Infow("withdraw", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec())
	return nil
}

// PendingPayouts returns withdrawals whose debit is stored but whose payout
// was never settled, as found at startup or left by a storage fault
func (e *Exchange) PendingPayouts() []storage.PendingPayout {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]storage.PendingPayout, 0, len(e.payouts))
	for k, amount := range e.payouts {
		out = append(out, storage.PendingPayout{Trader: k.Trader, Ticker: k.Ticker, Amount: new(uint256.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Trader[:], out[j].Trader[:]); c != 0 {
			return c < 0
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// SettlePayout resolves an unsettled withdrawal once its external outcome is
// known. When paid is false the debited amount is credited back.
func (e *Exchange) SettlePayout(trader common.Address, ticker string, paid bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted != nil {
		return e.halted
	}
	key := ledger.Key{Trader: trader, Ticker: ticker}
	amount, ok := e.payouts[key]
	if !ok {
		return dexerr.Invalid("no unsettled %s withdrawal for %s", ticker, trader.Hex())
	}

	tx := e.ledger.Begin()
	if !paid {
		if err := tx.Credit(trader, ticker, amount); err != nil {
			return dexerr.Invalid("refund overflows balance")
		}
	}
	err := e.persist(func(b *storage.Batch) error {
		if err := saveChanges(b, tx.Changes()); err != nil {
			return err
		}
		return b.DeletePendingPayout(trader, ticker)
	})
	if err != nil {
		return err
	}
	tx.Commit()
	delete(e.payouts, key)

	e.log.Infow("payout_settled", "trader", trader.Hex(), "ticker", ticker, "amount", amount.Dec(), "paid", paid)
	return nil
}
