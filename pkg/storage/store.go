package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/hyperdex/pkg/app/core/asset"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// Store provides Pebble-based persistence for assets, balances, resting orders,
// trades and id sequences
// Thread-safety of writes is provided by the exchange's single writer lock.
type Store struct {
	db *pebble.DB
}

// Open opens a Pebble database at dir
// An empty dir opens an in-memory database (devnet and tests).
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:                32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions:    func() int { return 2 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10, // 512KB
		DisableAutomaticCompactions: false,
	}
	defer opts.Cache.Unref()

	path := dir
	if dir == "" {
		opts.FS = vfs.NewMem()
		path = "dexdb"
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadAssets returns every persisted asset in registration order
func (s *Store) LoadAssets() ([]asset.Asset, error) {
	var out []asset.Asset
	err := s.scan([]byte(prefixAsset), func(_, value []byte) error {
		var r assetRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("failed to unmarshal asset: %w", err)
		}
		out = append(out, r.asset())
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, err
}

// LoadBalances visits every persisted non-zero balance
func (s *Store) LoadBalances(fn func(trader common.Address, ticker string, amount *uint256.Int)) error {
	return s.scan([]byte(prefixBalance), func(_, value []byte) error {
		var r balanceRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("failed to unmarshal balance: %w", err)
		}
		amount, err := parseAmount(r.Amount)
		if err != nil {
			return fmt.Errorf("balance %s/%s: %w", r.Trader, r.Ticker, err)
		}
		fn(common.HexToAddress(r.Trader), r.Ticker, amount)
		return nil
	})
}

// LoadOrders returns every persisted order in ascending id (arrival) order
func (s *Store) LoadOrders() ([]orderbook.Order, error) {
	var out []orderbook.Order
	err := s.scan([]byte(prefixOrder), func(_, value []byte) error {
		var r orderRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		o, err := r.order()
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// LoadSequence returns the last id issued by a named sequence (0 if none)
func (s *Store) LoadSequence(name string) (uint64, error) {
	data, closer, err := s.db.Get(seqKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence %s: %w", name, err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("sequence %s: bad length %d", name, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// PendingPayout is a withdrawal debited in storage whose external payout
// was never confirmed or reverted
type PendingPayout struct {
	Trader common.Address
	Ticker string
	Amount *uint256.Int
}

// LoadPendingPayouts returns every unsettled withdrawal
func (s *Store) LoadPendingPayouts() ([]PendingPayout, error) {
	var out []PendingPayout
	err := s.scan([]byte(prefixPayout), func(_, value []byte) error {
		var r payoutRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("failed to unmarshal payout: %w", err)
		}
		amount, err := parseAmount(r.Amount)
		if err != nil {
			return fmt.Errorf("payout %s/%s: %w", r.Trader, r.Ticker, err)
		}
		out = append(out, PendingPayout{Trader: common.HexToAddress(r.Trader), Ticker: r.Ticker, Amount: amount})
		return nil
	})
	return out, err
}

// LoadRecentTrades loads the most recent trades of a ticker, newest first
func (s *Store) LoadRecentTrades(ticker string, limit int) ([]orderbook.Trade, error) {
	prefix := tradePrefix(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	trades := make([]orderbook.Trade, 0, limit)
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var r tradeRecord
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		t, err := r.trade()
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, iter.Error()
}

// Batch collects the writes of one exchange operation
// Nothing is visible until Commit, which applies all writes atomically.
type Batch struct {
	batch *pebble.Batch
}

// NewBatch creates a new batch writer
func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.batch.Set(key, data, nil)
}

// SaveAsset adds an asset registration to the batch
func (b *Batch) SaveAsset(a asset.Asset) error {
	return b.setJSON(assetKey(a.Ticker), toAssetRecord(a))
}

// SaveBalance adds a balance write to the batch. Zero balances are deleted.
func (b *Batch) SaveBalance(trader common.Address, ticker string, amount *uint256.Int) error {
	key := balanceKey(trader, ticker)
	if amount.IsZero() {
		return b.batch.Delete(key, nil)
	}
	return b.setJSON(key, balanceRecord{
		Trader: trader.Hex(),
		Ticker: ticker,
		Amount: amount.Dec(),
	})
}

// SaveOrder adds an order write to the batch
func (b *Batch) SaveOrder(o orderbook.Order) error {
	return b.setJSON(orderKey(o.ID), toOrderRecord(o))
}

// DeleteOrder adds an order removal to the batch
func (b *Batch) DeleteOrder(id uint64) error {
	return b.batch.Delete(orderKey(id), nil)
}

// SaveTrade adds a trade to the batch
func (b *Batch) SaveTrade(t orderbook.Trade) error {
	return b.setJSON(tradeKey(t.Ticker, t.ID), toTradeRecord(t))
}

// SavePendingPayout marks a withdrawal as debited but not yet paid out
func (b *Batch) SavePendingPayout(p PendingPayout) error {
	return b.setJSON(payoutKey(p.Trader, p.Ticker), payoutRecord{
		Trader: p.Trader.Hex(),
		Ticker: p.Ticker,
		Amount: p.Amount.Dec(),
	})
}

// DeletePendingPayout settles a pending withdrawal
func (b *Batch) DeletePendingPayout(trader common.Address, ticker string) error {
	return b.batch.Delete(payoutKey(trader, ticker), nil)
}

// SaveSequence records the last id issued by a named sequence
func (b *Batch) SaveSequence(name string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.batch.Set(seqKey(name), buf[:], nil)
}

// Commit writes the batch to Pebble atomically
func (b *Batch) Commit() error {
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Close releases the batch. Safe to call after Commit.
func (b *Batch) Close() error {
	return b.batch.Close()
}
