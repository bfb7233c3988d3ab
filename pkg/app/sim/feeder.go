package sim

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
)

// Config controls order generation rate
type Config struct {
	Traders   int           // Number of simulated traders
	BatchSize int           // Orders per batch
	Interval  time.Duration // How often to run a batch
	Seed      int64
	Funding   *uint256.Int // Deposited per trader per asset
}

// DefaultConfig returns reasonable defaults for a devnet
func DefaultConfig() Config {
	return Config{
		Traders:   20,
		BatchSize: 10,                     // 100 orders/sec
		Interval:  100 * time.Millisecond, // Every 100ms
		Seed:      1,
		Funding:   uint256.NewInt(1_000_000_000),
	}
}

// Start funds the simulated traders and feeds orders in the background until
// ctx is cancelled or the returned cancel function is called
func Start(ctx context.Context, ex *dex.Exchange, bank *token.Bank, cfg Config, log *zap.SugaredLogger) (context.CancelFunc, error) {
	gen, err := NewGenerator(ex, bank, cfg.Traders, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := gen.Fund(cfg.Funding); err != nil {
		return nil, err
	}

	feedCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		report := time.NewTicker(10 * time.Second)
		defer report.Stop()

		start := time.Now()
		log.Infow("txgen_started", "traders", cfg.Traders, "batch", cfg.BatchSize, "interval", cfg.Interval.String())

		for {
			select {
			case <-feedCtx.Done():
				st := gen.Stats()
				log.Infow("txgen_stopped",
					"orders", st.Total(),
					"trades", st.Trades,
					"rejected", st.Rejected,
					"elapsed", time.Since(start).Round(time.Second).String(),
				)
				return

			case <-ticker.C:
				if err := gen.Batch(cfg.BatchSize); err != nil {
					log.Errorw("txgen_failed", "err", err)
					cancel()
				}

			case <-report.C:
				st := gen.Stats()
				elapsed := time.Since(start).Seconds()
				log.Infow("txgen_stats",
					"orders", st.Total(),
					"limits", st.Limits,
					"markets", st.Markets,
					"trades", st.Trades,
					"rejected", st.Rejected,
					"orders_per_sec", float64(st.Total())/elapsed,
				)
			}
		}
	}()

	return cancel, nil
}
