package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/params"
	"github.com/uhyunpark/hyperdex/pkg/api"
	"github.com/uhyunpark/hyperdex/pkg/app/core/token"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
	"github.com/uhyunpark/hyperdex/pkg/app/sim"
	"github.com/uhyunpark/hyperdex/pkg/events"
	"github.com/uhyunpark/hyperdex/pkg/p2p"
	"github.com/uhyunpark/hyperdex/pkg/storage"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

// custodyAddress holds every deposited token on the devnet token bank
var custodyAddress = common.HexToAddress("0x0000000000000000000000000000000000de7ce5")

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (console, plus file when LOG_FILE is set)
	var logger *zap.Logger
	level := util.ParseLevel(cfg.Node.LogLevel)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	store, err := storage.Open(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	// ---- Token ledgers ----
	bank := token.NewBank(custodyAddress)
	for _, t := range cfg.Exchange.Tokens {
		bank.Deploy(t.Ticker, t.Decimals)
	}

	// ---- Exchange ----
	ex, err := dex.Open(dex.Config{
		QuoteTicker:   cfg.Exchange.QuoteTicker,
		CompactFilled: cfg.Exchange.CompactFilled,
	}, store, bank, sugar.Named("dex"))
	if err != nil {
		sugar.Fatalw("exchange_open_failed", "err", err)
	}

	// List configured tokens not restored from storage
	for _, t := range cfg.Exchange.Tokens {
		if _, err := ex.Asset(t.Ticker); err == nil {
			continue
		}
		if _, err := ex.AddToken(t.Ticker, token.HandleFor(custodyAddress, t.Ticker)); err != nil {
			sugar.Fatalw("token_listing_failed", "ticker", t.Ticker, "err", err)
		}
	}

	// ---- Event fan-out ----
	if cfg.Events.KafkaBrokers != "" {
		pub := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, sugar.Named("kafka"))
		defer pub.Close()
		ex.Subscribe(pub)
		go pub.Run(ctx)
		sugar.Infow("kafka_enabled", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.KafkaTopic)
	}

	if cfg.Events.P2PListen != "" {
		gossip, err := p2p.NewGossip(ctx, p2p.GossipConfig{
			ListenAddr: cfg.Events.P2PListen,
			Bootstrap:  cfg.Events.P2PBootstrap,
			Logger:     sugar.Named("p2p"),
		})
		if err != nil {
			sugar.Fatalw("libp2p_init_failed", "err", err)
		}
		defer gossip.Close()
		ex.Subscribe(gossip)
		sugar.Infow("gossip_enabled", "addrs", gossip.Addrs())
	}

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true
	if cfg.TxGen.Enabled {
		simCfg := sim.DefaultConfig()
		simCfg.Traders = cfg.TxGen.Traders
		simCfg.Interval = cfg.TxGen.Interval
		simCfg.BatchSize = cfg.TxGen.BatchSize
		simCfg.Seed = cfg.TxGen.Seed

		cancelFeeder, err := sim.Start(ctx, ex, bank, simCfg, sugar.Named("txgen"))
		if err != nil {
			sugar.Fatalw("txgen_start_failed", "err", err)
		}
		defer cancelFeeder()
	} else {
		sugar.Info("txgen_disabled")
	}

	// ---- API Server ----
	var admin common.Address
	if common.IsHexAddress(cfg.Node.AdminAddress) {
		admin = common.HexToAddress(cfg.Node.AdminAddress)
	} else if cfg.Node.AdminAddress != "" {
		sugar.Warnw("admin_address_invalid", "value", cfg.Node.AdminAddress)
	}

	apiServer := api.NewServer(ex, bank, api.Options{
		Admin:          admin,
		Devnet:         cfg.Node.Devnet,
		AllowedOrigins: cfg.Node.AllowedOrigins,
	}, sugar.Named("api"))

	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	sugar.Infow("node_starting",
		"quote", ex.Quote(),
		"assets", len(ex.Assets()),
		"data_dir", cfg.Node.DataDir,
		"devnet", cfg.Node.Devnet,
		"compact_filled", cfg.Exchange.CompactFilled)

	// Progress logging loop
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("node_stopping", "state_hash", ex.StateHash().Hex())
			return
		case <-ticker.C:
			if err := ex.Halted(); err != nil {
				sugar.Errorw("exchange_halted", "err", err)
			}
			sugar.Infow("exchange_status",
				"state_hash", ex.StateHash().Hex(),
				"pending_payouts", len(ex.PendingPayouts()),
				"ws_clients", apiServer.Hub().ClientCount())
		}
	}
}
