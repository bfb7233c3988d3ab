package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TokenSpec is a token listed at startup
type TokenSpec struct {
	Ticker   string
	Decimals uint8
}

type Exchange struct {
	QuoteTicker string
	Tokens      []TokenSpec // must include the quote ticker to make it depositable
	// CompactFilled removes fully filled orders from the book and storage.
	// Off by default: filled orders stay visible to GetOrders.
	CompactFilled bool
}

type Node struct {
	DataDir        string // "" keeps state in memory
	LogFile        string // "" logs to stdout only
	LogLevel       string
	APIAddr        string
	AdminAddress   string // signer allowed to list tokens through the API
	Devnet         bool   // in-process token bank with faucet/approve endpoints
	AllowedOrigins []string
}

type Events struct {
	KafkaBrokers string // comma separated; "" disables Kafka
	KafkaTopic   string
	P2PListen    string // multiaddr; "" disables gossip
	P2PBootstrap []string
}

type TxGen struct {
	Enabled   bool
	Traders   int
	Interval  time.Duration
	BatchSize int
	Seed      int64
}

type Config struct {
	Exchange Exchange
	Node     Node
	Events   Events
	TxGen    TxGen
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			QuoteTicker: "DAI",
			Tokens: []TokenSpec{
				{Ticker: "DAI", Decimals: 18},
				{Ticker: "BAT", Decimals: 18},
				{Ticker: "REP", Decimals: 18},
				{Ticker: "ZRX", Decimals: 18},
			},
		},
		Node: Node{
			APIAddr:        ":8080",
			LogLevel:       "info",
			Devnet:         true,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Events: Events{
			KafkaTopic: "hyperdex.market",
		},
		TxGen: TxGen{
			Traders:   20,
			Interval:  100 * time.Millisecond,
			BatchSize: 10,
			Seed:      1,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	// Exchange
	cfg.Exchange.QuoteTicker = getEnv("QUOTE_TICKER", cfg.Exchange.QuoteTicker)
	if tokens := os.Getenv("TOKENS"); tokens != "" {
		specs, err := ParseTokens(tokens)
		if err != nil {
			return cfg, err
		}
		cfg.Exchange.Tokens = specs
	}
	cfg.Exchange.CompactFilled = getBool("COMPACT_FILLED", cfg.Exchange.CompactFilled)

	// Node
	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.AdminAddress = getEnv("ADMIN_ADDRESS", cfg.Node.AdminAddress)
	cfg.Node.Devnet = getBool("DEVNET", cfg.Node.Devnet)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.AllowedOrigins = splitList(origins)
	}

	// Events
	cfg.Events.KafkaBrokers = getEnv("KAFKA_BROKERS", cfg.Events.KafkaBrokers)
	cfg.Events.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Events.KafkaTopic)
	cfg.Events.P2PListen = getEnv("P2P_LISTEN", cfg.Events.P2PListen)
	if bs := os.Getenv("P2P_BOOTSTRAP"); bs != "" {
		cfg.Events.P2PBootstrap = splitList(bs)
	}

	// TxGen
	cfg.TxGen.Enabled = getBool("ENABLE_TXGEN", cfg.TxGen.Enabled)
	if n := os.Getenv("TXGEN_TRADERS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.TxGen.Traders = v
		}
	}
	if ms := os.Getenv("TXGEN_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.TxGen.Interval = time.Duration(v) * time.Millisecond
		}
	}
	if n := os.Getenv("TXGEN_BATCH_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.TxGen.BatchSize = v
		}
	}
	if s := os.Getenv("TXGEN_SEED"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			cfg.TxGen.Seed = v
		}
	}

	return cfg, nil
}

// ParseTokens reads "DAI,BAT:8,REP" into token specs; decimals default to 18
func ParseTokens(s string) ([]TokenSpec, error) {
	var specs []TokenSpec
	for _, item := range splitList(s) {
		ticker, dec, hasDec := strings.Cut(item, ":")
		spec := TokenSpec{Ticker: ticker, Decimals: 18}
		if hasDec {
			d, err := strconv.ParseUint(dec, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("token %s: invalid decimals %q", ticker, dec)
			}
			spec.Decimals = uint8(d)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
