package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Exchange.QuoteTicker != "DAI" {
		t.Errorf("quote = %s", cfg.Exchange.QuoteTicker)
	}
	if len(cfg.Exchange.Tokens) != 4 || cfg.Exchange.Tokens[0].Ticker != "DAI" {
		t.Errorf("tokens = %+v", cfg.Exchange.Tokens)
	}
	if cfg.Exchange.CompactFilled {
		t.Error("compaction should be off by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "QUOTE_TICKER=USDC\nTOKENS=USDC:6,WETH\nAPI_ADDR=:9999\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// environment wins over the file
	t.Setenv("API_ADDR", ":7000")
	t.Setenv("COMPACT_FILLED", "true")
	t.Setenv("P2P_BOOTSTRAP", "/ip4/10.0.0.1/tcp/9000/p2p/a, /ip4/10.0.0.2/tcp/9000/p2p/b")
	t.Setenv("TXGEN_INTERVAL_MS", "250")
	// t.Setenv restores these after godotenv.Load writes them
	t.Setenv("QUOTE_TICKER", "")
	t.Setenv("TOKENS", "")
	os.Unsetenv("QUOTE_TICKER")
	os.Unsetenv("TOKENS")

	cfg, err := LoadFromEnv(envFile)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Exchange.QuoteTicker != "USDC" {
		t.Errorf("quote = %s, want USDC", cfg.Exchange.QuoteTicker)
	}
	want := []TokenSpec{{"USDC", 6}, {"WETH", 18}}
	if len(cfg.Exchange.Tokens) != 2 || cfg.Exchange.Tokens[0] != want[0] || cfg.Exchange.Tokens[1] != want[1] {
		t.Errorf("tokens = %+v, want %+v", cfg.Exchange.Tokens, want)
	}
	if cfg.Node.APIAddr != ":7000" {
		t.Errorf("api addr = %s, want :7000", cfg.Node.APIAddr)
	}
	if !cfg.Exchange.CompactFilled {
		t.Error("COMPACT_FILLED not applied")
	}
	if len(cfg.Events.P2PBootstrap) != 2 {
		t.Errorf("bootstrap = %v", cfg.Events.P2PBootstrap)
	}
	if cfg.TxGen.Interval != 250*time.Millisecond {
		t.Errorf("interval = %v", cfg.TxGen.Interval)
	}
}

func TestParseTokens(t *testing.T) {
	if _, err := ParseTokens("DAI:x"); err == nil {
		t.Error("expected error for bad decimals")
	}
	if _, err := ParseTokens("DAI:300"); err == nil {
		t.Error("expected error for decimals above 255")
	}
	specs, err := ParseTokens(" DAI , BAT:8 ")
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 || specs[1].Decimals != 8 {
		t.Errorf("specs = %+v", specs)
	}
}
