package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zap.DebugLevel {
		t.Errorf("debug = %v", got)
	}
	if got := ParseLevel("nonsense"); got != zap.InfoLevel {
		t.Errorf("nonsense = %v, want info", got)
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	logger, err := NewLoggerWithFile(path, zap.WarnLevel)
	if err != nil {
		t.Fatal(err)
	}
	logger.Sugar().Infow("dropped_event")
	logger.Sugar().Warnw("kept_event", "ticker", "REP")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "dropped_event") || !strings.Contains(out, `"ticker":"REP"`) {
		t.Errorf("log file = %s", out)
	}
}
