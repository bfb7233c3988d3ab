package asset

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperdex/pkg/app/core/dexerr"
)

var (
	daiAddr = common.HexToAddress("0xDA00000000000000000000000000000000000000")
	batAddr = common.HexToAddress("0xBA00000000000000000000000000000000000000")
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry("DAI")

	if _, err := r.Register("DAI", daiAddr, 18); err != nil {
		t.Fatalf("register DAI: %v", err)
	}
	bat, err := r.Register("BAT", batAddr, 18)
	if err != nil {
		t.Fatalf("register BAT: %v", err)
	}

	if bat.IsQuote {
		t.Error("BAT should not be the quote asset")
	}
	if !r.IsQuote("DAI") || r.IsQuote("BAT") {
		t.Error("IsQuote mismatch")
	}
	if !r.Exists("BAT") || r.Exists("ZRX") {
		t.Error("Exists mismatch")
	}

	got, err := r.Get("DAI")
	if err != nil {
		t.Fatalf("get DAI: %v", err)
	}
	if got.Handle != daiAddr || !got.IsQuote {
		t.Errorf("unexpected DAI asset: %+v", got)
	}

	list := r.List()
	if len(list) != 2 || list[0].Ticker != "DAI" || list[1].Ticker != "BAT" {
		t.Errorf("List() not in registration order: %+v", list)
	}
	if list[0].Index != 0 || list[1].Index != 1 {
		t.Errorf("indexes = %d, %d", list[0].Index, list[1].Index)
	}
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry("DAI")
	if _, err := r.Register("BAT", batAddr, 18); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		ticker string
		want   error
	}{
		{"duplicate", "BAT", dexerr.ErrDuplicateAsset},
		{"empty", "", dexerr.ErrInvalidArgument},
		{"too wide", strings.Repeat("X", MaxTickerLen+1), dexerr.ErrInvalidArgument},
		{"key separator", "RE:X", dexerr.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(tt.ticker, common.Address{}, 18)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := r.Get("ZRX"); !errors.Is(err, dexerr.ErrUnknownAsset) {
		t.Errorf("Get(ZRX) err = %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
