package main

import "testing"

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"1", 18, "1000000000000000000", false},
		{"1.5", 6, "1500000", false},
		{"0.000001", 6, "1", false},
		{"0.0000001", 6, "", true},
		{"-1", 18, "", true},
		{"abc", 18, "", true},
		{"12", 0, "12", false},
	}
	for _, tt := range tests {
		got, err := toBaseUnits(tt.in, tt.decimals)
		if (err != nil) != tt.wantErr {
			t.Errorf("toBaseUnits(%q, %d) err = %v", tt.in, tt.decimals, err)
			continue
		}
		if got != tt.want {
			t.Errorf("toBaseUnits(%q, %d) = %q, want %q", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestFromBaseUnits(t *testing.T) {
	if got := fromBaseUnits("1500000", 6); got != "1.5" {
		t.Errorf("got %q, want 1.5", got)
	}
	if got := fromBaseUnits("oops", 6); got != "oops" {
		t.Errorf("got %q, want input back", got)
	}
}

func TestPriceShift(t *testing.T) {
	// 10 USDC (6 decimals) per WETH (18 decimals)
	got, err := toBaseUnits("10", priceShift(6, 18))
	if err == nil {
		t.Errorf("price below one base unit accepted: %s", got)
	}
	got, err = toBaseUnits("10", priceShift(18, 18))
	if err != nil || got != "10" {
		t.Errorf("same decimals: got %q, %v", got, err)
	}
}
