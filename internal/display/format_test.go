package display

import (
	"testing"
	"time"
)

func TestFormatCost(t *testing.T) {
	tests := []struct {
		cost float64
		want string
	}{
		{0, "$0.00"},
		{0.0042, "$0.0042"},
		{0.01, "$0.01"},
		{1.5, "$1.50"},
		{123.456, "$123.46"},
	}
	for _, tt := range tests {
		if got := FormatCost(tt.cost); got != tt.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tt.cost, got, tt.want)
		}
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{950, "950"},
		{1000, "1k"},
		{12500, "12.5k"},
		{1_200_000, "1.2M"},
		{2_000_000, "2M"},
	}
	for _, tt := range tests {
		if got := FormatTokens(tt.n); got != tt.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatPerMillion(t *testing.T) {
	if got := FormatPerMillion(0.000003); got != "$3.00" {
		t.Errorf("FormatPerMillion(0.000003) = %q, want $3.00", got)
	}
	if got := FormatPerMillion(0); got != "—" {
		t.Errorf("FormatPerMillion(0) = %q, want —", got)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "now"},
		{-5 * time.Second, "now"},
		{90 * time.Second, "1m"},
		{5*time.Hour + 42*time.Minute, "5h 42m"},
		{51 * time.Hour, "2d 3h"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.d); got != tt.want {
			t.Errorf("FormatCountdown(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatContextLimit(t *testing.T) {
	tests := []struct {
		tokens int
		want   string
	}{
		{0, "—"},
		{128_000, "128k"},
		{200_000, "200k"},
		{1_000_000, "1M"},
	}
	for _, tt := range tests {
		if got := FormatContextLimit(tt.tokens); got != tt.want {
			t.Errorf("FormatContextLimit(%d) = %q, want %q", tt.tokens, got, tt.want)
		}
	}
}
