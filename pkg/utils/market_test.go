package utils

import (
	"testing"
	"time"

	"bracket-trader/internal/models"
)

func ist(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, IndiaLocation)
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{ist(2026, 10, 16, 9, 21, 13), ist(2026, 10, 16, 9, 25, 0)},
		{ist(2026, 10, 16, 9, 25, 0), ist(2026, 10, 16, 9, 30, 0)},
		{ist(2026, 10, 16, 9, 29, 59), ist(2026, 10, 16, 9, 30, 0)},
		{ist(2026, 10, 16, 23, 58, 0), ist(2026, 10, 17, 0, 0, 0)},
	}
	for _, tt := range tests {
		if got := NextBoundary(tt.now, 5*time.Minute); !got.Equal(tt.want) {
			t.Errorf("NextBoundary(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestGetMarketStatus(t *testing.T) {
	tests := []struct {
		at   time.Time
		want models.MarketStatus
	}{
		{ist(2026, 10, 16, 9, 5, 0), models.MarketPreOpen},
		{ist(2026, 10, 16, 9, 20, 0), models.MarketOpen},
		{ist(2026, 10, 16, 15, 29, 0), models.MarketOpen},
		{ist(2026, 10, 16, 15, 30, 0), models.MarketClosed},
		{ist(2026, 10, 17, 11, 0, 0), models.MarketClosed}, // Saturday
	}
	for _, tt := range tests {
		if got := GetMarketStatus(tt.at); got != tt.want {
			t.Errorf("GetMarketStatus(%s) = %s, want %s", tt.at, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:20")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.String() != "09:20" {
		t.Errorf("String() = %s", c.String())
	}
	on := c.On(ist(2026, 10, 16, 14, 0, 0))
	if !on.Equal(ist(2026, 10, 16, 9, 20, 0)) {
		t.Errorf("On() = %s", on)
	}

	if _, err := ParseClock("9h20"); err == nil {
		t.Error("expected a parse error")
	}
}

func TestFormatIndianCurrency(t *testing.T) {
	if got := FormatIndianCurrency(1234567.891); got != "₹12,34,567.89" {
		t.Errorf("got %s", got)
	}
	if got := FormatPnL(-500); got != "-₹500.00" {
		t.Errorf("got %s", got)
	}
}
