package symbol

import "testing"

func TestDefaultTickersUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range Default() {
		if seen[s.Ticker] {
			t.Fatalf("duplicate ticker %s", s.Ticker)
		}
		seen[s.Ticker] = true
	}
}

func TestDefaultPositivePrices(t *testing.T) {
	for _, s := range Default() {
		if s.BasePrice <= 0 {
			t.Fatalf("non-positive base price %f for %s", s.BasePrice, s.Ticker)
		}
		if s.PriceTickSize <= 0 {
			t.Fatalf("non-positive tick size for %s", s.Ticker)
		}
	}
}

func TestByTickerLookup(t *testing.T) {
	m := ByTicker(Default())
	s, ok := m["AAPL"]
	if !ok {
		t.Fatal("AAPL not found in ByTicker")
	}
	if s.PriceTickSize != 0.01 {
		t.Fatalf("AAPL tick size expected 0.01, got %v", s.PriceTickSize)
	}
}

func TestByTickerMissing(t *testing.T) {
	m := ByTicker(Default())
	if _, ok := m["ZZZZ"]; ok {
		t.Fatal("expected ZZZZ to be missing")
	}
}
