// Package symbol holds the static trading-instrument metadata the rest of
// the system keys its per-symbol state on.
package symbol

// Symbol describes one tradeable instrument served by a broker-adapter
// process.
type Symbol struct {
	Ticker               string
	Name                 string
	BasePrice            float64
	PriceTickSize        float64
	VolatilityMultiplier float64
}

// Default returns the fixed instrument universe a brokerd process serves.
// Grounded on the teacher's AllSymbols table; trimmed to the fields the EMS
// domain actually consumes (sector/locate-code bookkeeping dropped: the
// EMS keys everything by ticker string, not an ITCH locate code).
func Default() []Symbol {
	return []Symbol{
		{"AAPL", "Apple Inc", 185.00, 0.01, 1.1},
		{"MSFT", "Microsoft Corp", 410.00, 0.01, 1.0},
		{"TSLA", "Tesla Inc", 245.00, 0.01, 1.8},
		{"NVDA", "NVIDIA Corp", 120.00, 0.01, 1.9},
		{"SPY", "S&P 500 ETF", 540.00, 0.01, 0.5},
		{"BTCUSD", "Bitcoin / USD", 62000.00, 1.00, 2.4},
	}
}

// ByTicker indexes a symbol slice by ticker for O(1) lookup.
func ByTicker(syms []Symbol) map[string]Symbol {
	m := make(map[string]Symbol, len(syms))
	for _, s := range syms {
		m[s.Ticker] = s
	}
	return m
}
