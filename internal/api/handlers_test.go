package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tradekit/ems/internal/symbol"
)

func testSyms() []symbol.Symbol {
	return []symbol.Symbol{
		{Ticker: "AAPL", Name: "Apple Inc", BasePrice: 185.0, PriceTickSize: 0.01, VolatilityMultiplier: 1.1},
		{Ticker: "MSFT", Name: "Microsoft Corp", BasePrice: 410.0, PriceTickSize: 0.01, VolatilityMultiplier: 1.0},
	}
}

func mustDecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

func TestHandleSymbolsListsUniverse(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("GET", "/api/symbols", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []map[string]any
	mustDecodeJSON(t, w.Result(), &out)
	if len(out) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(out))
	}
	for _, key := range []string{"ticker", "name", "priceTickSize", "basePrice"} {
		if _, ok := out[0][key]; !ok {
			t.Errorf("missing key %q in symbol JSON", key)
		}
	}
}

func TestHandleSymbolDetailFound(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("GET", "/api/symbols/AAPL", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out map[string]any
	mustDecodeJSON(t, w.Result(), &out)
	if out["ticker"] != "AAPL" {
		t.Errorf("expected ticker AAPL, got %v", out["ticker"])
	}
}

func TestHandleSymbolDetailNotFound(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("GET", "/api/symbols/ZZZZ", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var out map[string]string
	mustDecodeJSON(t, w.Result(), &out)
	if out["error"] == "" {
		t.Error("expected error message in response")
	}
}

func TestHandleStatsReportsUptimeAndUniverseSize(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out map[string]any
	mustDecodeJSON(t, w.Result(), &out)
	if out["symbols"] != float64(2) {
		t.Errorf("expected symbols=2, got %v", out["symbols"])
	}
	if out["broker"] != "sim" {
		t.Errorf("expected broker=sim, got %v", out["broker"])
	}
}

func TestRegisterOmitsRoutesForNilDependencies(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	for _, path := range []string{"/api/candles/AAPL", "/api/subscribers/AAPL", "/api/sessions", "/api/audit/o1"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404 (route not registered) with nil dependency, got %d", path, w.Code)
		}
	}
}

func TestContentTypeJSON(t *testing.T) {
	srv := NewServer("sim", testSyms(), nil, nil, nil, nil)
	mux := http.NewServeMux()
	srv.Register(mux)

	for _, ep := range []string{"/api/symbols", "/api/symbols/AAPL", "/api/stats"} {
		req := httptest.NewRequest("GET", ep, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		ct := w.Header().Get("Content-Type")
		if ct != "application/json" {
			t.Errorf("%s: expected Content-Type application/json, got %q", ep, ct)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		url  string
		key  string
		def  int
		want int
	}{
		{"/test", "limit", 100, 100},
		{"/test?limit=50", "limit", 100, 50},
		{"/test?limit=abc", "limit", 100, 100},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.url, nil)
		got := parseIntParam(req, tt.key, tt.def)
		if got != tt.want {
			t.Errorf("parseIntParam(%q, %q, %d) = %d, want %d", tt.url, tt.key, tt.def, got, tt.want)
		}
	}
}
