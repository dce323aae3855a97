// Package api exposes REST introspection endpoints over brokerd and emsd's
// live state: symbol metadata, candle history, feed subscriber counts,
// EMS session stats, and per-order audit trails.
//
// Grounded on the teacher's internal/api package: Server struct,
// mux.HandleFunc route table, and writeJSON/writeError/parseIntParam
// helpers, repointed from order-book depth and trade history onto the
// EMS/feed-bus domain.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tradekit/ems/internal/emssession"
	"github.com/tradekit/ems/internal/feedbus"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/symbol"
)

// Server serves the introspection API. Every dependency is optional: a
// brokerd process wires bus/candles, an emsd process wires registry/audit,
// and Register only attaches the routes the wired dependencies can answer.
type Server struct {
	broker  string
	syms    []symbol.Symbol
	byTick  map[string]symbol.Symbol
	startAt time.Time

	bus     *feedbus.Bus
	candles *persist.CandleStore

	registry *emssession.Registry
	audit    *persist.AuditLog
}

// NewServer creates an API server for broker, with the given symbol
// universe and whichever of the optional dependencies the calling binary
// has available.
func NewServer(broker string, syms []symbol.Symbol, bus *feedbus.Bus, candles *persist.CandleStore, registry *emssession.Registry, audit *persist.AuditLog) *Server {
	byTick := make(map[string]symbol.Symbol, len(syms))
	for _, s := range syms {
		byTick[s.Ticker] = s
	}
	return &Server{
		broker:   broker,
		syms:     syms,
		byTick:   byTick,
		startAt:  time.Now(),
		bus:      bus,
		candles:  candles,
		registry: registry,
		audit:    audit,
	}
}

// Register attaches API routes to mux, based on which dependencies were
// wired at construction.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/symbols/{ticker}", s.handleSymbolDetail)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	if s.bus != nil {
		mux.HandleFunc("GET /api/subscribers/{ticker}", s.handleSubscribers)
	}
	if s.candles != nil {
		mux.HandleFunc("GET /api/candles/{ticker}", s.handleCandles)
	}
	if s.registry != nil {
		mux.HandleFunc("GET /api/sessions", s.handleSessions)
		mux.HandleFunc("GET /api/sessions/{broker}/{symbol}", s.handleSessionDetail)
	}
	if s.audit != nil {
		mux.HandleFunc("GET /api/audit/{oid}", s.handleAudit)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveTicker looks up a symbol by ticker, writing a 404 if not found.
func (s *Server) resolveTicker(w http.ResponseWriter, ticker string) (symbol.Symbol, bool) {
	sym, ok := s.byTick[ticker]
	if !ok {
		writeError(w, http.StatusNotFound, "symbol not found: "+ticker)
		return symbol.Symbol{}, false
	}
	return sym, true
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
