package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tradekit/ems/internal/symbol"
)

type symbolInfo struct {
	Ticker        string  `json:"ticker"`
	Name          string  `json:"name"`
	PriceTickSize float64 `json:"priceTickSize"`
	BasePrice     float64 `json:"basePrice"`
	Subscribers   int     `json:"subscribers,omitempty"`
}

func (s *Server) toSymbolInfo(sym symbol.Symbol) symbolInfo {
	si := symbolInfo{
		Ticker:        sym.Ticker,
		Name:          sym.Name,
		PriceTickSize: sym.PriceTickSize,
		BasePrice:     sym.BasePrice,
	}
	if s.bus != nil {
		si.Subscribers = s.bus.SubscriberCount(sym.Ticker)
	}
	return si
}

// handleSymbols returns the full symbol universe this process serves.
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	out := make([]symbolInfo, 0, len(s.syms))
	for _, sym := range s.syms {
		out = append(out, s.toSymbolInfo(sym))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSymbolDetail returns one symbol's metadata.
func (s *Server) handleSymbolDetail(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	sym, ok := s.resolveTicker(w, ticker)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.toSymbolInfo(sym))
}

// handleSubscribers returns the live feed-bus subscriber count for a symbol.
func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	if _, ok := s.resolveTicker(w, ticker); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"subscribers": s.bus.SubscriberCount(ticker)})
}

// handleCandles returns recently persisted OHLCV bars for a symbol.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	if _, ok := s.resolveTicker(w, ticker); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	bars, err := s.candles.RecentBars(ctx, s.broker, ticker, parseIntParam(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, bars)
}

type sessionInfo struct {
	Broker     string  `json:"broker"`
	Symbol     string  `json:"symbol"`
	LastPrice  float64 `json:"lastPrice"`
	DarkOrders int     `json:"darkOrders"`
	LiveOrders int     `json:"liveOrders"`
}

// handleSessions lists stats for every EMS session this emsd process is
// currently running.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sessions := s.registry.All()
	out := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		st, ok := sess.Stats(ctx)
		if !ok {
			continue
		}
		out = append(out, sessionInfo{
			Broker: st.Broker, Symbol: st.Symbol, LastPrice: st.LastPrice,
			DarkOrders: st.DarkOrders, LiveOrders: st.LiveOrders,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSessionDetail returns one session's stats.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	broker, sym := r.PathValue("broker"), r.PathValue("symbol")
	sess, ok := s.registry.Get(broker, sym)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for "+broker+"/"+sym)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, ok := sess.Stats(ctx)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, "session stats timed out")
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo{
		Broker: st.Broker, Symbol: st.Symbol, LastPrice: st.LastPrice,
		DarkOrders: st.DarkOrders, LiveOrders: st.LiveOrders,
	})
}

// handleAudit returns the audit trail for one order id.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	oid := r.PathValue("oid")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := s.audit.ForOID(ctx, oid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type statsResponse struct {
	Uptime      string `json:"uptime"`
	Broker      string `json:"broker"`
	Symbols     int    `json:"symbols"`
	SessionsUp  int    `json:"sessionsUp,omitempty"`
}

// handleStats returns runtime statistics for whichever process this Server
// belongs to.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Uptime:  time.Since(s.startAt).Truncate(time.Second).String(),
		Broker:  s.broker,
		Symbols: len(s.syms),
	}
	if s.registry != nil {
		resp.SessionsUp = len(s.registry.All())
	}
	writeJSON(w, http.StatusOK, resp)
}
