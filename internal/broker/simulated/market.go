// Package simulated is the one broker adapter this repo ships (spec.md
// §4.3, C3): a synthetic market that walks each symbol's price with
// geometric Brownian motion and a bursty tick-rate controller, standing in
// for a real broker's feed and order-routing endpoints.
//
// Grounded on the teacher's internal/engine.MarketEngine (GBM walk) and
// internal/engine.StressController (variable-rate tick pacing), generalized
// from ITCH locate codes to the wireproto.Quote/Tick vocabulary and from a
// single BLITZ stress symbol to every symbol the adapter serves.
package simulated

import (
	"math"
	"sync"

	"github.com/tradekit/ems/internal/symbol"
)

const (
	baseDailyVol = 0.02
	ticksPerDay  = 86400
	spreadTicks  = 2 // quoted bid/ask straddle, in tick sizes
)

// walker drives one symbol's GBM price path.
type walker struct {
	mu    sync.Mutex
	sym   symbol.Symbol
	rng   *rng
	price float64
}

func newWalker(sym symbol.Symbol, seed int64) *walker {
	return &walker{sym: sym, rng: newRNG(seed), price: sym.BasePrice}
}

// step advances the price one tick and returns it, snapped to the symbol's
// tick size and floored at one tick. S(t+1) = S(t) * exp(vol * Z).
func (w *walker) step() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * w.sym.VolatilityMultiplier
	z := w.rng.gaussian()
	w.price *= math.Exp(tickVol * z)

	w.price = math.Round(w.price/w.sym.PriceTickSize) * w.sym.PriceTickSize
	if w.price < w.sym.PriceTickSize {
		w.price = w.sym.PriceTickSize
	}
	return w.price
}

func (w *walker) last() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.price
}

// pacePhase is the current tick-rate regime, cycling calm/active/burst so a
// simulated feed isn't uniformly paced (spec.md's trigger and translator
// logic both need to see bursts of ticks to exercise back-pressure paths).
type pacePhase int

const (
	phaseCalm pacePhase = iota
	phaseActive
	phaseBurst
)

// pacer produces a varying inter-tick interval, grounded on the teacher's
// StressController: a sine wave plus mean-reverting random walk drives an
// intensity in [0, 1], which is mapped to an interval range per phase.
type pacer struct {
	rng   *rng
	t     float64
	walk  float64
	phase pacePhase
}

func newPacer(rng *rng) *pacer {
	return &pacer{rng: rng}
}

// intervalMs returns the next inter-tick interval in milliseconds.
func (p *pacer) intervalMs() float64 {
	p.t += 0.01
	sine := (math.Sin(p.t) + 1) / 2

	p.walk += p.rng.gaussian() * 0.02
	p.walk *= 0.98

	intensity := sine + p.walk
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	if p.rng.float64() < 0.001 {
		intensity = 1
	}

	switch {
	case intensity < 0.3:
		p.phase = phaseCalm
		return 200 - 150*intensity/0.3 // 50-200ms
	case intensity < 0.7:
		p.phase = phaseActive
		return 50 - 40*(intensity-0.3)/0.4 // 10-50ms
	default:
		p.phase = phaseBurst
		return 10 - 9*(intensity-0.7)/0.3 // 1-10ms
	}
}
