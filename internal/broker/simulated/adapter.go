package simulated

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/tradekit/ems/internal/ohlcring"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/symbol"
	"github.com/tradekit/ems/internal/wireproto"
)

// recentBarsLimit bounds how much persisted history BackfillBars asks for
// before falling back to synthesis.
const recentBarsLimit = 120

// tickWeights mirrors the teacher's actionWeights roulette wheel, swapped
// from order-book actions to the quote elements a Quote.Ticks slice can
// carry: trade, bid update, ask update.
var tickWeights = []float64{0.45, 0.275, 0.275}

const (
	tickKindTrade = 0
	tickKindBid   = 1
	tickKindAsk   = 2
)

// Adapter is the simulated broker.Adapter implementation. One Adapter
// serves the full symbol universe for a single simulated "broker".
type Adapter struct {
	name    string
	syms    map[string]symbol.Symbol
	candles *persist.CandleStore

	mu      sync.Mutex
	walkers map[string]*walker

	accountsMu sync.Mutex
	positions  map[string]*wireproto.BrokerdPosition // keyed by symbol
}

// New creates a simulated adapter serving the given symbol universe.
// candles may be nil, in which case BackfillBars always falls back to
// synthesizing history from the GBM walk.
func New(name string, syms []symbol.Symbol, candles *persist.CandleStore) *Adapter {
	return &Adapter{
		name:      name,
		syms:      symbol.ByTicker(syms),
		candles:   candles,
		walkers:   make(map[string]*walker),
		positions: make(map[string]*wireproto.BrokerdPosition),
	}
}

func (a *Adapter) walkerFor(sym string) *walker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.walkers[sym]; ok {
		return w
	}
	w := newWalker(a.syms[sym], 0)
	a.walkers[sym] = w
	return w
}

// SymbolInfo implements broker.Adapter.
func (a *Adapter) SymbolInfo(sym string) (wireproto.SymbolInfo, bool) {
	s, ok := a.syms[sym]
	if !ok {
		return wireproto.SymbolInfo{}, false
	}
	return wireproto.SymbolInfo{Symbol: s.Ticker, PriceTickSize: s.PriceTickSize}, true
}

// StreamQuotes implements broker.Adapter. It never returns while ctx is
// live: a synthetic feed has no transport to drop, so the
// reconnect-without-exiting requirement (spec.md §4.3) is satisfied
// trivially by just not stopping.
func (a *Adapter) StreamQuotes(ctx context.Context, sym string, out chan<- wireproto.Quote, feedIsLive chan<- struct{}) {
	w := a.walkerFor(sym)
	pc := newPacer(w.rng)

	live := false
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ms := pc.intervalMs()
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(ms * float64(time.Millisecond))):
		}

		price := w.step()
		q := wireproto.Quote{
			Symbol:    sym,
			BrokerTS:  float64(time.Now().UnixNano()) / 1e9,
			BrokerdTS: float64(time.Now().UnixNano()) / 1e9,
			Ticks:     []wireproto.Tick{tickFor(w, price)},
		}

		select {
		case out <- q:
		case <-ctx.Done():
			return
		}

		if !live {
			live = true
			close(feedIsLive)
		}
	}
}

// tickFor picks one Tick element per step via the roulette wheel, echoing
// the teacher's Step() action-mix pattern but producing quote ticks instead
// of order-book mutations.
func tickFor(w *walker, price float64) wireproto.Tick {
	switch w.rng.weightedPick(tickWeights) {
	case tickKindBid:
		return wireproto.Tick{Type: wireproto.TickBid, Price: price - float64(spreadTicks)/2*w.sym.PriceTickSize}
	case tickKindAsk:
		return wireproto.Tick{Type: wireproto.TickAsk, Price: price + float64(spreadTicks)/2*w.sym.PriceTickSize}
	default:
		size := float64(100 * (1 + w.rng.intRange(0, 9)))
		return wireproto.Tick{Type: wireproto.TickTrade, Price: price, Size: size}
	}
}

// BackfillBars implements broker.Adapter. It prefers previously persisted
// candle history (spec.md §4.3 "fills historical rows behind the ring's
// live head"); only when none is available (a cold database, or a brand
// new symbol) does it fall back to synthesizing a plausible history by
// replaying the GBM walk backwards in time from the current price.
func (a *Adapter) BackfillBars(ctx context.Context, sym string, ring *ohlcring.Ring) error {
	if a.candles != nil {
		bars, err := a.candles.RecentBars(ctx, a.name, sym, recentBarsLimit)
		if err != nil {
			log.Printf("simulated: %s/%s: recent bars: %v, falling back to synthesis", a.name, sym, err)
		} else if len(bars) > 0 {
			for i := len(bars) - 1; i >= 0; i-- {
				ring.Push(bars[i], true)
			}
			return nil
		}
	}

	w := a.walkerFor(sym)
	backSeed := newRNG(0)
	price := w.last()
	if price == 0 {
		price = w.sym.BasePrice
	}

	const bars = 120
	now := time.Now()
	rows := make([]ohlcring.Bar, 0, bars)
	for i := 0; i < bars; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tickVol := baseDailyVol / math.Sqrt(ticksPerDay) * w.sym.VolatilityMultiplier
		price /= math.Exp(tickVol * backSeed.gaussian())

		t := now.Add(-time.Duration(i+1) * time.Minute).UnixNano()
		rows = append(rows, ohlcring.Bar{
			Time:  t,
			Open:  price,
			High:  price,
			Low:   price,
			Close: price,
		})
	}

	// rows run newest to oldest; prepending in that order leaves the ring
	// oldest first.
	for _, row := range rows {
		ring.Push(row, true)
	}
	return nil
}

// TradesDialogue implements broker.Adapter: a minimal paper-clearing loop.
// Every submitted order is reported as submitted, immediately filled in
// full at its requested price, and reflected in an in-memory position
// table. No ack event is sent, so the order keeps whatever reqid the EMS
// sent with it (empty on a first submit). Cancels
// for already-filled orders are acknowledged as a no-op error event, since
// the simulated broker never leaves an order resting.
func (a *Adapter) TradesDialogue(ctx context.Context, orders <-chan wireproto.Frame, events chan<- wireproto.BrokerdEvent) ([]wireproto.BrokerdPosition, error) {
	a.accountsMu.Lock()
	initial := make([]wireproto.BrokerdPosition, 0, len(a.positions))
	for _, p := range a.positions {
		initial = append(initial, *p)
	}
	a.accountsMu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-orders:
				if !ok {
					return
				}
				a.handleOrderFrame(f, events)
			}
		}
	}()

	return initial, nil
}

func (a *Adapter) handleOrderFrame(f wireproto.Frame, events chan<- wireproto.BrokerdEvent) {
	now := time.Now().UnixNano()

	switch f.Kind {
	case wireproto.FrameBrokerdOrder:
		o := f.BrokerdOrder
		events <- wireproto.BrokerdEvent{
			Kind: wireproto.EventStatus, ReqID: o.ReqID, OID: o.OID, TimeNS: now,
			BrokerStatus: wireproto.BrokerSubmitted, Remaining: o.Size,
		}

		a.accountsMu.Lock()
		pos, ok := a.positions[o.Symbol]
		if !ok {
			pos = &wireproto.BrokerdPosition{Broker: a.name, Symbol: o.Symbol, Currency: "USD"}
			a.positions[o.Symbol] = pos
		}
		delta := o.Size
		if o.Action == wireproto.ActionSell {
			delta = -delta
		}
		pos.AvgPrice = weightedAvgPrice(pos.Size, pos.AvgPrice, delta, o.Price)
		pos.Size += delta
		snapshot := *pos
		a.accountsMu.Unlock()

		events <- wireproto.BrokerdEvent{
			Kind: wireproto.EventFill, ReqID: o.ReqID, OID: o.OID, TimeNS: now,
			ExecID: fmt.Sprintf("%s-%d", o.OID, now), BrokerTime: now,
			FillSize: o.Size, FillPrice: o.Price, FillAction: o.Action,
		}
		events <- wireproto.BrokerdEvent{
			Kind: wireproto.EventStatus, ReqID: o.ReqID, OID: o.OID, TimeNS: now,
			BrokerStatus: wireproto.BrokerFilled, Filled: o.Size,
		}
		events <- wireproto.BrokerdEvent{Kind: wireproto.EventPosition, ReqID: o.ReqID, TimeNS: now, Position: &snapshot}

	case wireproto.FrameBrokerdCancel:
		c := f.BrokerdCancel
		events <- wireproto.BrokerdEvent{
			Kind: wireproto.EventError, ReqID: c.ReqID, OID: c.OID, TimeNS: now,
			ErrorMsg: "order already filled", External: false,
		}
	}
}

func weightedAvgPrice(curSize, curAvg, deltaSize, fillPrice float64) float64 {
	newSize := curSize + deltaSize
	if newSize == 0 {
		return 0
	}
	if (curSize >= 0) == (deltaSize >= 0) {
		return (curAvg*absf(curSize) + fillPrice*absf(deltaSize)) / absf(newSize)
	}
	return curAvg
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
