// Package feedbus implements the per-broker-process data-feed multiplexer
// (spec.md §4.2, C2): it owns one persistent quote stream per symbol, fans
// it out to many subscribers, samples it into the shared OHLC ring, and
// enforces single-writer discipline on that ring.
//
// Grounded on the teacher's internal/session.Manager (subscriber fan-out)
// and internal/session.Client (per-subscriber buffered delivery).
package feedbus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tradekit/ems/internal/broker"
	"github.com/tradekit/ems/internal/ohlcring"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/wireproto"
)

const ringCapacity = 1 << 15

// barInterval is how long the live head bar accumulates before it is closed,
// persisted, and replaced by a fresh one seeded from its close (spec.md §4.1,
// §4.3). It matches the spacing BackfillBars' GBM fallback synthesizes.
const barInterval = time.Minute

// feed is the state for one symbol's persistent quote stream.
type feed struct {
	initMsg    wireproto.FeedInitMsg
	firstQuote wireproto.Quote
	ring       *ohlcring.Ring
	cancel     context.CancelFunc
}

// Bus is the feed bus owned by one broker-adapter process.
type Bus struct {
	brokerName string
	adapter    broker.Adapter
	candles    *persist.CandleStore
	rings      *ohlcring.Registry

	// allocMu serializes feed creation so concurrent first-attachers don't
	// race to allocate the same symbol's feed twice (spec.md §4.2, §5 "FIFO
	// lock").
	allocMu sync.Mutex

	mu          sync.RWMutex
	feeds       map[string]*feed
	subscribers map[string]map[uint64]*Subscriber
}

// New creates a feed bus for brokerName, driving quotes from adapter. candles
// may be nil, in which case closed bars are rotated out of the ring but never
// persisted, and every cold start falls back to BackfillBars' synthesis path.
func New(brokerName string, adapter broker.Adapter, candles *persist.CandleStore) *Bus {
	return &Bus{
		brokerName:  brokerName,
		adapter:     adapter,
		candles:     candles,
		rings:       ohlcring.NewRegistry(),
		feeds:       make(map[string]*feed),
		subscribers: make(map[string]map[uint64]*Subscriber),
	}
}

// AttachFeedBus implements the feed session RPC (spec.md §4.2, §6).
// Idempotent per symbol: the first caller allocates the persistent feed;
// subsequent callers attach to the cached state. Returns the init message,
// the cached first quote, and a live Subscriber streaming subsequent
// quotes.
func (b *Bus) AttachFeedBus(ctx context.Context, sym string, throttleHz float64) (wireproto.FeedInitMsg, wireproto.Quote, *Subscriber, error) {
	f, err := b.ensureFeed(ctx, sym)
	if err != nil {
		return wireproto.FeedInitMsg{}, wireproto.Quote{}, nil, err
	}

	sub := NewSubscriber(256, throttleHz)
	b.mu.Lock()
	if b.subscribers[sym] == nil {
		b.subscribers[sym] = make(map[uint64]*Subscriber)
	}
	b.subscribers[sym][sub.ID] = sub
	b.mu.Unlock()

	return f.initMsg, f.firstQuote, sub, nil
}

// Detach removes a subscriber, e.g. on session cancellation (spec.md §5).
func (b *Bus) Detach(sym string, sub *Subscriber) {
	b.mu.Lock()
	if subs, ok := b.subscribers[sym]; ok {
		delete(subs, sub.ID)
	}
	b.mu.Unlock()
	sub.Close()
}

// ensureFeed returns the feed for sym, allocating it on first call
// (allocate_persistent_feed, spec.md §4.2).
func (b *Bus) ensureFeed(ctx context.Context, sym string) (*feed, error) {
	b.mu.RLock()
	if f, ok := b.feeds[sym]; ok {
		b.mu.RUnlock()
		return f, nil
	}
	b.mu.RUnlock()

	b.allocMu.Lock()
	defer b.allocMu.Unlock()

	// Re-check: another caller may have allocated while we waited.
	b.mu.RLock()
	if f, ok := b.feeds[sym]; ok {
		b.mu.RUnlock()
		return f, nil
	}
	b.mu.RUnlock()

	info, ok := b.adapter.SymbolInfo(sym)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
	}

	ringName := b.brokerName + ":" + sym
	ring, created := b.rings.GetOrCreate(ringName, ringCapacity)

	feedCtx, cancel := context.WithCancel(ctx)

	quoteCh := make(chan wireproto.Quote, 64)
	liveCh := make(chan struct{})
	go b.adapter.StreamQuotes(feedCtx, sym, quoteCh, liveCh)

	if created {
		if !ring.AcquireWriter() {
			cancel()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWriter, ringName)
		}
		go func() {
			if err := b.adapter.BackfillBars(feedCtx, sym, ring); err != nil {
				log.Printf("feedbus: backfill %s: %v", sym, err)
			}
		}()
		go b.runBarRotation(feedCtx, sym, ring)
	}

	select {
	case <-liveCh:
	case <-feedCtx.Done():
		cancel()
		return nil, feedCtx.Err()
	}

	first := <-quoteCh

	sampleRate := 1 / barInterval.Seconds() // bars/sec: one bar closes per barInterval

	f := &feed{
		initMsg: wireproto.FeedInitMsg{
			ShmToken:   ring.Token(),
			SymbolInfo: info,
			SampleRate: sampleRate,
		},
		firstQuote: first,
		ring:       ring,
		cancel:     cancel,
	}

	b.mu.Lock()
	b.feeds[sym] = f
	b.mu.Unlock()

	go b.sampleAndBroadcast(sym, f, first, quoteCh)

	return f, nil
}

// sampleAndBroadcast consumes quotes from the internal channel, updates the
// ring's head row, and delivers each quote to every subscriber (spec.md
// §4.2).
func (b *Bus) sampleAndBroadcast(sym string, f *feed, first wireproto.Quote, quoteCh <-chan wireproto.Quote) {
	b.applySample(f.ring, first)
	b.broadcast(sym, first)

	for q := range quoteCh {
		b.applySample(f.ring, q)
		b.broadcast(sym, q)
	}
}

func (b *Bus) applySample(ring *ohlcring.Ring, q wireproto.Quote) {
	last, ok := lastTradePrice(q)
	if !ok {
		return
	}

	if ring.Len() == 0 {
		ring.Push(ohlcring.Bar{Time: time.Now().UnixNano(), Open: last, High: last, Low: last, Close: last}, false)
		return
	}

	ring.UpdateHead(func(bar *ohlcring.Bar) {
		if bar.Volume == 0 && bar.Open == 0 {
			bar.Open = last
		}
		if last > bar.High || bar.High == 0 {
			bar.High = last
		}
		if last < bar.Low || bar.Low == 0 {
			bar.Low = last
		}
		bar.Close = last
		for _, t := range q.Ticks {
			if t.Type == wireproto.TickTrade || t.Type == wireproto.TickUTrade {
				bar.Volume += t.Size
			}
		}
	})
}

// runBarRotation closes the ring's live head bar once per barInterval,
// persists it, and seeds a fresh head bar from its close. Only the feed's
// allocating goroutine runs this, preserving the ring's single-writer
// discipline (spec.md §4.1).
func (b *Bus) runBarRotation(ctx context.Context, sym string, ring *ohlcring.Ring) {
	ticker := time.NewTicker(barInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.rotateBar(ctx, sym, ring)
		}
	}
}

func (b *Bus) rotateBar(ctx context.Context, sym string, ring *ohlcring.Ring) {
	var closed ohlcring.Bar
	ring.UpdateHead(func(bar *ohlcring.Bar) {
		closed = *bar
	})
	if closed.Time == 0 {
		return
	}

	if b.candles != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := b.candles.SaveBar(saveCtx, b.brokerName, sym, closed); err != nil {
			log.Printf("feedbus: save bar %s: %v", sym, err)
		}
		cancel()
	}

	ring.Push(ohlcring.Bar{
		Time:  time.Now().UnixNano(),
		Open:  closed.Close,
		High:  closed.Close,
		Low:   closed.Close,
		Close: closed.Close,
	}, false)
}

func (b *Bus) broadcast(sym string, q wireproto.Quote) {
	b.mu.RLock()
	subs := b.subscribers[sym]
	targets := make([]*Subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.Deliver(q)
	}
}

func lastTradePrice(q wireproto.Quote) (float64, bool) {
	for i := len(q.Ticks) - 1; i >= 0; i-- {
		t := q.Ticks[i]
		if t.Type == wireproto.TickTrade || t.Type == wireproto.TickUTrade || t.Type == wireproto.TickLast {
			return t.Price, true
		}
	}
	return 0, false
}

// SubscriberCount reports how many subscribers are attached to sym, for
// the REST introspection API.
func (b *Bus) SubscriberCount(sym string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sym])
}
