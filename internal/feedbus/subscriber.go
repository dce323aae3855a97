package feedbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradekit/ems/internal/wireproto"
)

// Subscriber is one consumer of a feed bus's quote stream for a symbol.
// Grounded on the teacher's session.Client: a buffered send channel with
// drop-on-full back-pressure, generalized from a WebSocket fan-out target
// to any sink (a WebSocket session writer, or an in-process EMS trigger
// loop) via the channel Stream returns.
type Subscriber struct {
	ID uint64

	mu          sync.Mutex
	throttleHz  float64 // 0 means unthrottled: every quote delivered
	pending     *wireproto.Quote
	hasPending  bool

	sink chan wireproto.Quote
	done chan struct{}

	Dropped uint64
}

var subscriberIDCounter uint64

// NewSubscriber creates a subscriber with the given buffer size and
// optional throttle rate (0 = unthrottled).
func NewSubscriber(bufferSize int, throttleHz float64) *Subscriber {
	s := &Subscriber{
		ID:         atomic.AddUint64(&subscriberIDCounter, 1),
		throttleHz: throttleHz,
		sink:       make(chan wireproto.Quote, bufferSize),
		done:       make(chan struct{}),
	}
	if throttleHz > 0 {
		go s.pacer()
	}
	return s
}

// Deliver hands a quote to the subscriber. Unthrottled subscribers receive
// every quote (dropped only if their buffer is full); throttled subscribers
// are paced by uniform_rate_send, which coalesces intermediate quotes so the
// newest one wins (spec.md §4.2).
func (s *Subscriber) Deliver(q wireproto.Quote) {
	if s.throttleHz <= 0 {
		s.send(q)
		return
	}
	s.mu.Lock()
	s.pending = &q
	s.hasPending = true
	s.mu.Unlock()
}

func (s *Subscriber) pacer() {
	interval := time.Duration(float64(time.Second) / s.throttleHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.hasPending {
				s.mu.Unlock()
				continue
			}
			q := *s.pending
			s.hasPending = false
			s.mu.Unlock()
			s.send(q)
		}
	}
}

func (s *Subscriber) send(q wireproto.Quote) {
	select {
	case s.sink <- q:
	default:
		atomic.AddUint64(&s.Dropped, 1)
	}
}

// Stream returns the channel subscribers read delivered quotes from.
func (s *Subscriber) Stream() <-chan wireproto.Quote { return s.sink }

// Close stops the subscriber's pacer goroutine (if any) and releases it.
func (s *Subscriber) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
