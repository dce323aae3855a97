// Package emssession wires the dark book, trigger loop, broker-event
// translator, and client command processor into the per (broker,symbol)
// EMS session spec.md §4.8 (C8) describes, and exposes that session over a
// client-facing WebSocket handler.
//
// Grounded on the teacher's internal/cmd/feedsim wiring style (construct
// the shared state, launch the goroutines that drive it, return) and
// internal/session.Handler's readPump/writePump split for the
// client-facing transport (see handler.go).
package emssession

import (
	"context"
	"log"
	"time"

	"github.com/tradekit/ems/internal/clientcmd"
	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/trigger"
	"github.com/tradekit/ems/internal/translator"
	"github.com/tradekit/ems/internal/wireproto"
)

const auditTimeout = 2 * time.Second

// Stats is a point-in-time snapshot of session state, read out through
// StatsQuery rather than directly, since the book has no lock of its own.
type Stats struct {
	Broker        string
	Symbol        string
	LastPrice     float64
	DarkOrders    int
	LiveOrders    int
}

// Session is one EMS session for a single (broker, symbol) pair. Its dark
// book is owned exclusively by the Run goroutine: spec.md §5 requires no
// locking because all three logical tasks (C5 trigger scan, C6 translator,
// C7 command processor) execute serially on that one goroutine's select
// loop, standing in for the source's single-threaded task group.
type Session struct {
	Broker  string
	Symbol  string
	MinTick float64

	book  *darkbook.Book
	audit *persist.AuditLog

	// Inbound
	Quotes       <-chan wireproto.Quote
	BrokerEvents <-chan wireproto.BrokerdEvent
	ClientIn     <-chan wireproto.Order
	StatsQuery   chan chan Stats

	// Outbound
	ClientOut chan<- wireproto.Frame
	BrokerOut chan<- wireproto.Frame
}

// New constructs a Session. seedLast is the first quote's last-trade price,
// used to seed lasts[(broker,symbol)] before any client command arrives
// (spec.md §4.8). audit may be nil, in which case status/event recording is
// skipped.
func New(broker, sym string, minTick, seedLast float64, audit *persist.AuditLog, quotes <-chan wireproto.Quote, brokerEvents <-chan wireproto.BrokerdEvent, clientIn <-chan wireproto.Order, clientOut, brokerOut chan<- wireproto.Frame) *Session {
	book := darkbook.New()
	if seedLast != 0 {
		book.SetLast(sym, seedLast)
	}
	return &Session{
		Broker: broker, Symbol: sym, MinTick: minTick,
		book:         book,
		audit:        audit,
		Quotes:       quotes,
		BrokerEvents: brokerEvents,
		ClientIn:     clientIn,
		StatsQuery:   make(chan chan Stats),
		ClientOut:    clientOut,
		BrokerOut:    brokerOut,
	}
}

// Run drives the session's event loop until ctx is cancelled or any one of
// its inbound channels closes. It is the single owner of the session's dark book.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case q, ok := <-s.Quotes:
			if !ok {
				return
			}
			s.handleQuote(q)

		case ev, ok := <-s.BrokerEvents:
			if !ok {
				return
			}
			s.handleBrokerEvent(ev)

		case cmd, ok := <-s.ClientIn:
			if !ok {
				return
			}
			s.handleClientCommand(cmd)

		case reply := <-s.StatsQuery:
			reply <- Stats{
				Broker:     s.Broker,
				Symbol:     s.Symbol,
				LastPrice:  lastOrZero(s.book, s.Symbol),
				DarkOrders: s.book.DarkCount(s.Symbol),
				LiveOrders: s.book.LiveCount(),
			}
		}
	}
}

// Stats blocks until the running session reports a snapshot, or ctx is
// cancelled first. Safe to call from any goroutine: the book itself never
// leaves the Run goroutine, only the copied-out Stats value does.
func (s *Session) Stats(ctx context.Context) (Stats, bool) {
	reply := make(chan Stats, 1)
	select {
	case s.StatsQuery <- reply:
	case <-ctx.Done():
		return Stats{}, false
	}
	select {
	case st := <-reply:
		return st, true
	case <-ctx.Done():
		return Stats{}, false
	}
}

func lastOrZero(b *darkbook.Book, symbol string) float64 {
	p, _ := b.Last(symbol)
	return p
}

func (s *Session) handleQuote(q wireproto.Quote) {
	for _, fired := range trigger.Scan(s.book, s.Symbol, q) {
		s.emitStatus(fired.Status)
		if fired.BrokerOrder != nil {
			s.sendBroker(wireproto.BrokerdOrderFrame(*fired.BrokerOrder))
		}
	}
}

func (s *Session) handleBrokerEvent(ev wireproto.BrokerdEvent) {
	s.recordBrokerEvent(ev)

	res, err := translator.Handle(s.book, ev)
	if err != nil {
		log.Printf("emssession: %s/%s: %v", s.Broker, s.Symbol, err)
		return
	}
	if res.Status != nil {
		s.emitStatus(*res.Status)
	}
	if res.ToBroker != nil {
		s.sendBroker(*res.ToBroker)
	}
	if res.Position != nil {
		s.sendClient(wireproto.PositionFrame(*res.Position))
	}
}

func (s *Session) handleClientCommand(cmd wireproto.Order) {
	var res clientcmd.Result
	if cmd.Action == wireproto.ActionCancel {
		res = clientcmd.Cancel(s.book, cmd.Symbol, cmd.OID)
	} else {
		res = clientcmd.Submit(s.book, cmd, s.MinTick)
	}

	if res.Status != nil {
		s.emitStatus(*res.Status)
	}
	if res.ToBroker != nil {
		s.sendBroker(*res.ToBroker)
	}
}

func (s *Session) emitStatus(status wireproto.Status) {
	status.Symbol = s.Symbol
	s.recordStatus(status)
	s.sendClient(wireproto.StatusFrame(status))
}

// recordStatus and recordBrokerEvent write through to the audit trail
// asynchronously so a slow or unavailable database never stalls the
// session's single event loop (spec.md §5's latency requirement for the
// three EMS tasks).
func (s *Session) recordStatus(status wireproto.Status) {
	if s.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.audit.RecordStatus(ctx, status); err != nil {
			log.Printf("emssession: %s/%s: audit status: %v", s.Broker, s.Symbol, err)
		}
	}()
}

func (s *Session) recordBrokerEvent(ev wireproto.BrokerdEvent) {
	if s.audit == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.audit.RecordBrokerEvent(ctx, ev); err != nil {
			log.Printf("emssession: %s/%s: audit event: %v", s.Broker, s.Symbol, err)
		}
	}()
}

func (s *Session) sendClient(f wireproto.Frame) {
	select {
	case s.ClientOut <- f:
	default:
		log.Printf("emssession: %s/%s: client outbound full, dropping %s frame", s.Broker, s.Symbol, f.Kind)
	}
}

func (s *Session) sendBroker(f wireproto.Frame) {
	select {
	case s.BrokerOut <- f:
	default:
		log.Printf("emssession: %s/%s: broker outbound full, dropping %s frame", s.Broker, s.Symbol, f.Kind)
	}
}
