// Package brokerclient dials a brokerd process's feed and trades WebSocket
// endpoints from an emsd process and translates the wire frames back into
// the plain channel shapes emssession.New expects, so an EMS session never
// has to know whether its broker adapter lives in-process or across the
// network.
//
// Grounded on the teacher's cmd/decoder dial/read-loop structure
// (websocket.DefaultDialer.Dial, a read loop decoding one message at a
// time), generalized from a print-and-discard decoder into a connection
// that feeds live channels.
package brokerclient

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradekit/ems/internal/wireproto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Feed is a live connection to brokerd's feed-attach endpoint (spec.md
// §4.2, §6).
type Feed struct {
	conn   *websocket.Conn
	Init   wireproto.FeedInitMsg
	quotes chan wireproto.Quote
}

// DialFeed attaches to the feed bus for sym on the brokerd reachable at
// baseURL (e.g. ws://localhost:8200), returning once the feed's init
// message has arrived.
func DialFeed(ctx context.Context, baseURL, sym string, throttleHz float64) (*Feed, error) {
	u, err := feedURL(baseURL, sym, throttleHz)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("brokerclient: dial feed %s: %w", sym, err)
	}

	f := &Feed{conn: conn, quotes: make(chan wireproto.Quote, 64)}

	init, err := f.readInit()
	if err != nil {
		conn.Close()
		return nil, err
	}
	f.Init = init

	go f.pump()
	return f, nil
}

func feedURL(baseURL, sym string, throttleHz float64) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("brokerclient: invalid brokerd url %q: %w", baseURL, err)
	}
	u.Path = "/feed"
	q := u.Query()
	q.Set("symbol", sym)
	if throttleHz > 0 {
		q.Set("throttle_hz", fmt.Sprintf("%g", throttleHz))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Feed) readInit() (wireproto.FeedInitMsg, error) {
	_, data, err := f.conn.ReadMessage()
	if err != nil {
		return wireproto.FeedInitMsg{}, fmt.Errorf("brokerclient: read feed init: %w", err)
	}
	frame, err := wireproto.Decode(data)
	if err != nil || frame.Kind != wireproto.FrameFeedInit {
		return wireproto.FeedInitMsg{}, fmt.Errorf("brokerclient: expected feed_init frame, got %v (err=%v)", frame.Kind, err)
	}
	return *frame.FeedInit, nil
}

// Quotes streams quotes received after the init message, including the
// cached first quote brokerd sends immediately following it.
func (f *Feed) Quotes() <-chan wireproto.Quote { return f.quotes }

func (f *Feed) pump() {
	defer close(f.quotes)
	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := f.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wireproto.Decode(data)
		if err != nil || frame.Kind != wireproto.FrameQuote {
			log.Printf("brokerclient: unexpected feed frame: %v", err)
			continue
		}
		f.quotes <- frame.Quote.Quote
	}
}

// Close tears down the feed connection.
func (f *Feed) Close() error { return f.conn.Close() }

// Trades is a live connection to brokerd's trades-dialogue endpoint
// (spec.md §4.3, §6).
type Trades struct {
	conn      *websocket.Conn
	Positions []wireproto.BrokerdPosition
	events    chan wireproto.BrokerdEvent
	orders    chan wireproto.Frame
}

// DialTrades opens the trades dialogue on the brokerd reachable at
// baseURL, returning once the initial position list has arrived. The
// dialogue is account-wide (spec.md §4.3): events for symbols other than
// the caller's session arrive too, and are harmless no-ops for a session
// whose book holds no matching OID.
func DialTrades(ctx context.Context, baseURL string) (*Trades, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("brokerclient: invalid brokerd url %q: %w", baseURL, err)
	}
	u.Path = "/trades"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("brokerclient: dial trades: %w", err)
	}

	t := &Trades{
		conn:   conn,
		events: make(chan wireproto.BrokerdEvent, 256),
		orders: make(chan wireproto.Frame, 64),
	}

	positions, err := t.readPositions()
	if err != nil {
		conn.Close()
		return nil, err
	}
	t.Positions = positions

	go t.readPump()
	go t.writePump()
	return t, nil
}

func (t *Trades) readPositions() ([]wireproto.BrokerdPosition, error) {
	var positions []wireproto.BrokerdPosition
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("brokerclient: read positions: %w", err)
		}
		frame, err := wireproto.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("brokerclient: decode positions frame: %w", err)
		}
		if frame.Kind != wireproto.FramePosition {
			// first non-position frame ends the initial burst; replay it.
			go t.dispatch(frame)
			return positions, nil
		}
		positions = append(positions, *frame.Position)
	}
}

// Events streams broker events following the initial position burst.
func (t *Trades) Events() <-chan wireproto.BrokerdEvent { return t.events }

// Send submits an order or cancel to the broker over the trades dialogue.
func (t *Trades) Send(f wireproto.Frame) {
	select {
	case t.orders <- f:
	default:
		log.Printf("brokerclient: trades outbound full, dropping %s frame", f.Kind)
	}
}

func (t *Trades) readPump() {
	defer close(t.events)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := wireproto.Decode(data)
		if err != nil {
			log.Printf("brokerclient: decode trades frame: %v", err)
			continue
		}
		t.dispatch(frame)
	}
}

func (t *Trades) dispatch(frame wireproto.Frame) {
	switch frame.Kind {
	case wireproto.FrameBrokerdEvent:
		t.events <- *frame.BrokerdEvent
	case wireproto.FramePosition:
		t.events <- wireproto.BrokerdEvent{Kind: wireproto.EventPosition, Position: frame.Position}
	default:
		log.Printf("brokerclient: unexpected trades frame kind %v", frame.Kind)
	}
}

func (t *Trades) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case f, ok := <-t.orders:
			if !ok {
				return
			}
			data, err := wireproto.Encode(f)
			if err != nil {
				log.Printf("brokerclient: encode order frame: %v", err)
				continue
			}
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears down the trades connection.
func (t *Trades) Close() error { return t.conn.Close() }
