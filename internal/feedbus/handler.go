package feedbus

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradekit/ems/internal/wireproto"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades an HTTP request to the feed-attach WebSocket (spec.md
// §4.2, §6): it attaches a Subscriber via bus.AttachFeedBus, sends the feed
// init message and the cached first quote, then streams subsequent quotes
// until the connection closes.
//
// Grounded on the teacher's internal/session.Handler upgrade/writePump
// split, simplified to one direction since the feed side of the protocol
// never reads client frames beyond the initial query parameters.
func Handler(bus *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		throttleHz, _ := strconv.ParseFloat(r.URL.Query().Get("throttle_hz"), 64)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("feedbus: websocket upgrade: %v", err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		init, first, sub, err := bus.AttachFeedBus(ctx, sym, throttleHz)
		if err != nil {
			log.Printf("feedbus: attach %s: %v", sym, err)
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, err.Error()))
			conn.Close()
			return
		}
		defer bus.Detach(sym, sub)

		go discardInbound(conn, cancel)
		writeFeed(conn, init, first, sub, cancel)
	}
}

// discardInbound keeps the read side of the connection pumping (required by
// gorilla/websocket to process control frames) until the peer disconnects.
func discardInbound(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFeed(conn *websocket.Conn, init wireproto.FeedInitMsg, first wireproto.Quote, sub *Subscriber, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	if err := writeFrame(conn, wireproto.FeedInitFrame(init)); err != nil {
		return
	}
	if err := writeFrame(conn, wireproto.QuoteFrame(init.SymbolInfo.Symbol, first)); err != nil {
		return
	}

	for {
		select {
		case q, ok := <-sub.Stream():
			if !ok {
				return
			}
			if err := writeFrame(conn, wireproto.QuoteFrame(init.SymbolInfo.Symbol, q)); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f wireproto.Frame) error {
	data, err := wireproto.Encode(f)
	if err != nil {
		log.Printf("feedbus: encode outbound frame: %v", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
