package broker

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradekit/ems/internal/wireproto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TradesHandler upgrades an HTTP request to the trades-dialogue WebSocket
// (spec.md §4.3, §6): it opens adapter.TradesDialogue, relays inbound
// BrokerdOrder/BrokerdCancel frames to the adapter and outbound
// BrokerdEvent frames back to the caller (an EMS session), sending the
// initial position list first.
//
// Grounded on the teacher's internal/session.Handler readPump/writePump
// split, generalized from a one-way quote fan-out to the duplex order-flow
// session emsd dials into.
func TradesHandler(adapter Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("broker: websocket upgrade: %v", err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		orders := make(chan wireproto.Frame, 64)
		events := make(chan wireproto.BrokerdEvent, 256)

		positions, err := adapter.TradesDialogue(ctx, orders, events)
		if err != nil {
			log.Printf("broker: trades dialogue: %v", err)
			conn.Close()
			return
		}

		go writeTrades(conn, positions, events, cancel)
		readOrders(conn, orders, cancel)
	}
}

func readOrders(conn *websocket.Conn, orders chan<- wireproto.Frame, cancel context.CancelFunc) {
	defer cancel()
	defer close(orders)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("broker: read error: %v", err)
			}
			return
		}

		frame, err := wireproto.Decode(data)
		if err != nil || (frame.Kind != wireproto.FrameBrokerdOrder && frame.Kind != wireproto.FrameBrokerdCancel) {
			log.Printf("broker: invalid order frame: %v", err)
			continue
		}
		orders <- frame
	}
}

func writeTrades(conn *websocket.Conn, positions []wireproto.BrokerdPosition, events <-chan wireproto.BrokerdEvent, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for _, p := range positions {
		if err := writeTradesFrame(conn, wireproto.PositionFrame(p)); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeTradesFrame(conn, wireproto.BrokerdEventFrame(ev)); err != nil {
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

func writeTradesFrame(conn *websocket.Conn, f wireproto.Frame) error {
	data, err := wireproto.Encode(f)
	if err != nil {
		log.Printf("broker: encode outbound frame: %v", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
