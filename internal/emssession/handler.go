package emssession

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

// Opener constructs a session for one (broker, symbol) client connection,
// wiring clientIn/clientOut as the session's client-facing channels, and
// returns the session plus its initial position list (spec.md §4.8:
// "return the initial position list to the client via the session
// handshake before the first status message").
type Opener func(ctx context.Context, broker, symbol string, clientIn <-chan wireproto.Order, clientOut chan<- wireproto.Frame) (*Session, []wireproto.BrokerdPosition, error)

// Handler upgrades an HTTP request to the EMS session RPC WebSocket
// (spec.md §6), using open to construct the per-connection Session.
// Grounded on the teacher's session.Handler: upgrade, then fan out into a
// read pump and a write pump around the same connection.
func Handler(open Opener, registry *Registry, sendBufferSize int) http.HandlerFunc {
	if sendBufferSize <= 0 {
		sendBufferSize = 256
	}
	return func(w http.ResponseWriter, r *http.Request) {
		broker := r.URL.Query().Get("broker")
		symbol := r.URL.Query().Get("symbol")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("emssession: websocket upgrade: %v", err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		clientIn := make(chan wireproto.Order, 64)
		clientOut := make(chan wireproto.Frame, sendBufferSize)

		sess, positions, err := open(ctx, broker, symbol, clientIn, clientOut)
		if err != nil {
			log.Printf("emssession: open %s/%s: %v", broker, symbol, err)
			conn.Close()
			return
		}

		if registry != nil {
			registry.Put(broker, symbol, sess)
			defer registry.Remove(broker, symbol)
		}

		go sess.Run(ctx)
		go writePump(conn, clientOut, cancel)

		for _, p := range positions {
			clientOut <- wireproto.PositionFrame(p)
		}

		readPump(conn, clientIn, cancel)
	}
}

// readPump decodes inbound client Order frames until the connection
// closes, pushing each onto cmdOut.
func readPump(conn *websocket.Conn, cmdOut chan<- wireproto.Order, cancel context.CancelFunc) {
	defer cancel()
	defer close(cmdOut)

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
				log.Printf("emssession: read error: %v", err)
			}
			return
		}

		frame, err := wireproto.Decode(data)
		if err != nil || frame.Kind != wireproto.FrameOrder {
			log.Printf("emssession: invalid client frame: %v", err)
			continue
		}
		cmdOut <- *frame.Order
	}
}

// writePump encodes outbound Frames and writes them to the connection,
// pinging on an idle ticker exactly like the teacher's writePump.
func writePump(conn *websocket.Conn, out chan wireproto.Frame, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case f, ok := <-out:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := wireproto.Encode(f)
			if err != nil {
				log.Printf("emssession: encode outbound frame: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
