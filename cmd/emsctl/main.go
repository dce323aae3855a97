// Command emsctl is a debug CLI client for an EMS session: it dials
// emsd's session endpoint, optionally submits one order, and prints every
// status/position update it receives.
//
// Usage:
//
//	emsctl -symbol AAPL                                   # just watch
//	emsctl -symbol AAPL -action buy -price 185.50 -size 100 -mode dark
//	emsctl -url ws://emsd:8300/session -broker sim -symbol TSLA
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradekit/ems/internal/wireproto"
)

func main() {
	url := flag.String("url", "ws://localhost:8300/session", "emsd session WebSocket endpoint")
	brokerName := flag.String("broker", "sim", "Broker to route the order through")
	sym := flag.String("symbol", "AAPL", "Symbol to trade")
	action := flag.String("action", "", "Order action: buy, sell, alert, cancel (empty = watch only)")
	execMode := flag.String("mode", "live", "Execution mode: live, dark, paper")
	price := flag.Float64("price", 0, "Order price")
	size := flag.Float64("size", 0, "Order size")
	oid := flag.String("oid", "", "Order id (generated if empty, required for cancel)")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	dialURL := fmt.Sprintf("%s?broker=%s&symbol=%s", *url, *brokerName, *sym)
	log.Printf("connecting to %s", dialURL)
	conn, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	if *action != "" {
		id := *oid
		if id == "" {
			id = fmt.Sprintf("emsctl-%d", time.Now().UnixNano())
		}
		order := wireproto.Order{
			OID:      id,
			Symbol:   *sym,
			Brokers:  []string{*brokerName},
			Action:   wireproto.Action(*action),
			Price:    *price,
			Size:     *size,
			ExecMode: wireproto.ExecMode(*execMode),
		}
		sendOrder(conn, order)
		log.Printf("submitted %s oid=%s %s %v@%v", order.ExecMode, order.OID, order.Action, order.Size, order.Price)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}

		frame, err := wireproto.Decode(data)
		if err != nil {
			log.Printf("decode: %v", err)
			continue
		}
		printFrame(frame)
	}
}

func sendOrder(conn *websocket.Conn, order wireproto.Order) {
	data, err := wireproto.Encode(wireproto.OrderFrame(order))
	if err != nil {
		log.Fatalf("encode order: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("send order: %v", err)
	}
}

func printFrame(f wireproto.Frame) {
	switch f.Kind {
	case wireproto.FrameStatus:
		fmt.Printf("STATUS   oid=%-20s resp=%-18s trigger=%v broker_reqid=%s\n",
			f.Status.OID, f.Status.Resp, f.Status.TriggerPrice, f.Status.BrokerReqID)
	case wireproto.FramePosition:
		fmt.Printf("POSITION symbol=%-8s size=%v avgPrice=%v\n",
			f.Position.Symbol, f.Position.Size, f.Position.AvgPrice)
	default:
		b, _ := json.Marshal(f)
		fmt.Printf("%s     %s\n", f.Kind, b)
	}
}
