package trigger

import (
	"testing"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/wireproto"
)

func TestBuildEntryRejectsImmediateFire(t *testing.T) {
	_, err := BuildEntry(wireproto.Order{OID: "o1", Action: wireproto.ActionBuy, Price: 100}, 100, 0.01)
	if err != ErrImmediateFire {
		t.Fatalf("expected ErrImmediateFire, got %v", err)
	}
}

func TestDarkBuyTriggersOnAsk(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 150.0)

	entry, err := BuildEntry(wireproto.Order{OID: "o1", Symbol: "AAPL", Action: wireproto.ActionBuy, Price: 145.0, Size: 10}, 150.0, 0.01)
	if err != nil {
		t.Fatalf("BuildEntry: %v", err)
	}
	book.RegisterDark(entry)

	fired := Scan(book, "AAPL", wireproto.Quote{Symbol: "AAPL", Ticks: []wireproto.Tick{{Type: wireproto.TickAsk, Price: 144.9}}})
	if len(fired) != 1 {
		t.Fatalf("expected 1 firing, got %d", len(fired))
	}
	f := fired[0]
	if f.Status.Resp != wireproto.RespDarkTriggered {
		t.Fatalf("expected dark_triggered, got %s", f.Status.Resp)
	}
	if f.BrokerOrder == nil {
		t.Fatal("expected a broker order for a buy trigger")
	}
	minTick := 0.01
	wantPrice := 144.9 + 5*minTick // float64 arithmetic, as the trigger computes it
	if f.BrokerOrder.Price != wantPrice {
		t.Fatalf("expected submit price %v, got %v", wantPrice, f.BrokerOrder.Price)
	}

	if book.IsDark("AAPL", "o1") {
		t.Fatal("expected entry removed after firing")
	}

	fired2 := Scan(book, "AAPL", wireproto.Quote{Symbol: "AAPL", Ticks: []wireproto.Tick{{Type: wireproto.TickAsk, Price: 144.8}}})
	if len(fired2) != 0 {
		t.Fatalf("expected no further firing, got %d", len(fired2))
	}
}

func TestAlertFiresOnce(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 99.0)

	entry, err := BuildEntry(wireproto.Order{OID: "o3", Symbol: "AAPL", Action: wireproto.ActionAlert, Price: 100.0}, 99.0, 0.01)
	if err != nil {
		t.Fatalf("BuildEntry: %v", err)
	}
	book.RegisterDark(entry)

	fired := Scan(book, "AAPL", wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 100.5}}})
	if len(fired) != 1 || fired[0].Status.Resp != wireproto.RespAlertTriggered {
		t.Fatalf("expected one alert_triggered, got %+v", fired)
	}
	if fired[0].BrokerOrder != nil {
		t.Fatal("expected no broker order for an alert")
	}

	fired2 := Scan(book, "AAPL", wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 101.0}}})
	if len(fired2) != 0 {
		t.Fatalf("expected no further firing, got %d", len(fired2))
	}
}

func TestBuyNeverFiresOnBidTick(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 150.0)

	entry, err := BuildEntry(wireproto.Order{OID: "o1", Symbol: "AAPL", Action: wireproto.ActionBuy, Price: 145.0}, 150.0, 0.01)
	if err != nil {
		t.Fatalf("BuildEntry: %v", err)
	}
	book.RegisterDark(entry)

	fired := Scan(book, "AAPL", wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickBid, Price: 140.0}}})
	if len(fired) != 0 {
		t.Fatalf("expected buy not to fire on a bid tick, got %+v", fired)
	}
}

func TestInsertionOrderFiringOnSameQuote(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 150.0)

	e1, _ := BuildEntry(wireproto.Order{OID: "o1", Symbol: "AAPL", Action: wireproto.ActionAlert, Price: 149.0}, 150.0, 0.01)
	e2, _ := BuildEntry(wireproto.Order{OID: "o2", Symbol: "AAPL", Action: wireproto.ActionAlert, Price: 149.0}, 150.0, 0.01)
	book.RegisterDark(e1)
	book.RegisterDark(e2)

	fired := Scan(book, "AAPL", wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 148.0}}})
	if len(fired) != 2 {
		t.Fatalf("expected both to fire, got %d", len(fired))
	}
	if fired[0].Status.OID != "o1" || fired[1].Status.OID != "o2" {
		t.Fatalf("expected insertion order o1,o2, got %s,%s", fired[0].Status.OID, fired[1].Status.OID)
	}
}
