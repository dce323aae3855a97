package simulated

import (
	"context"
	"testing"
	"time"

	"github.com/tradekit/ems/internal/ohlcring"
	"github.com/tradekit/ems/internal/symbol"
	"github.com/tradekit/ems/internal/wireproto"
)

func TestSymbolInfoKnownAndUnknown(t *testing.T) {
	a := New("sim", symbol.Default(), nil)

	info, ok := a.SymbolInfo("AAPL")
	if !ok || info.Symbol != "AAPL" {
		t.Fatalf("expected AAPL info, got %+v ok=%v", info, ok)
	}

	if _, ok := a.SymbolInfo("NOPE"); ok {
		t.Fatal("expected unknown symbol to report false")
	}
}

func TestStreamQuotesSignalsLiveOnce(t *testing.T) {
	a := New("sim", symbol.Default(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out := make(chan wireproto.Quote, 16)
	live := make(chan struct{})

	done := make(chan struct{})
	go func() {
		a.StreamQuotes(ctx, "AAPL", out, live)
		close(done)
	}()

	select {
	case <-live:
	case <-time.After(time.Second):
		t.Fatal("feedIsLive never signaled")
	}

	select {
	case q := <-out:
		if q.Symbol != "AAPL" {
			t.Fatalf("expected AAPL quote, got %+v", q)
		}
	case <-time.After(time.Second):
		t.Fatal("no quote delivered")
	}

	<-done
}

func TestBackfillBarsFillsRing(t *testing.T) {
	a := New("sim", symbol.Default(), nil)
	ring := ohlcring.New("sim:AAPL", 256)

	if err := a.BackfillBars(context.Background(), "AAPL", ring); err != nil {
		t.Fatalf("BackfillBars: %v", err)
	}
	if ring.Len() == 0 {
		t.Fatal("expected backfill to populate the ring")
	}
}

func TestTradesDialogueFillsOrderImmediately(t *testing.T) {
	a := New("sim", symbol.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders := make(chan wireproto.Frame, 4)
	events := make(chan wireproto.BrokerdEvent, 16)

	initial, err := a.TradesDialogue(ctx, orders, events)
	if err != nil {
		t.Fatalf("TradesDialogue: %v", err)
	}
	if len(initial) != 0 {
		t.Fatalf("expected no initial positions, got %v", initial)
	}

	orders <- wireproto.BrokerdOrderFrame(wireproto.BrokerdOrder{
		OID: "o1", ReqID: "r1", Symbol: "AAPL", Action: wireproto.ActionBuy, Price: 185, Size: 100,
	})

	var gotFill, gotFilledStatus bool
	deadline := time.After(time.Second)
	for i := 0; i < 4; i++ {
		select {
		case e := <-events:
			switch e.Kind {
			case wireproto.EventFill:
				gotFill = true
			case wireproto.EventStatus:
				if e.BrokerStatus == wireproto.BrokerFilled {
					gotFilledStatus = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for broker events")
		}
	}

	if !gotFill || !gotFilledStatus {
		t.Fatalf("expected fill + filled-status events, got fill=%v filledStatus=%v", gotFill, gotFilledStatus)
	}
}

func TestWeightedPickDistributesAcrossBuckets(t *testing.T) {
	r := newRNG(42)
	counts := make([]int, 3)
	for i := 0; i < 1000; i++ {
		counts[r.weightedPick([]float64{1, 1, 1})]++
	}
	for i, c := range counts {
		if c == 0 {
			t.Fatalf("bucket %d never selected across 1000 draws", i)
		}
	}
}
