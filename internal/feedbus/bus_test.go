package feedbus

import (
	"context"
	"testing"

	"github.com/tradekit/ems/internal/ohlcring"
	"github.com/tradekit/ems/internal/wireproto"
)

func TestApplySampleSeedsFirstBar(t *testing.T) {
	b := &Bus{}
	ring := ohlcring.New("test", 8)

	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 100, Size: 10}}})

	arr := ring.Array()
	if len(arr) != 1 {
		t.Fatalf("expected one seeded bar, got %d", len(arr))
	}
	if arr[0].Open != 100 || arr[0].Close != 100 {
		t.Fatalf("unexpected seeded bar: %+v", arr[0])
	}
}

func TestApplySampleUpdatesHeadHighLowVolume(t *testing.T) {
	b := &Bus{}
	ring := ohlcring.New("test", 8)

	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 100, Size: 10}}})
	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 105, Size: 5}}})
	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 95, Size: 3}}})

	arr := ring.Array()
	if len(arr) != 1 {
		t.Fatalf("expected a single still-open head bar, got %d", len(arr))
	}
	head := arr[0]
	if head.Open != 100 || head.High != 105 || head.Low != 95 || head.Close != 95 {
		t.Fatalf("unexpected accumulated bar: %+v", head)
	}
	if head.Volume != 18 {
		t.Fatalf("expected volume to sum trade sizes, got %v", head.Volume)
	}
}

func TestApplySampleIgnoresQuoteWithoutTrade(t *testing.T) {
	b := &Bus{}
	ring := ohlcring.New("test", 8)

	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickBid, Price: 99}}})

	if ring.Len() != 0 {
		t.Fatalf("expected no bar seeded from a quote bearing no trade tick, got len=%d", ring.Len())
	}
}

func TestRotateBarClosesAndReseeds(t *testing.T) {
	b := &Bus{brokerName: "sim"}
	ring := ohlcring.New("test", 8)

	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 100, Size: 1}}})
	b.applySample(ring, wireproto.Quote{Ticks: []wireproto.Tick{{Type: wireproto.TickTrade, Price: 110, Size: 1}}})

	b.rotateBar(context.Background(), "AAPL", ring)

	arr := ring.Array()
	if len(arr) != 2 {
		t.Fatalf("expected the closed bar plus a fresh head, got %d rows", len(arr))
	}
	closed, head := arr[0], arr[1]
	if closed.Close != 110 || closed.High != 110 {
		t.Fatalf("unexpected closed bar: %+v", closed)
	}
	if head.Open != 110 || head.High != 110 || head.Low != 110 || head.Close != 110 {
		t.Fatalf("expected fresh head seeded from the closed bar's close, got %+v", head)
	}
	if head.Volume != 0 {
		t.Fatalf("expected fresh head to start with no volume, got %v", head.Volume)
	}
}

func TestRotateBarNoopOnEmptyRing(t *testing.T) {
	b := &Bus{brokerName: "sim"}
	ring := ohlcring.New("test", 8)

	b.rotateBar(context.Background(), "AAPL", ring)

	if ring.Len() != 0 {
		t.Fatalf("expected rotation on an empty ring to do nothing, got len=%d", ring.Len())
	}
}
