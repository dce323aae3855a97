// Package broker defines the adapter contract (spec.md §4.3, C3) that every
// broker-adapter process must satisfy, plus the one implementation this
// repo ships: a simulated market (see internal/broker/simulated).
package broker

import (
	"context"

	"github.com/tradekit/ems/internal/ohlcring"
	"github.com/tradekit/ems/internal/wireproto"
)

// Adapter is the uniform message surface every broker must implement
// (spec.md §4.3). Symbol search is out of scope per spec.md §1.
type Adapter interface {
	// StreamQuotes runs until ctx is cancelled, pushing normalized quotes
	// to out. It must signal feedIsLive exactly once, after the first
	// quote is sent. On transport failure it must reconnect internally
	// rather than return.
	StreamQuotes(ctx context.Context, sym string, out chan<- wireproto.Quote, feedIsLive chan<- struct{})

	// BackfillBars fills historical rows behind the ring's live head.
	// One-shot; must tolerate empty history and provider-side throttling
	// (spec.md §7) by returning nil once it cannot make further progress.
	BackfillBars(ctx context.Context, sym string, ring *ohlcring.Ring) error

	// SymbolInfo returns the trading parameters for sym (spec.md §4.3).
	SymbolInfo(sym string) (wireproto.SymbolInfo, bool)

	// TradesDialogue opens the bidirectional broker-events session
	// (spec.md §4.3, §6). It yields the current positions, then streams
	// broker events to events until ctx is cancelled or the adapter gives
	// up. Orders and cancels sent to orders are submitted to the broker.
	TradesDialogue(ctx context.Context, orders <-chan wireproto.Frame, events chan<- wireproto.BrokerdEvent) ([]wireproto.BrokerdPosition, error)
}
