// Package trigger implements the dark trigger loop (spec.md §4.5, C5): it
// builds predicates at submission time and scans live quotes against every
// pending dark entry for a symbol, firing broker orders or alerts exactly
// once per entry.
//
// Grounded on the teacher's internal/orderbook.Simulator's Step() iteration
// structure (an action loop walking a per-symbol working set once per
// tick), repurposed from generating synthetic order-book messages to
// evaluating client-registered predicates.
package trigger

import (
	"errors"
	"time"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/wireproto"
)

// ErrImmediateFire is returned by BuildEntry when the requested trigger
// price would fire immediately against the known last price (spec.md §7).
var ErrImmediateFire = errors.New("trigger: predicate would fire immediately")

// tickFilterFor and slippageFor return the tick_filter and percent/abs-diff
// slippage the action table in spec.md §4.5 prescribes.
func tickFilterFor(action wireproto.Action) map[wireproto.TickType]bool {
	switch action {
	case wireproto.ActionBuy:
		return map[wireproto.TickType]bool{wireproto.TickAsk: true, wireproto.TickLast: true, wireproto.TickTrade: true}
	case wireproto.ActionSell:
		return map[wireproto.TickType]bool{wireproto.TickBid: true, wireproto.TickLast: true, wireproto.TickTrade: true}
	default: // alert
		return map[wireproto.TickType]bool{wireproto.TickTrade: true, wireproto.TickUTrade: true, wireproto.TickLast: true}
	}
}

func slippageFor(action wireproto.Action, minTick float64) (percentAway, absDiffAway float64) {
	switch action {
	case wireproto.ActionBuy:
		return 0.005, 5 * minTick
	case wireproto.ActionSell:
		return -0.005, -5 * minTick
	default:
		return 0, 0
	}
}

// BuildEntry constructs a darkbook.Entry for cmd, given the last known price
// for its symbol and the symbol's minimum tick size. Returns
// ErrImmediateFire if trigger_price is exactly the known last (neither
// "above" nor "below" predicate applies), per spec.md §4.5.
func BuildEntry(cmd wireproto.Order, lastKnown, minTick float64) (*darkbook.Entry, error) {
	trigger := cmd.Price

	var predicate func(float64) bool
	switch {
	case trigger > lastKnown:
		predicate = func(p float64) bool { return p >= trigger } // "above"
	case trigger < lastKnown:
		predicate = func(p float64) bool { return p <= trigger } // "below"
	default:
		return nil, ErrImmediateFire // trigger == last: would fire immediately
	}

	percentAway, absDiffAway := slippageFor(cmd.Action, minTick)
	return &darkbook.Entry{
		OID:         cmd.OID,
		Symbol:      cmd.Symbol,
		Predicate:   predicate,
		TickFilter:  tickFilterFor(cmd.Action),
		Cmd:         cmd,
		PercentAway: percentAway,
		AbsDiffAway: absDiffAway,
	}, nil
}

// Fired is one trigger firing's output: a client status and, for non-alert
// actions, the broker order to submit.
type Fired struct {
	Status      wireproto.Status
	BrokerOrder *wireproto.BrokerdOrder
}

// Scan evaluates quote against every dark entry registered for symbol in
// book, updating lasts and firing at most once per entry (spec.md §4.5).
// Firings are returned in the insertion order they occurred in, matching
// the same-quote ordering guarantee (spec.md §5).
func Scan(book *darkbook.Book, symbol string, quote wireproto.Quote) []Fired {
	var fired []Fired

	for _, tick := range quote.Ticks {
		book.SetLast(symbol, tick.Price)

		for _, e := range book.DarkEntriesInOrder(symbol) {
			if !e.TickFilter[tick.Type] {
				continue
			}
			if !e.Predicate(tick.Price) {
				continue
			}

			book.RemoveDark(symbol, e.OID)
			fired = append(fired, fire(e, tick.Price))
		}
	}

	return fired
}

func fire(e *darkbook.Entry, price float64) Fired {
	now := time.Now().UnixNano()

	if e.Cmd.Action == wireproto.ActionAlert {
		return Fired{
			Status: wireproto.Status{
				OID: e.OID, Symbol: e.Symbol, Resp: wireproto.RespAlertTriggered,
				TimeNS: now, TriggerPrice: price,
			},
		}
	}

	submitPrice := price + e.AbsDiffAway
	order := &wireproto.BrokerdOrder{
		OID: e.OID, TimeNS: now, Symbol: e.Symbol,
		Action: e.Cmd.Action, Price: submitPrice, Size: e.Cmd.Size,
	}
	return Fired{
		Status: wireproto.Status{
			OID: e.OID, Symbol: e.Symbol, Resp: wireproto.RespDarkTriggered,
			TimeNS: now, TriggerPrice: price,
		},
		BrokerOrder: order,
	}
}
