// Package clientcmd implements the client command processor (spec.md
// §4.7, C7): it turns inbound client Order/cancel intents into dark-book
// mutations and outbound broker orders or client statuses.
//
// Grounded on the teacher's internal/session.Handler dispatch plus
// internal/api/handlers.go's request-validation style (reject with a
// structured error rather than panicking on a malformed request).
package clientcmd

import (
	"time"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/trigger"
	"github.com/tradekit/ems/internal/wireproto"
)

// Result is the client command processor's output for one inbound
// command: at most one client-facing status and at most one outbound
// broker frame.
type Result struct {
	Status   *wireproto.Status
	ToBroker *wireproto.Frame
}

// Cancel implements spec.md §4.7's cancel(oid) algorithm.
func Cancel(book *darkbook.Book, symbol, oid string) Result {
	now := time.Now().UnixNano()

	if reqid, ok := book.ReqIDForOID(oid); ok {
		frame := wireproto.BrokerdCancelFrame(wireproto.BrokerdCancel{OID: oid, ReqID: reqid, TimeNS: now})
		return Result{ToBroker: &frame}
	}

	if book.IsDark(symbol, oid) {
		book.RemoveDark(symbol, oid)
		return Result{Status: &wireproto.Status{
			OID: oid, Symbol: symbol, Resp: wireproto.RespDarkCancelled, TimeNS: now,
		}}
	}

	// Submitted but not yet acked: buffer the cancel for the translator's
	// ack handler to release once the reqid is known (spec.md §4.6 step 3).
	frame := wireproto.BrokerdCancelFrame(wireproto.BrokerdCancel{OID: oid, TimeNS: now})
	book.SetEmsEntry(oid, frame)
	return Result{}
}

// SubmitLive implements spec.md §4.7's live submit/modify algorithm.
func SubmitLive(book *darkbook.Book, cmd wireproto.Order) Result {
	now := time.Now().UnixNano()

	reqid, _ := book.ReqIDForOID(cmd.OID) // "" if this is a fresh submit, not yet acked

	order := wireproto.BrokerdOrder{
		OID: cmd.OID, ReqID: reqid, TimeNS: now, Symbol: cmd.Symbol,
		Action: cmd.Action, Price: cmd.Price, Size: cmd.Size,
	}
	frame := wireproto.BrokerdOrderFrame(order)
	book.SetEmsEntry(cmd.OID, frame)

	return Result{ToBroker: &frame}
}

// SubmitConditional implements spec.md §4.7's dark/paper/alert submit
// algorithm: build a predicate from the known last price, and reject with
// Status(resp=error) if it would fire immediately.
func SubmitConditional(book *darkbook.Book, cmd wireproto.Order, minTick float64) Result {
	now := time.Now().UnixNano()

	lastKnown, _ := book.Last(cmd.Symbol) // zero value is fine: any price trips a direction

	entry, err := trigger.BuildEntry(cmd, lastKnown, minTick)
	if err != nil {
		return Result{Status: &wireproto.Status{
			OID: cmd.OID, Symbol: cmd.Symbol, Resp: wireproto.RespError, TimeNS: now,
		}}
	}

	book.RegisterDark(entry)

	resp := wireproto.RespDarkSubmitted
	if cmd.Action == wireproto.ActionAlert {
		resp = wireproto.RespAlertSubmitted
	}
	return Result{Status: &wireproto.Status{
		OID: cmd.OID, Symbol: cmd.Symbol, Resp: resp, TimeNS: now,
	}}
}

// Submit dispatches cmd to SubmitLive or SubmitConditional per its
// exec_mode/action (spec.md §4.7).
func Submit(book *darkbook.Book, cmd wireproto.Order, minTick float64) Result {
	if cmd.ExecMode == wireproto.ExecLive && (cmd.Action == wireproto.ActionBuy || cmd.Action == wireproto.ActionSell) {
		return SubmitLive(book, cmd)
	}
	return SubmitConditional(book, cmd, minTick)
}
