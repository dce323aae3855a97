// Package translator implements the broker-event translator (spec.md §4.6,
// C6): it normalizes broker-native events into client-visible Status
// messages, resolves each event's oid through the dark book's bimap, and
// releases a buffered cancel once its order's ack finally arrives.
//
// Grounded on the teacher's internal/session.Handler's handleControl
// dispatch: a tag-driven switch that mutates shared session state and
// returns zero or one outbound message per inbound event.
package translator

import (
	"fmt"
	"log"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/wireproto"
)

// ErrUnknownEventKind is returned for an event.Kind the translator does not
// recognize: a protocol error, session-fatal per spec.md §7.
var ErrUnknownEventKind = fmt.Errorf("translator: unknown broker event kind")

// Result is the translator's output for one broker event: at most one
// client-facing status, at most one outbound broker frame (a buffered
// cancel released on ack), and at most one position report.
type Result struct {
	Status   *wireproto.Status
	ToBroker *wireproto.Frame
	Position *wireproto.BrokerdPosition
}

// Handle processes one broker event against book, mutating it per
// spec.md §4.6's algorithm.
func Handle(book *darkbook.Book, ev wireproto.BrokerdEvent) (Result, error) {
	switch ev.Kind {
	case wireproto.EventPosition:
		return Result{Position: ev.Position}, nil
	case wireproto.EventAck, wireproto.EventError, wireproto.EventStatus, wireproto.EventFill:
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEventKind, ev.Kind)
	}

	oid := resolveOID(book, ev)
	if oid == "" {
		if ev.External {
			log.Printf("translator: dropping external event with unresolved oid (reqid=%s)", ev.ReqID)
		}
		return Result{}, nil
	}

	switch ev.Kind {
	case wireproto.EventAck:
		return handleAck(book, oid, ev), nil

	case wireproto.EventError:
		log.Printf("translator: broker error for oid=%s reqid=%s: %s", oid, ev.ReqID, ev.ErrorMsg)
		return Result{}, nil

	case wireproto.EventStatus:
		key := statusDedupKey(ev)
		if book.SeenStatus(oid, key) {
			return Result{}, nil
		}
		status := statusFromEvent(oid, book, ev)
		if isTerminalStatus(ev) {
			// RemoveBinding cleared the dedup state; re-record the terminal
			// key so a re-sent identical terminal status stays a no-op.
			book.SeenStatus(oid, key)
		}
		return Result{Status: status}, nil

	case wireproto.EventFill:
		return Result{Status: fillStatus(oid, ev)}, nil

	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEventKind, ev.Kind)
	}
}

// resolveOID implements spec.md §4.6 step 2: event.oid, else the bimap
// inverse, else a paper-engine-supplied oid nested in opaque details.
func resolveOID(book *darkbook.Book, ev wireproto.BrokerdEvent) string {
	if ev.OID != "" {
		return ev.OID
	}
	if oid, ok := book.OIDForReqID(ev.ReqID); ok {
		return oid
	}
	if ev.Details != nil {
		if paperInfo, ok := ev.Details["paper_info"].(map[string]any); ok {
			if oid, ok := paperInfo["oid"].(string); ok {
				return oid
			}
		}
	}
	return ""
}

// handleAck implements spec.md §4.6 step 3: binds the bimap, then either
// releases a buffered cancel or records the ack as the new ems_entries
// value. No client status is emitted for the ack alone.
func handleAck(book *darkbook.Book, oid string, ev wireproto.BrokerdEvent) Result {
	book.BindReqID(oid, ev.ReqID)

	if prior, ok := book.EmsEntry(oid); ok && prior.Kind == wireproto.FrameBrokerdCancel {
		cancel := *prior.BrokerdCancel
		cancel.ReqID = ev.ReqID
		frame := wireproto.BrokerdCancelFrame(cancel)
		book.SetEmsEntry(oid, frame)
		return Result{ToBroker: &frame}
	}

	book.SetEmsEntry(oid, wireproto.BrokerdEventFrame(ev))
	return Result{}
}

func statusFromEvent(oid string, book *darkbook.Book, ev wireproto.BrokerdEvent) *wireproto.Status {
	var resp wireproto.Resp
	if ev.BrokerStatus == wireproto.BrokerFilled && ev.Remaining == 0 {
		resp = wireproto.RespBrokerExecuted
	} else {
		resp = wireproto.Resp("broker_" + string(ev.BrokerStatus))
	}

	if isTerminalStatus(ev) {
		book.RemoveBinding(oid)
		book.RemoveEmsEntry(oid)
	}

	return &wireproto.Status{
		OID: oid, Resp: resp, TimeNS: ev.TimeNS, BrokerReqID: ev.ReqID,
		BrokerDetails: statusDetails(ev),
	}
}

// isTerminalStatus reports whether ev closes out oid's lifecycle (spec.md
// §3: "ems2brokerd_ids entry ... dies on terminal status").
func isTerminalStatus(ev wireproto.BrokerdEvent) bool {
	switch ev.BrokerStatus {
	case wireproto.BrokerCancelled, wireproto.BrokerInactive:
		return true
	case wireproto.BrokerFilled:
		return ev.Remaining == 0
	default:
		return false
	}
}

// statusDedupKey identifies a broker status event by the fields spec.md §8
// dedups on: a repeat of the same (status, filled) for an oid is a no-op.
func statusDedupKey(ev wireproto.BrokerdEvent) string {
	return fmt.Sprintf("%s:%v", ev.BrokerStatus, ev.Filled)
}

func fillStatus(oid string, ev wireproto.BrokerdEvent) *wireproto.Status {
	return &wireproto.Status{
		OID: oid, Resp: wireproto.RespBrokerFilled, TimeNS: ev.TimeNS, BrokerReqID: ev.ReqID,
		BrokerDetails: fillDetails(ev),
	}
}

func statusDetails(ev wireproto.BrokerdEvent) map[string]any {
	return map[string]any{
		"brokerStatus": ev.BrokerStatus,
		"filled":       ev.Filled,
		"remaining":    ev.Remaining,
		"reason":       ev.Reason,
	}
}

func fillDetails(ev wireproto.BrokerdEvent) map[string]any {
	return map[string]any{
		"execId":     ev.ExecID,
		"brokerTime": ev.BrokerTime,
		"fillSize":   ev.FillSize,
		"fillPrice":  ev.FillPrice,
		"fillAction": ev.FillAction,
	}
}
