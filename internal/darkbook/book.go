// Package darkbook holds the per-broker registry of pending dark triggers,
// last-seen prices, and the live-order id mapping (spec.md §3, §4.4, C4).
//
// Grounded on the teacher's internal/orderbook.Book: a flat, owned map
// keyed by id with side-indexed iteration order. Unlike that book, Book
// here carries no mutex: spec.md §5 is explicit that the dark book is
// mutated exclusively by the three tasks of one EMS session, which all run
// on the owning goroutine's single event loop (see internal/emssession),
// so no cross-task locking is needed or wanted.
package darkbook

import "github.com/tradekit/ems/internal/wireproto"

// Entry is one registered dark trigger (spec.md §3 orders tuple).
type Entry struct {
	OID          string
	Symbol       string
	Predicate    func(price float64) bool
	TickFilter   map[wireproto.TickType]bool
	Cmd          wireproto.Order
	PercentAway  float64
	AbsDiffAway  float64
}

// symbolOrders preserves insertion order for per-symbol iteration, since
// spec.md §4.5 requires same-quote triggers to fire in insertion order.
type symbolOrders struct {
	order []string
	byOID map[string]*Entry
}

// Book is the dark book for one broker.
type Book struct {
	orders map[string]*symbolOrders // symbol -> orders
	lasts  map[string]float64       // symbol -> last price

	emsEntries map[string]wireproto.Frame // oid -> most recent broker-facing msg

	oid2reqid map[string]string // ems2brokerd_ids, forward
	reqid2oid map[string]string // ems2brokerd_ids, inverse

	lastStatus map[string]string // oid -> last-seen "status:filled" key, for dedup
}

// New creates an empty dark book.
func New() *Book {
	return &Book{
		orders:     make(map[string]*symbolOrders),
		lasts:      make(map[string]float64),
		emsEntries: make(map[string]wireproto.Frame),
		oid2reqid:  make(map[string]string),
		reqid2oid:  make(map[string]string),
		lastStatus: make(map[string]string),
	}
}

// SetLast records the most recent traded/quoted price for symbol.
func (b *Book) SetLast(symbol string, price float64) {
	b.lasts[symbol] = price
}

// Last returns the most recent price recorded for symbol.
func (b *Book) Last(symbol string) (float64, bool) {
	p, ok := b.lasts[symbol]
	return p, ok
}

// RegisterDark inserts or overwrites the dark entry for (symbol, oid).
// Overwriting an existing oid replaces its entry but keeps the oid's
// original insertion slot in iteration order.
func (b *Book) RegisterDark(e *Entry) {
	so, ok := b.orders[e.Symbol]
	if !ok {
		so = &symbolOrders{byOID: make(map[string]*Entry)}
		b.orders[e.Symbol] = so
	}
	if _, exists := so.byOID[e.OID]; !exists {
		so.order = append(so.order, e.OID)
	}
	so.byOID[e.OID] = e
}

// RemoveDark removes the dark entry for (symbol, oid), if present.
func (b *Book) RemoveDark(symbol, oid string) {
	so, ok := b.orders[symbol]
	if !ok {
		return
	}
	if _, exists := so.byOID[oid]; !exists {
		return
	}
	delete(so.byOID, oid)
	for i, id := range so.order {
		if id == oid {
			so.order = append(so.order[:i], so.order[i+1:]...)
			break
		}
	}
}

// DarkEntry returns the dark entry for (symbol, oid), if any.
func (b *Book) DarkEntry(symbol, oid string) (*Entry, bool) {
	so, ok := b.orders[symbol]
	if !ok {
		return nil, false
	}
	e, ok := so.byOID[oid]
	return e, ok
}

// DarkEntriesInOrder returns the entries registered for symbol in
// insertion order, the iteration spec.md §4.5 requires when scanning a
// quote against every pending predicate.
func (b *Book) DarkEntriesInOrder(symbol string) []*Entry {
	so, ok := b.orders[symbol]
	if !ok {
		return nil
	}
	out := make([]*Entry, 0, len(so.order))
	for _, id := range so.order {
		out = append(out, so.byOID[id])
	}
	return out
}

// SetEmsEntry records msg as the current live-flow message for oid
// (ems_entries[oid], spec.md §3).
func (b *Book) SetEmsEntry(oid string, msg wireproto.Frame) {
	b.emsEntries[oid] = msg
}

// EmsEntry returns the current live-flow message for oid, if any.
func (b *Book) EmsEntry(oid string) (wireproto.Frame, bool) {
	f, ok := b.emsEntries[oid]
	return f, ok
}

// RemoveEmsEntry clears oid's live-flow entry.
func (b *Book) RemoveEmsEntry(oid string) {
	delete(b.emsEntries, oid)
}

// BindReqID populates ems2brokerd_ids on ack (spec.md §4.6 step 3). It is
// the only way the bimap gains an entry.
func (b *Book) BindReqID(oid, reqid string) {
	b.oid2reqid[oid] = reqid
	b.reqid2oid[reqid] = oid
}

// ReqIDForOID looks up the broker reqid bound to oid.
func (b *Book) ReqIDForOID(oid string) (string, bool) {
	r, ok := b.oid2reqid[oid]
	return r, ok
}

// OIDForReqID looks up the oid bound to a broker reqid. A lookup before
// ack correctly yields false (spec.md §3: "any lookup by reqid before ack
// yields null").
func (b *Book) OIDForReqID(reqid string) (string, bool) {
	o, ok := b.reqid2oid[reqid]
	return o, ok
}

// RemoveBinding clears oid's bimap entry, called on terminal status
// (spec.md §3 lifecycle: "dies on terminal status").
func (b *Book) RemoveBinding(oid string) {
	reqid, ok := b.oid2reqid[oid]
	if !ok {
		return
	}
	delete(b.oid2reqid, oid)
	delete(b.reqid2oid, reqid)
	delete(b.lastStatus, oid)
}

// SeenStatus reports whether key was already recorded as oid's most recent
// status, implementing the "(oid, status, filled) dedup" idempotence law
// (spec.md §8). The first call for a given key returns false and records
// it; a repeat of the same key returns true without side effects.
func (b *Book) SeenStatus(oid, key string) bool {
	if b.lastStatus[oid] == key {
		return true
	}
	b.lastStatus[oid] = key
	return false
}

// DarkCount returns the number of pending dark triggers on symbol.
func (b *Book) DarkCount(symbol string) int {
	so, ok := b.orders[symbol]
	if !ok {
		return 0
	}
	return len(so.order)
}

// LiveCount returns the number of orders currently in the live-flow table.
func (b *Book) LiveCount() int {
	return len(b.emsEntries)
}

// IsDark reports whether oid currently has a dark registration on symbol.
func (b *Book) IsDark(symbol, oid string) bool {
	_, ok := b.DarkEntry(symbol, oid)
	return ok
}

// IsLive reports whether oid currently has a live-flow entry.
func (b *Book) IsLive(oid string) bool {
	_, ok := b.emsEntries[oid]
	return ok
}
