package translator

import (
	"testing"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/wireproto"
)

func TestAckBindsBimapAndEmitsNoStatus(t *testing.T) {
	book := darkbook.New()
	res, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventAck, OID: "o1", ReqID: "R1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Status != nil {
		t.Fatalf("expected no status for a bare ack, got %+v", res.Status)
	}
	if reqid, ok := book.ReqIDForOID("o1"); !ok || reqid != "R1" {
		t.Fatalf("expected bimap bound to R1, got %s ok=%v", reqid, ok)
	}
}

func TestCancelBeforeAckReleasesOnAck(t *testing.T) {
	book := darkbook.New()
	book.SetEmsEntry("o2", wireproto.BrokerdCancelFrame(wireproto.BrokerdCancel{OID: "o2"}))

	res, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventAck, OID: "o2", ReqID: "R2"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.ToBroker == nil || res.ToBroker.Kind != wireproto.FrameBrokerdCancel {
		t.Fatalf("expected a released BrokerdCancel frame, got %+v", res.ToBroker)
	}
	if res.ToBroker.BrokerdCancel.ReqID != "R2" {
		t.Fatalf("expected released cancel to carry reqid R2, got %s", res.ToBroker.BrokerdCancel.ReqID)
	}
}

func TestFillThenExecutedSequence(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")
	book.SetEmsEntry("o1", wireproto.BrokerdOrderFrame(wireproto.BrokerdOrder{OID: "o1"}))

	fillRes, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventFill, ReqID: "R1", FillSize: 5, FillPrice: 100})
	if err != nil {
		t.Fatalf("Handle fill: %v", err)
	}
	if fillRes.Status == nil || fillRes.Status.Resp != wireproto.RespBrokerFilled {
		t.Fatalf("expected broker_filled, got %+v", fillRes.Status)
	}
	if fillRes.Status.OID != "o1" {
		t.Fatalf("expected resolved oid o1, got %s", fillRes.Status.OID)
	}

	execRes, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, ReqID: "R1", BrokerStatus: wireproto.BrokerFilled, Remaining: 0})
	if err != nil {
		t.Fatalf("Handle status: %v", err)
	}
	if execRes.Status == nil || execRes.Status.Resp != wireproto.RespBrokerExecuted {
		t.Fatalf("expected broker_executed, got %+v", execRes.Status)
	}

	if book.IsLive("o1") {
		t.Fatal("expected ems_entries cleared on broker_executed")
	}
	if _, ok := book.ReqIDForOID("o1"); ok {
		t.Fatal("expected bimap entry cleared on broker_executed")
	}
}

func TestCancelledStatusClearsBindingAndEmsEntry(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")
	book.SetEmsEntry("o1", wireproto.BrokerdCancelFrame(wireproto.BrokerdCancel{OID: "o1"}))

	res, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, ReqID: "R1", BrokerStatus: wireproto.BrokerCancelled})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Status == nil || res.Status.Resp != wireproto.RespBrokerCancelled {
		t.Fatalf("expected broker_cancelled, got %+v", res.Status)
	}
	if book.IsLive("o1") {
		t.Fatal("expected ems_entries cleared on cancelled status")
	}
	if _, ok := book.ReqIDForOID("o1"); ok {
		t.Fatal("expected bimap entry cleared on cancelled status")
	}
}

func TestInactiveStatusClearsBindingAndEmsEntry(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")
	book.SetEmsEntry("o1", wireproto.BrokerdOrderFrame(wireproto.BrokerdOrder{OID: "o1"}))

	_, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, ReqID: "R1", BrokerStatus: wireproto.BrokerInactive})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if book.IsLive("o1") {
		t.Fatal("expected ems_entries cleared on inactive status")
	}
	if _, ok := book.ReqIDForOID("o1"); ok {
		t.Fatal("expected bimap entry cleared on inactive status")
	}
}

func TestDuplicateTerminalStatusIsNoop(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")

	first, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, ReqID: "R1", BrokerStatus: wireproto.BrokerFilled, Remaining: 0})
	if err != nil {
		t.Fatalf("Handle first: %v", err)
	}
	if first.Status == nil || first.Status.Resp != wireproto.RespBrokerExecuted {
		t.Fatalf("expected broker_executed on first delivery, got %+v", first.Status)
	}

	second, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, OID: "o1", BrokerStatus: wireproto.BrokerFilled, Remaining: 0})
	if err != nil {
		t.Fatalf("Handle second: %v", err)
	}
	if second.Status != nil {
		t.Fatalf("expected a re-sent identical status to be a no-op, got %+v", second.Status)
	}
}

func TestDistinctStatusesForSameOIDAreNotDeduped(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")

	submitted, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, ReqID: "R1", BrokerStatus: wireproto.BrokerSubmitted, Remaining: 10})
	if err != nil {
		t.Fatalf("Handle submitted: %v", err)
	}
	if submitted.Status == nil {
		t.Fatal("expected a status for the first submitted event")
	}

	executed, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventStatus, OID: "o1", BrokerStatus: wireproto.BrokerFilled, Remaining: 0})
	if err != nil {
		t.Fatalf("Handle executed: %v", err)
	}
	if executed.Status == nil || executed.Status.Resp != wireproto.RespBrokerExecuted {
		t.Fatalf("expected a distinct status to still be delivered, got %+v", executed.Status)
	}
}

func TestErrorEventIsDroppedNotForwarded(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")

	res, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventError, ReqID: "R1", ErrorMsg: "market data farm OK"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Status != nil {
		t.Fatalf("expected broker error not forwarded to client, got %+v", res.Status)
	}
}

func TestUnknownEventKindIsProtocolError(t *testing.T) {
	book := darkbook.New()
	_, err := Handle(book, wireproto.BrokerdEvent{Kind: "bogus", ReqID: "R1"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized event kind")
	}
}

func TestPositionEventPassesThrough(t *testing.T) {
	book := darkbook.New()
	pos := &wireproto.BrokerdPosition{Broker: "sim", Symbol: "AAPL", Size: 100}
	res, err := Handle(book, wireproto.BrokerdEvent{Kind: wireproto.EventPosition, Position: pos})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Position != pos {
		t.Fatalf("expected position passed through, got %+v", res.Position)
	}
}
