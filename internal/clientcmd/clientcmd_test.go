package clientcmd

import (
	"testing"

	"github.com/tradekit/ems/internal/darkbook"
	"github.com/tradekit/ems/internal/wireproto"
)

func TestSubmitConditionalDarkBuy(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 150.0)

	res := Submit(book, wireproto.Order{
		OID: "o1", Symbol: "AAPL", Action: wireproto.ActionBuy, ExecMode: wireproto.ExecDark, Price: 145.0, Size: 10,
	}, 0.01)

	if res.Status == nil || res.Status.Resp != wireproto.RespDarkSubmitted {
		t.Fatalf("expected dark_submitted, got %+v", res.Status)
	}
	if !book.IsDark("AAPL", "o1") {
		t.Fatal("expected o1 registered as a dark entry")
	}
}

func TestSubmitConditionalRejectsImmediateFire(t *testing.T) {
	book := darkbook.New()
	book.SetLast("AAPL", 100.0)

	res := Submit(book, wireproto.Order{
		OID: "o1", Symbol: "AAPL", Action: wireproto.ActionBuy, ExecMode: wireproto.ExecDark, Price: 100.0,
	}, 0.01)

	if res.Status == nil || res.Status.Resp != wireproto.RespError {
		t.Fatalf("expected error status, got %+v", res.Status)
	}
	if book.IsDark("AAPL", "o1") {
		t.Fatal("expected book unchanged on rejection")
	}
}

func TestSubmitLiveStoresEmsEntry(t *testing.T) {
	book := darkbook.New()
	res := Submit(book, wireproto.Order{
		OID: "o2", Symbol: "AAPL", Action: wireproto.ActionSell, ExecMode: wireproto.ExecLive, Price: 150.0, Size: 5,
	}, 0.01)

	if res.ToBroker == nil || res.ToBroker.Kind != wireproto.FrameBrokerdOrder {
		t.Fatalf("expected a broker order frame, got %+v", res.ToBroker)
	}
	if !book.IsLive("o2") {
		t.Fatal("expected o2 registered as a live entry")
	}
}

func TestCancelBeforeAckBuffersCancel(t *testing.T) {
	book := darkbook.New()
	book.SetEmsEntry("o2", wireproto.BrokerdOrderFrame(wireproto.BrokerdOrder{OID: "o2"}))

	res := Cancel(book, "AAPL", "o2")
	if res.ToBroker != nil {
		t.Fatalf("expected no immediate broker cancel before ack, got %+v", res.ToBroker)
	}
	if res.Status != nil {
		t.Fatalf("expected no immediate client status, got %+v", res.Status)
	}

	entry, ok := book.EmsEntry("o2")
	if !ok || entry.Kind != wireproto.FrameBrokerdCancel {
		t.Fatalf("expected buffered BrokerdCancel in ems_entries, got %+v", entry)
	}
}

func TestCancelDarkEntryEmitsDarkCancelled(t *testing.T) {
	book := darkbook.New()
	book.RegisterDark(&darkbook.Entry{OID: "o1", Symbol: "AAPL", Predicate: func(float64) bool { return false }})

	res := Cancel(book, "AAPL", "o1")
	if res.Status == nil || res.Status.Resp != wireproto.RespDarkCancelled {
		t.Fatalf("expected dark_cancelled, got %+v", res.Status)
	}
	if book.IsDark("AAPL", "o1") {
		t.Fatal("expected dark entry removed")
	}
}

func TestCancelLiveWithReqIDSendsImmediately(t *testing.T) {
	book := darkbook.New()
	book.BindReqID("o1", "R1")

	res := Cancel(book, "AAPL", "o1")
	if res.ToBroker == nil || res.ToBroker.Kind != wireproto.FrameBrokerdCancel {
		t.Fatalf("expected an immediate broker cancel, got %+v", res.ToBroker)
	}
	if res.ToBroker.BrokerdCancel.ReqID != "R1" {
		t.Fatalf("expected cancel to carry reqid R1, got %s", res.ToBroker.BrokerdCancel.ReqID)
	}
}
