package ohlcring

import "testing"

func TestPushAndArrayOrder(t *testing.T) {
	r := New("test", 3)
	r.Push(Bar{Close: 1}, false)
	r.Push(Bar{Close: 2}, false)
	r.Push(Bar{Close: 3}, false)

	arr := r.Array()
	if len(arr) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(arr))
	}
	if arr[0].Close != 1 || arr[2].Close != 3 {
		t.Fatalf("unexpected ordering: %v", arr)
	}
}

func TestPushOverwritesOldestWhenFull(t *testing.T) {
	r := New("test", 2)
	r.Push(Bar{Close: 1}, false)
	r.Push(Bar{Close: 2}, false)
	r.Push(Bar{Close: 3}, false)

	arr := r.Array()
	if len(arr) != 2 {
		t.Fatalf("expected capacity-bounded len 2, got %d", len(arr))
	}
	if arr[0].Close != 2 || arr[1].Close != 3 {
		t.Fatalf("expected oldest row evicted, got %v", arr)
	}
}

func TestPrependInsertsAtTail(t *testing.T) {
	r := New("test", 5)
	r.Push(Bar{Close: 10}, false)
	r.Push(Bar{Close: 9}, true) // backfill, older than 10

	arr := r.Array()
	if len(arr) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(arr))
	}
	if arr[0].Close != 9 || arr[1].Close != 10 {
		t.Fatalf("expected prepended row first, got %v", arr)
	}
}

func TestUpdateHeadMutatesLastRow(t *testing.T) {
	r := New("test", 5)
	r.Push(Bar{Close: 1}, false)
	r.Push(Bar{Close: 2}, false)

	r.UpdateHead(func(b *Bar) { b.High = 99 })

	arr := r.Array()
	if arr[1].High != 99 {
		t.Fatalf("expected head row updated, got %v", arr[1])
	}
	if arr[0].High == 99 {
		t.Fatal("update leaked into non-head row")
	}
}

func TestAcquireWriterIsExclusive(t *testing.T) {
	r := New("test", 5)
	if !r.AcquireWriter() {
		t.Fatal("first acquire should succeed")
	}
	if r.AcquireWriter() {
		t.Fatal("second concurrent acquire must fail")
	}
	r.ReleaseWriter()
	if !r.AcquireWriter() {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRegistryGetOrCreateIdempotent(t *testing.T) {
	reg := NewRegistry()
	r1, created1 := reg.GetOrCreate("ib:AAPL", 10)
	r2, created2 := reg.GetOrCreate("ib:AAPL", 999)

	if !created1 {
		t.Fatal("first GetOrCreate should report created")
	}
	if created2 {
		t.Fatal("second GetOrCreate should report existing")
	}
	if r1 != r2 {
		t.Fatal("expected same ring instance")
	}
}
