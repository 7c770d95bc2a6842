package state

import (
	"testing"

	"cyberswap/storage"
)

type record struct {
	Name  string
	Count uint64
}

func TestKVReadWrite(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(storage.NewStaged(db))

	if err := mgr.KVPut([]byte("records/a"), record{Name: "a", Count: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got record
	ok, err := mgr.KVGet([]byte("records/a"), &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Name != "a" || got.Count != 3 {
		t.Fatalf("unexpected record %+v", got)
	}
	if err := mgr.KVDelete([]byte("records/a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mgr.KVGet([]byte("records/a"), &got)
	if err != nil || ok {
		t.Fatalf("expected missing record, ok=%v err=%v", ok, err)
	}
	if err := mgr.KVPut(nil, record{}); err == nil {
		t.Fatalf("expected empty key error")
	}
}

func TestNextCounterStartsAtOne(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	staged := storage.NewStaged(db)
	mgr := NewManager(staged)

	for want := uint64(1); want <= 3; want++ {
		got, err := mgr.NextCounter([]byte("count"))
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	staged.Discard()
	current, err := mgr.Counter([]byte("count"))
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if current != 0 {
		t.Fatalf("discarded counter leaked: %d", current)
	}
}
