package dataman

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHeaderRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteHeader(NamespaceWaypoints0, Header{Count: 3, CurrentSeq: 1}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	h, err := s.ReadHeader(NamespaceWaypoints0)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.Count != 3 || h.CurrentSeq != 1 {
		t.Fatalf("header = %+v, want {3 1}", h)
	}
}

func TestReadHeaderMissingReturnsZeroValue(t *testing.T) {
	s := openTestStore(t)

	h, err := s.ReadHeader(NamespaceFence)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != (Header{}) {
		t.Fatalf("header = %+v, want zero value", h)
	}
}

type testItem struct {
	Lat, Lon float64
	Alt      float32
}

func TestItemRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := testItem{Lat: 47.1, Lon: 8.5, Alt: 100}
	if err := s.WriteItem(NamespaceWaypoints0, 1, want); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}

	var got testItem
	ok, err := s.ReadItem(NamespaceWaypoints0, 1, &got)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if !ok {
		t.Fatal("expected item to be found")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadItemMissingSlot(t *testing.T) {
	s := openTestStore(t)

	var got testItem
	ok, err := s.ReadItem(NamespaceWaypoints0, 5, &got)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if ok {
		t.Fatal("expected slot to be absent")
	}
}

func TestClearRemovesAllSlots(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteHeader(NamespaceFence, Header{Count: 2}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := s.WriteItem(NamespaceFence, 1, testItem{Lat: 1}); err != nil {
		t.Fatalf("WriteItem: %v", err)
	}

	if err := s.Clear(NamespaceFence); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	h, err := s.ReadHeader(NamespaceFence)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != (Header{}) {
		t.Fatalf("header = %+v after clear, want zero value", h)
	}

	var got testItem
	ok, err := s.ReadItem(NamespaceFence, 1, &got)
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if ok {
		t.Fatal("expected item to be cleared")
	}
}

func TestWaypointNamespaceSelectsBuffer(t *testing.T) {
	if WaypointNamespace(0) != NamespaceWaypoints0 {
		t.Fatal("dataman id 0 should select buffer 0")
	}
	if WaypointNamespace(1) != NamespaceWaypoints1 {
		t.Fatal("dataman id 1 should select buffer 1")
	}
}

func TestLockBlocksConcurrentHolder(t *testing.T) {
	s := openTestStore(t)

	s.Lock(NamespaceFence)

	acquired := make(chan struct{})
	go func() {
		s.Lock(NamespaceFence)
		close(acquired)
		s.Unlock(NamespaceFence)
	}()

	select {
	case <-acquired:
		t.Fatal("expected second Lock to block while the first holder has it")
	case <-time.After(20 * time.Millisecond):
	}

	s.Unlock(NamespaceFence)

	select {
	case <-acquired:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected second Lock to acquire once the first is released")
	}
}

func TestLockIsPerNamespace(t *testing.T) {
	s := openTestStore(t)

	s.Lock(NamespaceFence)
	defer s.Unlock(NamespaceFence)

	done := make(chan struct{})
	go func() {
		s.Lock(NamespaceSafepoints)
		s.Unlock(NamespaceSafepoints)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a different namespace's lock to be independent")
	}
}

func TestItemSlotMustBePositive(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteItem(NamespaceWaypoints0, 0, testItem{}); err == nil {
		t.Fatal("expected error writing to slot 0")
	}
	if _, err := s.ReadItem(NamespaceWaypoints0, 0, &testItem{}); err == nil {
		t.Fatal("expected error reading slot 0")
	}
}
