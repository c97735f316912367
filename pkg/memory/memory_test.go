package memory

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestUnwrittenWordsReadZero(t *testing.T) {
	m := New(8)
	for addr := int64(0); addr < 8; addr++ {
		v, err := m.Load(addr)
		if err != nil {
			t.Fatalf("Load(%d): %v", addr, err)
		}
		if v != 0 {
			t.Fatalf("Load(%d) = %d, want 0", addr, v)
		}
	}
}

func TestStoreThenLoad(t *testing.T) {
	m := New(4)
	if err := m.Store(3, -17); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if v, _ := m.Load(3); v != -17 {
		t.Fatalf("Load = %d, want -17", v)
	}
}

func TestOutOfBoundsAccess(t *testing.T) {
	m := New(4)
	for _, addr := range []int64{-1, 4, math.MaxInt64, math.MinInt64} {
		_, err := m.Load(addr)
		var addrErr *AddressError
		if !errors.As(err, &addrErr) {
			t.Fatalf("Load(%d): expected AddressError, got %v", addr, err)
		}
		if addrErr.Addr != addr || addrErr.Size != 4 {
			t.Fatalf("unexpected error payload: %#v", addrErr)
		}
		if err := m.Store(addr, 1); err == nil {
			t.Fatalf("Store(%d): expected error", addr)
		}
	}
}

func TestDefaultSize(t *testing.T) {
	if got := New(0).Size(); got != DefaultWords {
		t.Fatalf("Size = %d, want %d", got, DefaultWords)
	}
}

func TestConcurrentStoresDoNotTear(t *testing.T) {
	m := New(1)
	values := []int64{math.MaxInt64, math.MinInt64, -1, 0x5555555555555555}
	var wg sync.WaitGroup
	for _, v := range values {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = m.Store(0, v)
			}
		}(v)
	}
	wg.Wait()
	got, _ := m.Load(0)
	for _, v := range values {
		if got == v {
			return
		}
	}
	t.Fatalf("observed torn value %x", got)
}

func TestSnapshotClamps(t *testing.T) {
	m := New(4)
	_ = m.Store(2, 5)
	_ = m.Store(3, 6)
	got := m.Snapshot(2, 10)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("Snapshot = %v", got)
	}
	if m.Snapshot(9, 1) != nil {
		t.Fatalf("expected nil snapshot past end")
	}
}
