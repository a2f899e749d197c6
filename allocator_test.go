package gic

import (
	"errors"
	"testing"
)

func TestSPIAllocatorSkipsReserved(t *testing.T) {
	a := NewSPIAllocator(0, []IntID{SPI(1), SPI(2)})

	first, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if first != SPI(0) {
		t.Fatalf("first allocation = %v, want SPI 0", first)
	}

	second, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if second != SPI(3) {
		t.Fatalf("second allocation = %v, want SPI 3", second)
	}
}

func TestSPIAllocatorExhaustion(t *testing.T) {
	a := NewSPIAllocator(986, nil)

	for i := 0; i < 2; i++ {
		if _, err := a.Allocate(); err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
	}
	if _, err := a.Allocate(); !errors.Is(err, ErrSPIExhausted) {
		t.Fatalf("expected ErrSPIExhausted, got %v", err)
	}
}

func TestSPIAllocatorNeverRepeats(t *testing.T) {
	a := NewSPIAllocator(100, []IntID{SPI(101), SPI(103)})
	seen := make(map[IntID]struct{})
	for i := 0; i < 10; i++ {
		id, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("identifier %v allocated twice", id)
		}
		if id == SPI(101) || id == SPI(103) {
			t.Fatalf("reserved identifier %v allocated", id)
		}
		seen[id] = struct{}{}
	}
}
