package gic

import (
	"errors"
	"sync"
)

// ErrSPIExhausted is returned by SPIAllocator.Allocate when every shared
// peripheral identifier at or above the start index has been handed out or
// reserved.
var ErrSPIExhausted = errors.New("gic: no free SPI identifiers")

// SPIAllocator hands out shared peripheral interrupt identifiers, avoiding
// collisions between devices that need unique lines (e.g. virtio-mmio
// instances). How many lines get allocated is runtime data, so exhaustion is
// an error rather than a panic.
type SPIAllocator struct {
	mu       sync.Mutex
	next     uint32
	reserved map[IntID]struct{}
}

// NewSPIAllocator allocates identifiers starting at SPI index start, skipping
// the reserved identifiers (which may name any class; non-SPI entries are
// simply never candidates).
func NewSPIAllocator(start uint32, reserved []IntID) *SPIAllocator {
	r := make(map[IntID]struct{}, len(reserved))
	for _, id := range reserved {
		r[id] = struct{}{}
	}
	return &SPIAllocator{
		next:     start,
		reserved: r,
	}
}

// Allocate returns the next unreserved SPI identifier.
func (a *SPIAllocator) Allocate() (IntID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.next < uint32(SpecialBase-SPIBase) {
		id := SPI(a.next)
		a.next++
		if _, used := a.reserved[id]; used {
			continue
		}
		a.reserved[id] = struct{}{}
		return id, nil
	}
	return 0, ErrSPIExhausted
}
