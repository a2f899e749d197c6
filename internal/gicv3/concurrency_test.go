package gicv3

import (
	"sync"
	"testing"
	"time"

	"github.com/tinyrange/gic"
)

// TestConcurrentServiceAcrossCores runs one service loop per core while SPIs
// are asserted from the outside. Acknowledge and end are core-local by
// contract, so the loops run without any coordination between them; the test
// checks that every interrupt is serviced exactly once across the system.
func TestConcurrentServiceAcrossCores(t *testing.T) {
	const cores = 4
	const lines = 64

	model, drivers := newTestGIC(t, cores)
	for i := uint32(0); i < lines; i++ {
		drivers[0].SetTrigger(gic.SPI(i), gic.TriggerEdge)
		drivers[0].EnableInterrupt(gic.SPI(i))
	}

	var mu sync.Mutex
	serviced := make(map[gic.IntID]int)

	var wg sync.WaitGroup
	deadline := time.Now().Add(5 * time.Second)
	for cpu := range drivers {
		wg.Add(1)
		go func(d *Driver) {
			defer wg.Done()
			for time.Now().Before(deadline) {
				id, ok := d.GetAndAcknowledgeInterrupt()
				if !ok {
					mu.Lock()
					done := len(serviced) == lines
					mu.Unlock()
					if done {
						return
					}
					continue
				}
				d.EndInterrupt(id)

				mu.Lock()
				serviced[id]++
				mu.Unlock()
			}
		}(drivers[cpu])
	}

	for i := uint32(0); i < lines; i++ {
		model.SetLine(0, gic.SPI(i), true)
		model.SetLine(0, gic.SPI(i), false)
	}
	wg.Wait()

	if len(serviced) != lines {
		t.Fatalf("serviced %d distinct interrupts, want %d", len(serviced), lines)
	}
	for id, count := range serviced {
		if count != 1 {
			t.Fatalf("%v serviced %d times", id, count)
		}
	}
}
