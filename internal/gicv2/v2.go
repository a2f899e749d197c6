package gicv2

import (
	"fmt"

	"github.com/tinyrange/gic"
	"github.com/tinyrange/gic/internal/mmio"
)

// Driver programs a GICv2 through its distributor and banked CPU interface
// registers and implements the generic controller contract. One Driver value
// is bound to one core at construction: the six lifecycle operations are
// core-local by contract, and on real hardware core identity comes from which
// core performs the access.
//
// The register path is assumed functional; a bus fault while programming the
// controller is unrecoverable and panics.
type Driver struct {
	bus      *mmio.Bus
	distBase uint64
	cpuBase  uint64
}

// NewDriver builds a driver for the core whose GIC frames are reachable
// through bus at the given bases.
func NewDriver(bus *mmio.Bus, distBase, cpuBase uint64) *Driver {
	return &Driver{bus: bus, distBase: distBase, cpuBase: cpuBase}
}

func (d *Driver) read32(addr uint64) uint32 {
	value, err := d.bus.Read32(addr)
	if err != nil {
		panic(fmt.Sprintf("gicv2: register read fault: %v", err))
	}
	return value
}

func (d *Driver) write32(addr uint64, value uint32) {
	if err := d.bus.Write32(addr, value); err != nil {
		panic(fmt.Sprintf("gicv2: register write fault: %v", err))
	}
}

// InitPrimary resets the distributor to a quiescent state and enables it:
// everything masked, nothing pending or active, shared peripherals
// level-triggered.
func (d *Driver) InitPrimary() {
	d.write32(d.distBase+gicdCtlr, 0)

	for word := 1; word < numIRQWords; word++ {
		off := uint64(word * 4)
		d.write32(d.distBase+gicdIcenabler+off, 0xFFFFFFFF)
		d.write32(d.distBase+gicdIcpendr+off, 0xFFFFFFFF)
		d.write32(d.distBase+gicdIcactiver+off, 0xFFFFFFFF)
	}
	for word := 2; word < numIRQWords*2; word++ {
		d.write32(d.distBase+gicdIcfgr+uint64(word*4), 0)
	}

	d.write32(d.distBase+gicdCtlr, gicdCtlrEnable)
}

// PerCPUInit resets this core's private interrupts and unmasks its CPU
// interface, accepting every priority.
func (d *Driver) PerCPUInit() {
	d.write32(d.distBase+gicdIcenabler, 0xFFFF0000) // mask PPIs
	d.write32(d.distBase+gicdIsenabler, 0x0000FFFF) // enable SGIs
	d.write32(d.distBase+gicdIcpendr, 0xFFFFFFFF)
	d.write32(d.distBase+gicdIcactiver, 0xFFFFFFFF)

	d.write32(d.cpuBase+giccPmr, 0xFF)
	d.write32(d.cpuBase+giccCtlr, giccCtlrEnable)
}

// SetTrigger configures edge or level sensing for the identifier.
func (d *Driver) SetTrigger(id gic.IntID, mode gic.TriggerMode) {
	addr := d.distBase + gicdIcfgr + uint64(id/16)*4
	bit := uint32(2) << (2 * (id % 16))

	value := d.read32(addr)
	if mode == gic.TriggerEdge {
		value |= bit
	} else {
		value &^= bit
	}
	d.write32(addr, value)
}

// EnableInterrupt unmasks the identifier. Set-enable registers only act on
// written 1 bits, so re-enabling is naturally idempotent.
func (d *Driver) EnableInterrupt(id gic.IntID) {
	d.write32(d.distBase+gicdIsenabler+uint64(id/32)*4, 1<<(id%32))
}

// DisableInterrupt masks the identifier.
func (d *Driver) DisableInterrupt(id gic.IntID) {
	d.write32(d.distBase+gicdIcenabler+uint64(id/32)*4, 1<<(id%32))
}

// GetAndAcknowledgeInterrupt reads IAR, claiming this core's highest-priority
// pending interrupt. A special identifier in the low bits means nothing was
// eligible.
func (d *Driver) GetAndAcknowledgeInterrupt() (gic.IntID, bool) {
	intid := gic.IntID(d.read32(d.cpuBase+giccIar) & iarIntIDMask)
	if intid.IsSpecial() {
		return 0, false
	}
	return intid, true
}

// EndInterrupt writes EOIR, retiring the identifier on this core.
func (d *Driver) EndInterrupt(id gic.IntID) {
	d.write32(d.cpuBase+giccEoir, uint32(id))
}

// RaiseSGI writes SGIR to signal the software-generated interrupt to the
// cores named in the target mask (bit n targets core n).
func (d *Driver) RaiseSGI(sgi gic.IntID, targets uint8) {
	if !sgi.IsSGI() {
		panic(fmt.Sprintf("gicv2: %v is not an SGI", sgi))
	}
	d.write32(d.distBase+gicdSgir, uint32(targets)<<16|uint32(sgi))
}

var _ gic.Controller = (*Driver)(nil)
