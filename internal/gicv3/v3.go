package gicv3

import (
	"fmt"

	"github.com/tinyrange/gic"
	"github.com/tinyrange/gic/internal/mmio"
)

// Driver programs a GICv3 through the distributor, its own core's
// redistributor and the system-register CPU interface, and implements the
// generic controller contract. One Driver value is bound to one core at
// construction; the distributor frame is shared, the redistributor frame and
// system registers are the core's own.
//
// The register path is assumed functional; a bus fault while programming the
// controller is unrecoverable and panics.
type Driver struct {
	bus      *mmio.Bus
	sysregs  SysRegs
	distBase uint64
	rdBase   uint64 // this core's redistributor RD_base
}

// NewDriver builds a driver for the core owning the given redistributor
// frame and system-register interface.
func NewDriver(bus *mmio.Bus, sysregs SysRegs, distBase, rdBase uint64) *Driver {
	return &Driver{bus: bus, sysregs: sysregs, distBase: distBase, rdBase: rdBase}
}

func (d *Driver) read32(addr uint64) uint32 {
	value, err := d.bus.Read32(addr)
	if err != nil {
		panic(fmt.Sprintf("gicv3: register read fault: %v", err))
	}
	return value
}

func (d *Driver) write32(addr uint64, value uint32) {
	if err := d.bus.Write32(addr, value); err != nil {
		panic(fmt.Sprintf("gicv3: register write fault: %v", err))
	}
}

// InitPrimary resets the distributor to a quiescent state and enables it
// with affinity routing: every shared peripheral masked, nothing pending or
// active, level-triggered.
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

	d.write32(d.distBase+gicdCtlr, gicdCtlrARE|gicdCtlrEnableGrp1)
}

// PerCPUInit wakes this core's redistributor and resets its private
// interrupts: PPIs masked and level-triggered, SGIs enabled.
func (d *Driver) PerCPUInit() {
	// Clear ProcessorSleep and wait for ChildrenAsleep to clear.
	waker := d.read32(d.rdBase + gicrWaker)
	d.write32(d.rdBase+gicrWaker, waker&^uint32(gicrWakerProcessorSleep))
	for d.read32(d.rdBase+gicrWaker)&gicrWakerChildrenAsleep != 0 {
	}

	d.write32(d.rdBase+gicrIcenabler0, 0xFFFF0000) // mask PPIs
	d.write32(d.rdBase+gicrIcpendr0, 0xFFFFFFFF)
	d.write32(d.rdBase+gicrIcactiver0, 0xFFFFFFFF)
	d.write32(d.rdBase+gicrIcfgr1, 0) // PPIs level-triggered
	d.write32(d.rdBase+gicrIsenabler0, 0x0000FFFF) // enable SGIs
}

// SetTrigger configures edge or level sensing. Private identifiers are
// programmed in this core's redistributor, shared ones in the distributor.
func (d *Driver) SetTrigger(id gic.IntID, mode gic.TriggerMode) {
	var addr uint64
	if id.IsPrivate() {
		addr = d.rdBase + gicrIcfgr0 + uint64(id/16)*4
	} else {
		addr = d.distBase + gicdIcfgr + uint64(id/16)*4
	}
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
	if id.IsPrivate() {
		d.write32(d.rdBase+gicrIsenabler0, 1<<id)
		return
	}
	d.write32(d.distBase+gicdIsenabler+uint64(id/32)*4, 1<<(id%32))
}

// DisableInterrupt masks the identifier.
func (d *Driver) DisableInterrupt(id gic.IntID) {
	if id.IsPrivate() {
		d.write32(d.rdBase+gicrIcenabler0, 1<<id)
		return
	}
	d.write32(d.distBase+gicdIcenabler+uint64(id/32)*4, 1<<(id%32))
}

// GetAndAcknowledgeInterrupt reads ICC_IAR1_EL1, claiming this core's
// highest-priority pending interrupt. A special identifier means nothing was
// eligible.
func (d *Driver) GetAndAcknowledgeInterrupt() (gic.IntID, bool) {
	intid := gic.IntID(d.sysregs.ReadIAR1() & 0xFFFFFF)
	if intid.IsSpecial() {
		return 0, false
	}
	return intid, true
}

// EndInterrupt writes ICC_EOIR1_EL1, retiring the identifier on this core.
func (d *Driver) EndInterrupt(id gic.IntID) {
	d.sysregs.WriteEOIR1(uint32(id))
}

// RaiseSGI writes ICC_SGI1R_EL1 to signal the software-generated interrupt
// to the cores named in the target mask (bit n targets core n).
func (d *Driver) RaiseSGI(sgi gic.IntID, targets uint16) {
	if !sgi.IsSGI() {
		panic(fmt.Sprintf("gicv3: %v is not an SGI", sgi))
	}
	d.sysregs.WriteSGI1R(uint64(sgi)<<24 | uint64(targets))
}

var _ gic.Controller = (*Driver)(nil)
