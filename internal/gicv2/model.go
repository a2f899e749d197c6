// Package gicv2 implements a GICv2 backend: a software device model of the
// distributor and banked CPU interface, and a driver that programs it through
// ordinary register accesses while satisfying the generic controller
// contract.
package gicv2

import (
	"fmt"
	"sync"

	"github.com/tinyrange/gic"
	"github.com/tinyrange/gic/internal/mmio"
)

// GICv2 distributor register offsets.
const (
	gicdCtlr      = 0x000 // Distributor Control Register
	gicdTyper     = 0x004 // Interrupt Controller Type Register
	gicdIidr      = 0x008 // Distributor Implementer Identification Register
	gicdIsenabler = 0x100 // Interrupt Set-Enable Registers
	gicdIcenabler = 0x180 // Interrupt Clear-Enable Registers
	gicdIspendr   = 0x200 // Interrupt Set-Pending Registers
	gicdIcpendr   = 0x280 // Interrupt Clear-Pending Registers
	gicdIsactiver = 0x300 // Interrupt Set-Active Registers
	gicdIcactiver = 0x380 // Interrupt Clear-Active Registers
	gicdIcfgr     = 0xC00 // Interrupt Configuration Registers
	gicdSgir      = 0xF00 // Software Generated Interrupt Register

	gicdCtlrEnable = 1 << 0
)

// GICv2 CPU interface register offsets. The CPU interface is banked: every
// core sees its own copy at the same addresses.
const (
	giccCtlr = 0x000 // CPU Interface Control Register
	giccPmr  = 0x004 // Interrupt Priority Mask Register
	giccIar  = 0x00C // Interrupt Acknowledge Register
	giccEoir = 0x010 // End of Interrupt Register
	giccIidr = 0x0FC // CPU Interface Identification Register

	giccCtlrEnable = 1 << 0

	// Low ten bits of an IAR read carry the INTID.
	iarIntIDMask = 0x3FF
)

// Default base addresses on the QEMU virt machine.
const (
	DefaultDistBase = 0x08000000
	DefaultCPUBase  = 0x08010000

	distFrameSize = 0x10000
	cpuFrameSize  = 0x10000
)

const numIRQWords = int(gic.MaxIntID+31) / 32

// irqState is the model's per-identifier record. Hardware holds this state;
// the model keeps it explicit so tests can observe the lifecycle.
type irqState struct {
	enabled bool
	cfgEdge bool
	pending bool // edge latch
	line    bool // current level input
	active  bool
}

// eligible reports whether the interrupt would be forwarded to a CPU
// interface: unmasked, not under service, and asserted for its trigger mode.
func (s *irqState) eligible() bool {
	if !s.enabled || s.active {
		return false
	}
	if s.cfgEdge {
		return s.pending
	}
	return s.line
}

// asserted reports whether the source is pending from software's point of
// view, independent of the enable mask.
func (s *irqState) asserted() bool {
	if s.active {
		return false
	}
	if s.cfgEdge {
		return s.pending
	}
	return s.line
}

type cpuIface struct {
	ctlr uint32
	pmr  uint32
}

// Model is the GICv2 device model: one distributor shared by every core, a
// private interrupt bank per core, and one banked CPU interface per core.
// Access it through per-core frames (see Frame).
type Model struct {
	mu sync.Mutex

	distBase uint64
	cpuBase  uint64

	ctlr uint32

	// Shared peripheral interrupts, indexed by INTID. Slots below SPIBase
	// are unused; the private banks cover them.
	shared []irqState

	// Private interrupts (SGI+PPI), banked per core.
	private [][]irqState

	cpus []cpuIface
}

// Config sizes the model.
type Config struct {
	CPUs     uint
	DistBase uint64
	CPUBase  uint64
}

// NewModel builds a quiescent GICv2 model: everything disabled, inactive and
// level-triggered, except SGIs which are always edge.
func NewModel(cfg Config) *Model {
	cpus := int(cfg.CPUs)
	if cpus == 0 {
		cpus = 1
	}
	distBase := cfg.DistBase
	if distBase == 0 {
		distBase = DefaultDistBase
	}
	cpuBase := cfg.CPUBase
	if cpuBase == 0 {
		cpuBase = DefaultCPUBase
	}

	d := &Model{
		distBase: distBase,
		cpuBase:  cpuBase,
		shared:   make([]irqState, gic.MaxIntID),
		private:  make([][]irqState, cpus),
		cpus:     make([]cpuIface, cpus),
	}
	for cpu := range d.private {
		bank := make([]irqState, gic.SPIBase)
		for i := range bank {
			// SGIs are always edge-triggered; the configuration is fixed in
			// hardware.
			bank[i].cfgEdge = gic.IntID(i).IsSGI()
		}
		d.private[cpu] = bank
	}
	return d
}

// CPUs returns the number of cores the model was built with.
func (d *Model) CPUs() int { return len(d.cpus) }

// irq resolves an identifier to its state record for the given core. Private
// identifiers select the core's bank, everything else the shared pool.
func (d *Model) irq(cpu int, id gic.IntID) *irqState {
	if id.IsPrivate() {
		return &d.private[cpu][id]
	}
	return &d.shared[id]
}

// SetLine drives the physical interrupt line for the identifier. For private
// peripherals the cpu argument selects the core the peripheral is wired to;
// for shared peripherals it is ignored. SGIs have no line; raise them through
// SGIR writes.
func (d *Model) SetLine(cpu int, id gic.IntID, high bool) {
	if id.IsSGI() || id.IsSpecial() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.irq(cpu, id)
	rising := high && !s.line
	s.line = high
	if s.cfgEdge && rising && s.enabled {
		// Edges latch; assertions while masked are lost.
		s.pending = true
	}
}

// State reports the lifecycle state of the identifier as seen by the given
// core. Used by tests to verify the acknowledge/end protocol.
func (d *Model) State(cpu int, id gic.IntID) gic.State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.irq(cpu, id)
	switch {
	case s.active:
		return gic.StateActive
	case s.asserted():
		return gic.StatePending
	default:
		return gic.StateInactive
	}
}

// Enabled reports the enable mask of the identifier as seen by the core.
func (d *Model) Enabled(cpu int, id gic.IntID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.irq(cpu, id).enabled
}

// acknowledge claims the core's highest-priority eligible interrupt. Lower
// INTIDs win; priority configuration is not modelled.
func (d *Model) acknowledge(cpu int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctlr&gicdCtlrEnable == 0 ||
		d.cpus[cpu].ctlr&giccCtlrEnable == 0 ||
		d.cpus[cpu].pmr == 0 {
		return uint32(gic.Spurious)
	}

	for id := gic.IntID(0); id < gic.MaxIntID; id++ {
		s := d.irq(cpu, id)
		if !s.eligible() {
			continue
		}
		s.active = true
		s.pending = false
		return uint32(id)
	}
	return uint32(gic.Spurious)
}

// endOfInterrupt retires an acknowledged interrupt. A still-high level line
// re-pends the identifier the moment the active bit clears. Ending an
// identifier that is not active clears nothing, matching hardware.
func (d *Model) endOfInterrupt(cpu int, value uint32) {
	intid := gic.IntID(value & iarIntIDMask)
	if intid.IsSpecial() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.irq(cpu, intid).active = false
}

// raiseSGI handles an SGIR write from the given requesting core.
func (d *Model) raiseSGI(requester int, value uint32) {
	sgi := gic.IntID(value & 0xF)
	targetList := (value >> 16) & 0xFF
	filter := (value >> 24) & 0x3

	d.mu.Lock()
	defer d.mu.Unlock()

	for cpu := range d.private {
		var targeted bool
		switch filter {
		case 0: // CPU target list
			targeted = targetList&(1<<cpu) != 0
		case 1: // all but requester
			targeted = cpu != requester
		case 2: // requester only
			targeted = cpu == requester
		}
		if !targeted {
			continue
		}
		s := &d.private[cpu][sgi]
		if s.enabled {
			s.pending = true
		}
	}
}

// Frame returns the MMIO view of the model as seen by the given core.
// GICv2 banks the first enable/pending/active/configuration words and the
// whole CPU interface per accessing core; the frame selects that bank, the
// same way the accessing core does in hardware.
func (d *Model) Frame(cpu int) mmio.Device {
	if cpu < 0 || cpu >= len(d.cpus) {
		panic(fmt.Sprintf("gicv2: no such cpu %d", cpu))
	}
	return &frame{dist: d, cpu: cpu}
}

type frame struct {
	dist *Model
	cpu  int
}

func (f *frame) Regions() []mmio.Region {
	return []mmio.Region{
		{Address: f.dist.distBase, Size: distFrameSize},
		{Address: f.dist.cpuBase, Size: cpuFrameSize},
	}
}

func (f *frame) ReadMMIO(addr uint64, data []byte) error {
	d := f.dist
	if addr >= d.distBase && addr < d.distBase+distFrameSize {
		mmio.WriteU32LE(data, d.readDistributor(f.cpu, addr-d.distBase))
		return nil
	}
	if addr >= d.cpuBase && addr < d.cpuBase+cpuFrameSize {
		mmio.WriteU32LE(data, d.readCPUInterface(f.cpu, addr-d.cpuBase))
		return nil
	}
	return fmt.Errorf("gicv2: read outside GIC frames at 0x%016x", addr)
}

func (f *frame) WriteMMIO(addr uint64, data []byte) error {
	d := f.dist
	value := mmio.ReadU32LE(data)
	if addr >= d.distBase && addr < d.distBase+distFrameSize {
		d.writeDistributor(f.cpu, addr-d.distBase, value)
		return nil
	}
	if addr >= d.cpuBase && addr < d.cpuBase+cpuFrameSize {
		d.writeCPUInterface(f.cpu, addr-d.cpuBase, value)
		return nil
	}
	return fmt.Errorf("gicv2: write outside GIC frames at 0x%016x", addr)
}

var _ mmio.Device = (*frame)(nil)

func (d *Model) readDistributor(cpu int, offset uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case offset == gicdCtlr:
		return d.ctlr
	case offset == gicdTyper:
		// ITLinesNumber = 31 advertises the full 1020-interrupt space.
		itLines := uint32(31)
		cpuNum := uint32(len(d.cpus)-1) << 5
		return itLines | cpuNum
	case offset == gicdIidr:
		return 0x0200043B // ARM implementer
	case offset >= gicdIsenabler && offset < gicdIsenabler+0x80:
		return d.gatherWord(cpu, int(offset-gicdIsenabler)/4, func(s *irqState) bool { return s.enabled })
	case offset >= gicdIcenabler && offset < gicdIcenabler+0x80:
		return d.gatherWord(cpu, int(offset-gicdIcenabler)/4, func(s *irqState) bool { return s.enabled })
	case offset >= gicdIspendr && offset < gicdIspendr+0x80:
		return d.gatherWord(cpu, int(offset-gicdIspendr)/4, func(s *irqState) bool { return s.asserted() })
	case offset >= gicdIcpendr && offset < gicdIcpendr+0x80:
		return d.gatherWord(cpu, int(offset-gicdIcpendr)/4, func(s *irqState) bool { return s.asserted() })
	case offset >= gicdIsactiver && offset < gicdIsactiver+0x80:
		return d.gatherWord(cpu, int(offset-gicdIsactiver)/4, func(s *irqState) bool { return s.active })
	case offset >= gicdIcactiver && offset < gicdIcactiver+0x80:
		return d.gatherWord(cpu, int(offset-gicdIcactiver)/4, func(s *irqState) bool { return s.active })
	case offset >= gicdIcfgr && offset < gicdIcfgr+0x100:
		return d.readCfgWord(cpu, int(offset-gicdIcfgr)/4)
	default:
		return 0
	}
}

func (d *Model) writeDistributor(cpu int, offset uint64, value uint32) {
	if offset == gicdSgir {
		d.raiseSGI(cpu, value)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case offset == gicdCtlr:
		d.ctlr = value & gicdCtlrEnable
	case offset >= gicdIsenabler && offset < gicdIsenabler+0x80:
		d.updateWord(cpu, int(offset-gicdIsenabler)/4, value, func(s *irqState) { s.enabled = true })
	case offset >= gicdIcenabler && offset < gicdIcenabler+0x80:
		d.updateWord(cpu, int(offset-gicdIcenabler)/4, value, func(s *irqState) { s.enabled = false })
	case offset >= gicdIspendr && offset < gicdIspendr+0x80:
		d.updateWord(cpu, int(offset-gicdIspendr)/4, value, func(s *irqState) { s.pending = true })
	case offset >= gicdIcpendr && offset < gicdIcpendr+0x80:
		d.updateWord(cpu, int(offset-gicdIcpendr)/4, value, func(s *irqState) { s.pending = false })
	case offset >= gicdIsactiver && offset < gicdIsactiver+0x80:
		d.updateWord(cpu, int(offset-gicdIsactiver)/4, value, func(s *irqState) { s.active = true })
	case offset >= gicdIcactiver && offset < gicdIcactiver+0x80:
		d.updateWord(cpu, int(offset-gicdIcactiver)/4, value, func(s *irqState) { s.active = false })
	case offset >= gicdIcfgr && offset < gicdIcfgr+0x100:
		d.writeCfgWord(cpu, int(offset-gicdIcfgr)/4, value)
	default:
		// Ignore writes to unhandled registers.
	}
}

// gatherWord builds the 32-interrupt bitmask register word. Word 0 reads the
// accessing core's private bank.
func (d *Model) gatherWord(cpu, word int, bit func(*irqState) bool) uint32 {
	if word < 0 || word >= numIRQWords {
		return 0
	}
	var value uint32
	for i := 0; i < 32; i++ {
		id := gic.IntID(word*32 + i)
		if id >= gic.MaxIntID {
			break
		}
		if bit(d.irq(cpu, id)) {
			value |= 1 << i
		}
	}
	return value
}

// updateWord applies the set/clear register semantics: each written 1 bit
// updates the matching interrupt, 0 bits leave it alone.
func (d *Model) updateWord(cpu, word int, value uint32, apply func(*irqState)) {
	if word < 0 || word >= numIRQWords {
		return
	}
	for i := 0; i < 32; i++ {
		if value&(1<<i) == 0 {
			continue
		}
		id := gic.IntID(word*32 + i)
		if id >= gic.MaxIntID {
			break
		}
		apply(d.irq(cpu, id))
	}
}

// ICFGR packs two configuration bits per interrupt, 16 per word; the odd bit
// of each field selects edge.
func (d *Model) readCfgWord(cpu, word int) uint32 {
	var value uint32
	for i := 0; i < 16; i++ {
		id := gic.IntID(word*16 + i)
		if id >= gic.MaxIntID {
			break
		}
		if d.irq(cpu, id).cfgEdge {
			value |= 2 << (2 * i)
		}
	}
	return value
}

func (d *Model) writeCfgWord(cpu, word int, value uint32) {
	for i := 0; i < 16; i++ {
		id := gic.IntID(word*16 + i)
		if id >= gic.MaxIntID {
			break
		}
		if id.IsSGI() {
			// SGI configuration is fixed.
			continue
		}
		d.irq(cpu, id).cfgEdge = value&(2<<(2*i)) != 0
	}
}

func (d *Model) readCPUInterface(cpu int, offset uint64) uint32 {
	switch offset {
	case giccIar:
		return d.acknowledge(cpu)
	case giccIidr:
		return 0x0200043B
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch offset {
	case giccCtlr:
		return d.cpus[cpu].ctlr
	case giccPmr:
		return d.cpus[cpu].pmr
	default:
		return 0
	}
}

func (d *Model) writeCPUInterface(cpu int, offset uint64, value uint32) {
	if offset == giccEoir {
		d.endOfInterrupt(cpu, value)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch offset {
	case giccCtlr:
		d.cpus[cpu].ctlr = value & giccCtlrEnable
	case giccPmr:
		d.cpus[cpu].pmr = value & 0xFF
	default:
		// Ignore writes to unhandled registers.
	}
}
