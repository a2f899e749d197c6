// Package gicv3 implements a GICv3 backend: a software device model of the
// distributor and per-core redistributors with a system-register CPU
// interface, and a driver that programs it while satisfying the generic
// controller contract.
package gicv3

import (
	"fmt"
	"sync"

	"github.com/tinyrange/gic"
	"github.com/tinyrange/gic/internal/mmio"
)

// GICv3 register offsets within the redistributor (per-CPU region).
const (
	// RD_base (first 64KB of each redistributor)
	gicrCtlr  = 0x0000 // Redistributor Control Register
	gicrIidr  = 0x0004 // Implementer Identification Register
	gicrTyper = 0x0008 // Redistributor Type Register
	gicrWaker = 0x0014 // Redistributor Wake Register

	// SGI_base (second 64KB of each redistributor)
	gicrSGIOffset  = 0x10000
	gicrIsenabler0 = gicrSGIOffset + 0x0100 // Interrupt Set-Enable Register 0
	gicrIcenabler0 = gicrSGIOffset + 0x0180 // Interrupt Clear-Enable Register 0
	gicrIspendr0   = gicrSGIOffset + 0x0200 // Interrupt Set-Pending Register 0
	gicrIcpendr0   = gicrSGIOffset + 0x0280 // Interrupt Clear-Pending Register 0
	gicrIsactiver0 = gicrSGIOffset + 0x0300 // Interrupt Set-Active Register 0
	gicrIcactiver0 = gicrSGIOffset + 0x0380 // Interrupt Clear-Active Register 0
	gicrIcfgr0     = gicrSGIOffset + 0x0C00 // Interrupt Configuration Register 0
	gicrIcfgr1     = gicrSGIOffset + 0x0C04 // Interrupt Configuration Register 1

	// Peripheral ID registers (at the end of each 64KB block)
	gicrPidr2RDBase  = 0xFFE8
	gicrPidr2SGIBase = gicrSGIOffset + 0xFFE8

	gicrWakerProcessorSleep = 1 << 1
	gicrWakerChildrenAsleep = 1 << 2

	gicrTyperLast = 1 << 4
)

// GIC distributor offsets.
const (
	gicdCtlr      = 0x0000 // Distributor Control Register
	gicdTyper     = 0x0004 // Interrupt Controller Type Register
	gicdIidr      = 0x0008 // Distributor Implementer Identification Register
	gicdTyper2    = 0x000C // Interrupt Controller Type Register 2
	gicdIsenabler = 0x0100 // Interrupt Set-Enable Registers
	gicdIcenabler = 0x0180 // Interrupt Clear-Enable Registers
	gicdIspendr   = 0x0200 // Interrupt Set-Pending Registers
	gicdIcpendr   = 0x0280 // Interrupt Clear-Pending Registers
	gicdIsactiver = 0x0300 // Interrupt Set-Active Registers
	gicdIcactiver = 0x0380 // Interrupt Clear-Active Registers
	gicdIcfgr     = 0x0C00 // Interrupt Configuration Registers
	gicdPidr2     = 0xFFE8 // Peripheral ID 2

	gicdCtlrEnableGrp1 = 1 << 1
	gicdCtlrARE        = 1 << 4

	// Architecture version in PIDR2
	gicArchRevGICv3 = 0x30

	armImplementerIidr = 0x0200043B
)

// Default base addresses on the QEMU virt machine.
const (
	DefaultDistBase   = 0x08000000
	DefaultRedistBase = 0x080A0000

	distFrameSize = 0x10000
	// Each redistributor occupies an RD_base and an SGI_base 64KB page.
	RedistStride = 0x20000
)

const numIRQWords = int(gic.MaxIntID+31) / 32

// irqState mirrors the per-identifier state the hardware holds; see the
// gicv2 model for the field semantics.
type irqState struct {
	enabled bool
	cfgEdge bool
	pending bool
	line    bool
	active  bool
}

func (s *irqState) eligible() bool {
	if !s.enabled || s.active {
		return false
	}
	if s.cfgEdge {
		return s.pending
	}
	return s.line
}

func (s *irqState) asserted() bool {
	if s.active {
		return false
	}
	if s.cfgEdge {
		return s.pending
	}
	return s.line
}

// Model is the GICv3 device model: one distributor for the shared
// peripherals, one redistributor per core holding that core's SGIs and PPIs,
// and a system-register CPU interface per core (see SysRegs).
type Model struct {
	mu sync.Mutex

	distBase   uint64
	redistBase uint64

	ctlr  uint32
	waker []uint32

	shared  []irqState   // SPIs, indexed by INTID; slots below SPIBase unused
	private [][]irqState // SGI+PPI banks, one per core
}

// Config sizes the model.
type Config struct {
	CPUs       uint
	DistBase   uint64
	RedistBase uint64
}

// NewModel builds a quiescent GICv3 model: distributor disabled, every
// redistributor asleep, everything masked and level-triggered except the
// always-edge SGIs.
func NewModel(cfg Config) *Model {
	cpus := int(cfg.CPUs)
	if cpus == 0 {
		cpus = 1
	}
	distBase := cfg.DistBase
	if distBase == 0 {
		distBase = DefaultDistBase
	}
	redistBase := cfg.RedistBase
	if redistBase == 0 {
		redistBase = DefaultRedistBase
	}

	m := &Model{
		distBase:   distBase,
		redistBase: redistBase,
		waker:      make([]uint32, cpus),
		shared:     make([]irqState, gic.MaxIntID),
		private:    make([][]irqState, cpus),
	}
	for cpu := range m.private {
		m.waker[cpu] = gicrWakerProcessorSleep | gicrWakerChildrenAsleep
		bank := make([]irqState, gic.SPIBase)
		for i := range bank {
			bank[i].cfgEdge = gic.IntID(i).IsSGI()
		}
		m.private[cpu] = bank
	}
	return m
}

// CPUs returns the number of cores the model was built with.
func (m *Model) CPUs() int { return len(m.private) }

func (m *Model) irq(cpu int, id gic.IntID) *irqState {
	if id.IsPrivate() {
		return &m.private[cpu][id]
	}
	return &m.shared[id]
}

// SetLine drives the physical interrupt line for the identifier; see the
// gicv2 model for the edge/level semantics. For private peripherals cpu
// selects the owning core.
func (m *Model) SetLine(cpu int, id gic.IntID, high bool) {
	if id.IsSGI() || id.IsSpecial() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.irq(cpu, id)
	rising := high && !s.line
	s.line = high
	if s.cfgEdge && rising && s.enabled {
		s.pending = true
	}
}

// State reports the lifecycle state of the identifier as seen by the core.
func (m *Model) State(cpu int, id gic.IntID) gic.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.irq(cpu, id)
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
func (m *Model) Enabled(cpu int, id gic.IntID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.irq(cpu, id).enabled
}

// Awake reports whether the core's redistributor has completed the WAKER
// handshake.
func (m *Model) Awake(cpu int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waker[cpu]&gicrWakerChildrenAsleep == 0
}

// SysRegs is the system-register CPU interface of one core: ICC_IAR1_EL1,
// ICC_EOIR1_EL1 and ICC_SGI1R_EL1. The model hands out one view per core; on
// hardware these are per-core by construction.
type SysRegs interface {
	// ReadIAR1 acknowledges the highest-priority pending interrupt and
	// returns its INTID, or a special identifier if nothing is eligible.
	ReadIAR1() uint32

	// WriteEOIR1 signals completion of the given INTID.
	WriteEOIR1(value uint32)

	// WriteSGI1R generates a software interrupt: bits [27:24] carry the SGI
	// number, bits [15:0] the target list (bit n targets core n).
	WriteSGI1R(value uint64)
}

// SysRegs returns the system-register view for the given core.
func (m *Model) SysRegs(cpu int) SysRegs {
	if cpu < 0 || cpu >= len(m.private) {
		panic(fmt.Sprintf("gicv3: no such cpu %d", cpu))
	}
	return &sysRegs{model: m, cpu: cpu}
}

type sysRegs struct {
	model *Model
	cpu   int
}

func (r *sysRegs) ReadIAR1() uint32 {
	m := r.model
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctlr&gicdCtlrEnableGrp1 == 0 ||
		m.waker[r.cpu]&gicrWakerChildrenAsleep != 0 {
		return uint32(gic.Spurious)
	}

	for id := gic.IntID(0); id < gic.MaxIntID; id++ {
		s := m.irq(r.cpu, id)
		if !s.eligible() {
			continue
		}
		s.active = true
		s.pending = false
		return uint32(id)
	}
	return uint32(gic.Spurious)
}

func (r *sysRegs) WriteEOIR1(value uint32) {
	intid := gic.IntID(value & 0xFFFFFF)
	if intid.IsSpecial() {
		return
	}

	m := r.model
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irq(r.cpu, intid).active = false
}

func (r *sysRegs) WriteSGI1R(value uint64) {
	sgi := gic.IntID((value >> 24) & 0xF)
	targetList := uint16(value & 0xFFFF)

	m := r.model
	m.mu.Lock()
	defer m.mu.Unlock()

	for cpu := range m.private {
		if cpu >= 16 || targetList&(1<<cpu) == 0 {
			continue
		}
		s := &m.private[cpu][sgi]
		if s.enabled {
			s.pending = true
		}
	}
}

var _ SysRegs = (*sysRegs)(nil)

// Regions implements mmio.Device. Unlike GICv2 nothing here is banked by
// accessing core: the redistributors are distinct frames, so one device view
// serves every core.
func (m *Model) Regions() []mmio.Region {
	return []mmio.Region{
		{Address: m.distBase, Size: distFrameSize},
		{Address: m.redistBase, Size: RedistStride * uint64(len(m.private))},
	}
}

// ReadMMIO implements mmio.Device.
func (m *Model) ReadMMIO(addr uint64, data []byte) error {
	if addr >= m.distBase && addr < m.distBase+distFrameSize {
		mmio.WriteU32LE(data, m.readDistributor(addr-m.distBase))
		return nil
	}

	redistEnd := m.redistBase + RedistStride*uint64(len(m.private))
	if addr >= m.redistBase && addr < redistEnd {
		offset := addr - m.redistBase
		cpu := int(offset / RedistStride)
		mmio.WriteU32LE(data, m.readRedistributor(cpu, offset%RedistStride))
		return nil
	}
	return fmt.Errorf("gicv3: read outside GIC frames at 0x%016x", addr)
}

// WriteMMIO implements mmio.Device.
func (m *Model) WriteMMIO(addr uint64, data []byte) error {
	value := mmio.ReadU32LE(data)
	if addr >= m.distBase && addr < m.distBase+distFrameSize {
		m.writeDistributor(addr-m.distBase, value)
		return nil
	}

	redistEnd := m.redistBase + RedistStride*uint64(len(m.private))
	if addr >= m.redistBase && addr < redistEnd {
		offset := addr - m.redistBase
		cpu := int(offset / RedistStride)
		m.writeRedistributor(cpu, offset%RedistStride, value)
		return nil
	}
	return fmt.Errorf("gicv3: write outside GIC frames at 0x%016x", addr)
}

var _ mmio.Device = (*Model)(nil)

func (m *Model) readDistributor(offset uint64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case offset == gicdCtlr:
		return m.ctlr
	case offset == gicdTyper:
		// ITLinesNumber = 31 advertises the full 1020-interrupt space.
		itLines := uint32(31)
		return itLines
	case offset == gicdIidr:
		return armImplementerIidr
	case offset == gicdTyper2:
		return 0
	case offset == gicdPidr2:
		return gicArchRevGICv3
	case offset >= gicdIsenabler && offset < gicdIsenabler+0x80:
		return m.gatherSPIWord(int(offset-gicdIsenabler)/4, func(s *irqState) bool { return s.enabled })
	case offset >= gicdIcenabler && offset < gicdIcenabler+0x80:
		return m.gatherSPIWord(int(offset-gicdIcenabler)/4, func(s *irqState) bool { return s.enabled })
	case offset >= gicdIspendr && offset < gicdIspendr+0x80:
		return m.gatherSPIWord(int(offset-gicdIspendr)/4, func(s *irqState) bool { return s.asserted() })
	case offset >= gicdIcpendr && offset < gicdIcpendr+0x80:
		return m.gatherSPIWord(int(offset-gicdIcpendr)/4, func(s *irqState) bool { return s.asserted() })
	case offset >= gicdIsactiver && offset < gicdIsactiver+0x80:
		return m.gatherSPIWord(int(offset-gicdIsactiver)/4, func(s *irqState) bool { return s.active })
	case offset >= gicdIcactiver && offset < gicdIcactiver+0x80:
		return m.gatherSPIWord(int(offset-gicdIcactiver)/4, func(s *irqState) bool { return s.active })
	case offset >= gicdIcfgr && offset < gicdIcfgr+0x100:
		return m.readSPICfgWord(int(offset-gicdIcfgr) / 4)
	default:
		return 0
	}
}

func (m *Model) writeDistributor(offset uint64, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case offset == gicdCtlr:
		m.ctlr = value & (gicdCtlrEnableGrp1 | gicdCtlrARE)
	case offset >= gicdIsenabler && offset < gicdIsenabler+0x80:
		m.updateSPIWord(int(offset-gicdIsenabler)/4, value, func(s *irqState) { s.enabled = true })
	case offset >= gicdIcenabler && offset < gicdIcenabler+0x80:
		m.updateSPIWord(int(offset-gicdIcenabler)/4, value, func(s *irqState) { s.enabled = false })
	case offset >= gicdIspendr && offset < gicdIspendr+0x80:
		m.updateSPIWord(int(offset-gicdIspendr)/4, value, func(s *irqState) { s.pending = true })
	case offset >= gicdIcpendr && offset < gicdIcpendr+0x80:
		m.updateSPIWord(int(offset-gicdIcpendr)/4, value, func(s *irqState) { s.pending = false })
	case offset >= gicdIsactiver && offset < gicdIsactiver+0x80:
		m.updateSPIWord(int(offset-gicdIsactiver)/4, value, func(s *irqState) { s.active = true })
	case offset >= gicdIcactiver && offset < gicdIcactiver+0x80:
		m.updateSPIWord(int(offset-gicdIcactiver)/4, value, func(s *irqState) { s.active = false })
	case offset >= gicdIcfgr && offset < gicdIcfgr+0x100:
		m.writeSPICfgWord(int(offset-gicdIcfgr)/4, value)
	default:
		// Ignore writes to unhandled registers.
	}
}

// With affinity routing enabled the distributor only covers the shared
// peripherals; word 0 (SGIs and PPIs) lives in the redistributors and reads
// as zero here.
func (m *Model) gatherSPIWord(word int, bit func(*irqState) bool) uint32 {
	if word < 1 || word >= numIRQWords {
		return 0
	}
	var value uint32
	for i := 0; i < 32; i++ {
		id := gic.IntID(word*32 + i)
		if id >= gic.MaxIntID {
			break
		}
		if bit(&m.shared[id]) {
			value |= 1 << i
		}
	}
	return value
}

func (m *Model) updateSPIWord(word int, value uint32, apply func(*irqState)) {
	if word < 1 || word >= numIRQWords {
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
		apply(&m.shared[id])
	}
}

func (m *Model) readSPICfgWord(word int) uint32 {
	if word < 2 {
		return 0
	}
	var value uint32
	for i := 0; i < 16; i++ {
		id := gic.IntID(word*16 + i)
		if id >= gic.MaxIntID {
			break
		}
		if m.shared[id].cfgEdge {
			value |= 2 << (2 * i)
		}
	}
	return value
}

func (m *Model) writeSPICfgWord(word int, value uint32) {
	if word < 2 {
		return
	}
	for i := 0; i < 16; i++ {
		id := gic.IntID(word*16 + i)
		if id >= gic.MaxIntID {
			break
		}
		m.shared[id].cfgEdge = value&(2<<(2*i)) != 0
	}
}

func (m *Model) readRedistributor(cpu int, offset uint64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch offset {
	case gicrCtlr:
		return 0
	case gicrIidr:
		return armImplementerIidr
	case gicrTyper:
		procNum := uint32(cpu) << 8
		var last uint32
		if cpu == len(m.private)-1 {
			last = gicrTyperLast
		}
		return procNum | last
	case gicrTyper + 4:
		return uint32(cpu) << 8 // Aff1 = cpu
	case gicrWaker:
		return m.waker[cpu]
	case gicrPidr2RDBase, gicrPidr2SGIBase:
		return gicArchRevGICv3
	case gicrIsenabler0, gicrIcenabler0:
		return m.gatherPrivateWord(cpu, func(s *irqState) bool { return s.enabled })
	case gicrIspendr0, gicrIcpendr0:
		return m.gatherPrivateWord(cpu, func(s *irqState) bool { return s.asserted() })
	case gicrIsactiver0, gicrIcactiver0:
		return m.gatherPrivateWord(cpu, func(s *irqState) bool { return s.active })
	case gicrIcfgr0:
		return m.readPrivateCfgWord(cpu, 0)
	case gicrIcfgr1:
		return m.readPrivateCfgWord(cpu, 1)
	default:
		return 0
	}
}

func (m *Model) writeRedistributor(cpu int, offset uint64, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch offset {
	case gicrWaker:
		// ChildrenAsleep is read-only and tracks ProcessorSleep: clearing
		// ProcessorSleep wakes the redistributor.
		if value&gicrWakerProcessorSleep == 0 {
			m.waker[cpu] = 0
		} else {
			m.waker[cpu] = gicrWakerProcessorSleep | gicrWakerChildrenAsleep
		}
	case gicrIsenabler0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.enabled = true })
	case gicrIcenabler0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.enabled = false })
	case gicrIspendr0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.pending = true })
	case gicrIcpendr0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.pending = false })
	case gicrIsactiver0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.active = true })
	case gicrIcactiver0:
		m.updatePrivateWord(cpu, value, func(s *irqState) { s.active = false })
	case gicrIcfgr1:
		m.writePrivateCfgWord(cpu, 1, value)
	default:
		// SGI configuration (ICFGR0) is fixed; other writes are ignored.
	}
}

func (m *Model) gatherPrivateWord(cpu int, bit func(*irqState) bool) uint32 {
	var value uint32
	for i := range m.private[cpu] {
		if bit(&m.private[cpu][i]) {
			value |= 1 << i
		}
	}
	return value
}

func (m *Model) updatePrivateWord(cpu int, value uint32, apply func(*irqState)) {
	for i := range m.private[cpu] {
		if value&(1<<i) != 0 {
			apply(&m.private[cpu][i])
		}
	}
}

func (m *Model) readPrivateCfgWord(cpu, word int) uint32 {
	var value uint32
	for i := 0; i < 16; i++ {
		if m.private[cpu][word*16+i].cfgEdge {
			value |= 2 << (2 * i)
		}
	}
	return value
}

func (m *Model) writePrivateCfgWord(cpu, word int, value uint32) {
	for i := 0; i < 16; i++ {
		id := gic.IntID(word*16 + i)
		if id.IsSGI() {
			continue
		}
		m.private[cpu][id].cfgEdge = value&(2<<(2*i)) != 0
	}
}
