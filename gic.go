// Package gic models the ARM Generic Interrupt Controller: the interrupt
// identifier space shared by every GIC version, and the generic controller
// contract (init, enable, acknowledge, end) that version-specific backends
// implement.
//
// The identifier space and its class boundaries are architectural constants
// from the GIC specification and are identical across GICv2, GICv3 and GICv4.
// Register-level backends live in internal/gicv2 and internal/gicv3; both are
// software device models in the same style as a VMM interrupt chip and both
// satisfy the Controller interface defined here.
//
// Interrupt grouping (secure state) and priority/preemption configuration are
// not modelled.
package gic

import "fmt"

// IntID is a GIC interrupt identifier (INTID).
//
// The identifier space is split into three contiguous classes plus a special
// range:
//
//	[0, 16)      SGI - Software Generated Interrupts, used for inter-core
//	             signalling.
//	[16, 32)     PPI - Private Peripheral Interrupts, core-local peripherals.
//	[32, 1020)   SPI - Shared Peripheral Interrupts, deliverable to any core.
//	[1020, 1024) special identifiers, including the spurious sentinel 1023.
//
// Values are minted with SGI, PPI and SPI, which validate the class-relative
// index, or converted directly from a uint32 when the value originates from
// hardware (an acknowledge read). The direct conversion performs no
// validation; validation is the constructors' job, not the representation's.
type IntID uint32

// Identifier-space boundaries. These come from the GIC architecture
// specification and must not be altered by an implementation.
const (
	// SGIBase is the ID of the first Software Generated Interrupt.
	SGIBase IntID = 0

	// PPIBase is the ID of the first Private Peripheral Interrupt.
	PPIBase IntID = 16

	// SPIBase is the ID of the first Shared Peripheral Interrupt.
	SPIBase IntID = 32

	// SpecialBase is the first special interrupt ID. Identifiers at or above
	// it are never minted by the constructors; they only arise as values
	// observed from hardware.
	SpecialBase IntID = 1020

	// MaxIntID is the number of ordinary interrupts supported by the GIC.
	MaxIntID IntID = 1020

	// Spurious is the acknowledge result reporting that no interrupt is
	// pending at sufficient priority.
	Spurious IntID = 1023
)

// SGI returns the identifier for the given Software Generated Interrupt.
// n must be below 16; anything else is a caller bug and panics.
func SGI(n uint32) IntID {
	if n >= uint32(PPIBase) {
		panic(fmt.Sprintf("gic: SGI index %d out of range", n))
	}
	return SGIBase + IntID(n)
}

// PPI returns the identifier for the given Private Peripheral Interrupt.
// n must be below 16; anything else is a caller bug and panics.
func PPI(n uint32) IntID {
	if n >= uint32(SPIBase-PPIBase) {
		panic(fmt.Sprintf("gic: PPI index %d out of range", n))
	}
	return PPIBase + IntID(n)
}

// SPI returns the identifier for the given Shared Peripheral Interrupt.
// n must be below 988; anything else is a caller bug and panics.
func SPI(n uint32) IntID {
	if n >= uint32(SpecialBase-SPIBase) {
		panic(fmt.Sprintf("gic: SPI index %d out of range", n))
	}
	return SPIBase + IntID(n)
}

// IsSGI reports whether the identifier is a Software Generated Interrupt.
func (id IntID) IsSGI() bool {
	return id < PPIBase
}

// IsPrivate reports whether the identifier is private to a core, i.e. it is
// an SGI or a PPI. Private interrupts are banked per core and never need
// cross-core synchronization.
func (id IntID) IsPrivate() bool {
	return id < SPIBase
}

// IsSpecial reports whether the identifier lies in the special range
// [1020, 1024). Special identifiers carry controller status (e.g. a spurious
// acknowledge) rather than naming an interrupt source.
func (id IntID) IsSpecial() bool {
	return id >= SpecialBase
}

// String renders the identifier by class with its class-relative index,
// e.g. "PPI 3". Diagnostic only.
func (id IntID) String() string {
	switch {
	case id < PPIBase:
		return fmt.Sprintf("SGI %d", uint32(id-SGIBase))
	case id < SPIBase:
		return fmt.Sprintf("PPI %d", uint32(id-PPIBase))
	case id < SpecialBase:
		return fmt.Sprintf("SPI %d", uint32(id-SPIBase))
	default:
		return fmt.Sprintf("Special IntID %d", uint32(id))
	}
}

// Class selects one of the three interrupt classes when translating a
// class-relative index into a global identifier.
type Class int

const (
	// ClassSGI selects the Software Generated Interrupt range.
	ClassSGI Class = iota
	// ClassPPI selects the Private Peripheral Interrupt range.
	ClassPPI
	// ClassSPI selects the Shared Peripheral Interrupt range.
	ClassSPI
)

func (c Class) String() string {
	switch c {
	case ClassSGI:
		return "SGI"
	case ClassPPI:
		return "PPI"
	case ClassSPI:
		return "SPI"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Translate converts a class-relative interrupt index to a global INTID.
//
// It is the fallible counterpart of the SGI/PPI/SPI constructors, for callers
// that do not control the legality of the input (configuration-driven wiring,
// device-tree cells) and must treat an out-of-range index as data rather than
// as a bug. The second result is false when the index does not fit the class.
func Translate(c Class, index uint32) (IntID, bool) {
	switch c {
	case ClassSGI:
		if index < uint32(PPIBase) {
			return SGIBase + IntID(index), true
		}
	case ClassPPI:
		if index < uint32(SPIBase-PPIBase) {
			return PPIBase + IntID(index), true
		}
	case ClassSPI:
		if index < uint32(SpecialBase-SPIBase) {
			return SPIBase + IntID(index), true
		}
	}
	return 0, false
}

// TriggerMode describes how the controller samples an interrupt line.
type TriggerMode int

const (
	// TriggerEdge latches the interrupt on detection of a rising edge and
	// keeps it asserted, regardless of the signal, until it is cleared by the
	// acknowledge/end protocol.
	TriggerEdge TriggerMode = iota

	// TriggerLevel asserts the interrupt exactly as long as the signal level
	// is active and deasserts it when the level goes inactive. The source
	// device must be serviced before completion or the interrupt re-pends.
	TriggerLevel
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerEdge:
		return "edge"
	case TriggerLevel:
		return "level"
	default:
		return fmt.Sprintf("TriggerMode(%d)", int(m))
	}
}
