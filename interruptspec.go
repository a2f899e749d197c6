package gic

import "fmt"

// Device-tree GIC interrupt specifier cell values. A peripheral node
// describes its interrupt with three cells, <type num flags>: type selects
// the class, num is the class-relative index, and the low nibble of flags is
// the sense (1 = edge rising, 4 = level high).
const (
	SpecTypeSPI = 0
	SpecTypePPI = 1

	SpecFlagEdgeRising = 1
	SpecFlagLevelHigh  = 4
)

// InterruptSpec is a GIC interrupt specifier as found in a device-tree
// "interrupts" property. SGIs have no device-tree encoding; they are raised
// by software, not wired to peripherals.
type InterruptSpec struct {
	Type  uint32
	Num   uint32
	Flags uint32
}

// Resolve converts the specifier cells to a global identifier and trigger
// mode. The cells come from external data, so malformed input is reported as
// an error rather than a panic.
func (s InterruptSpec) Resolve() (IntID, TriggerMode, error) {
	var class Class
	switch s.Type {
	case SpecTypeSPI:
		class = ClassSPI
	case SpecTypePPI:
		class = ClassPPI
	default:
		return 0, 0, fmt.Errorf("gic: unsupported interrupt specifier type %d", s.Type)
	}

	id, ok := Translate(class, s.Num)
	if !ok {
		return 0, 0, fmt.Errorf("gic: %s index %d out of range", class, s.Num)
	}

	var mode TriggerMode
	switch s.Flags & 0xf {
	case SpecFlagEdgeRising:
		mode = TriggerEdge
	case SpecFlagLevelHigh:
		mode = TriggerLevel
	default:
		return 0, 0, fmt.Errorf("gic: unsupported interrupt sense flags %#x", s.Flags)
	}

	return id, mode, nil
}

// Cells is the inverse of Resolve: it produces the device-tree cells that
// describe the identifier with the given trigger mode. SGIs and special
// identifiers cannot be described by a specifier and return an error.
func Cells(id IntID, mode TriggerMode) (InterruptSpec, error) {
	var spec InterruptSpec

	switch {
	case id.IsSGI():
		return InterruptSpec{}, fmt.Errorf("gic: %v has no device-tree encoding", id)
	case id.IsSpecial():
		return InterruptSpec{}, fmt.Errorf("gic: %v is not a peripheral interrupt", id)
	case id.IsPrivate():
		spec.Type = SpecTypePPI
		spec.Num = uint32(id - PPIBase)
	default:
		spec.Type = SpecTypeSPI
		spec.Num = uint32(id - SPIBase)
	}

	switch mode {
	case TriggerEdge:
		spec.Flags = SpecFlagEdgeRising
	case TriggerLevel:
		spec.Flags = SpecFlagLevelHigh
	default:
		return InterruptSpec{}, fmt.Errorf("gic: unknown trigger mode %d", mode)
	}

	return spec, nil
}
