// Package mmio provides the memory-mapped register plumbing the GIC device
// models and drivers program against: a device interface, a dispatching bus,
// and little-endian 32-bit accessors.
package mmio

import (
	"encoding/binary"
	"fmt"
)

// Region is a contiguous range of guest-physical register space claimed by a
// device.
type Region struct {
	Address uint64
	Size    uint64
}

// Contains reports whether the access [addr, addr+size) falls entirely inside
// the region.
func (r Region) Contains(addr, size uint64) bool {
	end := addr + size
	return addr >= r.Address && end <= r.Address+r.Size && end >= addr
}

// Device is a block of memory-mapped registers.
type Device interface {
	Regions() []Region

	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}

// Bus dispatches register accesses to the device owning the address.
type Bus struct {
	bindings []binding
}

type binding struct {
	region Region
	dev    Device
}

// Add registers every region of the device on the bus. Overlapping regions
// are rejected.
func (b *Bus) Add(dev Device) error {
	for _, region := range dev.Regions() {
		if region.Size == 0 {
			return fmt.Errorf("mmio: empty region at 0x%016x", region.Address)
		}
		for _, existing := range b.bindings {
			if region.Address < existing.region.Address+existing.region.Size &&
				existing.region.Address < region.Address+region.Size {
				return fmt.Errorf("mmio: region at 0x%016x overlaps region at 0x%016x",
					region.Address, existing.region.Address)
			}
		}
		b.bindings = append(b.bindings, binding{region: region, dev: dev})
	}
	return nil
}

// Read dispatches a read to the owning device.
func (b *Bus) Read(addr uint64, data []byte) error {
	accessEnd := addr + uint64(len(data))
	if accessEnd < addr {
		return fmt.Errorf("mmio: access overflow at 0x%016x", addr)
	}
	for _, binding := range b.bindings {
		if binding.region.Contains(addr, uint64(len(data))) {
			return binding.dev.ReadMMIO(addr, data)
		}
	}
	return fmt.Errorf("mmio: no handler for read at 0x%016x", addr)
}

// Write dispatches a write to the owning device.
func (b *Bus) Write(addr uint64, data []byte) error {
	accessEnd := addr + uint64(len(data))
	if accessEnd < addr {
		return fmt.Errorf("mmio: access overflow at 0x%016x", addr)
	}
	for _, binding := range b.bindings {
		if binding.region.Contains(addr, uint64(len(data))) {
			return binding.dev.WriteMMIO(addr, data)
		}
	}
	return fmt.Errorf("mmio: no handler for write at 0x%016x", addr)
}

// Read32 performs a 32-bit register read.
func (b *Bus) Read32(addr uint64) (uint32, error) {
	var buf [4]byte
	if err := b.Read(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Write32 performs a 32-bit register write.
func (b *Bus) Write32(addr uint64, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return b.Write(addr, buf[:])
}

// ReadU32LE decodes a little-endian 32-bit value, tolerating narrow accesses.
func ReadU32LE(data []byte) uint32 {
	if len(data) < 4 {
		var tmp [4]byte
		copy(tmp[:], data)
		return binary.LittleEndian.Uint32(tmp[:])
	}
	return binary.LittleEndian.Uint32(data)
}

// WriteU32LE encodes a little-endian 32-bit value, tolerating narrow accesses.
func WriteU32LE(data []byte, value uint32) {
	if len(data) >= 4 {
		binary.LittleEndian.PutUint32(data, value)
	} else {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], value)
		copy(data, tmp[:len(data)])
	}
}
