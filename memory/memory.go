package memory

import (
	"context"
	"encoding/binary"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

// PageSize is the growth granule shared by all backends.
const PageSize = 64 * 1024

// Backend names accepted by New.
const (
	BackendHeap   = "heap"
	BackendWazero = "wazero"
	BackendMapped = "mmap"
)

// New creates linear memory of at least size bytes using the named backend.
func New(ctx context.Context, backend string, size uint32) (seg16.Memory, error) {
	switch backend {
	case "", BackendHeap:
		return NewHeap(size), nil
	case BackendWazero:
		return NewWazero(ctx, pagesFor(size))
	case BackendMapped:
		return NewMapped(size)
	default:
		return nil, errors.Unsupported(errors.PhaseMemory, "unknown memory backend "+backend)
	}
}

func pagesFor(size uint32) uint32 {
	return uint32((uint64(size) + PageSize - 1) / PageSize)
}

// flat implements the accessors shared by slice-backed memories.
type flat struct {
	buf []byte
}

func (m *flat) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return errors.LinearOutOfBounds(offset, length, uint32(len(m.buf)))
	}
	return nil
}

// Read returns a view of length bytes at offset.
func (m *flat) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	end := offset + length
	return m.buf[offset:end:end], nil
}

// Write copies data into memory at offset.
func (m *flat) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *flat) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.buf[offset], nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *flat) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.buf[offset:]), nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *flat) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *flat) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.buf[offset] = value
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *flat) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.buf[offset:], value)
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *flat) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], value)
	return nil
}

// Size returns the current size in bytes.
func (m *flat) Size() uint32 {
	return uint32(len(m.buf))
}
