package memory

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/seg16/errors"
)

// Wazero adapts the exported memory of a wazero module to seg16.Memory.
type Wazero struct {
	ctx context.Context
	rt  wazero.Runtime
	Mem api.Memory
}

// NewWazero instantiates a memory-only module with the given initial pages.
func NewWazero(ctx context.Context, pages uint32) (*Wazero, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	mod, err := rt.Instantiate(ctx, memoryModule(pages))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "instantiate memory module")
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, errors.NotFound(errors.PhaseMemory, "export", "memory")
	}
	return &Wazero{ctx: ctx, rt: rt, Mem: mem}, nil
}

// memoryModule encodes a module that only exports one memory of min pages.
func memoryModule(pages uint32) []byte {
	limits := append([]byte{0x00}, uleb128(pages)...)
	memSec := append([]byte{0x01}, limits...)

	name := []byte("memory")
	exp := []byte{0x01, byte(len(name))}
	exp = append(exp, name...)
	exp = append(exp, 0x02, 0x00) // kind: memory, index 0

	out := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}
	out = append(out, 0x05)
	out = append(out, uleb128(uint32(len(memSec)))...)
	out = append(out, memSec...)
	out = append(out, 0x07)
	out = append(out, uleb128(uint32(len(exp)))...)
	out = append(out, exp...)
	return out
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func (m *Wazero) oob(offset, length uint32) error {
	return errors.LinearOutOfBounds(offset, length, m.Mem.Size())
}

// Read reads bytes from memory.
func (m *Wazero) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, m.oob(offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wazero) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return m.oob(offset, uint32(len(data)))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *Wazero) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, m.oob(offset, 1)
	}
	return v, nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *Wazero) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.Mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.oob(offset, 2)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wazero) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.oob(offset, 4)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *Wazero) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return m.oob(offset, 1)
	}
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *Wazero) WriteU16(offset uint32, value uint16) error {
	if !m.Mem.WriteUint16Le(offset, value) {
		return m.oob(offset, 2)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wazero) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return m.oob(offset, 4)
	}
	return nil
}

// Size returns the current size in bytes.
func (m *Wazero) Size() uint32 {
	return m.Mem.Size()
}

// Grow grows memory by whole wasm pages.
func (m *Wazero) Grow(delta uint32) (uint32, error) {
	prev := m.Mem.Size()
	if _, ok := m.Mem.Grow(pagesFor(delta)); !ok {
		return prev, errors.AllocationFailed(errors.PhaseMemory, delta)
	}
	return prev, nil
}

// Close closes the owning runtime.
func (m *Wazero) Close() error {
	if err := m.rt.Close(m.ctx); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindClosed, err, "close wazero runtime")
	}
	return nil
}
