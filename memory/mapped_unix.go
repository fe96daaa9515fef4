//go:build unix

package memory

import (
	"math"

	"golang.org/x/sys/unix"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

// Mapped is linear memory backed by an anonymous private mapping.
type Mapped struct {
	flat
}

// NewMapped maps size bytes rounded up to whole pages.
func NewMapped(size uint32) (seg16.Memory, error) {
	buf, err := mapAnon(uint64(pagesFor(size)) * PageSize)
	if err != nil {
		return nil, err
	}
	return &Mapped{flat{buf: buf}}, nil
}

func mapAnon(n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "mmap")
	}
	return buf, nil
}

// Grow maps a larger region, copies and unmaps the old one. The base address
// always changes, so every existing view becomes stale.
func (m *Mapped) Grow(delta uint32) (uint32, error) {
	prev := uint32(len(m.buf))
	size := uint64(prev) + uint64(pagesFor(delta))*PageSize
	if size > math.MaxUint32 {
		return prev, errors.Overflow(errors.PhaseMemory, size, "32-bit linear memory")
	}
	buf, err := mapAnon(size)
	if err != nil {
		return prev, err
	}
	copy(buf, m.buf)
	if err := m.unmap(); err != nil {
		_ = unix.Munmap(buf)
		return prev, err
	}
	m.buf = buf
	return prev, nil
}

func (m *Mapped) unmap() error {
	if len(m.buf) == 0 {
		return nil
	}
	if err := unix.Munmap(m.buf); err != nil {
		return errors.Wrap(errors.PhaseMemory, errors.KindInvalidData, err, "munmap")
	}
	m.buf = nil
	return nil
}

// Close unmaps the region.
func (m *Mapped) Close() error {
	return m.unmap()
}
