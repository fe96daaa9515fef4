package memory

import (
	"math"

	"github.com/wippyai/seg16/errors"
)

// Heap is linear memory backed by a Go byte slice.
type Heap struct {
	flat
}

// NewHeap allocates size bytes rounded up to whole pages.
func NewHeap(size uint32) *Heap {
	return &Heap{flat{buf: make([]byte, uint64(pagesFor(size))*PageSize)}}
}

// Grow reallocates the slice, so every existing view becomes stale.
func (h *Heap) Grow(delta uint32) (uint32, error) {
	prev := uint32(len(h.buf))
	add := uint64(pagesFor(delta)) * PageSize
	if uint64(prev)+add > math.MaxUint32 {
		return prev, errors.Overflow(errors.PhaseMemory, uint64(prev)+add, "32-bit linear memory")
	}
	buf := make([]byte, uint64(prev)+add)
	copy(buf, h.buf)
	h.buf = buf
	return prev, nil
}

// Close drops the backing slice.
func (h *Heap) Close() error {
	h.buf = nil
	return nil
}
