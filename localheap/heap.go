package localheap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

const (
	// Alignment of every block handle.
	Alignment = 4

	maxSegment = 0x10000
	growStep   = 0x100
)

// Segments is the part of the selector table a heap needs.
type Segments interface {
	seg16.Translator
	Size(sel seg16.Selector) (uint32, error)
	Realloc(sel seg16.Selector, size uint32) error
}

type span struct {
	off  uint32
	size uint32
}

type arena struct {
	end    uint32
	blocks map[seg16.Handle]uint32
	free   []span
}

// Stats summarizes one heap.
type Stats struct {
	Size   uint32 `json:"size"`
	Used   uint32 `json:"used"`
	Free   uint32 `json:"free"`
	Blocks int    `json:"blocks"`
}

// Heap manages the local heaps of many segments.
type Heap struct {
	segs   Segments
	arenas map[seg16.Selector]*arena
}

var _ seg16.Allocator = (*Heap)(nil)

// New creates a heap manager over segs.
func New(segs Segments) *Heap {
	return &Heap{
		segs:   segs,
		arenas: make(map[seg16.Selector]*arena),
	}
}

// Init turns sel into a heap segment: the instance data is zeroed and the
// rest of the segment becomes the free arena.
func (h *Heap) Init(sel seg16.Selector) error {
	size, err := h.segs.Size(sel)
	if err != nil {
		return err
	}
	if size < InstanceDataSize+Alignment {
		return errors.New(errors.PhaseHeap, errors.KindInvalidInput).
			At(uint16(sel), 0).
			Detail("segment of %d bytes too small for a local heap", size).
			Build()
	}
	if err := WriteInstanceData(h.segs, sel, InstanceData{Heap: InstanceDataSize}); err != nil {
		return err
	}

	end := size &^ (Alignment - 1)
	h.arenas[sel] = &arena{
		end:    end,
		blocks: make(map[seg16.Handle]uint32),
		free:   []span{{off: InstanceDataSize, size: end - InstanceDataSize}},
	}
	Logger().Debug("local heap initialized",
		zap.Uint16("selector", uint16(sel)),
		zap.Uint32("size", size))
	return nil
}

// Has reports whether sel has been initialized as a heap.
func (h *Heap) Has(sel seg16.Selector) bool {
	_, ok := h.arenas[sel]
	return ok
}

// Destroy forgets the heap of sel. The segment itself is not freed.
func (h *Heap) Destroy(sel seg16.Selector) {
	delete(h.arenas, sel)
}

// Alloc returns a zero-filled block of at least size bytes. The segment may
// be relocated.
func (h *Heap) Alloc(sel seg16.Selector, size uint16) (seg16.Handle, error) {
	a, err := h.arena(sel)
	if err != nil {
		return 0, err
	}
	need := roundUp(max(uint32(size), 1), Alignment)

	for {
		if off, ok := a.take(need); ok {
			a.blocks[seg16.Handle(off)] = need
			v, err := h.segs.View(sel, uint16(off), int(need))
			if err != nil {
				a.release(off, need)
				delete(a.blocks, seg16.Handle(off))
				return 0, err
			}
			clear(v)
			return seg16.Handle(off), nil
		}
		if err := h.grow(sel, a, need); err != nil {
			return 0, err
		}
	}
}

// Free releases a block.
func (h *Heap) Free(sel seg16.Selector, handle seg16.Handle) error {
	a, err := h.arena(sel)
	if err != nil {
		return err
	}
	size, ok := a.blocks[handle]
	if !ok {
		return errors.InvalidHandle(errors.PhaseHeap, uint16(sel), uint16(handle))
	}
	delete(a.blocks, handle)
	a.release(uint32(handle), size)
	return nil
}

// Size returns the usable size of a block.
func (h *Heap) Size(sel seg16.Selector, handle seg16.Handle) (uint32, error) {
	a, err := h.arena(sel)
	if err != nil {
		return 0, err
	}
	size, ok := a.blocks[handle]
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseHeap, uint16(sel), uint16(handle))
	}
	return size, nil
}

// Blocks returns the live handles of sel in ascending order.
func (h *Heap) Blocks(sel seg16.Selector) []seg16.Handle {
	a, ok := h.arenas[sel]
	if !ok {
		return nil
	}
	out := make([]seg16.Handle, 0, len(a.blocks))
	for handle := range a.blocks {
		out = append(out, handle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats reports usage of the heap in sel.
func (h *Heap) Stats(sel seg16.Selector) (Stats, error) {
	a, err := h.arena(sel)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Size: a.end, Blocks: len(a.blocks)}
	for _, s := range a.free {
		st.Free += s.size
	}
	for _, size := range a.blocks {
		st.Used += size
	}
	return st, nil
}

func (h *Heap) arena(sel seg16.Selector) (*arena, error) {
	a, ok := h.arenas[sel]
	if !ok {
		return nil, errors.New(errors.PhaseHeap, errors.KindNotInitialized).
			At(uint16(sel), 0).
			Detail("no local heap in segment").
			Build()
	}
	return a, nil
}

// grow enlarges the segment so at least need more bytes become free.
func (h *Heap) grow(sel seg16.Selector, a *arena, need uint32) error {
	if a.end >= maxSegment {
		return errors.New(errors.PhaseHeap, errors.KindAllocation).
			At(uint16(sel), 0).
			Value(need).
			Detail("local heap full at %d bytes", a.end).
			Build()
	}
	size := min(roundUp(a.end+need, growStep), maxSegment)
	if err := h.segs.Realloc(sel, size); err != nil {
		return errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "grow heap segment")
	}
	Logger().Debug("local heap grown",
		zap.Uint16("selector", uint16(sel)),
		zap.Uint32("from", a.end),
		zap.Uint32("to", size))
	a.release(a.end, size-a.end)
	a.end = size
	return nil
}

// take carves need bytes from the first free range that fits.
func (a *arena) take(need uint32) (uint32, bool) {
	for i := range a.free {
		s := &a.free[i]
		if s.size < need {
			continue
		}
		off := s.off
		s.off += need
		s.size -= need
		if s.size == 0 {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return off, true
	}
	return 0, false
}

func (a *arena) release(off, size uint32) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off > off })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = span{off: off, size: size}

	if i+1 < len(a.free) && a.free[i].off+a.free[i].size == a.free[i+1].off {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].off+a.free[i-1].size == a.free[i].off {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

func roundUp(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}
