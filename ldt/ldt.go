package ldt

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

const (
	// MaxSegmentSize is the largest segment addressable with 16-bit offsets.
	MaxSegmentSize = 0x10000

	paragraph = 16
	// linear address 0 is never handed out
	reservedLow = paragraph
)

// EntryToSelector converts an LDT index to a selector.
func EntryToSelector(index int) seg16.Selector {
	return seg16.Selector(index<<3 | 7)
}

// SelectorToEntry converts a selector to its LDT index.
func SelectorToEntry(sel seg16.Selector) int {
	return int(sel >> 3)
}

type entry struct {
	base  uint32
	size  uint32
	valid bool
}

type span struct {
	base uint32
	size uint32
}

// Table maps selectors to segments in linear memory.
type Table struct {
	mem         seg16.Memory
	entries     []entry
	freeList    []int
	free        []span
	relocations int
}

// New creates an empty table over mem.
func New(mem seg16.Memory) *Table {
	t := &Table{
		mem:      mem,
		entries:  make([]entry, 1, 64),
		freeList: make([]int, 0, 16),
	}
	if size := mem.Size(); size > reservedLow {
		t.free = append(t.free, span{base: reservedLow, size: size - reservedLow})
	}
	return t
}

// Memory returns the underlying linear memory.
func (t *Table) Memory() seg16.Memory {
	return t.mem
}

// Alloc creates a zero-filled segment of size bytes.
func (t *Table) Alloc(size uint32) (seg16.Selector, error) {
	if size == 0 || size > MaxSegmentSize {
		return 0, errors.New(errors.PhaseSelector, errors.KindInvalidInput).
			Value(size).
			Detail("segment size %d outside 1..%d", size, MaxSegmentSize).
			Build()
	}
	base, err := t.place(size)
	if err != nil {
		return 0, err
	}

	e := entry{base: base, size: size, valid: true}
	var idx int
	if n := len(t.freeList); n > 0 {
		idx = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[idx] = e
	} else {
		if len(t.entries) >= 1<<13 {
			t.release(base, size)
			return 0, errors.New(errors.PhaseSelector, errors.KindAllocation).
				Detail("descriptor table full").
				Build()
		}
		t.entries = append(t.entries, e)
		idx = len(t.entries) - 1
	}

	sel := EntryToSelector(idx)
	Logger().Debug("segment allocated",
		zap.Uint16("selector", uint16(sel)),
		zap.Uint32("base", base),
		zap.Uint32("size", size))
	return sel, nil
}

// Realloc resizes a segment, moving it to a new linear base.
func (t *Table) Realloc(sel seg16.Selector, size uint32) error {
	e, err := t.lookup(sel)
	if err != nil {
		return err
	}
	if size == 0 || size > MaxSegmentSize {
		return errors.New(errors.PhaseSelector, errors.KindInvalidInput).
			At(uint16(sel), 0).
			Value(size).
			Detail("segment size %d outside 1..%d", size, MaxSegmentSize).
			Build()
	}

	base, err := t.place(size)
	if err != nil {
		return err
	}

	keep := min(e.size, size)
	old, err := t.mem.Read(e.base, keep)
	if err != nil {
		t.release(base, size)
		return err
	}
	if err := t.mem.Write(base, old); err != nil {
		t.release(base, size)
		return err
	}

	t.release(e.base, e.size)
	Logger().Debug("segment relocated",
		zap.Uint16("selector", uint16(sel)),
		zap.Uint32("from", e.base),
		zap.Uint32("to", base),
		zap.Uint32("size", size))

	e.base = base
	e.size = size
	t.relocations++
	return nil
}

// Free releases a segment and its descriptor.
func (t *Table) Free(sel seg16.Selector) error {
	e, err := t.lookup(sel)
	if err != nil {
		return err
	}
	t.release(e.base, e.size)
	*e = entry{}
	t.freeList = append(t.freeList, SelectorToEntry(sel))
	return nil
}

// Base returns the current linear base of a segment.
func (t *Table) Base(sel seg16.Selector) (uint32, error) {
	e, err := t.lookup(sel)
	if err != nil {
		return 0, err
	}
	return e.base, nil
}

// Size returns the segment size in bytes.
func (t *Table) Size(sel seg16.Selector) (uint32, error) {
	e, err := t.lookup(sel)
	if err != nil {
		return 0, err
	}
	return e.size, nil
}

// Len returns the number of live segments.
func (t *Table) Len() int {
	return len(t.entries) - 1 - len(t.freeList)
}

// Relocations returns how many times Realloc has moved a segment.
func (t *Table) Relocations() int {
	return t.relocations
}

// Linear translates selector:offset to a linear address.
func (t *Table) Linear(sel seg16.Selector, off uint16) (uint32, error) {
	e, err := t.lookup(sel)
	if err != nil {
		return 0, err
	}
	if uint32(off) >= e.size {
		return 0, errors.OutOfBounds(errors.PhaseSelector, uint16(sel), uint32(off), e.size)
	}
	return e.base + uint32(off), nil
}

// View returns a borrowed view of n bytes at selector:offset.
func (t *Table) View(sel seg16.Selector, off uint16, n int) ([]byte, error) {
	e, err := t.lookup(sel)
	if err != nil {
		return nil, err
	}
	if n < 0 || uint32(off)+uint32(n) > e.size {
		return nil, errors.OutOfBounds(errors.PhaseSelector, uint16(sel), uint32(off)+uint32(max(n, 0)), e.size)
	}
	return t.mem.Read(e.base+uint32(off), uint32(n))
}

// FarView returns a borrowed view of n bytes at a far pointer.
func (t *Table) FarView(p seg16.SegPtr, n int) ([]byte, error) {
	return t.View(p.Selector(), p.Offset(), n)
}

// CString copies a NUL-terminated string starting at p, reading at most
// limit bytes and never past the end of the segment.
func (t *Table) CString(p seg16.SegPtr, limit int) ([]byte, error) {
	e, err := t.lookup(p.Selector())
	if err != nil {
		return nil, err
	}
	avail := int(e.size) - int(p.Offset())
	if avail <= 0 {
		return nil, errors.OutOfBounds(errors.PhaseSelector, uint16(p.Selector()), uint32(p.Offset()), e.size)
	}
	n := min(avail, limit)
	view, err := t.mem.Read(e.base+uint32(p.Offset()), uint32(n))
	if err != nil {
		return nil, err
	}
	for i, b := range view {
		if b == 0 {
			n = i
			break
		}
	}
	out := make([]byte, n)
	copy(out, view)
	return out, nil
}

func (t *Table) lookup(sel seg16.Selector) (*entry, error) {
	idx := SelectorToEntry(sel)
	if sel&7 != 7 || idx == 0 || idx >= len(t.entries) || !t.entries[idx].valid {
		return nil, errors.InvalidSelector(errors.PhaseSelector, uint16(sel))
	}
	return &t.entries[idx], nil
}

// place finds a zeroed linear range of size bytes, growing memory if needed.
func (t *Table) place(size uint32) (uint32, error) {
	need := roundUp(size, paragraph)
	for i := range t.free {
		s := &t.free[i]
		if s.size < need {
			continue
		}
		base := s.base
		s.base += need
		s.size -= need
		if s.size == 0 {
			t.free = append(t.free[:i], t.free[i+1:]...)
		}
		if err := t.zero(base, need); err != nil {
			return 0, err
		}
		return base, nil
	}

	prev, err := t.mem.Grow(need)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseSelector, errors.KindAllocation, err, "grow linear memory")
	}
	Logger().Debug("linear memory grown",
		zap.Uint32("from", prev),
		zap.Uint32("to", t.mem.Size()))
	lo := max(prev, reservedLow)
	t.release(lo, t.mem.Size()-lo)
	return t.place(size)
}

func (t *Table) zero(base, n uint32) error {
	view, err := t.mem.Read(base, n)
	if err != nil {
		return err
	}
	clear(view)
	return nil
}

// release returns a linear range to the free list, coalescing neighbours.
func (t *Table) release(base, size uint32) {
	size = roundUp(size, paragraph)
	i := sort.Search(len(t.free), func(i int) bool { return t.free[i].base > base })
	t.free = append(t.free, span{})
	copy(t.free[i+1:], t.free[i:])
	t.free[i] = span{base: base, size: size}

	if i+1 < len(t.free) && t.free[i].base+t.free[i].size == t.free[i+1].base {
		t.free[i].size += t.free[i+1].size
		t.free = append(t.free[:i+1], t.free[i+2:]...)
	}
	if i > 0 && t.free[i-1].base+t.free[i-1].size == t.free[i].base {
		t.free[i-1].size += t.free[i].size
		t.free = append(t.free[:i], t.free[i+1:]...)
	}
}

func roundUp(v, to uint32) uint32 {
	return (v + to - 1) &^ (to - 1)
}
