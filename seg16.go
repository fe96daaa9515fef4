package seg16

import "fmt"

// Selector identifies a segment through its LDT entry.
type Selector uint16

// SegPtr is a 16:16 far pointer (selector in the high word).
type SegPtr uint32

// Handle is a segment-relative block offset returned by a local heap.
// Handle 0 is reserved and always invalid.
type Handle uint16

// MakeSegPtr builds a far pointer from a selector and offset.
func MakeSegPtr(sel Selector, off uint16) SegPtr {
	return SegPtr(uint32(sel)<<16 | uint32(off))
}

// Selector returns the high word.
func (p SegPtr) Selector() Selector { return Selector(p >> 16) }

// Offset returns the low word.
func (p SegPtr) Offset() uint16 { return uint16(p) }

// Add returns the far pointer n bytes further in the same segment.
// The offset wraps at 64 KiB as it does on real hardware.
func (p SegPtr) Add(n int) SegPtr {
	return MakeSegPtr(p.Selector(), uint16(int(p.Offset())+n))
}

func (p SegPtr) String() string {
	return fmt.Sprintf("%04x:%04x", uint16(p.Selector()), p.Offset())
}

// Memory represents flat linear memory.
//
// Read returns a view of the underlying storage. Views are invalidated by Grow.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	Size() uint32
	// Grow extends memory by at least delta bytes and returns the previous size.
	Grow(delta uint32) (uint32, error)
	Close() error
}

// Translator resolves segment-relative addresses.
//
// The returned view is valid only until the next allocation, free or resize
// affecting the segment. Callers must not retain it.
type Translator interface {
	Linear(sel Selector, off uint16) (uint32, error)
	View(sel Selector, off uint16, n int) ([]byte, error)
}

// Allocator is a per-segment fixed block allocator.
//
// Returned handles are aligned to at least 4 bytes. Alloc and Free may move the
// segment in linear memory.
type Allocator interface {
	Alloc(sel Selector, size uint16) (Handle, error)
	Free(sel Selector, h Handle) error
}
