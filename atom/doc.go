// Package atom implements per-segment atom tables.
//
// An atom table interns short strings (at most MaxLen bytes) inside a data
// segment and hands out 16-bit atoms for them. Matching ignores ASCII case but
// the first spelling added is the one stored. Each string carries a reference
// count: Add increments it, Delete decrements it and frees the entry at zero.
//
// # Atom Values
//
// Atoms below MinStringAtom are integer atoms and never touch a table; they
// are produced from text of the form "#<decimal>". Atoms at or above
// MinStringAtom encode the heap handle of the entry:
//
//	atom   = 0xC000 | handle>>2
//	handle = atom<<2 (16-bit)
//
// This requires 4-byte aligned handles from the allocator.
//
// # Segment Layout
//
// The table lives in the local heap of its segment and is found through the
// instance data slot at offset 0x08. All structures are packed little-endian:
//
//	table:  size WORD, buckets[size] HANDLE
//	entry:  next HANDLE, refCount WORD, length BYTE, text[length]
//
// Every access goes through the Translator, because any allocation may move
// the segment in linear memory. Only handles are kept between calls.
//
// # Thread Safety
//
// Tables are not safe for concurrent use. Callers serialize access per
// segment; kernel.Kernel holds one lock for all of them.
package atom
