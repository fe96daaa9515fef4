// Package localheap implements per-segment local heaps.
//
// A local heap hands out fixed blocks inside one data segment. Blocks are
// addressed by Handle, the block's offset in the segment, which stays valid
// when the segment moves in linear memory. Handles are always 4-byte aligned.
//
// The first 16 bytes of a heap segment hold the instance data (see
// InstanceData), which among other things records where the segment's atom
// table lives.
//
// When no free range fits a request, the heap grows its segment through the
// selector table, which relocates the segment. Any view obtained before Alloc
// or Free must therefore be obtained again afterwards:
//
//	h, err := heap.Alloc(sel, 8)
//	view, err := tbl.View(sel, uint16(h), 8) // resolve after the call
package localheap
