// Package ldt implements a local descriptor table: the mapping from 16-bit
// selectors to segments placed in flat linear memory.
//
// A Table places each segment at a paragraph-aligned base in a seg16.Memory
// and translates selector:offset pairs into linear addresses or borrowed byte
// views:
//
//	tbl := ldt.New(mem)
//	sel, _ := tbl.Alloc(0x1000)
//	view, _ := tbl.View(sel, 0x10, 4)
//
// # Relocation
//
// Realloc never resizes in place: it places the segment at a fresh linear
// range, copies the contents and releases the old range. Linear memory itself
// may grow (and move) during Alloc and Realloc. Consequently neither linear
// addresses nor views survive these calls; only selectors and offsets do.
//
// # Selectors
//
// Selectors use the LDT table indicator and ring 3 privilege, so entry i has
// selector i<<3|7. Entry 0 is never handed out and selector 0 is always
// invalid. Freed entries are reused most recently freed first.
package ldt
