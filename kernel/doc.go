// Package kernel exposes the atom entry points of a 16-bit Windows kernel on
// top of the seg16 building blocks.
//
// A Kernel owns linear memory, a descriptor table, a default data segment,
// the USER heap segment that holds the global atom table, and a 16-bit stack
// whose active frame names the current data segment. Entry points come in
// three families:
//
//	local 16-bit   AddAtom16, FindAtom16, DeleteAtom16, GetAtomName16,
//	               InitAtomTable16, GetAtomHandle (current DS table)
//	global         GlobalAddAtom16/32A/32W, GlobalFindAtom16/32A/32W,
//	               GlobalDeleteAtom, GlobalGetAtomName16/32A/32W (USER heap)
//	flat local     AddAtom32A/W, FindAtom32A/W, DeleteAtom32,
//	               GetAtomName32A/W, which forward to the global table
//
// 16-bit entry points take far pointers; a pointer with a zero selector is an
// integer atom in its low word. Flat strings are placed on the 16-bit stack
// with Push before being handed to the 16-bit code path, and wide strings are
// converted to the ANSI code page (Windows-1252) first.
//
// Call16 drives the same entry points the way 16-bit code reaches them: a
// Frame32 and Frame16 pair is laid down, arguments are decoded from the
// 16-bit stack, and both frames are unwound.
//
// Every entry point takes the kernel lock, so a Kernel may be shared
// between goroutines. Accessors that return internal components (LDT, Heap,
// Atoms, Stack, Bridge) bypass the lock.
package kernel
