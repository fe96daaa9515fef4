// Package seg16 provides the core of a 16-bit compatibility layer: atom tables
// stored inside relocatable segments and the frame layouts used when control
// crosses between the flat 32-bit and the segmented 16-bit calling conventions.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	seg16/          Root package with Selector, SegPtr, Handle and core interfaces
//	├── memory/     Linear memory backends (Go heap, wazero, mmap)
//	├── ldt/        Selector table: selector → linear base/limit translation
//	├── localheap/  Per-segment block allocator and instance data layout
//	├── atom/       Reference-counted per-segment atom tables
//	├── stack16/    16-bit stack frames, varargs and scoped push/pop
//	├── kernel/     KERNEL/USER atom entry points wired to the current frame
//	├── config/     TOML and environment configuration
//	├── errors/     Structured error types for debugging
//	└── cmd/atomctl CLI: hashing, layouts, scripts and a terminal UI
//
// # Quick Start
//
//	k, err := kernel.New(ctx, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer k.Close()
//
//	a := k.GlobalAddAtom32A("Hello")
//	buf := make([]byte, 16)
//	n := k.GlobalGetAtomName32A(a, buf)
//	fmt.Println(string(buf[:n])) // "Hello"
//
// # Addressing Model
//
// Every reference that survives an allocation is a Handle (offset inside a
// segment) or a SegPtr (selector:offset). Byte views returned by a Translator
// are borrowed: any Alloc, Free or segment resize may move the segment in
// linear memory, after which the view must be obtained again.
//
// # Thread Safety
//
// Atom tables, heaps and stacks are single-threaded. kernel.Kernel serializes
// its entry points with one lock per legacy execution context.
package seg16
