// Package memory provides linear memory backends for the selector table.
//
// Three backends implement seg16.Memory:
//
//	Heap    - a Go byte slice, reallocated on Grow
//	Wazero  - the exported memory of a minimal wazero module
//	Mapped  - an anonymous mmap region (unix), remapped on Grow
//
// # Stale Views
//
// Read returns a view into the backing storage rather than a copy. Every
// backend may move its storage on Grow, so a view obtained before a Grow must
// not be used after it:
//
//	v, _ := mem.Read(0, 16)
//	mem.Grow(1 << 16)
//	// v may now alias freed or stale storage; call Read again
//
// Use New to select a backend by name:
//
//	mem, err := memory.New(ctx, memory.BackendWazero, 2*memory.PageSize)
package memory
