// Package errors provides structured error types for the seg16 library.
//
// Errors are categorized by Phase (which layer produced the error) and Kind
// (error category). The Error type carries the far address involved, the
// offending value, a detail message and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHeap, errors.KindAllocation).
//		At(sel, 0).
//		Value(size).
//		Detail("segment full after growing to %d bytes", limit).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidSelector(errors.PhaseSelector, sel)
//	err := errors.OutOfBounds(errors.PhaseSelector, sel, off, limit)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
