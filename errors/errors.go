package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which layer produced the error
type Phase string

const (
	PhaseMemory   Phase = "memory"   // linear memory backends
	PhaseSelector Phase = "selector" // selector table and translation
	PhaseHeap     Phase = "heap"     // per-segment local heaps
	PhaseAtom     Phase = "atom"     // atom tables
	PhaseStack    Phase = "stack"    // 16-bit stack and frames
	PhaseConvert  Phase = "convert"  // ANSI/UTF-16 string conversion
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds     Kind = "out_of_bounds"
	KindAllocation      Kind = "allocation"
	KindInvalidSelector Kind = "invalid_selector"
	KindInvalidHandle   Kind = "invalid_handle"
	KindInvalidData     Kind = "invalid_data"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindNotInitialized  Kind = "not_initialized"
	KindOverflow        Kind = "overflow"
	KindUnsupported     Kind = "unsupported"
	KindClosed          Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Detail   string
	Path     []string
	Selector uint16
	Offset   uint16
	HasAddr  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.HasAddr {
		fmt.Fprintf(&b, " at %04x:%04x", e.Selector, e.Offset)
	}

	if len(e.Path) > 0 {
		b.WriteString(" in ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// At records the far address involved
func (b *Builder) At(sel, off uint16) *Builder {
	b.err.Selector = sel
	b.err.Offset = off
	b.err.HasAddr = true
	return b
}

// Path sets the operation path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
	}
}

// OutOfBounds creates an out of bounds error for an access inside a segment
func OutOfBounds(phase Phase, sel uint16, off uint32, limit uint32) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOutOfBounds,
		Selector: sel,
		Offset:   uint16(off),
		HasAddr:  true,
		Detail:   fmt.Sprintf("offset 0x%x beyond segment limit 0x%x", off, limit),
		Value:    off,
	}
}

// LinearOutOfBounds creates an out of bounds error for flat linear memory
func LinearOutOfBounds(offset, length, size uint32) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access offset=%d length=%d beyond memory size %d", offset, length, size),
		Value:  offset,
	}
}

// InvalidSelector creates an error for a selector with no live LDT entry
func InvalidSelector(phase Phase, sel uint16) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidSelector,
		Selector: sel,
		HasAddr:  true,
		Detail:   fmt.Sprintf("selector 0x%04x is not allocated", sel),
		Value:    sel,
	}
}

// InvalidHandle creates an error for a handle that does not name a live block
func InvalidHandle(phase Phase, sel uint16, h uint16) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidHandle,
		Selector: sel,
		Offset:   h,
		HasAddr:  true,
		Detail:   fmt.Sprintf("handle 0x%04x is not an allocated block", h),
		Value:    h,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for use after Close
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
