package stack16

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

// Stack is the 16-bit stack of one execution context. SSSP always addresses
// the active Frame16.
type Stack struct {
	tr   seg16.Translator
	sssp seg16.SegPtr
}

// New creates a stack whose active frame is at sssp.
func New(tr seg16.Translator, sssp seg16.SegPtr) *Stack {
	return &Stack{tr: tr, sssp: sssp}
}

// SSSP returns the saved 16-bit stack pointer.
func (s *Stack) SSSP() seg16.SegPtr {
	return s.sssp
}

// SetSSSP replaces the saved 16-bit stack pointer.
func (s *Stack) SetSSSP(p seg16.SegPtr) {
	s.sssp = p
}

// Current decodes the active frame.
func (s *Stack) Current() (Frame16, error) {
	var f Frame16
	v, err := s.view(s.sssp.Offset(), Frame16Size, "current frame")
	if err != nil {
		return f, err
	}
	err = f.UnmarshalBinary(v)
	return f, err
}

// SetCurrent overwrites the active frame.
func (s *Stack) SetCurrent(f Frame16) error {
	v, err := s.view(s.sssp.Offset(), Frame16Size, "current frame")
	if err != nil {
		return err
	}
	f.put(v)
	return nil
}

// CurrentDS returns the data segment saved in the active frame.
func (s *Stack) CurrentDS() (seg16.Selector, error) {
	v, err := s.view(s.sssp.Offset()+Frame16DS, 2, "current ds")
	if err != nil {
		return 0, err
	}
	return seg16.Selector(binary.LittleEndian.Uint16(v)), nil
}

// Push opens n bytes directly above the active frame by moving the frame n
// bytes lower, and returns the far address of the opened space.
func (s *Stack) Push(n uint16) (seg16.SegPtr, error) {
	sp := s.sssp.Offset()
	if n > sp {
		return 0, s.outOfBounds("push", int(sp)-int(n))
	}
	v, err := s.view(sp-n, Frame16Size+int(n), "push")
	if err != nil {
		return 0, err
	}
	copy(v, v[n:n+Frame16Size])

	s.sssp = seg16.MakeSegPtr(s.sssp.Selector(), sp-n)
	Logger().Debug("stack push",
		zap.Stringer("sssp", s.sssp),
		zap.Uint16("bytes", n))
	return s.sssp.Add(Frame16Size), nil
}

// Pop closes n bytes above the active frame by moving the frame n bytes
// higher. Pushes and pops of equal total restore the frame and SP exactly.
func (s *Stack) Pop(n uint16) error {
	sp := s.sssp.Offset()
	if int(sp)+int(n)+Frame16Size > 0x10000 {
		return s.outOfBounds("pop", int(sp)+int(n))
	}
	v, err := s.view(sp, Frame16Size+int(n), "pop")
	if err != nil {
		return err
	}
	copy(v[n:], v[:Frame16Size])

	s.sssp = seg16.MakeSegPtr(s.sssp.Selector(), sp+n)
	Logger().Debug("stack pop",
		zap.Stringer("sssp", s.sssp),
		zap.Uint16("bytes", n))
	return nil
}

// PushData writes data below SP and lowers SP, the way 16-bit code pushes
// arguments before a call. The active frame is not moved.
func (s *Stack) PushData(data []byte) error {
	sp := s.sssp.Offset()
	if len(data) > int(sp) {
		return s.outOfBounds("push data", int(sp)-len(data))
	}
	n := uint16(len(data))
	v, err := s.view(sp-n, len(data), "push data")
	if err != nil {
		return err
	}
	copy(v, data)
	s.sssp = seg16.MakeSegPtr(s.sssp.Selector(), sp-n)
	return nil
}

// Drop raises SP by n without moving anything, the way a callee removes its
// arguments on return.
func (s *Stack) Drop(n uint16) error {
	sp := s.sssp.Offset()
	if int(sp)+int(n) > 0xffff {
		return s.outOfBounds("drop", int(sp)+int(n))
	}
	s.sssp = seg16.MakeSegPtr(s.sssp.Selector(), sp+n)
	return nil
}

// VaStart returns a cursor over the arguments above the active frame.
func (s *Stack) VaStart() *VaList {
	return &VaList{stack: s, sel: s.sssp.Selector(), off: int(s.sssp.Offset()) + Frame16Size}
}

func (s *Stack) view(off uint16, n int, what string) ([]byte, error) {
	v, err := s.tr.View(s.sssp.Selector(), off, n)
	if err != nil {
		return nil, errors.New(errors.PhaseStack, errors.KindOutOfBounds).
			At(uint16(s.sssp.Selector()), off).
			Detail("%s: %d bytes", what, n).
			Cause(err).
			Build()
	}
	return v, nil
}

func (s *Stack) outOfBounds(op string, target int) error {
	return errors.New(errors.PhaseStack, errors.KindOutOfBounds).
		At(uint16(s.sssp.Selector()), s.sssp.Offset()).
		Value(target).
		Detail("%s would move SP to %d", op, target).
		Build()
}

// VaList walks 16-bit arguments upward from just above a frame. The cursor
// may reach 0x10000, the end of a full-size segment.
type VaList struct {
	stack *Stack
	sel   seg16.Selector
	off   int
}

// Pos returns the far address of the next unread byte. At the end of a
// full-size segment the offset wraps to 0.
func (v *VaList) Pos() seg16.SegPtr {
	return seg16.MakeSegPtr(v.sel, uint16(v.off))
}

// Arg consumes an argument of size bytes. The cursor advances by size rounded
// up to an even number and the value is read from just below the new cursor.
func (v *VaList) Arg(size int) ([]byte, error) {
	step := (size + 1) &^ 1
	next := v.off + step
	if size <= 0 || next > 0x10000 {
		return nil, errors.New(errors.PhaseStack, errors.KindOutOfBounds).
			At(uint16(v.sel), uint16(v.off)).
			Detail("argument of %d bytes", size).
			Build()
	}
	b, err := v.stack.tr.View(v.sel, uint16(next-step), size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStack, errors.KindOutOfBounds, err, "read argument")
	}
	v.off = next
	return append([]byte(nil), b...), nil
}

// Word consumes a 16-bit argument.
func (v *VaList) Word() (uint16, error) {
	b, err := v.Arg(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Dword consumes a 32-bit argument.
func (v *VaList) Dword() (uint32, error) {
	b, err := v.Arg(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// SegPtr consumes a far pointer argument.
func (v *VaList) SegPtr() (seg16.SegPtr, error) {
	d, err := v.Dword()
	return seg16.SegPtr(d), err
}
