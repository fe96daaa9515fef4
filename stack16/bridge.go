package stack16

import (
	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

type flatFrame struct {
	linear uint32
	size   int
}

// Bridge lays down and removes the frame pair of a crossing. The flat stack
// is a segment of its own, addressed linearly by Frame16.Frame32.
type Bridge struct {
	tr     seg16.Translator
	stack  *Stack
	frames []flatFrame
	flat   seg16.Selector
	esp    uint32
}

// NewBridge creates a bridge whose flat stack is the segment flat, empty
// with ESP at top.
func NewBridge(tr seg16.Translator, stack *Stack, flat seg16.Selector, top uint32) *Bridge {
	return &Bridge{tr: tr, stack: stack, flat: flat, esp: top}
}

// Stack returns the 16-bit stack.
func (b *Bridge) Stack() *Stack {
	return b.stack
}

// ESP returns the flat stack offset.
func (b *Bridge) ESP() uint32 {
	return b.esp
}

// Depth returns the number of Frame32 records on the flat stack.
func (b *Bridge) Depth() int {
	return len(b.frames)
}

// Last returns the linear address of the newest Frame32, 0 if none.
func (b *Bridge) Last() uint32 {
	if len(b.frames) == 0 {
		return 0
	}
	return b.frames[len(b.frames)-1].linear
}

// CallTo16 saves f on the flat stack before entering 16-bit code. The current
// 16-bit SS:SP is recorded in the frame; the returned value is its linear
// address.
func (b *Bridge) CallTo16(f Frame32) (uint32, error) {
	f.Frame16 = b.stack.SSSP()
	size := f.Size()
	if uint32(size) > b.esp {
		return 0, errors.New(errors.PhaseStack, errors.KindOutOfBounds).
			At(uint16(b.flat), uint16(b.esp)).
			Detail("flat stack overflow: frame of %d bytes", size).
			Build()
	}
	data, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	esp := b.esp - uint32(size)
	v, err := b.tr.View(b.flat, uint16(esp), size)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseStack, errors.KindOutOfBounds, err, "write frame32")
	}
	copy(v, data)
	lin, err := b.tr.Linear(b.flat, uint16(esp))
	if err != nil {
		return 0, err
	}

	b.esp = esp
	b.frames = append(b.frames, flatFrame{linear: lin, size: size})
	Logger().Debug("call to 16",
		zap.Uint32("frame32", lin),
		zap.Stringer("sssp", f.Frame16),
		zap.Int("args", len(f.Args)))
	return lin, nil
}

// Return32 removes the newest Frame32 and restores the 16-bit SS:SP saved in
// it.
func (b *Bridge) Return32() (Frame32, error) {
	var f Frame32
	if len(b.frames) == 0 {
		return f, errors.New(errors.PhaseStack, errors.KindInvalidInput).
			Detail("no frame32 to return through").
			Build()
	}
	top := b.frames[len(b.frames)-1]
	v, err := b.tr.View(b.flat, uint16(b.esp), top.size)
	if err != nil {
		return f, errors.Wrap(errors.PhaseStack, errors.KindOutOfBounds, err, "read frame32")
	}
	if err := f.UnmarshalBinary(v); err != nil {
		return f, err
	}

	b.stack.SetSSSP(f.Frame16)
	b.esp += uint32(top.size)
	b.frames = b.frames[:len(b.frames)-1]
	return f, nil
}

// CallFrom16 lays f below the 16-bit SP when 16-bit code enters 32-bit code.
// f.Frame32 is set to the newest Frame32 and SS:SP then addresses f.
func (b *Bridge) CallFrom16(f Frame16) error {
	f.Frame32 = b.Last()
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if err := b.stack.PushData(data); err != nil {
		return err
	}
	Logger().Debug("call from 16",
		zap.Stringer("sssp", b.stack.SSSP()),
		zap.Uint32("entry", f.EntryPoint))
	return nil
}

// Return16 removes the active Frame16 and returns it.
func (b *Bridge) Return16() (Frame16, error) {
	f, err := b.stack.Current()
	if err != nil {
		return f, err
	}
	if err := b.stack.Drop(Frame16Size); err != nil {
		return f, err
	}
	return f, nil
}
