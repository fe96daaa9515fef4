package stack16

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/ldt"
	"github.com/wippyai/seg16/memory"
)

const stackSize = 0x400

func newStack(t *testing.T, sp uint16) (*Stack, *ldt.Table, seg16.Selector) {
	t.Helper()
	tbl := ldt.New(memory.NewHeap(memory.PageSize))
	ss, err := tbl.Alloc(stackSize)
	require.NoError(t, err)
	return New(tbl, seg16.MakeSegPtr(ss, sp)), tbl, ss
}

func sampleFrame16() Frame16 {
	return Frame16{
		Frame32:    0x11223344,
		EBP:        0x55667788,
		EntryIP:    0x0102,
		DS:         0x0f,
		EntryCS:    0x0304,
		ES:         0x0506,
		EntryPoint: 0x0708090a,
		BP:         0x0b0c,
		IP:         0x0d0e,
		CS:         0x0f10,
	}
}

func TestFrame16_Layout(t *testing.T) {
	f := sampleFrame16()
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, Frame16Size)

	le := binary.LittleEndian
	assert.Equal(t, uint32(0x11223344), le.Uint32(b[0x00:]))
	assert.Equal(t, uint32(0x55667788), le.Uint32(b[0x04:]))
	assert.Equal(t, uint16(0x0102), le.Uint16(b[0x08:]))
	assert.Equal(t, uint16(0x000f), le.Uint16(b[0x0a:]))
	assert.Equal(t, uint16(0x0304), le.Uint16(b[0x0c:]))
	assert.Equal(t, uint16(0x0506), le.Uint16(b[0x0e:]))
	assert.Equal(t, uint32(0x0708090a), le.Uint32(b[0x10:]))
	assert.Equal(t, uint16(0x0b0c), le.Uint16(b[0x14:]))
	assert.Equal(t, uint16(0x0d0e), le.Uint16(b[0x16:]))
	assert.Equal(t, uint16(0x0f10), le.Uint16(b[0x18:]))

	var got Frame16
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, f, got)

	assert.ErrorIs(t, got.UnmarshalBinary(b[:Frame16Size-1]),
		&errors.Error{Phase: errors.PhaseStack, Kind: errors.KindInvalidData})
}

func TestFrame32_Layout(t *testing.T) {
	f := Frame32{
		Frame16:      seg16.MakeSegPtr(0x17, 0x3e0),
		EDI:          1,
		ESI:          2,
		EDX:          3,
		ECX:          4,
		EBX:          5,
		RestoreAddr:  6,
		CodeSelector: 7,
		EBP:          8,
		RetAddr:      9,
		Args:         []uint32{0xaa, 0xbb},
	}
	b, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, Frame32Size+8)
	assert.Equal(t, 0x28, Frame32Size)

	le := binary.LittleEndian
	assert.Equal(t, uint32(0x001703e0), le.Uint32(b[0x00:]))
	for i, off := range []int{0x04, 0x08, 0x0c, 0x10, 0x14, 0x18, 0x1c, 0x20, 0x24} {
		assert.Equal(t, uint32(i+1), le.Uint32(b[off:]), "offset %#x", off)
	}
	assert.Equal(t, uint32(0xaa), le.Uint32(b[0x28:]))
	assert.Equal(t, uint32(0xbb), le.Uint32(b[0x2c:]))

	var got Frame32
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, f, got)

	require.NoError(t, got.UnmarshalBinary(b[:Frame32Size]))
	assert.Nil(t, got.Args)
	assert.Error(t, got.UnmarshalBinary(b[:Frame32Size-4]))
}

func TestStack_Current(t *testing.T) {
	s, _, _ := newStack(t, 0x300)

	f := sampleFrame16()
	require.NoError(t, s.SetCurrent(f))

	got, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, f, got)

	ds, err := s.CurrentDS()
	require.NoError(t, err)
	assert.Equal(t, seg16.Selector(0x0f), ds)
}

func TestStack_VaList(t *testing.T) {
	s, tbl, ss := newStack(t, 0x300)

	args, err := tbl.View(ss, 0x300+Frame16Size, 10)
	require.NoError(t, err)
	copy(args, []byte{
		0x34, 0x12, // word
		0x7f, 0xee, // byte, padded
		0x78, 0x56, 0x34, 0x12, // dword
		0x21, 0x43,
	})

	va := s.VaStart()
	assert.Equal(t, seg16.MakeSegPtr(ss, 0x300+Frame16Size), va.Pos())

	w, err := va.Word()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), w)

	b, err := va.Arg(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7f}, b)

	d, err := va.Dword()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), d)

	assert.Equal(t, seg16.MakeSegPtr(ss, 0x300+Frame16Size+8), va.Pos())

	_, err = va.Arg(0)
	assert.Error(t, err)
}

func TestStack_VaList_SegPtr(t *testing.T) {
	s, tbl, ss := newStack(t, 0x100)

	args, err := tbl.View(ss, 0x100+Frame16Size, 4)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(args, uint32(seg16.MakeSegPtr(0x27, 0x40)))

	p, err := s.VaStart().SegPtr()
	require.NoError(t, err)
	assert.Equal(t, seg16.Selector(0x27), p.Selector())
	assert.Equal(t, uint16(0x40), p.Offset())
}

func TestStack_PushPopSymmetry(t *testing.T) {
	s, tbl, ss := newStack(t, 0x300)
	f := sampleFrame16()
	require.NoError(t, s.SetCurrent(f))
	start := s.SSSP()

	snapshot := func() []byte {
		v, err := tbl.View(ss, s.SSSP().Offset(), Frame16Size)
		require.NoError(t, err)
		return append([]byte(nil), v...)
	}
	before := snapshot()

	pushes := []uint16{6, 3, 0x20}
	for _, n := range pushes {
		sp := s.SSSP().Offset()
		p, err := s.Push(n)
		require.NoError(t, err)
		assert.Equal(t, sp-n, s.SSSP().Offset())
		assert.Equal(t, seg16.MakeSegPtr(ss, sp-n+Frame16Size), p)

		// the opened space can be written without touching the frame
		gap, err := tbl.View(ss, p.Offset(), int(n))
		require.NoError(t, err)
		for i := range gap {
			gap[i] = 0xcc
		}
		got, err := s.Current()
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	require.NoError(t, s.Pop(0x20))
	require.NoError(t, s.Pop(9))

	assert.Equal(t, start, s.SSSP())
	assert.Equal(t, before, snapshot())
}

func TestStack_PushBounds(t *testing.T) {
	s, _, _ := newStack(t, 0x10)

	_, err := s.Push(0x11)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseStack, Kind: errors.KindOutOfBounds})
	assert.Equal(t, uint16(0x10), s.SSSP().Offset())

	_, err = s.Push(0x10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), s.SSSP().Offset())

	// popping past the segment limit fails and leaves SP alone
	err = s.Pop(stackSize)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseStack, Kind: errors.KindOutOfBounds})
	assert.Equal(t, uint16(0), s.SSSP().Offset())
}

func TestStack_PushDataDrop(t *testing.T) {
	s, tbl, ss := newStack(t, 0x200)

	require.NoError(t, s.PushData([]byte{1, 2, 3, 4}))
	assert.Equal(t, uint16(0x1fc), s.SSSP().Offset())
	v, err := tbl.View(ss, 0x1fc, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, v)

	require.NoError(t, s.Drop(4))
	assert.Equal(t, uint16(0x200), s.SSSP().Offset())

	assert.Error(t, s.PushData(make([]byte, 0x201)))
}

func TestBridge_RoundTrip(t *testing.T) {
	tbl := ldt.New(memory.NewHeap(memory.PageSize))
	ss, err := tbl.Alloc(stackSize)
	require.NoError(t, err)
	flat, err := tbl.Alloc(0x200)
	require.NoError(t, err)

	s := New(tbl, seg16.MakeSegPtr(ss, 0x380))
	outer := sampleFrame16()
	require.NoError(t, s.SetCurrent(outer))
	b := NewBridge(tbl, s, flat, 0x200)

	lin, err := b.CallTo16(Frame32{EBX: 0xb, RetAddr: 0x1234, Args: []uint32{7}})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Depth())
	assert.Equal(t, lin, b.Last())
	assert.Equal(t, uint32(0x200-Frame32Size-4), b.ESP())

	base, err := tbl.Base(flat)
	require.NoError(t, err)
	assert.Equal(t, base+b.ESP(), lin)

	// 16-bit code pushes two words and calls back into 32-bit code
	require.NoError(t, s.PushData([]byte{0x22, 0x00, 0x11, 0x00}))
	require.NoError(t, b.CallFrom16(Frame16{DS: 0x2f, EntryPoint: 0xdead}))

	inner, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, lin, inner.Frame32)
	assert.Equal(t, uint16(0x2f), inner.DS)

	va := s.VaStart()
	w1, err := va.Word()
	require.NoError(t, err)
	w2, err := va.Word()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x22, 0x11}, []uint16{w1, w2})

	got16, err := b.Return16()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdead), got16.EntryPoint)
	require.NoError(t, s.Drop(4))
	assert.Equal(t, uint16(0x380), s.SSSP().Offset())

	s.SetSSSP(seg16.MakeSegPtr(ss, 0x100))
	got32, err := b.Return32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xb), got32.EBX)
	assert.Equal(t, []uint32{7}, got32.Args)
	assert.Equal(t, seg16.MakeSegPtr(ss, 0x380), s.SSSP())
	assert.Equal(t, uint32(0x200), b.ESP())
	assert.Zero(t, b.Depth())

	_, err = b.Return32()
	assert.Error(t, err)
}

func TestBridge_FlatOverflow(t *testing.T) {
	tbl := ldt.New(memory.NewHeap(memory.PageSize))
	ss, err := tbl.Alloc(stackSize)
	require.NoError(t, err)
	flat, err := tbl.Alloc(0x30)
	require.NoError(t, err)

	b := NewBridge(tbl, New(tbl, seg16.MakeSegPtr(ss, 0x300)), flat, 0x30)
	_, err = b.CallTo16(Frame32{})
	require.NoError(t, err)
	_, err = b.CallTo16(Frame32{})
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseStack, Kind: errors.KindOutOfBounds})
	assert.Equal(t, 1, b.Depth())
}

func TestStack_VaList_SegmentTop(t *testing.T) {
	tbl := ldt.New(memory.NewHeap(2 * memory.PageSize))
	ss, err := tbl.Alloc(0x10000)
	require.NoError(t, err)
	s := New(tbl, seg16.MakeSegPtr(ss, 0x10000-Frame16Size-2))

	top, err := tbl.View(ss, 0xfffe, 2)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(top, 0xbeef)

	va := s.VaStart()
	w, err := va.Word()
	require.NoError(t, err, "an argument ending at the segment top is readable")
	assert.Equal(t, uint16(0xbeef), w)
	assert.Equal(t, seg16.MakeSegPtr(ss, 0), va.Pos())

	_, err = va.Word()
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseStack, Kind: errors.KindOutOfBounds})
}
