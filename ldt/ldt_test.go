package ldt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/memory"
)

func newTable(t *testing.T) *Table {
	t.Helper()
	return New(memory.NewHeap(memory.PageSize))
}

func TestSelectorEncoding(t *testing.T) {
	assert.Equal(t, seg16.Selector(0x0f), EntryToSelector(1))
	assert.Equal(t, seg16.Selector(0x17), EntryToSelector(2))
	assert.Equal(t, 2, SelectorToEntry(0x17))
	assert.Equal(t, 2, SelectorToEntry(0x14), "RPL and TI bits are ignored")
}

func TestTable_AllocTranslate(t *testing.T) {
	tbl := newTable(t)

	a, err := tbl.Alloc(0x100)
	require.NoError(t, err)
	b, err := tbl.Alloc(0x30)
	require.NoError(t, err)
	assert.Equal(t, seg16.Selector(0x0f), a)
	assert.Equal(t, seg16.Selector(0x17), b)
	assert.Equal(t, 2, tbl.Len())

	baseA, err := tbl.Base(a)
	require.NoError(t, err)
	baseB, err := tbl.Base(b)
	require.NoError(t, err)
	assert.NotZero(t, baseA)
	assert.Zero(t, baseA%paragraph)
	assert.GreaterOrEqual(t, baseB, baseA+0x100, "segments must not overlap")

	lin, err := tbl.Linear(a, 0x20)
	require.NoError(t, err)
	assert.Equal(t, baseA+0x20, lin)

	_, err = tbl.Linear(a, 0x100)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseSelector, Kind: errors.KindOutOfBounds})
}

func TestTable_ViewAndCString(t *testing.T) {
	tbl := newTable(t)
	sel, err := tbl.Alloc(0x40)
	require.NoError(t, err)

	v, err := tbl.View(sel, 0x10, 6)
	require.NoError(t, err)
	copy(v, "Hello\x00")

	s, err := tbl.CString(seg16.MakeSegPtr(sel, 0x10), 255)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(s))

	s, err = tbl.CString(seg16.MakeSegPtr(sel, 0x10), 3)
	require.NoError(t, err)
	assert.Equal(t, "Hel", string(s))

	_, err = tbl.View(sel, 0x3e, 4)
	assert.Error(t, err)

	fv, err := tbl.FarView(seg16.MakeSegPtr(sel, 0x11), 2)
	require.NoError(t, err)
	assert.Equal(t, "el", string(fv))
}

func TestTable_CStringUnterminatedStopsAtLimit(t *testing.T) {
	tbl := newTable(t)
	sel, err := tbl.Alloc(0x10)
	require.NoError(t, err)
	v, err := tbl.View(sel, 0, 0x10)
	require.NoError(t, err)
	for i := range v {
		v[i] = 'A'
	}

	s, err := tbl.CString(seg16.MakeSegPtr(sel, 0x8), 255)
	require.NoError(t, err)
	assert.Len(t, s, 8)
}

func TestTable_ReallocMovesAndPreserves(t *testing.T) {
	tbl := newTable(t)
	sel, err := tbl.Alloc(0x20)
	require.NoError(t, err)
	v, err := tbl.View(sel, 0, 4)
	require.NoError(t, err)
	copy(v, "abcd")

	before, err := tbl.Base(sel)
	require.NoError(t, err)

	require.NoError(t, tbl.Realloc(sel, 0x80))

	after, err := tbl.Base(sel)
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "realloc always relocates")
	assert.Equal(t, 1, tbl.Relocations())

	size, err := tbl.Size(sel)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80), size)

	got, err := tbl.View(sel, 0, 0x80)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got[:4]))
	assert.Equal(t, make([]byte, 0x7c), got[4:], "grown tail is zeroed")
}

func TestTable_GrowsLinearMemory(t *testing.T) {
	mem := memory.NewHeap(memory.PageSize)
	tbl := New(mem)

	var sels []seg16.Selector
	for i := 0; i < 4; i++ {
		sel, err := tbl.Alloc(0x8000)
		require.NoError(t, err)
		sels = append(sels, sel)
	}
	assert.GreaterOrEqual(t, mem.Size(), uint32(4*0x8000+reservedLow))

	for _, sel := range sels {
		v, err := tbl.View(sel, 0x7ffe, 2)
		require.NoError(t, err)
		assert.Len(t, v, 2)
	}
}

func TestTable_FreeReusesEntriesAndSpace(t *testing.T) {
	tbl := newTable(t)
	a, err := tbl.Alloc(0x100)
	require.NoError(t, err)
	baseA, err := tbl.Base(a)
	require.NoError(t, err)
	_, err = tbl.Alloc(0x100)
	require.NoError(t, err)

	require.NoError(t, tbl.Free(a))
	_, err = tbl.Base(a)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseSelector, Kind: errors.KindInvalidSelector})
	assert.Error(t, tbl.Free(a))

	c, err := tbl.Alloc(0x80)
	require.NoError(t, err)
	assert.Equal(t, a, c, "most recently freed entry is reused")
	baseC, err := tbl.Base(c)
	require.NoError(t, err)
	assert.Equal(t, baseA, baseC, "first fit reuses the released range")
}

func TestTable_ReleaseCoalesces(t *testing.T) {
	tbl := newTable(t)
	a, _ := tbl.Alloc(0x100)
	b, _ := tbl.Alloc(0x100)
	c, _ := tbl.Alloc(0x100)
	require.NoError(t, tbl.Free(a))
	require.NoError(t, tbl.Free(c))
	require.NoError(t, tbl.Free(b))

	require.Len(t, tbl.free, 1)
	assert.Equal(t, uint32(reservedLow), tbl.free[0].base)
	assert.Equal(t, uint32(memory.PageSize-reservedLow), tbl.free[0].size)
}

func TestTable_InvalidInputs(t *testing.T) {
	tbl := newTable(t)

	_, err := tbl.Alloc(0)
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseSelector, Kind: errors.KindInvalidInput})
	_, err = tbl.Alloc(MaxSegmentSize + 1)
	assert.Error(t, err)

	_, err = tbl.Base(0)
	assert.Error(t, err)
	_, err = tbl.Base(0x0c)
	assert.Error(t, err, "selector without LDT bits")
	_, err = tbl.View(0x7f, 0, 1)
	assert.Error(t, err)

	sel, err := tbl.Alloc(0x10)
	require.NoError(t, err)
	assert.Error(t, tbl.Realloc(sel, 0))
}

func TestTable_WazeroBacked(t *testing.T) {
	mem, err := memory.NewWazero(t.Context(), 1)
	require.NoError(t, err)
	defer mem.Close()

	tbl := New(mem)
	sel, err := tbl.Alloc(0xF000)
	require.NoError(t, err)
	v, err := tbl.View(sel, 0, 2)
	require.NoError(t, err)
	copy(v, "ok")

	require.NoError(t, tbl.Realloc(sel, 0x10000))
	got, err := tbl.View(sel, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	assert.Greater(t, mem.Size(), uint32(memory.PageSize))
}
