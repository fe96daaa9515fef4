package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/stack16"
)

func TestHashCommand(t *testing.T) {
	resetFlags(t)

	out, err := runCommand(t, newHashCmd(), "", "Foo", "ab")
	require.NoError(t, err)
	assert.Contains(t, out, `"Foo"`)
	assert.Contains(t, out, "raw=0x0047 bucket=34/37")
	assert.Contains(t, out, "raw=0x0002 bucket=2/37")
}

func TestHashCommand_CaseInsensitive(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	out, err := runCommand(t, newHashCmd(), "", "--buckets", "7", "foo", "FOO")
	require.NoError(t, err)

	var results []hashResult
	assertJSON(t, out, &results)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].Raw, results[1].Raw)
	assert.Equal(t, uint16(0x47%7), results[0].Bucket)
	assert.Equal(t, uint16(7), results[0].Buckets)
}

func TestHashCommand_ZeroBuckets(t *testing.T) {
	resetFlags(t)

	_, err := runCommand(t, newHashCmd(), "", "--buckets", "0", "Foo")
	assert.Error(t, err)
}

func TestLayoutCommand(t *testing.T) {
	resetFlags(t)

	out, err := runCommand(t, newLayoutCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "frame32 (0x28 bytes)")
	assert.Contains(t, out, "frame16 (0x1a bytes)")
	assert.Contains(t, out, "+0x05  text")
	assert.Contains(t, out, "+0x08  atom_table")
}

func TestLayoutCommand_JSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	out, err := runCommand(t, newLayoutCmd(), "")
	require.NoError(t, err)

	var all []structLayout
	assertJSON(t, out, &all)
	require.Len(t, all, 5)
	assert.Equal(t, "frame16", all[1].Name)
	assert.Equal(t, 0x0a, all[1].Fields[3].Offset)
}

func TestScriptCommand(t *testing.T) {
	resetFlags(t)

	script := `; local atoms
add Foo
add FOO
find foo
name 0xc000
add #12
`
	out, err := runCommand(t, newScriptCmd(), script)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	first := lines[0][strings.Index(lines[0], "->"):]
	assert.True(t, strings.HasSuffix(lines[1], first), "case-insensitive add returns the same atom")
	assert.True(t, strings.HasSuffix(lines[2], first))
	assert.Contains(t, lines[4], "-> #12")
}

func TestScriptCommand_JSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	script := "add Foo\nadd Foo\ndump\ngadd Bar\ndump global\n"
	out, err := runCommand(t, newScriptCmd(), script)
	require.NoError(t, err)

	var steps []step
	assertJSON(t, out, &steps)
	require.Len(t, steps, 5)

	a := atom.Atom(steps[0].Value)
	assert.False(t, a.IsInteger())
	assert.Equal(t, steps[0].Value, steps[1].Value)

	require.Len(t, steps[2].Entries, 1)
	assert.Equal(t, "Foo", steps[2].Entries[0].Text)
	assert.Equal(t, uint16(2), steps[2].Entries[0].RefCount)
	assert.Equal(t, uint16(34), steps[2].Entries[0].Bucket)

	require.Len(t, steps[4].Entries, 1)
	assert.Equal(t, "Bar", steps[4].Entries[0].Text)
}

func TestScriptCommand_StopsAtError(t *testing.T) {
	resetFlags(t)

	out, err := runCommand(t, newScriptCmd(), "add Foo\nbogus\nadd Bar\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, out, "add Foo")
	assert.NotContains(t, out, "add Bar")
}

func TestSession_NameAndDelete(t *testing.T) {
	resetFlags(t)
	s, err := openSession(context.Background())
	require.NoError(t, err)
	defer s.Close()

	st, _, err := s.Exec(`add "  Padded"`)
	require.NoError(t, err)
	a := st.Value

	st, _, err = s.Exec("name " + atom.Atom(a).String())
	require.NoError(t, err)
	assert.Equal(t, `"  Padded"`, st.Result)
	assert.Equal(t, uint32(len("  Padded")), st.Value)

	st, _, err = s.Exec("delete " + atom.Atom(a).String())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), st.Value)

	st, _, err = s.Exec(`find "  Padded"`)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), st.Value)

	st, _, err = s.Exec("name " + atom.Atom(a).String())
	require.NoError(t, err)
	assert.Equal(t, `""`, st.Result)
}

func TestSession_Call(t *testing.T) {
	resetFlags(t)
	s, err := openSession(context.Background())
	require.NoError(t, err)
	defer s.Close()

	before := s.k.Stack().SSSP()

	added, _, err := s.Exec(`call kernel.70 "Widget"`)
	require.NoError(t, err)
	require.NotZero(t, added.Value)

	found, _, err := s.Exec(`find Widget`)
	require.NoError(t, err)
	assert.Equal(t, added.Value, found.Value)

	global, _, err := s.Exec(`call USER.268 "Widget"`)
	require.NoError(t, err)
	assert.NotZero(t, global.Value)

	assert.Equal(t, before, s.k.Stack().SSSP())

	_, _, err = s.Exec("call KERNEL.999")
	assert.Error(t, err)
	_, _, err = s.Exec("call KERNEL")
	assert.Error(t, err)
}

func TestSession_StackAndSegments(t *testing.T) {
	resetFlags(t)
	s, err := openSession(context.Background())
	require.NoError(t, err)
	defer s.Close()

	start := s.k.Stack().SSSP()

	st, _, err := s.Exec("push 0x10")
	require.NoError(t, err)
	assert.Equal(t, start.Add(-0x10), s.k.Stack().SSSP())
	assert.Equal(t, uint32(start.Add(-0x10+stack16.Frame16Size)), st.Value, "push returns the space above the frame")

	st, _, err = s.Exec("pop 0x10")
	require.NoError(t, err)
	assert.Equal(t, uint32(start), st.Value)

	first, _, err := s.Exec("ds")
	require.NoError(t, err)

	st, _, err = s.Exec("ds new 0x1000")
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, st.Value)

	_, _, err = s.Exec("add Foo")
	require.NoError(t, err)
	dump, _, err := s.Exec("dump")
	require.NoError(t, err)
	assert.Len(t, dump.Entries, 1)

	_, _, err = s.Exec("ds " + first.Result)
	require.NoError(t, err)
	dump, _, err = s.Exec("dump")
	require.NoError(t, err)
	assert.Empty(t, dump.Entries)

	st, _, err = s.Exec("frame")
	require.NoError(t, err)
	require.NotNil(t, st.Frame)
	assert.Equal(t, uint16(first.Value), st.Frame.DS)

	second, _, err := s.Exec("ds new 0x800")
	require.NoError(t, err)
	_, _, err = s.Exec("ds free " + second.Result)
	assert.Error(t, err, "the current data segment stays allocated")
	_, _, err = s.Exec("ds " + first.Result)
	require.NoError(t, err)
	st, _, err = s.Exec("ds free " + second.Result)
	require.NoError(t, err)
	assert.Equal(t, first.Value, st.Value)
	_, _, err = s.Exec("ds " + second.Result)
	assert.Error(t, err)
}

func TestSplitArgs(t *testing.T) {
	got, err := splitArgs(`KERNEL.72 0xc001 "a b" 16`)
	require.NoError(t, err)
	assert.Equal(t, []string{"KERNEL.72", "0xc001", `"a b"`, "16"}, got)

	_, err = splitArgs(`USER.268 "open`)
	assert.Error(t, err)
}
