package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/kernel"
	"github.com/wippyai/seg16/stack16"
)

// Scratch segment layout: call and lookup strings from the start, name
// buffers in the upper half.
const (
	scratchSize    = 0x1000
	scratchNameOff = 0x800
)

// step is the outcome of one script line.
type step struct {
	Line    int              `json:"line"`
	Command string           `json:"command"`
	Result  string           `json:"result"`
	Value   uint32           `json:"value"`
	Entries []atom.Entry     `json:"entries,omitempty"`
	Frame   *stack16.Frame16 `json:"frame,omitempty"`
}

// session runs script commands against one kernel.
type session struct {
	k       *kernel.Kernel
	scratch seg16.Selector
	cursor  uint16
	line    int
}

func newSession(k *kernel.Kernel) (*session, error) {
	sel, err := k.LDT().Alloc(scratchSize)
	if err != nil {
		return nil, fmt.Errorf("scratch segment: %w", err)
	}
	return &session{k: k, scratch: sel}, nil
}

func openSession(ctx context.Context) (*session, error) {
	k, err := newKernel(ctx)
	if err != nil {
		return nil, err
	}
	s, err := newSession(k)
	if err != nil {
		k.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() error {
	return s.k.Close()
}

// Run executes every line of r, stopping at the first failing command.
func (s *session) Run(r io.Reader) ([]step, error) {
	var steps []step
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		st, ok, err := s.Exec(sc.Text())
		if err != nil {
			return steps, fmt.Errorf("line %d: %w", s.line, err)
		}
		if ok {
			steps = append(steps, st)
		}
	}
	return steps, sc.Err()
}

// Exec runs a single line. ok is false for blank lines and comments.
func (s *session) Exec(line string) (st step, ok bool, err error) {
	s.line++
	line = strings.TrimSpace(line)
	if line == "" || line[0] == ';' {
		return step{}, false, nil
	}
	s.cursor = 0

	op, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	st = step{Line: s.line, Command: line}

	switch op {
	case "add", "find", "gadd", "gfind":
		err = s.lookup(&st, op, rest)
	case "delete", "gdelete":
		err = s.delete(&st, op, rest)
	case "name", "gname":
		err = s.name(&st, op, rest)
	case "init":
		err = s.init(&st, rest)
	case "push":
		err = s.push(&st, rest)
	case "pop":
		err = s.pop(&st, rest)
	case "dump":
		err = s.dump(&st, rest)
	case "frame":
		err = s.frame(&st)
	case "call":
		err = s.call(&st, rest)
	case "ds":
		err = s.ds(&st, rest)
	default:
		err = fmt.Errorf("unknown command %q", op)
	}
	return st, true, err
}

func (s *session) lookup(st *step, op, rest string) error {
	text, err := parseText(rest)
	if err != nil {
		return err
	}
	p, err := s.stage(text)
	if err != nil {
		return err
	}
	var a atom.Atom
	switch op {
	case "add":
		a = s.k.AddAtom16(p)
	case "find":
		a = s.k.FindAtom16(p)
	case "gadd":
		a = s.k.GlobalAddAtom16(p)
	case "gfind":
		a = s.k.GlobalFindAtom16(p)
	}
	setAtom(st, a)
	return nil
}

func (s *session) delete(st *step, op, rest string) error {
	a, err := parseAtom(rest)
	if err != nil {
		return err
	}
	if op == "gdelete" {
		setAtom(st, s.k.GlobalDeleteAtom(a))
	} else {
		setAtom(st, s.k.DeleteAtom16(a))
	}
	return nil
}

func (s *session) name(st *step, op, rest string) error {
	a, err := parseAtom(rest)
	if err != nil {
		return err
	}
	buf := seg16.MakeSegPtr(s.scratch, scratchNameOff)
	v, err := s.k.LDT().FarView(buf, 1)
	if err != nil {
		return err
	}
	v[0] = 0

	var n uint16
	if op == "gname" {
		n = s.k.GlobalGetAtomName16(a, buf, atom.MaxLen+1)
	} else {
		n = s.k.GetAtomName16(a, buf, atom.MaxLen+1)
	}
	text, err := s.k.LDT().CString(buf, atom.MaxLen)
	if err != nil {
		return err
	}
	st.Value = uint32(n)
	st.Result = strconv.Quote(string(text))
	return nil
}

func (s *session) init(st *step, rest string) error {
	var n uint64
	if rest != "" {
		var err error
		if n, err = strconv.ParseUint(rest, 0, 16); err != nil {
			return fmt.Errorf("bucket count: %w", err)
		}
	}
	h := s.k.InitAtomTable16(uint16(n))
	st.Value = uint32(h)
	st.Result = fmt.Sprintf("0x%04x", uint16(h))
	return nil
}

func (s *session) push(st *step, rest string) error {
	n, err := strconv.ParseUint(rest, 0, 16)
	if err != nil {
		return fmt.Errorf("byte count: %w", err)
	}
	p, err := s.k.Stack().Push(uint16(n))
	if err != nil {
		return err
	}
	st.Value = uint32(p)
	st.Result = p.String()
	return nil
}

func (s *session) pop(st *step, rest string) error {
	n, err := strconv.ParseUint(rest, 0, 16)
	if err != nil {
		return fmt.Errorf("byte count: %w", err)
	}
	if err := s.k.Stack().Pop(uint16(n)); err != nil {
		return err
	}
	p := s.k.Stack().SSSP()
	st.Value = uint32(p)
	st.Result = p.String()
	return nil
}

func (s *session) dump(st *step, rest string) error {
	var sel seg16.Selector
	switch rest {
	case "":
		ds, err := s.k.CurrentDS()
		if err != nil {
			return err
		}
		sel = ds
	case "global":
		sel = s.k.UserHeap()
	default:
		return fmt.Errorf("dump takes no argument or \"global\", got %q", rest)
	}
	entries, err := s.k.Entries(sel)
	if err != nil {
		return err
	}
	st.Entries = entries
	st.Value = uint32(len(entries))
	st.Result = fmt.Sprintf("%d atoms in %d buckets", len(entries), s.k.Buckets(sel))
	return nil
}

func (s *session) frame(st *step) error {
	f, err := s.k.Stack().Current()
	if err != nil {
		return err
	}
	st.Frame = &f
	st.Value = uint32(s.k.Stack().SSSP())
	st.Result = fmt.Sprintf("ss:sp=%s ds=%04x es=%04x bp=%04x", s.k.Stack().SSSP(), f.DS, f.ES, f.BP)
	return nil
}

// call parses "MODULE.ordinal arg..." where each arg is a number or a quoted
// string staged in scratch memory.
func (s *session) call(st *step, rest string) error {
	fields, err := splitArgs(rest)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("call needs MODULE.ordinal")
	}
	module, ord, ok := strings.Cut(fields[0], ".")
	if !ok {
		return fmt.Errorf("entry point %q is not MODULE.ordinal", fields[0])
	}
	ordinal, err := strconv.ParseUint(ord, 10, 16)
	if err != nil {
		return fmt.Errorf("ordinal: %w", err)
	}

	args := make([]uint32, 0, len(fields)-1)
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, `"`) {
			text, err := strconv.Unquote(f)
			if err != nil {
				return err
			}
			p, err := s.stage(text)
			if err != nil {
				return err
			}
			args = append(args, uint32(p))
			continue
		}
		v, err := strconv.ParseUint(f, 0, 32)
		if err != nil {
			return fmt.Errorf("argument %q: %w", f, err)
		}
		args = append(args, uint32(v))
	}

	ret, err := s.k.Call16(strings.ToUpper(module), uint16(ordinal), args...)
	if err != nil {
		return err
	}
	st.Value = ret
	st.Result = fmt.Sprintf("0x%04x", ret)
	return nil
}

func (s *session) ds(st *step, rest string) error {
	fields := strings.Fields(rest)
	switch {
	case len(fields) == 0:
	case fields[0] == "new" && len(fields) == 2:
		size, err := strconv.ParseUint(fields[1], 0, 32)
		if err != nil {
			return fmt.Errorf("segment size: %w", err)
		}
		sel, err := s.k.NewDataSegment(uint32(size))
		if err != nil {
			return err
		}
		if err := s.k.SetCurrentDS(sel); err != nil {
			return err
		}
	case fields[0] == "free" && len(fields) == 2:
		sel, err := strconv.ParseUint(fields[1], 0, 16)
		if err != nil {
			return fmt.Errorf("selector: %w", err)
		}
		if err := s.k.FreeDataSegment(seg16.Selector(sel)); err != nil {
			return err
		}
	case len(fields) == 1:
		sel, err := strconv.ParseUint(fields[0], 0, 16)
		if err != nil {
			return fmt.Errorf("selector: %w", err)
		}
		if err := s.k.SetCurrentDS(seg16.Selector(sel)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("usage: ds [new <size> | free <selector> | <selector>]")
	}
	ds, err := s.k.CurrentDS()
	if err != nil {
		return err
	}
	st.Value = uint32(ds)
	st.Result = fmt.Sprintf("0x%04x", uint16(ds))
	return nil
}

// stage copies text and a NUL into scratch memory.
func (s *session) stage(text string) (seg16.SegPtr, error) {
	n := len(text) + 1
	if int(s.cursor)+n > scratchNameOff {
		return 0, fmt.Errorf("string arguments exceed %d bytes", scratchNameOff)
	}
	p := seg16.MakeSegPtr(s.scratch, s.cursor)
	v, err := s.k.LDT().FarView(p, n)
	if err != nil {
		return 0, err
	}
	copy(v, text)
	v[len(text)] = 0
	s.cursor += uint16(n)
	return p, nil
}

func setAtom(st *step, a atom.Atom) {
	st.Value = uint32(a)
	st.Result = a.String()
}

// parseText takes the rest of a line as atom text. A double-quoted argument
// is unquoted, which allows leading spaces and escapes.
func parseText(rest string) (string, error) {
	if strings.HasPrefix(rest, `"`) {
		return strconv.Unquote(rest)
	}
	return rest, nil
}

func parseAtom(s string) (atom.Atom, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("atom %q: %w", s, err)
	}
	return atom.Atom(v), nil
}

// splitArgs splits on spaces, keeping double-quoted strings whole.
func splitArgs(s string) ([]string, error) {
	var out []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			return out, nil
		}
		if s[0] != '"' {
			end := strings.IndexAny(s, " \t")
			if end < 0 {
				end = len(s)
			}
			out = append(out, s[:end])
			s = s[end:]
			continue
		}
		q, err := strconv.QuotedPrefix(s)
		if err != nil {
			return nil, fmt.Errorf("unterminated string in %q", s)
		}
		out = append(out, q)
		s = s[len(q):]
	}
}
