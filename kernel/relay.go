package kernel

import (
	"encoding/binary"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/stack16"
)

// Argument sizes of 16-bit entry points.
const (
	ArgWord   = 2
	ArgSegPtr = 4
)

// Entry16 describes a 16-bit entry point reachable through Call16.
// Args lists argument sizes in declaration order; callers push them in that
// order, so the handler reads them back last to first.
type Entry16 struct {
	handler func(k *Kernel, va *stack16.VaList) (uint32, error)
	Module  string
	Name    string
	Args    []int
	Ordinal uint16
}

// Ref returns the MODULE.ordinal form used in listings.
func (e *Entry16) Ref() string {
	return fmt.Sprintf("%s.%d", e.Module, e.Ordinal)
}

func (e *Entry16) argBytes() int {
	n := 0
	for _, a := range e.Args {
		n += (a + 1) &^ 1
	}
	return n
}

type entryKey struct {
	module  string
	ordinal uint16
}

var entries16 = map[entryKey]*Entry16{}

func register16(e *Entry16) {
	entries16[entryKey{e.Module, e.Ordinal}] = e
}

func init() {
	register16(&Entry16{Module: "KERNEL", Ordinal: 68, Name: "InitAtomTable", Args: []int{ArgWord},
		handler: func(k *Kernel, va *stack16.VaList) (uint32, error) {
			n, err := va.Word()
			if err != nil {
				return 0, err
			}
			return uint32(k.initAtomTable16(n)), nil
		}})
	register16(&Entry16{Module: "KERNEL", Ordinal: 69, Name: "FindAtom", Args: []int{ArgSegPtr},
		handler: segPtrHandler((*Kernel).findAtom16)})
	register16(&Entry16{Module: "KERNEL", Ordinal: 70, Name: "AddAtom", Args: []int{ArgSegPtr},
		handler: segPtrHandler((*Kernel).addAtom16)})
	register16(&Entry16{Module: "KERNEL", Ordinal: 71, Name: "DeleteAtom", Args: []int{ArgWord},
		handler: atomHandler((*Kernel).deleteAtom16)})
	register16(&Entry16{Module: "KERNEL", Ordinal: 72, Name: "GetAtomName", Args: []int{ArgWord, ArgSegPtr, ArgWord},
		handler: nameHandler((*Kernel).getAtomName16)})
	register16(&Entry16{Module: "KERNEL", Ordinal: 73, Name: "GetAtomHandle", Args: []int{ArgWord},
		handler: func(k *Kernel, va *stack16.VaList) (uint32, error) {
			a, err := va.Word()
			if err != nil {
				return 0, err
			}
			return uint32(k.atoms.Handle(atom.Atom(a))), nil
		}})
	register16(&Entry16{Module: "USER", Ordinal: 268, Name: "GlobalAddAtom", Args: []int{ArgSegPtr},
		handler: segPtrHandler((*Kernel).globalAdd16)})
	register16(&Entry16{Module: "USER", Ordinal: 269, Name: "GlobalDeleteAtom", Args: []int{ArgWord},
		handler: atomHandler((*Kernel).globalDelete)})
	register16(&Entry16{Module: "USER", Ordinal: 270, Name: "GlobalFindAtom", Args: []int{ArgSegPtr},
		handler: segPtrHandler((*Kernel).globalFind16)})
	register16(&Entry16{Module: "USER", Ordinal: 271, Name: "GlobalGetAtomName", Args: []int{ArgWord, ArgSegPtr, ArgWord},
		handler: nameHandler((*Kernel).globalName16)})
}

func segPtrHandler(fn func(*Kernel, seg16.SegPtr) atom.Atom) func(*Kernel, *stack16.VaList) (uint32, error) {
	return func(k *Kernel, va *stack16.VaList) (uint32, error) {
		p, err := va.SegPtr()
		if err != nil {
			return 0, err
		}
		return uint32(fn(k, p)), nil
	}
}

func atomHandler(fn func(*Kernel, atom.Atom) atom.Atom) func(*Kernel, *stack16.VaList) (uint32, error) {
	return func(k *Kernel, va *stack16.VaList) (uint32, error) {
		a, err := va.Word()
		if err != nil {
			return 0, err
		}
		return uint32(fn(k, atom.Atom(a))), nil
	}
}

func nameHandler(fn func(*Kernel, atom.Atom, seg16.SegPtr, int16) uint16) func(*Kernel, *stack16.VaList) (uint32, error) {
	return func(k *Kernel, va *stack16.VaList) (uint32, error) {
		count, err := va.Word()
		if err != nil {
			return 0, err
		}
		buf, err := va.SegPtr()
		if err != nil {
			return 0, err
		}
		a, err := va.Word()
		if err != nil {
			return 0, err
		}
		return uint32(fn(k, atom.Atom(a), buf, int16(count))), nil
	}
}

// Entries16 lists the registered 16-bit entry points by module and ordinal.
func Entries16() []*Entry16 {
	out := make([]*Entry16, 0, len(entries16))
	for _, e := range entries16 {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Ordinal < out[j].Ordinal
	})
	return out
}

// Lookup16 finds an entry point by module name and ordinal.
func Lookup16(module string, ordinal uint16) (*Entry16, bool) {
	e, ok := entries16[entryKey{module, ordinal}]
	return e, ok
}

// Call16 performs a complete 16-bit call into an entry point: the host
// enters 16-bit code (a Frame32 on the flat stack), the 16-bit caller pushes
// args in declaration order and calls through the relay (a Frame16 on the
// 16-bit stack), the handler decodes its arguments above that frame, and
// both frames are unwound. Both stack pointers are restored on return.
func (k *Kernel) Call16(module string, ordinal uint16, args ...uint32) (uint32, error) {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return 0, err
	}

	e, ok := Lookup16(module, ordinal)
	if !ok {
		return 0, errors.NotFound(errors.PhaseStack, "entry point", fmt.Sprintf("%s.%d", module, ordinal))
	}
	if len(args) != len(e.Args) {
		return 0, errors.New(errors.PhaseStack, errors.KindInvalidInput).
			Path(e.Ref(), e.Name).
			Detail("expected %d arguments, got %d", len(e.Args), len(args)).
			Build()
	}

	caller, err := k.stack.Current()
	if err != nil {
		return 0, err
	}
	if _, err := k.bridge.CallTo16(stack16.Frame32{CodeSelector: uint32(k.ss)}); err != nil {
		return 0, err
	}
	// Past this point the flat frame restores SS:SP, whatever happens.
	defer func() {
		if _, err := k.bridge.Return32(); err != nil {
			Logger().Warn("frame32 unwind failed", zap.Error(err))
		}
	}()

	for i, size := range e.Args {
		if err := k.stack.PushData(encodeArg(args[i], size)); err != nil {
			return 0, err
		}
	}
	if err := k.bridge.CallFrom16(stack16.Frame16{
		DS:         caller.DS,
		ES:         caller.ES,
		EntryCS:    uint16(k.ss),
		EntryIP:    e.Ordinal,
		EntryPoint: uint32(e.Ordinal),
	}); err != nil {
		return 0, err
	}

	ret, callErr := e.handler(k, k.stack.VaStart())
	if _, err := k.bridge.Return16(); err != nil {
		return 0, err
	}
	if err := k.stack.Drop(uint16(e.argBytes())); err != nil {
		return 0, err
	}
	Logger().Debug("call16",
		zap.String("entry", e.Ref()),
		zap.String("name", e.Name),
		zap.Uint32("result", ret),
		zap.Error(callErr))
	return ret, callErr
}

func encodeArg(v uint32, size int) []byte {
	b := make([]byte, (size+1)&^1)
	switch size {
	case ArgWord:
		binary.LittleEndian.PutUint16(b, uint16(v))
	default:
		binary.LittleEndian.PutUint32(b, v)
	}
	return b
}
