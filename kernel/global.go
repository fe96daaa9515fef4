package kernel

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
)

// GlobalAddAtom16 adds the string at str to the global table. USER.268.
func (k *Kernel) GlobalAddAtom16(str seg16.SegPtr) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.globalAdd16(str)
}

func (k *Kernel) globalAdd16(str seg16.SegPtr) atom.Atom {
	if str.Selector() == 0 {
		return atom.Atom(str.Offset())
	}
	if k.closed {
		return 0
	}
	text, ok := k.readString(str)
	if !ok {
		return 0
	}
	return k.atoms.Add(k.userHeap, text)
}

// GlobalFindAtom16 looks up the string at str in the global table. USER.270.
func (k *Kernel) GlobalFindAtom16(str seg16.SegPtr) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.globalFind16(str)
}

func (k *Kernel) globalFind16(str seg16.SegPtr) atom.Atom {
	if str.Selector() == 0 {
		return atom.Atom(str.Offset())
	}
	if k.closed {
		return 0
	}
	text, ok := k.readString(str)
	if !ok {
		return 0
	}
	return k.atoms.Find(k.userHeap, text)
}

// GlobalDeleteAtom releases a reference in the global table.
// USER.269, KERNEL32.317.
func (k *Kernel) GlobalDeleteAtom(a atom.Atom) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.globalDelete(a)
}

func (k *Kernel) globalDelete(a atom.Atom) atom.Atom {
	if k.closed {
		return 0
	}
	return k.atoms.Delete(k.userHeap, a)
}

// GlobalGetAtomName16 copies the global name of a into the count-byte
// buffer at buf. USER.271.
func (k *Kernel) GlobalGetAtomName16(a atom.Atom, buf seg16.SegPtr, count int16) uint16 {
	k.mu.Lock()
	defer k.unlock()
	return k.globalName16(a, buf, count)
}

func (k *Kernel) globalName16(a atom.Atom, buf seg16.SegPtr, count int16) uint16 {
	if k.closed {
		return 0
	}
	return k.nameInto(k.userHeap, a, buf, count)
}

// GlobalAddAtom32A adds a flat string to the global table. KERNEL32.313.
func (k *Kernel) GlobalAddAtom32A(str string) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.thunkString([]byte(str), k.globalAdd16)
}

// GlobalAddAtom32W adds a wide string to the global table. KERNEL32.314.
func (k *Kernel) GlobalAddAtom32W(str []uint16) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.thunkString(ToANSI(str), k.globalAdd16)
}

// GlobalFindAtom32A looks up a flat string in the global table.
// KERNEL32.318.
func (k *Kernel) GlobalFindAtom32A(str string) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.thunkString([]byte(str), k.globalFind16)
}

// GlobalFindAtom32W looks up a wide string in the global table.
// KERNEL32.319.
func (k *Kernel) GlobalFindAtom32W(str []uint16) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.thunkString(ToANSI(str), k.globalFind16)
}

// GlobalGetAtomName32A copies the global name of a into buf, NUL-terminated,
// and returns its length. KERNEL32.323.
func (k *Kernel) GlobalGetAtomName32A(a atom.Atom, buf []byte) uint32 {
	k.mu.Lock()
	defer k.unlock()
	if len(buf) == 0 || k.closed {
		return 0
	}

	size := min(len(buf), atom.MaxLen+1)
	p, release, ok := k.pushScratch(size)
	if !ok {
		return 0
	}
	defer release()

	n := k.globalName16(a, p, int16(size))
	if n == 0 && !k.live(k.userHeap, a) {
		return 0
	}
	v, err := k.ldt.FarView(p, int(n)+1)
	if err != nil {
		return 0
	}
	copy(buf, v)
	return uint32(n)
}

// GlobalGetAtomName32W copies the global name of a into buf as UTF-16,
// NUL-terminated, and returns its length in units. KERNEL32.324.
func (k *Kernel) GlobalGetAtomName32W(a atom.Atom, buf []uint16) uint32 {
	k.mu.Lock()
	defer k.unlock()
	if len(buf) == 0 || k.closed {
		return 0
	}
	tmp := make([]byte, atom.MaxLen+1)
	n := k.atoms.Name(k.userHeap, a, tmp)
	w := FromANSI(tmp[:n])
	m := copy(buf[:len(buf)-1], w)
	buf[m] = 0
	return uint32(m)
}

// AddAtom32A forwards to GlobalAddAtom32A. KERNEL32.0.
func (k *Kernel) AddAtom32A(str string) atom.Atom { return k.GlobalAddAtom32A(str) }

// AddAtom32W forwards to GlobalAddAtom32W. KERNEL32.1.
func (k *Kernel) AddAtom32W(str []uint16) atom.Atom { return k.GlobalAddAtom32W(str) }

// DeleteAtom32 forwards to GlobalDeleteAtom. KERNEL32.69.
func (k *Kernel) DeleteAtom32(a atom.Atom) atom.Atom { return k.GlobalDeleteAtom(a) }

// FindAtom32A forwards to GlobalFindAtom32A. KERNEL32.117.
func (k *Kernel) FindAtom32A(str string) atom.Atom { return k.GlobalFindAtom32A(str) }

// FindAtom32W forwards to GlobalFindAtom32W. KERNEL32.118.
func (k *Kernel) FindAtom32W(str []uint16) atom.Atom { return k.GlobalFindAtom32W(str) }

// GetAtomName32A forwards to GlobalGetAtomName32A. KERNEL32.149.
func (k *Kernel) GetAtomName32A(a atom.Atom, buf []byte) uint32 {
	return k.GlobalGetAtomName32A(a, buf)
}

// GetAtomName32W forwards to GlobalGetAtomName32W. KERNEL32.150.
func (k *Kernel) GetAtomName32W(a atom.Atom, buf []uint16) uint32 {
	return k.GlobalGetAtomName32W(a, buf)
}

// thunkString places a flat string on the 16-bit stack and hands its far
// address to fn. Only the first atom.MaxLen bytes before any NUL are copied.
func (k *Kernel) thunkString(s []byte, fn func(seg16.SegPtr) atom.Atom) atom.Atom {
	if k.closed {
		return 0
	}
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) > atom.MaxLen {
		s = s[:atom.MaxLen]
	}
	p, release, ok := k.pushScratch(len(s) + 1)
	if !ok {
		return 0
	}
	defer release()

	v, err := k.ldt.FarView(p, len(s)+1)
	if err != nil {
		return 0
	}
	copy(v, s)
	v[len(s)] = 0
	return fn(p)
}

// pushScratch opens at least n bytes on the 16-bit stack. release restores
// the stack.
func (k *Kernel) pushScratch(n int) (seg16.SegPtr, func(), bool) {
	size := uint16((n + 1) &^ 1)
	p, err := k.stack.Push(size)
	if err != nil {
		Logger().Debug("16-bit stack exhausted", zap.Int("bytes", n), zap.Error(err))
		return 0, nil, false
	}
	return p, func() {
		if err := k.stack.Pop(size); err != nil {
			Logger().Warn("16-bit stack pop failed", zap.Error(err))
		}
	}, true
}
