package kernel

import (
	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
)

// InitAtomTable16 creates the atom table of the current data segment with
// entries buckets (0 selects the default) and returns its handle, 0 on
// failure. KERNEL.68.
func (k *Kernel) InitAtomTable16(entries uint16) seg16.Handle {
	k.mu.Lock()
	defer k.unlock()
	return k.initAtomTable16(entries)
}

func (k *Kernel) initAtomTable16(entries uint16) seg16.Handle {
	ds, ok := k.currentDS()
	if !ok {
		return 0
	}
	return k.atoms.InitTable(ds, entries)
}

// GetAtomHandle returns the local heap handle of a string atom. KERNEL.73.
func (k *Kernel) GetAtomHandle(a atom.Atom) seg16.Handle {
	k.mu.Lock()
	defer k.unlock()
	return k.atoms.Handle(a)
}

// AddAtom16 adds the string at str to the current data segment's table.
// A pointer with a zero selector is an integer atom. KERNEL.70.
func (k *Kernel) AddAtom16(str seg16.SegPtr) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.addAtom16(str)
}

func (k *Kernel) addAtom16(str seg16.SegPtr) atom.Atom {
	if str.Selector() == 0 {
		return atom.Atom(str.Offset())
	}
	ds, ok := k.currentDS()
	if !ok {
		return 0
	}
	// The table may grow and relocate its segment, which may be the one
	// holding str; the text is copied out before the table is touched.
	text, ok := k.readString(str)
	if !ok {
		return 0
	}
	return k.atoms.Add(ds, text)
}

// FindAtom16 looks up the string at str in the current data segment's
// table. KERNEL.69.
func (k *Kernel) FindAtom16(str seg16.SegPtr) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.findAtom16(str)
}

func (k *Kernel) findAtom16(str seg16.SegPtr) atom.Atom {
	if str.Selector() == 0 {
		return atom.Atom(str.Offset())
	}
	ds, ok := k.currentDS()
	if !ok {
		return 0
	}
	text, ok := k.readString(str)
	if !ok {
		return 0
	}
	return k.atoms.Find(ds, text)
}

// DeleteAtom16 releases a reference in the current data segment's table.
// KERNEL.71.
func (k *Kernel) DeleteAtom16(a atom.Atom) atom.Atom {
	k.mu.Lock()
	defer k.unlock()
	return k.deleteAtom16(a)
}

func (k *Kernel) deleteAtom16(a atom.Atom) atom.Atom {
	ds, ok := k.currentDS()
	if !ok {
		return 0
	}
	return k.atoms.Delete(ds, a)
}

// GetAtomName16 copies the name of a into the count-byte buffer at buf and
// returns the length written. KERNEL.72.
func (k *Kernel) GetAtomName16(a atom.Atom, buf seg16.SegPtr, count int16) uint16 {
	k.mu.Lock()
	defer k.unlock()
	return k.getAtomName16(a, buf, count)
}

func (k *Kernel) getAtomName16(a atom.Atom, buf seg16.SegPtr, count int16) uint16 {
	ds, ok := k.currentDS()
	if !ok {
		return 0
	}
	return k.nameInto(ds, a, buf, count)
}

// readString copies at most atom.MaxLen bytes of the C string at p.
func (k *Kernel) readString(p seg16.SegPtr) (string, bool) {
	b, err := k.ldt.CString(p, atom.MaxLen)
	if err != nil {
		Logger().Debug("unreadable string", zap.Stringer("ptr", p), zap.Error(err))
		return "", false
	}
	return string(b), true
}

// nameInto renders the name of a from the table of sel into segment memory.
// The buffer is left untouched when a is not a live atom.
func (k *Kernel) nameInto(sel seg16.Selector, a atom.Atom, buf seg16.SegPtr, count int16) uint16 {
	if count <= 0 {
		return 0
	}
	tmp := make([]byte, min(int(count), atom.MaxLen+1))
	n := k.atoms.Name(sel, a, tmp)
	if n == 0 && !k.live(sel, a) {
		return 0
	}
	v, err := k.ldt.FarView(buf, n+1)
	if err != nil {
		Logger().Debug("name buffer out of bounds", zap.Stringer("ptr", buf), zap.Error(err))
		return 0
	}
	copy(v, tmp[:n+1])
	return uint16(n)
}

func (k *Kernel) live(sel seg16.Selector, a atom.Atom) bool {
	if a.IsInteger() {
		return true
	}
	_, ok := k.atoms.RefCount(sel, a)
	return ok
}
