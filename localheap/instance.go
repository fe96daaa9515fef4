package localheap

import (
	"encoding/binary"

	"github.com/wippyai/seg16"
)

// Instance data layout at offset 0 of a heap segment.
const (
	InstanceDataSize = 0x10

	OffOldSSSP      = 0x02
	OffHeap         = 0x06
	OffAtomTable    = 0x08
	OffStackTop     = 0x0a
	OffStackMin     = 0x0c
	OffStackBottom  = 0x0e
	instanceNullLen = 2
)

// InstanceData mirrors the fixed header of a data segment.
type InstanceData struct {
	OldSSSP     seg16.SegPtr
	Heap        uint16
	AtomTable   seg16.Handle
	StackTop    uint16
	StackMin    uint16
	StackBottom uint16
}

// ReadInstanceData decodes the header of sel.
func ReadInstanceData(tr seg16.Translator, sel seg16.Selector) (InstanceData, error) {
	v, err := tr.View(sel, 0, InstanceDataSize)
	if err != nil {
		return InstanceData{}, err
	}
	return InstanceData{
		OldSSSP:     seg16.SegPtr(binary.LittleEndian.Uint32(v[OffOldSSSP:])),
		Heap:        binary.LittleEndian.Uint16(v[OffHeap:]),
		AtomTable:   seg16.Handle(binary.LittleEndian.Uint16(v[OffAtomTable:])),
		StackTop:    binary.LittleEndian.Uint16(v[OffStackTop:]),
		StackMin:    binary.LittleEndian.Uint16(v[OffStackMin:]),
		StackBottom: binary.LittleEndian.Uint16(v[OffStackBottom:]),
	}, nil
}

// WriteInstanceData encodes d into the header of sel.
func WriteInstanceData(tr seg16.Translator, sel seg16.Selector, d InstanceData) error {
	v, err := tr.View(sel, 0, InstanceDataSize)
	if err != nil {
		return err
	}
	clear(v[:instanceNullLen])
	binary.LittleEndian.PutUint32(v[OffOldSSSP:], uint32(d.OldSSSP))
	binary.LittleEndian.PutUint16(v[OffHeap:], d.Heap)
	binary.LittleEndian.PutUint16(v[OffAtomTable:], uint16(d.AtomTable))
	binary.LittleEndian.PutUint16(v[OffStackTop:], d.StackTop)
	binary.LittleEndian.PutUint16(v[OffStackMin:], d.StackMin)
	binary.LittleEndian.PutUint16(v[OffStackBottom:], d.StackBottom)
	return nil
}

// AtomTable returns the atom table handle recorded in sel, 0 if none.
func AtomTable(tr seg16.Translator, sel seg16.Selector) (seg16.Handle, error) {
	v, err := tr.View(sel, OffAtomTable, 2)
	if err != nil {
		return 0, err
	}
	return seg16.Handle(binary.LittleEndian.Uint16(v)), nil
}

// SetAtomTable records the atom table handle in sel.
func SetAtomTable(tr seg16.Translator, sel seg16.Selector, h seg16.Handle) error {
	v, err := tr.View(sel, OffAtomTable, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(v, uint16(h))
	return nil
}
