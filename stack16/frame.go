package stack16

import (
	"encoding/binary"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
)

// Frame32 field offsets.
const (
	Frame32Frame16      = 0x00
	Frame32EDI          = 0x04
	Frame32ESI          = 0x08
	Frame32EDX          = 0x0c
	Frame32ECX          = 0x10
	Frame32EBX          = 0x14
	Frame32RestoreAddr  = 0x18
	Frame32CodeSelector = 0x1c
	Frame32EBP          = 0x20
	Frame32RetAddr      = 0x24
	Frame32Args         = 0x28

	// Frame32Size is the fixed part of a Frame32.
	Frame32Size = Frame32Args
)

// Frame16 field offsets.
const (
	Frame16Frame32    = 0x00
	Frame16EBP        = 0x04
	Frame16EntryIP    = 0x08
	Frame16DS         = 0x0a
	Frame16EntryCS    = 0x0c
	Frame16ES         = 0x0e
	Frame16EntryPoint = 0x10
	Frame16BP         = 0x14
	Frame16IP         = 0x16
	Frame16CS         = 0x18

	Frame16Size = 0x1a
)

// Frame32 is the frame saved on the flat stack when 32-bit code calls into
// 16-bit code.
type Frame32 struct {
	Args         []uint32
	Frame16      seg16.SegPtr // 16-bit SS:SP at the time of the call
	EDI          uint32
	ESI          uint32
	EDX          uint32
	ECX          uint32
	EBX          uint32
	RestoreAddr  uint32
	CodeSelector uint32
	EBP          uint32
	RetAddr      uint32
}

// Size returns the encoded size including arguments.
func (f *Frame32) Size() int {
	return Frame32Size + 4*len(f.Args)
}

// MarshalBinary encodes the frame in its packed layout.
func (f *Frame32) MarshalBinary() ([]byte, error) {
	b := make([]byte, f.Size())
	le := binary.LittleEndian
	le.PutUint32(b[Frame32Frame16:], uint32(f.Frame16))
	le.PutUint32(b[Frame32EDI:], f.EDI)
	le.PutUint32(b[Frame32ESI:], f.ESI)
	le.PutUint32(b[Frame32EDX:], f.EDX)
	le.PutUint32(b[Frame32ECX:], f.ECX)
	le.PutUint32(b[Frame32EBX:], f.EBX)
	le.PutUint32(b[Frame32RestoreAddr:], f.RestoreAddr)
	le.PutUint32(b[Frame32CodeSelector:], f.CodeSelector)
	le.PutUint32(b[Frame32EBP:], f.EBP)
	le.PutUint32(b[Frame32RetAddr:], f.RetAddr)
	for i, a := range f.Args {
		le.PutUint32(b[Frame32Args+4*i:], a)
	}
	return b, nil
}

// UnmarshalBinary decodes a frame. Every whole DWORD past the fixed part
// becomes an argument.
func (f *Frame32) UnmarshalBinary(b []byte) error {
	if len(b) < Frame32Size {
		return errors.New(errors.PhaseStack, errors.KindInvalidData).
			Detail("frame32 needs %d bytes, got %d", Frame32Size, len(b)).
			Build()
	}
	le := binary.LittleEndian
	f.Frame16 = seg16.SegPtr(le.Uint32(b[Frame32Frame16:]))
	f.EDI = le.Uint32(b[Frame32EDI:])
	f.ESI = le.Uint32(b[Frame32ESI:])
	f.EDX = le.Uint32(b[Frame32EDX:])
	f.ECX = le.Uint32(b[Frame32ECX:])
	f.EBX = le.Uint32(b[Frame32EBX:])
	f.RestoreAddr = le.Uint32(b[Frame32RestoreAddr:])
	f.CodeSelector = le.Uint32(b[Frame32CodeSelector:])
	f.EBP = le.Uint32(b[Frame32EBP:])
	f.RetAddr = le.Uint32(b[Frame32RetAddr:])
	f.Args = nil
	if n := (len(b) - Frame32Size) / 4; n > 0 {
		f.Args = make([]uint32, n)
		for i := range f.Args {
			f.Args[i] = le.Uint32(b[Frame32Args+4*i:])
		}
	}
	return nil
}

// Frame16 is the frame saved on the 16-bit stack when 16-bit code calls into
// 32-bit code.
type Frame16 struct {
	Frame32    uint32 // flat address of the last Frame32
	EBP        uint32
	EntryPoint uint32
	EntryIP    uint16
	DS         uint16
	EntryCS    uint16
	ES         uint16
	BP         uint16
	IP         uint16
	CS         uint16
}

// MarshalBinary encodes the frame in its packed layout.
func (f *Frame16) MarshalBinary() ([]byte, error) {
	b := make([]byte, Frame16Size)
	f.put(b)
	return b, nil
}

func (f *Frame16) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[Frame16Frame32:], f.Frame32)
	le.PutUint32(b[Frame16EBP:], f.EBP)
	le.PutUint16(b[Frame16EntryIP:], f.EntryIP)
	le.PutUint16(b[Frame16DS:], f.DS)
	le.PutUint16(b[Frame16EntryCS:], f.EntryCS)
	le.PutUint16(b[Frame16ES:], f.ES)
	le.PutUint32(b[Frame16EntryPoint:], f.EntryPoint)
	le.PutUint16(b[Frame16BP:], f.BP)
	le.PutUint16(b[Frame16IP:], f.IP)
	le.PutUint16(b[Frame16CS:], f.CS)
}

// UnmarshalBinary decodes a frame from the first Frame16Size bytes of b.
func (f *Frame16) UnmarshalBinary(b []byte) error {
	if len(b) < Frame16Size {
		return errors.New(errors.PhaseStack, errors.KindInvalidData).
			Detail("frame16 needs %d bytes, got %d", Frame16Size, len(b)).
			Build()
	}
	le := binary.LittleEndian
	f.Frame32 = le.Uint32(b[Frame16Frame32:])
	f.EBP = le.Uint32(b[Frame16EBP:])
	f.EntryIP = le.Uint16(b[Frame16EntryIP:])
	f.DS = le.Uint16(b[Frame16DS:])
	f.EntryCS = le.Uint16(b[Frame16EntryCS:])
	f.ES = le.Uint16(b[Frame16ES:])
	f.EntryPoint = le.Uint32(b[Frame16EntryPoint:])
	f.BP = le.Uint16(b[Frame16BP:])
	f.IP = le.Uint16(b[Frame16IP:])
	f.CS = le.Uint16(b[Frame16CS:])
	return nil
}
