package kernel

import (
	"encoding/binary"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// ansi is the code page used for narrow strings.
var ansi = charmap.Windows1252

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// unmappable replaces characters the code page cannot represent.
const unmappable = '?'

// ToANSI converts a UTF-16 string to the ANSI code page. Conversion stops at
// the first NUL unit.
func ToANSI(w []uint16) []byte {
	for i, c := range w {
		if c == 0 {
			w = w[:i]
			break
		}
	}
	raw := make([]byte, 2*len(w))
	for i, c := range w {
		binary.LittleEndian.PutUint16(raw[2*i:], c)
	}
	text, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(w))
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		text = text[size:]
		b, ok := ansi.EncodeRune(r)
		if !ok {
			b = unmappable
		}
		out = append(out, b)
	}
	return out
}

// FromANSI converts ANSI text to UTF-16 without a terminator.
func FromANSI(a []byte) []uint16 {
	text, err := ansi.NewDecoder().Bytes(a)
	if err != nil {
		return nil
	}
	raw, err := utf16le.NewEncoder().Bytes(text)
	if err != nil {
		return nil
	}
	w := make([]uint16, len(raw)/2)
	for i := range w {
		w[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return w
}

// UTF16 encodes a Go string as NUL-terminated UTF-16.
func UTF16(s string) []uint16 {
	raw, err := utf16le.NewEncoder().String(s)
	if err != nil {
		return []uint16{0}
	}
	w := make([]uint16, len(raw)/2+1)
	for i := 0; i < len(raw)/2; i++ {
		w[i] = binary.LittleEndian.Uint16([]byte(raw[2*i:]))
	}
	return w
}

// WString decodes NUL-terminated UTF-16 into a Go string.
func WString(w []uint16) string {
	for i, c := range w {
		if c == 0 {
			w = w[:i]
			break
		}
	}
	raw := make([]byte, 2*len(w))
	for i, c := range w {
		binary.LittleEndian.PutUint16(raw[2*i:], c)
	}
	text, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(text)
}
