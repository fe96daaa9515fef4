package atom

import (
	"strconv"
	"strings"

	"github.com/wippyai/seg16"
)

// Atom is a 16-bit identifier for an interned string or a small integer.
type Atom uint16

const (
	// MinStringAtom is the first atom value that refers to a table entry.
	MinStringAtom Atom = 0xC000

	// MaxLen is the longest string stored; longer input is truncated.
	MaxLen = 255

	// DefaultBuckets is the bucket count of lazily created tables.
	DefaultBuckets = 37

	// IntegerPrefix marks text that names an integer atom.
	IntegerPrefix = '#'
)

// IsInteger reports whether a is an integer atom.
func (a Atom) IsInteger() bool {
	return a < MinStringAtom
}

func (a Atom) String() string {
	if a.IsInteger() {
		return "#" + strconv.Itoa(int(a))
	}
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

type refKind uint8

const (
	refInteger refKind = iota
	refString
)

// ref is the decoded form of an atom.
type ref struct {
	kind   refKind
	value  uint16
	handle seg16.Handle
}

func integerRef(v uint16) ref {
	return ref{kind: refInteger, value: v}
}

func stringRef(h seg16.Handle) ref {
	return ref{kind: refString, handle: h}
}

func (r ref) encode() Atom {
	if r.kind == refInteger {
		return Atom(r.value)
	}
	return Atom(uint16(MinStringAtom) | uint16(r.handle)>>2)
}

func decode(a Atom) ref {
	if a.IsInteger() {
		return integerRef(uint16(a))
	}
	return stringRef(seg16.Handle(uint16(a) << 2))
}

// HandleOf returns the heap handle behind a string atom, 0 for integer atoms.
func HandleOf(a Atom) seg16.Handle {
	r := decode(a)
	if r.kind == refInteger {
		return 0
	}
	return r.handle
}

// FromHandle returns the string atom for an entry handle.
func FromHandle(h seg16.Handle) Atom {
	return stringRef(h).encode()
}

// Hash returns the bucket index of text in a table of n buckets.
// Only the first MaxLen bytes take part.
func Hash(text string, n uint16) uint16 {
	if n == 0 {
		return 0
	}
	return rawHash(truncate(cstring(text))) % n
}

// RawHash returns the hash of text before reduction to a bucket index.
func RawHash(text string) uint16 {
	return rawHash(truncate(cstring(text)))
}

func rawHash(s string) uint16 {
	var h uint16
	for i := 0; i < len(s); i++ {
		h ^= uint16(upper(s[i])) + uint16(i)
	}
	return h
}

// ParseInteger converts the text after IntegerPrefix into an integer atom.
// Leading whitespace, an optional sign and trailing garbage are accepted;
// values outside [0, MinStringAtom) yield 0.
func ParseInteger(s string) Atom {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var v int
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		v = v*10 + int(s[i]-'0')
		if v >= int(MinStringAtom) {
			return 0
		}
	}
	if neg && v != 0 {
		return 0
	}
	return Atom(v)
}

func cstring(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string) string {
	if len(s) > MaxLen {
		return s[:MaxLen]
	}
	return s
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// equalFold compares stored bytes with text, ignoring ASCII case.
func equalFold(stored []byte, text string) bool {
	if len(stored) != len(text) {
		return false
	}
	for i := range stored {
		if upper(stored[i]) != upper(text[i]) {
			return false
		}
	}
	return true
}
