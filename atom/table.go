package atom

import (
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/localheap"
)

// Packed layout of the structures stored in the local heap.
const (
	TableSizeOffset    = 0
	TableBucketsOffset = 2
	EntryNextOffset    = 0
	EntryRefOffset     = 2
	EntryLenOffset     = 4
	EntryTextOffset    = 5

	maxBuckets = (0xffff - TableBucketsOffset) / 2
)

// Entry is a snapshot of one live table entry.
type Entry struct {
	Text     string       `json:"text"`
	Handle   seg16.Handle `json:"handle"`
	Atom     Atom         `json:"atom"`
	Bucket   uint16       `json:"bucket"`
	RefCount uint16       `json:"refcount"`
}

// Tables manages the atom tables of every segment reachable through one
// allocator. The table itself lives in segment memory; Tables only holds
// collaborators and defaults.
type Tables struct {
	alloc   seg16.Allocator
	tr      seg16.Translator
	obs     observers
	buckets uint16
}

// Option configures Tables.
type Option func(*Tables)

// WithBuckets sets the bucket count used for lazily created tables.
func WithBuckets(n uint16) Option {
	return func(t *Tables) {
		if n > 0 && n <= maxBuckets {
			t.buckets = n
		}
	}
}

// New creates a table manager over the given heap and address translator.
func New(alloc seg16.Allocator, tr seg16.Translator, opts ...Option) *Tables {
	t := &Tables{alloc: alloc, tr: tr, buckets: DefaultBuckets}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DefaultBuckets returns the bucket count used by EnsureTable.
func (t *Tables) DefaultBuckets() uint16 {
	return t.buckets
}

// Subscribe adds an observer for lifecycle events.
func (t *Tables) Subscribe(o Observer) { t.obs.Subscribe(o) }

// Unsubscribe removes an observer.
func (t *Tables) Unsubscribe(o Observer) { t.obs.Unsubscribe(o) }

// EnsureTable returns the table header of sel, creating one with the
// default bucket count when the segment has none. It returns 0 on failure.
func (t *Tables) EnsureTable(sel seg16.Selector) seg16.Handle {
	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil {
		Logger().Debug("atom table lookup failed", zap.Uint16("selector", uint16(sel)), zap.Error(err))
		return 0
	}
	if th != 0 {
		return th
	}
	return t.InitTable(sel, t.buckets)
}

// InitTable allocates a table header with the given bucket count and records
// it in the instance data of sel, replacing any previous record.
// A count of 0 selects the default. It returns 0 on failure.
func (t *Tables) InitTable(sel seg16.Selector, entries uint16) seg16.Handle {
	th, err := t.initTable(sel, entries)
	if err != nil {
		Logger().Debug("atom table init failed",
			zap.Uint16("selector", uint16(sel)), zap.Uint16("entries", entries), zap.Error(err))
		return 0
	}
	return th
}

func (t *Tables) initTable(sel seg16.Selector, entries uint16) (seg16.Handle, error) {
	if entries == 0 {
		entries = t.buckets
	}
	if entries > maxBuckets {
		return 0, errors.Overflow(errors.PhaseAtom, entries, "bucket count")
	}
	size := TableBucketsOffset + 2*int(entries)
	th, err := t.alloc.Alloc(sel, uint16(size))
	if err != nil {
		return 0, err
	}
	v, err := t.tr.View(sel, uint16(th), size)
	if err != nil {
		return 0, err
	}
	clear(v)
	binary.LittleEndian.PutUint16(v[TableSizeOffset:], entries)
	if err := localheap.SetAtomTable(t.tr, sel, th); err != nil {
		return 0, err
	}
	Logger().Debug("atom table created",
		zap.Uint16("selector", uint16(sel)), zap.Uint16("handle", uint16(th)), zap.Uint16("buckets", entries))
	return th, nil
}

// Add interns text in the table of sel and returns its atom, creating the
// table on first use. Text starting with '#' yields an integer atom without
// touching the table. It returns 0 when the entry cannot be allocated.
func (t *Tables) Add(sel seg16.Selector, text string) Atom {
	s := cstring(text)
	if len(s) > 0 && s[0] == IntegerPrefix {
		return ParseInteger(s[1:])
	}
	s = truncate(s)

	th := t.EnsureTable(sel)
	if th == 0 {
		return 0
	}
	n, err := t.bucketCount(sel, th)
	if err != nil || n == 0 {
		return 0
	}
	bucket := rawHash(s) % n

	h, e, err := t.search(sel, th, bucket, s)
	if err != nil {
		Logger().Debug("atom chain walk failed", zap.Uint16("selector", uint16(sel)), zap.Error(err))
		return 0
	}
	if h != 0 {
		e.refs++
		if err := t.writeRefs(sel, h, e.refs); err != nil {
			return 0
		}
		a := FromHandle(h)
		t.obs.notify(Event{Type: EventReferenced, Selector: sel, Atom: a, RefCount: e.refs, Text: e.text})
		return a
	}

	h, err = t.alloc.Alloc(sel, uint16(EntryTextOffset+len(s)))
	if err != nil {
		Logger().Debug("atom entry allocation failed",
			zap.Uint16("selector", uint16(sel)), zap.Int("len", len(s)), zap.Error(err))
		return 0
	}
	// The allocation may have moved the segment; everything below is
	// resolved again from handles.
	head, err := t.bucketHead(sel, th, bucket)
	if err != nil {
		return 0
	}
	v, err := t.tr.View(sel, uint16(h), EntryTextOffset+len(s))
	if err != nil {
		return 0
	}
	binary.LittleEndian.PutUint16(v[EntryNextOffset:], uint16(head))
	binary.LittleEndian.PutUint16(v[EntryRefOffset:], 1)
	v[EntryLenOffset] = byte(len(s))
	copy(v[EntryTextOffset:], s)
	if err := t.setBucketHead(sel, th, bucket, h); err != nil {
		return 0
	}

	a := FromHandle(h)
	t.obs.notify(Event{Type: EventCreated, Selector: sel, Atom: a, RefCount: 1, Text: s})
	return a
}

// Find returns the atom for text without creating anything; 0 when absent.
func (t *Tables) Find(sel seg16.Selector, text string) Atom {
	s := cstring(text)
	if len(s) > 0 && s[0] == IntegerPrefix {
		return ParseInteger(s[1:])
	}
	s = truncate(s)

	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil || th == 0 {
		return 0
	}
	n, err := t.bucketCount(sel, th)
	if err != nil || n == 0 {
		return 0
	}
	h, _, err := t.search(sel, th, rawHash(s)%n, s)
	if err != nil || h == 0 {
		return 0
	}
	return FromHandle(h)
}

// Delete releases one reference to a and frees the entry when none remain.
// It returns 0 on success and for integer atoms, or a itself when a does
// not name an entry linked into the table.
func (t *Tables) Delete(sel seg16.Selector, a Atom) Atom {
	r := decode(a)
	if r.kind == refInteger {
		return 0
	}
	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil || th == 0 {
		return 0
	}
	l, e, ok := t.locate(sel, th, r.handle)
	if !ok {
		return a
	}

	e.refs--
	if e.refs > 0 {
		if err := t.writeRefs(sel, r.handle, e.refs); err != nil {
			return a
		}
		t.obs.notify(Event{Type: EventReleased, Selector: sel, Atom: a, RefCount: e.refs, Text: e.text})
		return 0
	}

	if err := t.unlink(sel, th, l, e.next); err != nil {
		return a
	}
	if err := t.alloc.Free(sel, r.handle); err != nil {
		Logger().Debug("atom entry free failed",
			zap.Uint16("selector", uint16(sel)), zap.Uint16("handle", uint16(r.handle)), zap.Error(err))
	}
	t.obs.notify(Event{Type: EventFreed, Selector: sel, Atom: a, Text: e.text})
	return 0
}

// Name copies the text of a into buf, NUL-terminated and truncated to
// len(buf)-1 bytes, and returns the number of text bytes written.
// Integer atoms render as "#<decimal>".
func (t *Tables) Name(sel seg16.Selector, a Atom, buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	var text string
	r := decode(a)
	if r.kind == refInteger {
		text = a.String()
	} else {
		th, err := localheap.AtomTable(t.tr, sel)
		if err != nil || th == 0 {
			return 0
		}
		_, e, ok := t.locate(sel, th, r.handle)
		if !ok {
			return 0
		}
		text = e.text
	}
	n := copy(buf[:len(buf)-1], text)
	buf[n] = 0
	return n
}

// Handle returns the entry handle of a string atom, 0 for integer atoms.
func (t *Tables) Handle(a Atom) seg16.Handle {
	return HandleOf(a)
}

// RefCount reports the reference count of a live string atom.
func (t *Tables) RefCount(sel seg16.Selector, a Atom) (uint16, bool) {
	r := decode(a)
	if r.kind == refInteger {
		return 0, false
	}
	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil || th == 0 {
		return 0, false
	}
	_, e, ok := t.locate(sel, th, r.handle)
	if !ok {
		return 0, false
	}
	return e.refs, true
}

// Buckets returns the bucket count of the table of sel, 0 when it has none.
func (t *Tables) Buckets(sel seg16.Selector) uint16 {
	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil || th == 0 {
		return 0
	}
	n, err := t.bucketCount(sel, th)
	if err != nil {
		return 0
	}
	return n
}

// Entries lists every live entry of sel by bucket, in chain order.
func (t *Tables) Entries(sel seg16.Selector) ([]Entry, error) {
	th, err := localheap.AtomTable(t.tr, sel)
	if err != nil {
		return nil, err
	}
	if th == 0 {
		return nil, nil
	}
	n, err := t.bucketCount(sel, th)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for b := uint16(0); b < n; b++ {
		h, err := t.bucketHead(sel, th, b)
		if err != nil {
			return nil, err
		}
		for steps := 0; h != 0; steps++ {
			if steps > maxChain {
				return nil, errors.New(errors.PhaseAtom, errors.KindInvalidData).
					At(uint16(sel), uint16(h)).
					Detail("bucket %d does not terminate", b).
					Build()
			}
			e, err := t.readEntry(sel, h)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{
				Bucket:   b,
				Handle:   h,
				Atom:     FromHandle(h),
				RefCount: e.refs,
				Text:     e.text,
			})
			h = e.next
		}
	}
	return out, nil
}
