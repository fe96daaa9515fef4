package atom

import (
	"encoding/binary"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/localheap"
)

// maxChain bounds a chain walk by the most entries a segment can hold.
const maxChain = 0x10000 / localheap.Alignment

// entry is a decoded copy of an entry header and its text.
type entry struct {
	text string
	next seg16.Handle
	refs uint16
}

// link names the slot that points at an entry: the bucket head when prev
// is 0, otherwise the next field of prev.
type link struct {
	prev   seg16.Handle
	bucket uint16
}

func (t *Tables) bucketCount(sel seg16.Selector, th seg16.Handle) (uint16, error) {
	v, err := t.tr.View(sel, uint16(th)+TableSizeOffset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v), nil
}

func (t *Tables) bucketSlot(sel seg16.Selector, th seg16.Handle, b uint16) ([]byte, error) {
	return t.tr.View(sel, uint16(th)+TableBucketsOffset+2*b, 2)
}

func (t *Tables) bucketHead(sel seg16.Selector, th seg16.Handle, b uint16) (seg16.Handle, error) {
	v, err := t.bucketSlot(sel, th, b)
	if err != nil {
		return 0, err
	}
	return seg16.Handle(binary.LittleEndian.Uint16(v)), nil
}

func (t *Tables) setBucketHead(sel seg16.Selector, th seg16.Handle, b uint16, h seg16.Handle) error {
	v, err := t.bucketSlot(sel, th, b)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(v, uint16(h))
	return nil
}

func (t *Tables) readEntry(sel seg16.Selector, h seg16.Handle) (entry, error) {
	hdr, err := t.tr.View(sel, uint16(h), EntryTextOffset)
	if err != nil {
		return entry{}, err
	}
	e := entry{
		next: seg16.Handle(binary.LittleEndian.Uint16(hdr[EntryNextOffset:])),
		refs: binary.LittleEndian.Uint16(hdr[EntryRefOffset:]),
	}
	n := int(hdr[EntryLenOffset])
	if n == 0 {
		return e, nil
	}
	text, err := t.tr.View(sel, uint16(h)+EntryTextOffset, n)
	if err != nil {
		return entry{}, err
	}
	e.text = string(text)
	return e, nil
}

func (t *Tables) writeRefs(sel seg16.Selector, h seg16.Handle, refs uint16) error {
	v, err := t.tr.View(sel, uint16(h)+EntryRefOffset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(v, refs)
	return nil
}

func (t *Tables) writeNext(sel seg16.Selector, h, next seg16.Handle) error {
	v, err := t.tr.View(sel, uint16(h)+EntryNextOffset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(v, uint16(next))
	return nil
}

// search walks one bucket for text and returns the matching handle, or 0.
func (t *Tables) search(sel seg16.Selector, th seg16.Handle, bucket uint16, text string) (seg16.Handle, entry, error) {
	h, err := t.bucketHead(sel, th, bucket)
	if err != nil {
		return 0, entry{}, err
	}
	for steps := 0; h != 0; steps++ {
		if steps > maxChain {
			return 0, entry{}, errors.New(errors.PhaseAtom, errors.KindInvalidData).
				At(uint16(sel), uint16(h)).
				Detail("bucket %d does not terminate", bucket).
				Build()
		}
		e, err := t.readEntry(sel, h)
		if err != nil {
			return 0, entry{}, err
		}
		if equalFold([]byte(e.text), text) {
			return h, e, nil
		}
		h = e.next
	}
	return 0, entry{}, nil
}

// locate finds the slot linking h into its bucket. The bucket is derived
// from the text stored at h, so a stale or forged handle is rejected unless
// it is actually reachable from that bucket.
func (t *Tables) locate(sel seg16.Selector, th seg16.Handle, h seg16.Handle) (link, entry, bool) {
	if h == 0 {
		return link{}, entry{}, false
	}
	target, err := t.readEntry(sel, h)
	if err != nil {
		return link{}, entry{}, false
	}
	n, err := t.bucketCount(sel, th)
	if err != nil || n == 0 {
		return link{}, entry{}, false
	}
	l := link{bucket: rawHash(target.text) % n}
	cur, err := t.bucketHead(sel, th, l.bucket)
	if err != nil {
		return link{}, entry{}, false
	}
	for steps := 0; cur != 0 && steps <= maxChain; steps++ {
		if cur == h {
			return l, target, true
		}
		e, err := t.readEntry(sel, cur)
		if err != nil {
			return link{}, entry{}, false
		}
		l.prev = cur
		cur = e.next
	}
	return link{}, entry{}, false
}

func (t *Tables) unlink(sel seg16.Selector, th seg16.Handle, l link, next seg16.Handle) error {
	if l.prev == 0 {
		return t.setBucketHead(sel, th, l.bucket, next)
	}
	return t.writeNext(sel, l.prev, next)
}
