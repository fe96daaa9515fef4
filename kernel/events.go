package kernel

import (
	"slices"

	"github.com/wippyai/seg16/atom"
)

// eventQueue collects atom events raised while the kernel lock is held.
type eventQueue struct {
	pending []atom.Event
}

func (q *eventQueue) OnAtomEvent(e atom.Event) {
	q.pending = append(q.pending, e)
}

// Subscribe registers an observer for atom lifecycle events. Events are
// delivered after the kernel lock is released, so observers may call back
// into the kernel.
func (k *Kernel) Subscribe(o atom.Observer) {
	k.obsMu.Lock()
	defer k.obsMu.Unlock()
	k.obs = append(k.obs, o)
}

// Unsubscribe removes an observer.
func (k *Kernel) Unsubscribe(o atom.Observer) {
	k.obsMu.Lock()
	defer k.obsMu.Unlock()
	if i := slices.Index(k.obs, o); i >= 0 {
		k.obs = slices.Delete(k.obs, i, i+1)
	}
}

// unlock releases the kernel lock and then delivers queued events.
func (k *Kernel) unlock() {
	events := k.queue.pending
	k.queue.pending = nil
	k.mu.Unlock()
	if len(events) == 0 {
		return
	}

	k.obsMu.RLock()
	list := slices.Clone(k.obs)
	k.obsMu.RUnlock()
	for _, e := range events {
		for _, o := range list {
			o.OnAtomEvent(e)
		}
	}
}
