package atom

import (
	"sync"

	"github.com/wippyai/seg16"
)

// EventType identifies an atom lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventReferenced
	EventReleased
	EventFreed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventReferenced:
		return "referenced"
	case EventReleased:
		return "released"
	case EventFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Event describes a change to one table entry.
type Event struct {
	Text     string
	Selector seg16.Selector
	Atom     Atom
	RefCount uint16
	Type     EventType
}

// Observer receives atom lifecycle events.
type Observer interface {
	OnAtomEvent(Event)
}

type observers struct {
	list []Observer
	mu   sync.RWMutex
}

// Subscribe adds an observer for lifecycle events.
func (o *observers) Subscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list = append(o.list, obs)
}

// Unsubscribe removes an observer.
func (o *observers) Unsubscribe(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, cur := range o.list {
		if cur == obs {
			o.list = append(o.list[:i], o.list[i+1:]...)
			return
		}
	}
}

func (o *observers) notify(e Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, obs := range o.list {
		obs.OnAtomEvent(e)
	}
}
