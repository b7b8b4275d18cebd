// Package eventbus implements the process-wide publisher described in
// spec §4.11: an ordered, single-threaded handler list, delivered in
// registration order, safe to unsubscribe from mid-dispatch.
package eventbus

import "sync"

// Handler receives a dispatched Event. Handlers must not retain mutable
// references into the Event past return.
type Handler func(Event)

// Subscription is returned by Subscribe; call Unsubscribe to remove the
// handler. Unsubscribe is idempotent.
type Subscription struct {
	bus *Bus
	id  uint64
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.id)
}

type entry struct {
	id   uint64
	h    Handler
	dead bool
}

// Bus is a single-threaded pub/sub dispatcher. It is safe to call Publish
// and Subscribe/Unsubscribe from the same goroutine only (the main event
// loop owns it); it does not itself introduce locking for dispatch
// ordering, only for the subscriber list so Subscribe/Unsubscribe calls
// made from within a handler are safe.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*entry
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe appends h to the handler list and returns a Subscription that
// can later remove it. The bus holds a strong reference to h, and so to
// any state h captures, until h is unsubscribed and compacted out.
func (b *Bus) Subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.entries = append(b.entries, &entry{id: id, h: h})
	return &Subscription{bus: b, id: id}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e.id == id {
			e.dead = true
			return
		}
	}
}

// Publish dispatches ev to every live handler in registration order. It
// snapshots the handler slice before iterating, so a handler that
// unsubscribes itself or another handler during dispatch neither skips
// nor reorders the remaining handlers in this call; tombstoned entries
// are compacted out at the end of each Publish call.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	snapshot := make([]*entry, len(b.entries))
	copy(snapshot, b.entries)
	b.mu.Unlock()

	for _, e := range snapshot {
		if e.dead {
			continue
		}
		e.h(ev)
	}

	b.compact()
}

func (b *Bus) compact() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return
	}
	live := b.entries[:0:0]
	for _, e := range b.entries {
		if !e.dead {
			live = append(live, e)
		}
	}
	b.entries = live
}
