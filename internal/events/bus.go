package events

import "sync"

type Handler func(Event)

// Source is anything a session can subscribe to. The returned func unsubscribes
// and is safe to call more than once.
type Source interface {
	Subscribe(k Kind, h Handler) (unsubscribe func())
}

type fanout struct {
	mu   sync.RWMutex
	next uint64
	subs map[Kind]map[uint64]Handler
}

func (f *fanout) Subscribe(k Kind, h Handler) func() {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = map[Kind]map[uint64]Handler{}
	}
	if f.subs[k] == nil {
		f.subs[k] = map[uint64]Handler{}
	}
	f.next++
	id := f.next
	f.subs[k][id] = h
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[k], id)
			f.mu.Unlock()
		})
	}
}

// deliver calls handlers outside the lock so a handler may unsubscribe.
func (f *fanout) deliver(ev Event) int {
	f.mu.RLock()
	hs := make([]Handler, 0, len(f.subs[ev.Kind]))
	for _, h := range f.subs[ev.Kind] {
		hs = append(hs, h)
	}
	f.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
	return len(hs)
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, m := range f.subs {
		n += len(m)
	}
	return n
}

// LocalBus is the same-tab bus: sibling UI flows publish here, synchronously.
type LocalBus struct{ fanout }

func NewLocalBus() *LocalBus { return &LocalBus{} }

func (b *LocalBus) Publish(ev Event) int {
	ev.Origin = OriginLocal
	return b.deliver(ev)
}

// Subscribers is the number of live handlers, across kinds.
func (b *LocalBus) Subscribers() int { return b.count() }
