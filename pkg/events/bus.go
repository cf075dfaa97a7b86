package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a pub/sub event bus. The IRC core emits structured events;
// each subscriber (script engine adapter, audit writer, admin log
// tail) encodes or reacts per-consumer. Kind subscriptions receive
// only one event kind; global subscribers receive everything.
type Bus struct {
	mu     sync.RWMutex
	byKind map[int][]Subscriber
	global []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		byKind: make(map[int][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event kind.
func (b *Bus) Subscribe(kind int, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKind[kind] = append(b.byKind[kind], sub)
}

// Unsubscribe removes a subscriber for one event kind.
func (b *Bus) Unsubscribe(kind int, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.byKind[kind]
	for i, s := range subs {
		if s == sub {
			b.byKind[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.byKind[kind]) == 0 {
		delete(b.byKind, kind)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the kind's subscribers and all global
// subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.byKind[int(ev.Kind)]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// KindSubscribers returns the number of subscribers for one kind.
func (b *Bus) KindSubscribers(kind int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byKind[kind])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, subs := range b.byKind {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.byKind, kind)
		} else {
			b.byKind[kind] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
