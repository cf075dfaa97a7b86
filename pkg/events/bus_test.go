package events

import (
	"sync"
	"testing"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToKind(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	bus.Subscribe(int(script.EventPrivmsg), sub)

	ev := Event{
		Kind:    script.EventPrivmsg,
		Client:  "alice",
		Channel: "#ops",
		Extra:   "Hello world",
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Extra != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Extra)
	}
	if events[0].Kind != script.EventPrivmsg {
		t.Errorf("expected kind PRIVMSG, got %v", events[0].Kind)
	}
}

func TestBusKindIsolation(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(int(script.EventJoin), sub)

	bus.Emit(Event{Kind: script.EventPart, Client: "alice", Channel: "#ops"})

	if len(sub.Events()) != 0 {
		t.Error("JOIN subscriber should not receive PART events")
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	ev := Event{Kind: script.EventJoin, Client: "bob", Channel: "#lounge"}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Channel != "#lounge" {
		t.Errorf("expected channel %q, got %q", "#lounge", events[0].Channel)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	kind := int(script.EventQuit)

	bus.Subscribe(kind, sub)
	bus.Unsubscribe(kind, sub)

	bus.Emit(Event{Kind: script.EventQuit, Client: "alice", Extra: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	kind := int(script.EventConnect)

	bus.Subscribe(kind, sub)
	bus.Emit(Event{Kind: script.EventConnect, Client: "alice"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	kind := int(script.EventNick)

	bus.Subscribe(kind, active)
	bus.Subscribe(kind, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.KindSubscribers(kind) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.KindSubscribers(kind))
	}
}
