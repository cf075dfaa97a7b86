package server

import (
	"testing"
	"time"

	"github.com/obsidian-irc/obbyscript/pkg/events"
	"github.com/obsidian-irc/obbyscript/pkg/script"
)

type eventRecorder struct {
	ch chan script.EventType
}

func (r eventRecorder) Receive(ev events.Event) { r.ch <- ev.Kind }
func (r eventRecorder) Closed() bool            { return false }

func TestStopFiresShutdownEvent(t *testing.T) {
	s := newCommandTestServer()
	got := make(chan script.EventType, 8)
	s.Bus.SubscribeGlobal(eventRecorder{ch: got})

	go s.eventLoop()
	s.Stop()

	select {
	case kind := <-got:
		if kind != script.EventShutdown {
			t.Fatalf("first event = %v, want SHUTDOWN", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no SHUTDOWN event fired before the loop stopped")
	}
}
