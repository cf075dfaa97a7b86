package interp

import (
	"testing"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

func TestIsDestructiveCommand(t *testing.T) {
	always := []string{"KICK", "KILL", "KLINE", "GLINE", "ZLINE", "SHUN"}
	for _, cmd := range always {
		if !IsDestructiveCommand(cmd, false) {
			t.Errorf("%s should always defer", cmd)
		}
	}
	joinOnly := []string{"SVSJOIN", "SAJOIN", "JOIN"}
	for _, cmd := range joinOnly {
		if IsDestructiveCommand(cmd, false) {
			t.Errorf("%s should run inline outside a join", cmd)
		}
		if !IsDestructiveCommand(cmd, true) {
			t.Errorf("%s should defer inside a join", cmd)
		}
	}
	if IsDestructiveCommand("PRIVMSG", true) {
		t.Error("PRIVMSG is never destructive")
	}
}

func TestDestructiveCommandDeferred(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	bob := testBob()
	w.clients["bob"] = bob
	ch := &mockChannel{name: "#go"}
	w.channels["#go"] = ch
	loadScript(t, e, `
on JOIN:#go:{
	KICK #go $client.name spam
}
`)
	e.HandleEvent(script.EventJoin, bob, ch, "")

	if len(w.dispatches) != 0 {
		t.Fatalf("KICK dispatched inline: %v", w.dispatches)
	}
	if e.DeferredCount() != 1 {
		t.Fatalf("deferred = %d, want 1", e.DeferredCount())
	}

	e.FlushDeferred()

	if e.DeferredCount() != 0 {
		t.Errorf("deferred = %d after flush", e.DeferredCount())
	}
	if len(w.dispatches) != 1 {
		t.Fatalf("dispatches = %v", w.dispatches)
	}
	d := w.dispatches[0]
	if d.command != "KICK" || d.args[0] != "#go" || d.args[1] != "bob" {
		t.Errorf("flushed %q %v", d.command, d.args)
	}
}

func TestDeferredDroppedWhenClientGone(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	bob := testBob()
	w.clients["bob"] = bob
	ch := &mockChannel{name: "#go"}
	w.channels["#go"] = ch
	loadScript(t, e, `
on JOIN:#go:{
	KILL $client.name flooding
}
`)
	e.HandleEvent(script.EventJoin, bob, ch, "")
	if e.DeferredCount() != 1 {
		t.Fatalf("deferred = %d", e.DeferredCount())
	}

	// The client quits before the queue drains.
	delete(w.clients, "bob")
	e.FlushDeferred()

	if len(w.dispatches) != 0 {
		t.Errorf("stale entry replayed: %v", w.dispatches)
	}
	if e.DeferredCount() != 0 {
		t.Errorf("deferred = %d, stale entry not dropped", e.DeferredCount())
	}
}

func TestDeferredDroppedWhenChannelGone(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	bob := testBob()
	w.clients["bob"] = bob
	ch := &mockChannel{name: "#go"}
	w.channels["#go"] = ch
	loadScript(t, e, `
on JOIN:#go:{
	KICK #go $client.name bye
}
`)
	e.HandleEvent(script.EventJoin, bob, ch, "")

	delete(w.channels, "#go")
	e.FlushDeferred()

	if len(w.dispatches) != 0 {
		t.Errorf("stale entry replayed: %v", w.dispatches)
	}
}

func TestJoinCommandDeferredOnlyInJoinContext(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	bob := testBob()
	w.clients["bob"] = bob
	ch := &mockChannel{name: "#go"}
	w.channels["#go"] = ch
	loadScript(t, e, `
on JOIN:#go:{
	SVSJOIN $client.name #welcome
}

on PRIVMSG:#go:{
	SVSJOIN $client.name #welcome
}
`)
	e.HandleEvent(script.EventPrivmsg, bob, ch, "")
	if len(w.dispatches) != 1 || e.DeferredCount() != 0 {
		t.Errorf("SVSJOIN outside a join: dispatches=%v deferred=%d", w.dispatches, e.DeferredCount())
	}

	w.dispatches = nil
	e.HandleEvent(script.EventJoin, bob, ch, "")
	if len(w.dispatches) != 0 || e.DeferredCount() != 1 {
		t.Errorf("SVSJOIN inside a join: dispatches=%v deferred=%d", w.dispatches, e.DeferredCount())
	}
}

func TestFlushDeferredDrainsChainedEntries(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	bob := testBob()
	w.clients["bob"] = bob
	ch := &mockChannel{name: "#go"}
	w.channels["#go"] = ch

	// A replayed command that queues another entry must drain in the
	// same flush.
	e.queueDeferred("KICK", []string{"#go", "bob", "first"}, bob, ch)
	first := true
	dispatchHook := func() {
		if first {
			first = false
			e.queueDeferred("KICK", []string{"#go", "bob", "second"}, bob, ch)
		}
	}
	w.onDispatch = dispatchHook

	e.FlushDeferred()

	if len(w.dispatches) != 2 {
		t.Errorf("dispatches = %v, want both generations flushed", w.dispatches)
	}
	if e.DeferredCount() != 0 {
		t.Errorf("deferred = %d after flush", e.DeferredCount())
	}
}
