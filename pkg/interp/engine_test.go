package interp

import (
	"testing"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

func TestTargetMatches(t *testing.T) {
	cases := []struct {
		target, channel, client string
		want                    bool
	}{
		{"*", "#go", "bob", true},
		{"*", "", "", true},
		{"#go", "#go", "bob", true},
		{"#go", "#other", "bob", false},
		// The channel wins when present; the client only matters without one.
		{"bob", "#go", "bob", false},
		{"bob", "", "bob", true},
		{"bob", "", "alice", false},
		{"bob", "", "", false},
	}
	for _, c := range cases {
		if got := targetMatches(c.target, c.channel, c.client); got != c.want {
			t.Errorf("targetMatches(%q, %q, %q) = %v, want %v",
				c.target, c.channel, c.client, got, c.want)
		}
	}
}

func TestInitBuiltinConstants(t *testing.T) {
	e := newTestEngine(newMockWorld())

	for name, want := range map[string]string{"true": "1", "false": "0", "null": ""} {
		if got, ok := e.GlobalScope().Get(name); !ok || got != want {
			t.Errorf("%s = %q/%v, want %q", name, got, ok, want)
		}
	}
	// Builtins are const.
	if e.GlobalScope().Set("true", StringValue("2"), false) {
		t.Error("builtin constant accepted a write")
	}
}

func TestGlobalPersistence(t *testing.T) {
	w := newMockWorld()
	store := newMockStore()
	e := New(w, testLogger())
	e.Store = store
	e.Init()

	e.setVar("greeting", StringValue("hello"), false)
	if store.vals["greeting"] != "hello" {
		t.Errorf("store = %v, want the write mirrored", store.vals)
	}

	// Internal names and consts never persist.
	e.setVar("__return__", StringValue("x"), false)
	e.setVar("limit", StringValue("5"), true)
	if _, ok := store.vals["__return__"]; ok {
		t.Error("internal name persisted")
	}
	if _, ok := store.vals["limit"]; ok {
		t.Error("const persisted")
	}

	// A fresh engine restores from the store.
	e2 := New(w, testLogger())
	e2.Store = store
	e2.Init()
	if got, _ := e2.GlobalScope().Get("greeting"); got != "hello" {
		t.Errorf("restored greeting = %q", got)
	}
}

func TestFunctionLocalsNotPersisted(t *testing.T) {
	w := newMockWorld()
	store := newMockStore()
	e := New(w, testLogger())
	e.Store = store
	e.Init()
	loadScript(t, e, `
function $f(%x) {
	var %local = %x
	return %local
}

on START:*:{
	var %kept = $f(ok)
}
`)
	e.HandleStart()

	if store.vals["kept"] != "ok" {
		t.Errorf("store = %v, want the global mirrored", store.vals)
	}
	if _, ok := store.vals["local"]; ok {
		t.Error("function-local variable persisted")
	}
}

func TestResetClearsState(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	loadScript(t, e, `
on START:*:{
	var %x = 1
}
`)
	e.HandleStart()
	e.queueDeferred("KICK", []string{"#go", "bob"}, nil, nil)

	e.Reset()

	if e.RuleCount() != 0 || e.FunctionCount() != 0 {
		t.Errorf("rules=%d functions=%d after reset", e.RuleCount(), e.FunctionCount())
	}
	if e.DeferredCount() != 0 {
		t.Errorf("deferred = %d after reset", e.DeferredCount())
	}
	if _, ok := e.GlobalScope().Get("x"); ok {
		t.Error("globals survived reset")
	}
}

func TestRuleAndFunctionCounts(t *testing.T) {
	e := newTestEngine(newMockWorld())
	loadScript(t, e, `
function $a() {
	return 1
}

on START:*:{
	var %x = 1
}

on PRIVMSG:#go:{
	PRIVMSG #go hi
}
`)
	if e.RuleCount() != 2 {
		t.Errorf("rules = %d, want 2", e.RuleCount())
	}
	if e.FunctionCount() != 1 {
		t.Errorf("functions = %d, want 1", e.FunctionCount())
	}
}

func TestHandleEventNoScriptsIsNoop(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	e.HandleEvent(script.EventPrivmsg, testBob(), &mockChannel{name: "#go"}, "")
	if len(w.dispatches) != 0 {
		t.Errorf("dispatches = %v", w.dispatches)
	}
}

func TestCommandOverrideRegistration(t *testing.T) {
	w := newMockWorld()
	e := newTestEngine(w)
	loadScript(t, e, `
on COMMAND:whois:{
	sendnotice $client.name whois hooked
}
`)
	h, ok := w.commands["whois"]
	if !ok {
		t.Fatal("override not registered")
	}
	h(testBob(), []string{"whois", "alice"})
	if len(w.notices) != 1 || w.notices[0] != "bob whois hooked" {
		t.Errorf("notices = %v", w.notices)
	}
}
