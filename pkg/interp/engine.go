package interp

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/tevino/abool/v2"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// Engine is one interpreter instance. It owns the loaded script set,
// the global scope, the function table, the pending-CAP list, and the
// deferred-action queue. All methods must be called from the host's
// single event loop; the engine performs no locking of its own beyond
// the deferred-queue guard.
type Engine struct {
	world World
	log   *log.Logger

	// Obs and Store are optional and must be set before Init.
	Obs   Observer
	Store VarStore

	files     []*script.File
	functions map[string]*script.Function
	global    *Scope
	scope     *Scope // active scope: global, or a function call scope

	pendingCaps []string
	deferred    []*Deferred
	flushing    *abool.AtomicBool

	// eventStack tracks which hooks the engine is currently executing
	// under, so the destructive-command classifier can tell whether a
	// JOIN is in flight.
	eventStack []script.EventType

	// paramStack holds the positional parameters of script-registered
	// commands currently being dispatched.
	paramStack [][]string
}

// New creates an engine bound to a world. Init must be called before
// scripts are loaded.
func New(world World, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		world:    world,
		log:      logger,
		flushing: abool.New(),
	}
}

// Init builds the global scope and its builtin constants, and restores
// persisted globals when a store is configured.
func (e *Engine) Init() {
	e.global = NewScope(nil)
	e.global.Set("true", StringValue("1"), true)
	e.global.Set("false", StringValue("0"), true)
	e.global.Set("null", StringValue(""), true)
	e.scope = e.global
	e.functions = make(map[string]*script.Function)

	if e.Store != nil {
		saved, err := e.Store.LoadGlobals()
		if err != nil {
			e.log.Printf("[engine] restoring persisted variables: %v", err)
			return
		}
		for name, val := range saved {
			e.global.Set(name, StringValue(val), false)
		}
		if len(saved) > 0 {
			e.log.Printf("[engine] restored %d persisted variables", len(saved))
		}
	}
}

// Reset discards the loaded script set and rebuilds all engine state.
// Used by the config-run path, which frees the old scripts before the
// new ones are parsed.
func (e *Engine) Reset() {
	e.files = nil
	e.pendingCaps = nil
	e.deferred = nil
	e.paramStack = nil
	e.eventStack = nil
	e.Init()
}

// Shutdown tears the engine down. Persisted variables were written as
// they changed, so this only drops state.
func (e *Engine) Shutdown() {
	e.files = nil
	e.functions = nil
	e.global = nil
	e.scope = nil
	e.deferred = nil
}

// ConfigTest verifies every script file is readable and within the size
// cap, without touching the running script set.
func (e *Engine) ConfigTest(paths []string) error {
	var errs []error
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("script %s: %w", p, err))
			continue
		}
		if info.Size() > script.MaxFileSize {
			errs = append(errs, fmt.Errorf("script %s: %d bytes exceeds %d byte limit", p, info.Size(), script.MaxFileSize))
		}
	}
	return errors.Join(errs...)
}

// LoadScripts replaces the active script set. The old set is freed
// first, so a file that fails to parse leaves its rules out of the
// engine until corrected; other files still load. After loading, START
// rules run and pending CAPs are registered.
func (e *Engine) LoadScripts(paths []string) error {
	e.Reset()

	var errs []error
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("script %s: %w", p, err))
			continue
		}
		f, err := script.ParseFile(p, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.addFile(f)
		e.log.Printf("[engine] loaded %s: %d rules, %d functions", p, len(f.Rules), len(f.Functions))
	}

	e.HandleStart()
	e.registerPendingCaps()
	return errors.Join(errs...)
}

// LoadParsed adds an already parsed file to the running set. Tests and
// the reload path use it directly.
func (e *Engine) LoadParsed(f *script.File) {
	e.addFile(f)
}

func (e *Engine) addFile(f *script.File) {
	e.files = append(e.files, f)
	for _, fn := range f.Functions {
		e.addFunction(fn)
	}
	e.registerCommands(f)
}

// Files returns the active script files.
func (e *Engine) Files() []*script.File { return e.files }

// RuleCount reports the number of active rules across all files.
func (e *Engine) RuleCount() int {
	n := 0
	for _, f := range e.files {
		n += len(f.Rules)
	}
	return n
}

// FunctionCount reports the number of registered script functions.
func (e *Engine) FunctionCount() int { return len(e.functions) }

// GlobalScope exposes the global scope for the embedding server.
func (e *Engine) GlobalScope() *Scope { return e.global }

// registerCommands hooks command rules into the world's command table.
func (e *Engine) registerCommands(f *script.File) {
	for _, r := range f.Rules {
		switch r.Event {
		case script.EventCommandNew, script.EventCommandOverride:
			rule := r
			override := r.Event == script.EventCommandOverride
			e.world.RegisterCommand(r.Target, override, func(source Client, params []string) {
				e.RunCommandRule(rule, source, params)
			})
			e.log.Printf("[engine] registered command %s (override=%v)", r.Target, override)
		}
	}
}

// RunCommandRule executes a command rule with positional parameters
// active for $N substitution. params[0] is the command name.
func (e *Engine) RunCommandRule(rule *script.Rule, source Client, params []string) {
	e.paramStack = append(e.paramStack, params)
	defer func() { e.paramStack = e.paramStack[:len(e.paramStack)-1] }()
	e.runActions(rule.Actions, source, nil)
}

// activeParams returns the innermost positional parameter set, or nil.
func (e *Engine) activeParams() []string {
	if len(e.paramStack) == 0 {
		return nil
	}
	return e.paramStack[len(e.paramStack)-1]
}

// pushEvent/popEvent maintain the current-hook stack consulted by the
// destructive-command classifier.
func (e *Engine) pushEvent(ev script.EventType) {
	e.eventStack = append(e.eventStack, ev)
}

func (e *Engine) popEvent() {
	e.eventStack = e.eventStack[:len(e.eventStack)-1]
}

func (e *Engine) inJoinContext() bool {
	for _, ev := range e.eventStack {
		if ev == script.EventJoin {
			return true
		}
	}
	return false
}

// HandleEvent runs every rule matching the event and target. The
// channel name is captured before any action runs; rule bodies must not
// rely on the live channel surviving their own side effects.
func (e *Engine) HandleEvent(ev script.EventType, client Client, channel Channel, extra string) {
	if len(e.files) == 0 {
		return
	}
	if e.Obs != nil {
		e.Obs.EventDispatched()
	}

	channelName := ""
	if channel != nil {
		channelName = channel.Name()
	}
	clientName := ""
	if client != nil {
		clientName = client.Name()
	}

	e.pushEvent(ev)
	defer e.popEvent()

	for _, f := range e.files {
		for _, rule := range f.Rules {
			if rule.Event != ev || rule.Target == "" {
				continue
			}
			if !targetMatches(rule.Target, channelName, clientName) {
				continue
			}
			e.runActions(rule.Actions, client, channel)
		}
	}
	_ = extra // carried for host symmetry; rules read context via $client/$chan
}

// targetMatches applies the rule target pattern: "*" matches anything,
// otherwise the channel name when one is present, else the client name.
func targetMatches(target, channelName, clientName string) bool {
	if target == "*" {
		return true
	}
	if channelName != "" {
		return target == channelName
	}
	return clientName != "" && target == clientName
}

// HandleStart runs every START rule. Called once after loading.
func (e *Engine) HandleStart() {
	e.pushEvent(script.EventStart)
	defer e.popEvent()
	for _, f := range e.files {
		for _, rule := range f.Rules {
			if rule.Event == script.EventStart {
				e.runActions(rule.Actions, nil, nil)
			}
		}
	}
}

// AddPendingCap queues a capability name for registration at the end of
// the load.
func (e *Engine) AddPendingCap(name string) {
	for _, c := range e.pendingCaps {
		if c == name {
			return
		}
	}
	e.pendingCaps = append(e.pendingCaps, name)
}

func (e *Engine) registerPendingCaps() {
	for _, c := range e.pendingCaps {
		e.world.CapAdd(c)
		e.log.Printf("[engine] registered CAP %s", c)
	}
}

// setVar writes a variable into the active scope, honoring constness
// and mirroring plain global strings into the persistent store.
func (e *Engine) setVar(name string, val Value, isConst bool) {
	name = cleanName(name)
	if !e.scope.Set(name, val, isConst) {
		e.log.Printf("[engine] attempt to modify const variable %%%s ignored", name)
		return
	}
	if e.Store != nil && e.scope == e.global && val.Kind == KindString && !isConst && !isInternalName(name) {
		if err := e.Store.SaveGlobal(name, val.Str); err != nil {
			e.log.Printf("[engine] persisting %%%s: %v", name, err)
		}
	}
}

// isInternalName filters engine-internal bindings out of persistence.
func isInternalName(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}
