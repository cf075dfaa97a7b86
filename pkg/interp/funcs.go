package interp

import (
	"strings"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// Placeholder argument string for parameters passed as live object
// bindings rather than text.
const objectPlaceholder = "__OBJECT__"

// addFunction registers a user function. The first definition of a name
// wins; later ones are dropped with a warning.
func (e *Engine) addFunction(fn *script.Function) {
	if _, exists := e.functions[fn.Name]; exists {
		e.log.Printf("[engine] function $%s redefined; keeping first definition", fn.Name)
		return
	}
	e.functions[fn.Name] = fn
}

// callFunction executes a builtin or user function. objArgs runs
// parallel to args; a non-nil entry is bound as a live object in the
// call scope instead of its string form.
func (e *Engine) callFunction(name string, args []string, objArgs []*Variable, client Client, channel Channel) (string, bool) {
	if script.IsBuiltin(name) {
		v, ok := e.callBuiltin(name, args)
		if !ok {
			return "", false
		}
		switch v.Kind {
		case KindString:
			return v.Str, true
		case KindClient:
			return "__CLIENT_OBJECT__", true
		case KindChannel:
			return "__CHANNEL_OBJECT__", true
		}
		return "", true
	}

	fn, ok := e.functions[name]
	if !ok {
		e.log.Printf("[engine] function $%s not found", name)
		return "", false
	}
	if len(args) != len(fn.Params) {
		e.log.Printf("[engine] function $%s expects %d parameters, got %d", name, len(fn.Params), len(args))
		return "", false
	}

	callScope := NewScope(e.global)
	for i, p := range fn.Params {
		if i < len(objArgs) && objArgs[i] != nil {
			callScope.Set(p, objArgs[i].Val, false)
		} else {
			callScope.Set(p, StringValue(args[i]), false)
		}
	}

	saved := e.scope
	e.scope = callScope
	e.runActions(fn.Body, client, channel)
	ret, _ := callScope.Get("__return__")
	e.scope = saved
	return ret, true
}

// callBuiltin runs one of the native lookup functions. A failed lookup
// is the $false string, not a missing value; scripts check for it.
func (e *Engine) callBuiltin(name string, args []string) (Value, bool) {
	if len(args) != 1 || args[0] == "" {
		e.log.Printf("[engine] builtin %s: expected one argument", name)
		return Value{}, false
	}
	switch name {
	case "find_client":
		if c, ok := e.world.FindClient(args[0]); ok {
			return ClientValue(c), true
		}
	case "find_server":
		if s, ok := e.world.FindServer(args[0]); ok {
			return ClientValue(s), true
		}
	case "find_channel":
		if ch, ok := e.world.FindChannel(args[0]); ok {
			return ChannelValue(ch), true
		}
	default:
		return Value{}, false
	}
	return StringValue("$false"), true
}

// prepareArgs substitutes call arguments, passing %var bindings of
// client/channel kind through as live objects.
func (e *Engine) prepareArgs(raw []string, client Client, channel Channel) ([]string, []*Variable) {
	args := make([]string, len(raw))
	objArgs := make([]*Variable, len(raw))
	for i, a := range raw {
		if strings.HasPrefix(a, "%") {
			if v := e.scope.Lookup(a); v != nil && (v.Val.Kind == KindClient || v.Val.Kind == KindChannel) {
				objArgs[i] = v
				args[i] = objectPlaceholder
				continue
			}
		}
		args[i] = e.Substitute(a, client, channel)
	}
	return args, objArgs
}

// callFromText parses and executes an inline `$name(...)` call,
// returning its string result ("" when the call fails).
func (e *Engine) callFromText(text string, client Client, channel Channel) string {
	name, raw := script.SplitCall(text)
	if name == "" {
		return text
	}
	args, objArgs := e.prepareArgs(raw, client, channel)
	ret, ok := e.callFunction(name, args, objArgs, client, channel)
	if !ok {
		return ""
	}
	return ret
}

// callValue executes a call in value position (the right-hand side of a
// var declaration), preserving object-typed builtin results.
func (e *Engine) callValue(text string, client Client, channel Channel) (Value, bool) {
	name, raw := script.SplitCall(text)
	if name == "" {
		return Value{}, false
	}
	args, objArgs := e.prepareArgs(raw, client, channel)
	if script.IsBuiltin(name) {
		return e.callBuiltin(name, args)
	}
	ret, ok := e.callFunction(name, args, objArgs, client, channel)
	if !ok {
		return Value{}, false
	}
	return StringValue(ret), true
}
