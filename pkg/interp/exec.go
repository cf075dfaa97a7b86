package interp

import (
	"strconv"
	"strings"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// ctrl is the control-flow signal threaded back through nested action
// lists, replacing the flag-variable unwinding the engine's ancestry
// used.
type ctrl int

const (
	ctrlNone ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
	ctrlAbort // substitution error: abandon the whole chain
)

// loopCap bounds every while/for loop; a loop that hits it is abandoned
// with a warning, never an error.
const loopCap = 10000

// runActions executes a sequence, stopping at the first control signal.
func (e *Engine) runActions(acts []*script.Action, client Client, channel Channel) ctrl {
	for _, a := range acts {
		if c := e.runAction(a, client, channel); c != ctrlNone {
			return c
		}
	}
	return ctrlNone
}

func (e *Engine) runAction(a *script.Action, client Client, channel Channel) ctrl {
	if e.Obs != nil {
		e.Obs.ActionExecuted()
	}

	switch a.Type {
	case script.ActionCommand:
		return e.runCommand(a, client, channel)

	case script.ActionIf:
		if e.evalActionCond(a, client, channel) {
			return e.runActions(a.Nested, client, channel)
		}
		return e.runActions(a.Else, client, channel)

	case script.ActionWhile:
		return e.runWhile(a, client, channel)

	case script.ActionFor:
		return e.runFor(a, client, channel)

	case script.ActionVar:
		e.runVar(a, client, channel)

	case script.ActionArith:
		if len(a.Args) > 0 {
			e.runArithStatement(a.Args[0], client, channel)
		}

	case script.ActionISupport:
		if len(a.Args) > 0 {
			token, value, _ := strings.Cut(strings.TrimSpace(a.Args[0]), "=")
			e.world.ISupportSet(token, e.Substitute(value, client, channel))
		}

	case script.ActionCap:
		if len(a.Args) > 0 {
			if name := strings.TrimSpace(a.Args[0]); name != "" {
				e.AddPendingCap(name)
			}
		}

	case script.ActionSendNotice:
		return e.runSendNotice(a, client, channel)

	case script.ActionBreak:
		return ctrlBreak

	case script.ActionContinue:
		return ctrlContinue

	case script.ActionReturn:
		val := ""
		if len(a.Args) > 0 {
			val = e.Substitute(a.Args[0], client, channel)
			if looksArithmetic(val) {
				val = strconv.Itoa(e.EvalArithmetic(val, client, channel))
			}
		}
		e.scope.SetLocal("__return__", StringValue(val))
		return ctrlReturn

	case script.ActionFunctionCall:
		args, objArgs := e.prepareArgs(a.Args, client, channel)
		e.callFunction(a.Name, args, objArgs, client, channel)
	}
	return ctrlNone
}

// evalActionCond picks the expression tree when present, otherwise the
// legacy single condition.
func (e *Engine) evalActionCond(a *script.Action, client Client, channel Channel) bool {
	if a.Cond != nil {
		return e.EvalBool(a.Cond, client, channel)
	}
	return e.EvalCondition(a.Legacy, client, channel)
}

// runCommand substitutes the arguments and either defers or dispatches.
// Any argument substituting to the syntax-error sentinel abandons the
// whole remaining chain for this invocation.
func (e *Engine) runCommand(a *script.Action, client Client, channel Channel) ctrl {
	args := make([]string, len(a.Args))
	for i, raw := range a.Args {
		args[i] = e.Substitute(raw, client, channel)
		if args[i] == SyntaxError {
			e.log.Printf("[exec] syntax error in %s argument %q; aborting action chain", a.Name, raw)
			if e.Obs != nil {
				e.Obs.SyntaxError()
			}
			return ctrlAbort
		}
	}
	if IsDestructiveCommand(a.Name, e.inJoinContext()) {
		e.queueDeferred(a.Name, args, client, channel)
		return ctrlNone
	}
	e.world.Dispatch(a.Name, args)
	return ctrlNone
}

func (e *Engine) runSendNotice(a *script.Action, client Client, channel Channel) ctrl {
	if len(a.Args) == 0 {
		return ctrlNone
	}
	target := e.Substitute(a.Args[0], client, channel)
	if target == SyntaxError {
		if e.Obs != nil {
			e.Obs.SyntaxError()
		}
		return ctrlAbort
	}
	parts := make([]string, 0, len(a.Args)-1)
	for _, raw := range a.Args[1:] {
		s := e.Substitute(raw, client, channel)
		if s == SyntaxError {
			if e.Obs != nil {
				e.Obs.SyntaxError()
			}
			return ctrlAbort
		}
		parts = append(parts, s)
	}
	e.world.SendNotice(target, strings.Join(parts, " "))
	return ctrlNone
}

func (e *Engine) runWhile(a *script.Action, client Client, channel Channel) ctrl {
	for i := 0; i < loopCap; i++ {
		if !e.evalActionCond(a, client, channel) {
			return ctrlNone
		}
		switch c := e.runActions(a.Nested, client, channel); c {
		case ctrlBreak:
			return ctrlNone
		case ctrlContinue:
			// next iteration
		case ctrlReturn, ctrlAbort:
			return c
		}
	}
	e.log.Printf("[exec] while loop hit %d iteration cap, abandoned", loopCap)
	return ctrlNone
}

func (e *Engine) runFor(a *script.Action, client Client, channel Channel) ctrl {
	// Range form: for (%v in a..b)
	if a.LoopVar != "" {
		start := atoiLoose(e.Substitute(a.LoopStart, client, channel))
		end := atoiLoose(e.Substitute(a.LoopEnd, client, channel))
		step := atoiLoose(a.LoopStep)
		if step < 1 {
			step = 1
		}
		iter := 0
		for v := start; v <= end; v += step {
			if iter >= loopCap {
				e.log.Printf("[exec] for loop hit %d iteration cap, abandoned", loopCap)
				return ctrlNone
			}
			iter++
			e.setVar(a.LoopVar, StringValue(strconv.Itoa(v)), false)
			switch c := e.runActions(a.Nested, client, channel); c {
			case ctrlBreak:
				return ctrlNone
			case ctrlReturn, ctrlAbort:
				return c
			}
		}
		return ctrlNone
	}

	// C-style form: for (init; cond; incr)
	if a.Init != nil {
		e.runAction(a.Init, client, channel)
	}
	for i := 0; i < loopCap; i++ {
		if a.Legacy != nil && !e.EvalCondition(a.Legacy, client, channel) {
			return ctrlNone
		}
		switch c := e.runActions(a.Nested, client, channel); c {
		case ctrlBreak:
			return ctrlNone
		case ctrlReturn, ctrlAbort:
			return c
		}
		if a.Increment != "" {
			e.runArithStatement(a.Increment, client, channel)
		}
	}
	e.log.Printf("[exec] for loop hit %d iteration cap, abandoned", loopCap)
	return ctrlNone
}

// runVar executes every shape of variable assignment.
func (e *Engine) runVar(a *script.Action, client Client, channel Channel) {
	value := a.VarValue

	// Indexed assignment: %arr[i] = value
	if a.VarIndex != "" {
		v := e.scope.Lookup(a.VarName)
		if v == nil {
			arr := NewArray()
			e.setVar(a.VarName, ArrayValue(arr), false)
			v = e.scope.Lookup(a.VarName)
		}
		if v == nil || v.Val.Kind != KindArray {
			e.log.Printf("[exec] %%%s is not an array, indexed assignment ignored", a.VarName)
			return
		}
		idx := atoiLoose(e.Substitute(a.VarIndex, client, channel))
		v.Val.Array.Set(idx, StringValue(e.Substitute(value, client, channel)))
		return
	}

	switch {
	case strings.HasPrefix(value, "["):
		e.setVar(a.VarName, ArrayValue(e.parseArrayLiteral(value, client, channel)), a.Const)

	case value == "$client.channels":
		arr := NewArray()
		if client != nil {
			for _, name := range client.ChannelNames() {
				arr.Push(StringValue(name))
			}
		}
		e.setVar(a.VarName, ArrayValue(arr), a.Const)

	case script.IsFunctionCall(value):
		if v, ok := e.callValue(value, client, channel); ok {
			e.setVar(a.VarName, v, a.Const)
		}

	default:
		e.setVar(a.VarName, StringValue(e.Substitute(value, client, channel)), a.Const)
	}
}

// parseArrayLiteral evaluates a `[...]` literal. Quoted strings keep
// escapes, $client/$chan become live bindings, %vars are copied, and
// bare words load verbatim.
func (e *Engine) parseArrayLiteral(text string, client Client, channel Channel) *Array {
	arr := NewArray()
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "[") {
		return arr
	}
	i := 1
	for i < len(s) && s[i] != ']' {
		switch c := s[i]; {
		case c == ' ' || c == '\t' || c == ',':
			i++

		case c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				sb.WriteByte(s[j])
				j++
			}
			arr.Push(StringValue(sb.String()))
			i = j + 1

		case c == '$':
			j := i + 1
			for j < len(s) && (isIdentChar(s[j]) || s[j] == '.') {
				j++
			}
			token := s[i:j]
			switch {
			case token == "$client" && client != nil:
				arr.Push(ClientValue(client))
			case (token == "$chan" || token == "$channel") && channel != nil:
				arr.Push(ChannelValue(channel))
			default:
				if sub := e.Substitute(token, client, channel); sub != "" && sub != SyntaxError {
					arr.Push(StringValue(sub))
				} else {
					arr.Push(StringValue("$null"))
				}
			}
			i = j

		case c == '%':
			j := i + 1
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			v := e.scope.Lookup(s[i+1 : j])
			switch {
			case v == nil:
				arr.Push(StringValue("$null"))
			case v.Val.Kind == KindString:
				arr.Push(StringValue(v.Val.Str))
			case v.Val.Kind == KindClient, v.Val.Kind == KindChannel:
				arr.Push(v.Val)
			default:
				arr.Push(StringValue("$null"))
			}
			i = j

		default:
			j := i
			for j < len(s) && s[j] != ',' && s[j] != ']' && s[j] != ' ' && s[j] != '\t' {
				j++
			}
			arr.Push(StringValue(s[i:j]))
			i = j
		}
	}
	return arr
}

// CanJoin runs the CAN_JOIN gate for a pending join. A matched rule
// returning $false denies the join; $true allows it immediately; when
// no rule decides, the join is allowed. Rule bodies other than the
// return checks run without a live channel binding, since the join is
// not complete yet.
func (e *Engine) CanJoin(client Client, channel Channel) bool {
	if len(e.files) == 0 || client == nil || channel == nil {
		return true
	}
	e.pushEvent(script.EventCanJoin)
	defer e.popEvent()

	channelName := channel.Name()
	clientName := client.Name()
	e.global.Delete("__return__")

	for _, f := range e.files {
		for _, rule := range f.Rules {
			if rule.Event != script.EventCanJoin || !targetMatches(rule.Target, channelName, clientName) {
				continue
			}
			for _, a := range rule.Actions {
				switch {
				case a.Type == script.ActionReturn && len(a.Args) > 0:
					switch a.Args[0] {
					case "$false":
						return false
					case "$true":
						return true
					}
					e.runAction(a, client, channel)

				case a.Type == script.ActionIf:
					if e.evalActionCond(a, client, channel) {
						for _, n := range a.Nested {
							if n.Type == script.ActionReturn && len(n.Args) > 0 {
								switch n.Args[0] {
								case "$false":
									return false
								case "$true":
									return true
								}
							}
							e.runAction(n, client, nil)
						}
					} else {
						e.runActions(a.Else, client, nil)
					}

				default:
					e.runAction(a, client, nil)
				}

				if r, ok := e.global.Get("__return__"); ok {
					switch r {
					case "$false", "false", "0":
						return false
					case "$true", "true", "1":
						return true
					}
				}
			}
		}
	}
	return true
}
