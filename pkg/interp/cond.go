package interp

import (
	"strconv"
	"strings"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// EvalBool walks a boolean expression tree with short-circuiting.
func (e *Engine) EvalBool(x *script.BoolExpr, client Client, channel Channel) bool {
	if x == nil {
		return false
	}
	switch x.Type {
	case script.BoolParen:
		return e.EvalBool(x.Inner, client, channel)
	case script.BoolAnd:
		return e.EvalBool(x.Left, client, channel) && e.EvalBool(x.Right, client, channel)
	case script.BoolOr:
		return e.EvalBool(x.Left, client, channel) || e.EvalBool(x.Right, client, channel)
	default:
		return e.EvalCondition(x.Cond, client, channel)
	}
}

// EvalCondition evaluates one comparison against the live context.
func (e *Engine) EvalCondition(c *script.Condition, client Client, channel Channel) bool {
	if c == nil {
		return false
	}

	switch c.Operator {
	case "":
		// Bare truthiness test.
		return !IsFalsy(e.conditionValue(c.Variable, client, channel))

	case "hascap":
		subj := e.resolveClient(c.Variable, client, channel)
		if subj == nil {
			return false
		}
		return subj.HasCap(e.Substitute(c.Value, client, channel))

	case "ischanop", "isvoice", "ishalfop", "isadmin", "isowner":
		subj := e.resolveClient(c.Variable, client, channel)
		ch := e.resolveChannel(c.Value, client, channel)
		if subj == nil || ch == nil {
			return false
		}
		mode := map[string]string{
			"isowner": "q", "isadmin": "a", "ischanop": "o",
			"ishalfop": "h", "isvoice": "v",
		}[c.Operator]
		return e.world.HasChannelMode(subj, ch, mode)

	case "isoper", "isinvisible", "isregnick", "ishidden", "ishideoper",
		"issecure", "istls", "isuline", "isloggedin", "isserver",
		"isquarantined", "isshunned", "isvirus":
		subj := e.resolveClient(c.Variable, client, channel)
		if subj == nil {
			return false
		}
		return clientFlag(subj, c.Operator)

	case "isinvited", "isbanned":
		subj := e.resolveClient(c.Variable, client, channel)
		ch := e.resolveChannel(c.Value, client, channel)
		if subj == nil || ch == nil {
			return false
		}
		if c.Operator == "isinvited" {
			return e.world.IsInvited(subj, ch)
		}
		return e.world.IsBanned(subj, ch)

	case "hasaccess":
		subj := e.resolveClient(c.Variable, client, channel)
		ch := e.resolveChannel("$chan", client, channel)
		if subj == nil || ch == nil {
			return false
		}
		return e.world.HasAccess(subj, ch, e.Substitute(c.Value, client, channel))

	case "in":
		subj := e.resolveClient(c.Variable, client, channel)
		ch := e.resolveChannel(c.Value, client, channel)
		if subj == nil || ch == nil {
			return false
		}
		return e.world.IsMember(subj, ch)

	case "insg", "!insg":
		subj := e.resolveClient(c.Variable, client, channel)
		if subj == nil {
			return false
		}
		member := e.world.InSecurityGroup(subj, e.Substitute(c.Value, client, channel))
		if c.Operator == "!insg" {
			return !member
		}
		return member

	case "has":
		return e.evalHas(c, client, channel)

	case "==", "!=":
		left := normalizeCompare(e.conditionValue(c.Variable, client, channel))
		right := normalizeCompare(e.conditionValue(c.Value, client, channel))
		if c.Operator == "==" {
			return left == right
		}
		return left != right

	case "<", "<=", ">", ">=":
		left := atoiLoose(e.conditionValue(c.Variable, client, channel))
		right := atoiLoose(e.conditionValue(c.Value, client, channel))
		switch c.Operator {
		case "<":
			return left < right
		case "<=":
			return left <= right
		case ">":
			return left > right
		}
		return left >= right
	}

	e.log.Printf("[cond] unknown operator %q", c.Operator)
	return false
}

// evalHas handles `X has Y`. The `$client.umodes has UMODE_*` form
// consults the live flag; anything else is a substring test over the
// substituted left side.
func (e *Engine) evalHas(c *script.Condition, client Client, channel Channel) bool {
	if strings.HasSuffix(c.Variable, ".umodes") {
		subj := e.resolveClient(strings.TrimSuffix(c.Variable, ".umodes"), client, channel)
		if subj == nil {
			return false
		}
		switch c.Value {
		case "UMODE_OPER":
			return subj.IsOper()
		case "UMODE_INVISIBLE":
			return subj.IsInvisible()
		case "UMODE_SECURE":
			return subj.IsSecure()
		}
		return strings.Contains(subj.Umodes(), strings.TrimPrefix(c.Value, "UMODE_"))
	}
	left := e.Substitute(c.Variable, client, channel)
	right := e.Substitute(c.Value, client, channel)
	return strings.Contains(left, right)
}

func clientFlag(c Client, op string) bool {
	switch op {
	case "isoper":
		return c.IsOper()
	case "isinvisible":
		return c.IsInvisible()
	case "isregnick":
		return c.IsRegNick()
	case "ishidden":
		return c.IsHidden()
	case "ishideoper":
		return c.IsHideOper()
	case "issecure", "istls":
		return c.IsSecure()
	case "isuline":
		return c.IsULine()
	case "isloggedin":
		return c.IsLoggedIn()
	case "isserver":
		return c.IsServer()
	case "isquarantined":
		return c.IsQuarantined()
	case "isshunned":
		return c.IsShunned()
	case "isvirus":
		return c.IsVirus()
	}
	return false
}

// resolveClient maps a condition operand to a live client: $client for
// the context client (honoring a scope override), %var for a client
// binding, anything else a nick looked up in the world.
func (e *Engine) resolveClient(text string, client Client, channel Channel) Client {
	text = strings.TrimSpace(text)
	if text == "" || text == "$client" || strings.HasPrefix(text, "$client.") {
		if v := e.scope.Lookup("client"); v != nil && v.Val.Kind == KindClient {
			return v.Val.Client
		}
		return client
	}
	if strings.HasPrefix(text, "%") {
		if v := e.scope.Lookup(text); v != nil && v.Val.Kind == KindClient {
			return v.Val.Client
		}
		return nil
	}
	if c, ok := e.world.FindClient(e.Substitute(text, client, channel)); ok {
		return c
	}
	return nil
}

// resolveChannel maps a condition operand to a live channel: $chan for
// the context channel, %var for a channel binding, #name for a lookup.
func (e *Engine) resolveChannel(text string, client Client, channel Channel) Channel {
	text = strings.TrimSpace(text)
	if text == "" || text == "$chan" || text == "$channel" {
		return channel
	}
	if strings.HasPrefix(text, "%") {
		if v := e.scope.Lookup(text); v != nil && v.Val.Kind == KindChannel {
			return v.Val.Channel
		}
		return nil
	}
	if ch, ok := e.world.FindChannel(e.Substitute(text, client, channel)); ok {
		return ch
	}
	return nil
}

// conditionValue resolves one side of a comparison: a function call is
// executed for its return value, everything else is substituted.
func (e *Engine) conditionValue(text string, client Client, channel Channel) string {
	if script.IsFunctionCall(text) {
		return e.callFromText(text, client, channel)
	}
	return e.Substitute(text, client, channel)
}

// normalizeCompare folds the builtin literals so `== $true` works
// against values that substituted to "true"/"1" style strings.
func normalizeCompare(s string) string {
	switch s {
	case "$true":
		return "true"
	case "$false":
		return "false"
	case "$null":
		return "__NULL__"
	}
	return s
}

// IsFalsy reports whether a substituted value counts as false in a bare
// truthiness test.
func IsFalsy(v string) bool {
	switch v {
	case "", "0", "$false", "false", "$null", "null":
		return true
	}
	return false
}

// atoiLoose parses the leading integer of a value, defaulting to 0.
func atoiLoose(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
