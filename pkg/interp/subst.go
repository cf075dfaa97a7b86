package interp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// SyntaxError is the sentinel returned for malformed substitution
// input. The executor aborts the remaining action chain when any
// argument substitutes to it.
const SyntaxError = "SYNTAX_ERROR"

// maxPara bounds positional command parameters, as the IRC parser does.
const maxPara = 15

// Substitute rewrites every placeholder in text against the current
// execution context, in this order: positional command parameters,
// inline function calls, the validation pass, client/channel/server
// properties, and finally user variables.
func (e *Engine) Substitute(text string, client Client, channel Channel) string {
	if text == "" || !strings.ContainsAny(text, "$%") {
		return text
	}
	s := text
	if params := e.activeParams(); params != nil {
		s = substParams(s, params)
	}
	s = e.expandCalls(s, client, channel)
	if bad, tok := malformedToken(s); bad {
		e.log.Printf("[subst] malformed token %q in %q", tok, text)
		if e.Obs != nil {
			e.Obs.SyntaxError()
		}
		return SyntaxError
	}
	s = e.substContext(s, client, channel)
	s = e.substUserVars(s, client, channel)
	return s
}

// substParams expands $N, $a-b and $a- against the active command
// parameters. Ranges go first so their digits are not eaten by the
// single-parameter pass; indexes run high to low so $1 cannot corrupt
// $12. Missing parameters become the $null literal.
func substParams(s string, params []string) string {
	join := func(from, to int) string {
		var parts []string
		for i := from; i <= to && i < len(params); i++ {
			parts = append(parts, params[i])
		}
		return strings.Join(parts, " ")
	}

	for start := maxPara; start >= 1; start-- {
		for end := maxPara; end > start; end-- {
			name := fmt.Sprintf("$%d-%d", start, end)
			if strings.Contains(s, name) {
				s = strings.ReplaceAll(s, name, join(start, end))
			}
		}
	}
	for start := maxPara; start >= 1; start-- {
		name := fmt.Sprintf("$%d-", start)
		if strings.Contains(s, name) {
			s = strings.ReplaceAll(s, name, join(start, maxPara))
		}
	}
	for i := maxPara; i >= 1; i-- {
		name := fmt.Sprintf("$%d", i)
		if !strings.Contains(s, name) {
			continue
		}
		val := "$null"
		if i < len(params) {
			val = params[i]
		}
		s = strings.ReplaceAll(s, name, val)
	}
	return s
}

// expandCalls replaces inline $name(...) calls (and builtin name(...)
// calls) with their string results.
func (e *Engine) expandCalls(s string, client Client, channel Channel) string {
	if !strings.ContainsRune(s, '(') {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c == '$' || (isIdentStart(c) && (i == 0 || !isIdentChar(s[i-1]))) {
			start := i
			j := i
			if c == '$' {
				j++
			}
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			name := s[start:j]
			if c != '$' {
				name = s[start:j]
			}
			if j < len(s) && s[j] == '(' && j > start &&
				(c == '$' || script.IsBuiltin(name)) {
				if end := matchParen(s, j); end > j {
					buf.WriteString(e.callFromText(s[start:end+1], client, channel))
					i = end + 1
					continue
				}
			}
			buf.WriteString(s[start:j])
			i = j
			continue
		}
		buf.WriteByte(c)
		i++
	}
	return buf.String()
}

// matchParen returns the index of the ')' matching the '(' at open.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Grammar tokens and the characters allowed to follow them. Anything
// else after one of these words is a script error caught before any
// value substitution happens.
var guardedTokens = []struct {
	word      string
	followers string
}{
	{"$channel", ". \t"},
	{"$client", ". \t"},
	{"$server", ". \t"},
	{"$false", " \t),\""},
	{"$true", " \t),\""},
	{"$chan", ". \t"},
}

// malformedToken scans for a guarded token with an invalid follower.
func malformedToken(s string) (bool, string) {
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			continue
		}
		for _, g := range guardedTokens {
			if !strings.HasPrefix(s[i:], g.word) {
				continue
			}
			end := i + len(g.word)
			if end < len(s) && isIdentChar(s[end]) {
				// Longer identifier: only an error if no longer guarded
				// word matches here, which the table order guarantees
				// was already tried.
				return true, s[i:end+1]
			}
			if end < len(s) && !strings.ContainsRune(g.followers, rune(s[end])) {
				return true, s[i : end+1]
			}
			i = end - 1
			break
		}
	}
	return false, ""
}

// substContext expands $client.*, $chan.*, $channel.*, $server.name and
// $time. A scope variable named "client" holding a client binding
// overrides the hook's client.
func (e *Engine) substContext(s string, client Client, channel Channel) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}
	if v := e.scope.Lookup("client"); v != nil && v.Val.Kind == KindClient {
		client = v.Val.Client
	}

	var buf strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' {
			buf.WriteByte(s[i])
			i++
			continue
		}
		rest := s[i:]
		switch {
		case strings.HasPrefix(rest, "$client"):
			n, out, ok := clientToken(rest, client)
			if !ok {
				buf.WriteString(rest[:n])
			} else {
				buf.WriteString(out)
			}
			i += n
		case strings.HasPrefix(rest, "$channel"):
			n, out, ok := channelToken(rest, len("$channel"), channel)
			if !ok {
				buf.WriteString(rest[:n])
			} else {
				buf.WriteString(out)
			}
			i += n
		case strings.HasPrefix(rest, "$chan"):
			n, out, ok := channelToken(rest, len("$chan"), channel)
			if !ok {
				buf.WriteString(rest[:n])
			} else {
				buf.WriteString(out)
			}
			i += n
		case strings.HasPrefix(rest, "$server.name"):
			buf.WriteString(e.world.Name())
			i += len("$server.name")
		case strings.HasPrefix(rest, "$time"):
			buf.WriteString(strconv.FormatInt(time.Now().Unix(), 10))
			i += len("$time")
		default:
			buf.WriteByte('$')
			i++
		}
	}
	return buf.String()
}

// clientToken resolves one $client[.prop] token. Returns the consumed
// length, the replacement, and whether a replacement was produced.
func clientToken(rest string, c Client) (int, string, bool) {
	n := len("$client")
	prop := ""
	if len(rest) > n && rest[n] == '.' {
		j := n + 1
		for j < len(rest) && isIdentChar(rest[j]) {
			j++
		}
		prop = rest[n+1 : j]
		// user.server reaches one level deeper.
		if prop == "user" && strings.HasPrefix(rest[j:], ".server") {
			prop = "user.server"
			j += len(".server")
		}
		n = j
	}
	if c == nil {
		return n, "", false
	}
	switch prop {
	case "":
		return n, c.Name(), true
	case "name", "nick":
		return n, c.Name(), true
	case "ident":
		return n, c.Ident(), true
	case "host":
		return n, c.Hostname(), true
	case "ip":
		return n, c.IP(), true
	case "gecos":
		return n, c.Gecos(), true
	case "account":
		return n, c.Account(), true
	case "server", "user.server":
		return n, c.ServerName(), true
	case "umodes":
		return n, c.Umodes(), true
	}
	return n, "", false
}

// channelToken resolves one $chan[.prop] / $channel[.prop] token.
func channelToken(rest string, wordLen int, ch Channel) (int, string, bool) {
	n := wordLen
	prop := ""
	if len(rest) > n && rest[n] == '.' {
		j := n + 1
		for j < len(rest) && isIdentChar(rest[j]) {
			j++
		}
		prop = rest[n+1 : j]
		n = j
	}
	if ch == nil {
		return n, "", false
	}
	switch prop {
	case "":
		return n, ch.Name(), true
	case "name":
		return n, ch.Name(), true
	case "topic":
		return n, ch.Topic(), true
	case "users":
		return n, strconv.Itoa(ch.UserCount()), true
	}
	return n, "", false
}

// substUserVars expands %name, %name[index] and %name.property against
// the active scope. Unknown variables stay as literal text.
func (e *Engine) substUserVars(s string, client Client, channel Channel) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var buf strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			buf.WriteByte(s[i])
			i++
			continue
		}
		j := i + 1
		for j < len(s) && isIdentChar(s[j]) {
			j++
		}
		if j == i+1 {
			buf.WriteByte('%')
			i++
			continue
		}
		name := s[i+1 : j]
		v := e.scope.Lookup(name)

		// Array index access.
		if j < len(s) && s[j] == '[' {
			closeIdx := strings.IndexByte(s[j:], ']')
			if closeIdx < 0 {
				buf.WriteString(s[i:j])
				i = j
				continue
			}
			closeIdx += j
			if v == nil || v.Val.Kind != KindArray {
				buf.WriteString(s[i : closeIdx+1])
				i = closeIdx + 1
				continue
			}
			idxText := e.Substitute(s[j+1:closeIdx], client, channel)
			idx, _ := strconv.Atoi(strings.TrimSpace(idxText))
			buf.WriteString(arrayElemString(v.Val.Array, idx))
			i = closeIdx + 1
			continue
		}

		// Property access.
		if j < len(s)-1 && s[j] == '.' && isIdentChar(s[j+1]) {
			k := j + 1
			for k < len(s) && isIdentChar(s[k]) {
				k++
			}
			prop := s[j+1 : k]
			if v == nil {
				buf.WriteString(s[i:k])
				i = k
				continue
			}
			buf.WriteString(varProperty(v, prop))
			i = k
			continue
		}

		if v == nil {
			buf.WriteString(s[i:j])
			i = j
			continue
		}
		buf.WriteString(varString(v))
		i = j
	}
	return buf.String()
}

// arrayElemString renders one array slot; out-of-range and gap slots
// become the $null literal.
func arrayElemString(a *Array, idx int) string {
	el := a.Get(idx)
	if el == nil {
		return "$null"
	}
	switch el.Kind {
	case KindString:
		return el.Str
	case KindClient:
		return el.Client.Name()
	case KindChannel:
		return el.Channel.Name()
	}
	return "$null"
}

// varProperty renders %var.prop. String variables ignore the property
// and yield their whole value; that quirk is script-visible behavior.
func varProperty(v *Variable, prop string) string {
	switch v.Val.Kind {
	case KindClient:
		c := v.Val.Client
		switch prop {
		case "name":
			return c.Name()
		case "host":
			return c.Hostname()
		case "ip":
			return c.IP()
		case "server":
			return c.ServerName()
		case "account":
			return c.Account()
		}
		return c.Name()
	case KindChannel:
		ch := v.Val.Channel
		switch prop {
		case "name":
			return ch.Name()
		case "topic":
			return ch.Topic()
		case "users":
			return strconv.Itoa(ch.UserCount())
		}
		return ch.Name()
	}
	return v.Val.Str
}

// varString renders a bare %var reference.
func varString(v *Variable) string {
	switch v.Val.Kind {
	case KindString:
		return v.Val.Str
	case KindClient:
		return v.Val.Client.Name()
	case KindChannel:
		return v.Val.Channel.Name()
	}
	// Bare array references have no string form.
	return "%" + v.Name
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
