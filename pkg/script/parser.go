package script

import (
	"fmt"
	"log"
	"strings"
	"unicode"
)

const (
	// MaxFileSize caps a single script file.
	MaxFileSize = 1024 * 1024

	// maxNestDepth bounds the if- and loop-context stacks independently.
	maxNestDepth = 10

	// maxCommandArgs bounds tokenized command argument lists.
	maxCommandArgs = 20
)

// ParseFile parses one script file's full text. Oversize files and files
// producing zero rules are rejected; malformed rules and actions inside
// an accepted file are dropped individually with a logged warning.
func ParseFile(path string, src []byte) (*File, error) {
	if len(src) > MaxFileSize {
		return nil, fmt.Errorf("script %s: %d bytes exceeds %d byte limit", path, len(src), MaxFileSize)
	}

	f := &File{Path: path}
	lines := strings.Split(string(src), "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "function $"):
			fn, next, ok := parseFunctionDef(lines, i)
			if !ok {
				log.Printf("[parser] %s:%d: malformed function definition dropped", path, i+1)
				i = skipBlock(lines, i)
				continue
			}
			f.Functions = append(f.Functions, fn)
			i = next

		case strings.HasPrefix(line, "on ") || strings.HasPrefix(line, "new "):
			rule, next, ok := parseRuleHeader(lines, i)
			if !ok {
				log.Printf("[parser] %s:%d: rule dropped: %s", path, i+1, line)
				i = skipBlock(lines, i)
				continue
			}
			f.Rules = append(f.Rules, rule)
			i = next

		default:
			// Anything else at top level is ignored.
		}
	}

	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("script %s: no rules parsed", path)
	}
	return f, nil
}

// parseFunctionDef handles `function $name(a, b) {` ... `}`.
func parseFunctionDef(lines []string, start int) (*Function, int, bool) {
	header := strings.TrimSpace(lines[start])
	open := strings.IndexByte(header, '(')
	if open < 0 || !strings.HasSuffix(header, "{") {
		return nil, start, false
	}
	name := strings.TrimSpace(header[len("function $"):open])
	if name == "" {
		return nil, start, false
	}
	closeParen := strings.LastIndexByte(header, ')')
	if closeParen < open {
		return nil, start, false
	}

	var params []string
	for _, p := range strings.Split(header[open+1:closeParen], ",") {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "$")
		p = strings.TrimPrefix(p, "%")
		if p != "" {
			params = append(params, p)
		}
	}

	body, next, ok := captureBlock(lines, start)
	if !ok {
		return nil, start, false
	}
	return &Function{Name: name, Params: params, Body: ParseActions(body)}, next, true
}

// parseRuleHeader handles `on EVENT:target:{` and `new COMMAND:name:{`.
func parseRuleHeader(lines []string, start int) (*Rule, int, bool) {
	header := strings.TrimSpace(lines[start])
	isNew := strings.HasPrefix(header, "new ")
	header = strings.TrimSpace(header[strings.IndexByte(header, ' ')+1:])

	// EVENT:target:{  -- anything after the brace is ignored
	brace := strings.Index(header, ":{")
	if brace < 0 {
		return nil, start, false
	}
	header = header[:brace]
	sep := strings.IndexByte(header, ':')
	if sep <= 0 {
		return nil, start, false
	}
	eventName := header[:sep]
	target := header[sep+1:]
	if target == "" {
		return nil, start, false
	}

	var event EventType
	if isNew {
		if !strings.EqualFold(eventName, "COMMAND") {
			return nil, start, false
		}
		event = EventCommandNew
	} else {
		var ok bool
		event, ok = EventByName(eventName)
		if !ok {
			return nil, start, false
		}
	}

	body, next, ok := captureBlock(lines, start)
	if !ok {
		return nil, start, false
	}
	return &Rule{Event: event, Target: target, Actions: ParseActions(body)}, next, true
}

// captureBlock collects the lines between the opening brace on lines[start]
// and its matching close. Braces inside double-quoted strings and trailing
// // comments do not count toward nesting.
func captureBlock(lines []string, start int) ([]string, int, bool) {
	depth := braceDelta(lines[start])
	if depth <= 0 {
		return nil, start, false
	}
	var body []string
	for i := start + 1; i < len(lines); i++ {
		d := braceDelta(lines[i])
		if depth+d <= 0 {
			// Closing line; keep whatever precedes the final brace.
			trimmed := strings.TrimSpace(lines[i])
			if trimmed != "}" {
				if cut := strings.LastIndexByte(trimmed, '}'); cut > 0 {
					body = append(body, trimmed[:cut])
				}
			}
			return body, i, true
		}
		depth += d
		body = append(body, lines[i])
	}
	return nil, len(lines) - 1, false
}

// skipBlock advances past a malformed block so the rest of the file can
// still parse.
func skipBlock(lines []string, start int) int {
	if braceDelta(lines[start]) <= 0 {
		return start
	}
	_, next, ok := captureBlock(lines, start)
	if !ok {
		return len(lines) - 1
	}
	return next
}

// braceDelta returns open-minus-close brace count for one line, ignoring
// braces inside double-quoted strings and after a // comment marker.
func braceDelta(line string) int {
	delta := 0
	inQuote := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote:
			if c == '\\' && i+1 < len(line) {
				i++
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return delta
		case c == '{':
			delta++
		case c == '}':
			delta--
		}
	}
	return delta
}

type frameKind int

const (
	frameNone frameKind = iota
	frameIf
	frameLoop
)

type frame struct {
	kind   frameKind
	act    *Action
	inElse bool
}

// ParseActions turns the body lines of a block into an action list.
// If/else and loop contexts live on independent depth-capped stacks; a
// fresh action always attaches to the innermost open context.
func ParseActions(lines []string) []*Action {
	var list []*Action
	var stack []frame
	ifDepth, loopDepth := 0, 0

	cur := func() *[]*Action {
		if len(stack) == 0 {
			return &list
		}
		f := &stack[len(stack)-1]
		if f.kind == frameIf && f.inElse {
			return &f.act.Else
		}
		return &f.act.Nested
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if line[0] == '}' {
			if len(stack) == 0 {
				continue
			}
			top := &stack[len(stack)-1]
			rest := strings.TrimSpace(line[1:])

			if top.kind == frameIf {
				if rest == "" {
					// One-line lookahead for a dangling else.
					if j := nextContentLine(lines, i+1); j >= 0 {
						if nl := strings.TrimSpace(lines[j]); strings.HasPrefix(nl, "else") {
							rest = nl
							i = j
						}
					}
				}
				if after, ok := strings.CutPrefix(rest, "else"); ok {
					after = strings.TrimSpace(after)
					switch {
					case strings.HasPrefix(after, "if"):
						// } else if (cond) { - chain as an If inside Else.
						cond, _, ok := splitCondHeader(after[2:])
						if ok {
							chained := &Action{Type: ActionIf, Cond: ParseBoolExpr(cond)}
							top.act.Else = append(top.act.Else, chained)
							stack[len(stack)-1] = frame{kind: frameIf, act: chained}
							continue
						}
					case after == "{" || after == "":
						if after == "" {
							// Brace on the following line.
							if j := nextContentLine(lines, i+1); j >= 0 && strings.TrimSpace(lines[j]) == "{" {
								i = j
							}
						}
						top.inElse = true
						continue
					}
				}
				stack = stack[:len(stack)-1]
				ifDepth--
			} else {
				stack = stack[:len(stack)-1]
				loopDepth--
			}
			continue
		}

		act, opens := parseActionLine(line)
		if act == nil {
			continue
		}
		c := cur()
		*c = append(*c, act)

		switch opens {
		case frameIf:
			if ifDepth >= maxNestDepth {
				log.Printf("[parser] if nesting exceeds depth %d, block flattened", maxNestDepth)
				continue
			}
			ifDepth++
			stack = append(stack, frame{kind: frameIf, act: act})
		case frameLoop:
			if loopDepth >= maxNestDepth {
				log.Printf("[parser] loop nesting exceeds depth %d, block flattened", maxNestDepth)
				continue
			}
			loopDepth++
			stack = append(stack, frame{kind: frameLoop, act: act})
		}
	}
	return list
}

// nextContentLine returns the index of the next non-blank, non-comment
// line, or -1.
func nextContentLine(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if t == "" || strings.HasPrefix(t, "//") {
			continue
		}
		return i
	}
	return -1
}

// parseActionLine classifies a single statement line. The returned
// frameKind says whether the action opened a block that subsequent
// lines belong to.
func parseActionLine(line string) (*Action, frameKind) {
	switch {
	case IsFunctionCall(line) && !strings.HasPrefix(line, "var ") && !strings.HasPrefix(line, "const "):
		name, args := SplitCall(line)
		if name == "" {
			return nil, frameNone
		}
		return &Action{Type: ActionFunctionCall, Name: name, Args: args}, frameNone

	case IsArithmetic(line):
		return &Action{Type: ActionArith, Args: []string{line}}, frameNone

	case strings.HasPrefix(line, "const var "):
		a := parseVarDecl(strings.TrimSpace(line[len("const var "):]))
		if a != nil {
			a.Const = true
		}
		return a, frameNone

	case strings.HasPrefix(line, "var "):
		return parseVarDecl(strings.TrimSpace(line[len("var "):])), frameNone

	case line[0] == '%':
		return parseBareAssign(line), frameNone

	case hasKeyword(line, "isupport"):
		return &Action{Type: ActionISupport, Args: []string{strings.TrimSpace(line[len("isupport"):])}}, frameNone

	case hasKeyword(line, "cap"):
		return &Action{Type: ActionCap, Args: []string{strings.TrimSpace(line[len("cap"):])}}, frameNone

	case hasKeyword(line, "sendnotice"):
		return &Action{Type: ActionSendNotice, Args: Tokenize(strings.TrimSpace(line[len("sendnotice"):]), maxCommandArgs)}, frameNone

	case line == "break":
		return &Action{Type: ActionBreak}, frameNone

	case line == "continue":
		return &Action{Type: ActionContinue}, frameNone

	case hasKeyword(line, "return"):
		val := StripQuotes(strings.TrimSpace(line[len("return"):]))
		return &Action{Type: ActionReturn, Args: []string{val}}, frameNone

	case hasKeyword(line, "if"):
		return parseIf(line)

	case hasKeyword(line, "while"):
		cond, _, ok := splitCondHeader(line[len("while"):])
		if !ok || !strings.HasSuffix(line, "{") {
			log.Printf("[parser] malformed while header dropped: %s", line)
			return nil, frameNone
		}
		return &Action{Type: ActionWhile, Cond: ParseBoolExpr(cond)}, frameLoop

	case hasKeyword(line, "for"):
		return parseFor(line)

	default:
		// A generic command line: uppercase first letter or embedded space.
		if unicode.IsUpper(rune(line[0])) || strings.ContainsRune(line, ' ') {
			toks := Tokenize(line, maxCommandArgs+1)
			if len(toks) == 0 {
				return nil, frameNone
			}
			return &Action{Type: ActionCommand, Name: toks[0], Args: toks[1:]}, frameNone
		}
		return nil, frameNone
	}
}

// hasKeyword reports whether line begins with kw followed by a space,
// parenthesis, or end of line.
func hasKeyword(line, kw string) bool {
	if !strings.HasPrefix(line, kw) {
		return false
	}
	if len(line) == len(kw) {
		return true
	}
	c := line[len(kw)]
	return c == ' ' || c == '('
}

// parseIf handles both `if (cond) {` and the single-line
// `if (cond) action` form.
func parseIf(line string) (*Action, frameKind) {
	cond, rest, ok := splitCondHeader(line[2:])
	if !ok {
		log.Printf("[parser] malformed if header dropped: %s", line)
		return nil, frameNone
	}
	act := &Action{Type: ActionIf, Cond: ParseBoolExpr(cond)}
	rest = strings.TrimSpace(rest)
	if rest == "{" {
		return act, frameIf
	}
	if rest != "" {
		if inline, _ := parseActionLine(rest); inline != nil {
			act.Nested = append(act.Nested, inline)
		}
		return act, frameNone
	}
	return act, frameIf
}

// parseFor handles `for (%v in a..b) {` and the C-style
// `for (init; cond; incr) {` header.
func parseFor(line string) (*Action, frameKind) {
	header, _, ok := splitCondHeader(line[3:])
	if !ok || !strings.HasSuffix(line, "{") {
		log.Printf("[parser] malformed for header dropped: %s", line)
		return nil, frameNone
	}

	act := &Action{Type: ActionFor}
	if v, rng, found := strings.Cut(header, " in "); found && strings.Contains(rng, "..") {
		start, end, _ := strings.Cut(rng, "..")
		act.LoopVar = strings.TrimPrefix(strings.TrimSpace(v), "%")
		act.LoopStart = strings.TrimSpace(start)
		act.LoopEnd = strings.TrimSpace(end)
		act.LoopStep = "1"
		return act, frameLoop
	}

	parts := strings.SplitN(header, ";", 3)
	if len(parts) != 3 {
		log.Printf("[parser] malformed for header dropped: %s", line)
		return nil, frameNone
	}
	if init, _ := parseActionLine(strings.TrimSpace(parts[0])); init != nil {
		act.Init = init
	}
	act.Legacy = ParseLegacyCondition(strings.TrimSpace(parts[1]))
	act.Increment = strings.TrimSpace(parts[2])
	return act, frameLoop
}

// parseVarDecl handles the body of a var declaration after the `var `
// keyword: `%name = value` and `%name value`.
func parseVarDecl(rest string) *Action {
	if rest == "" || rest[0] != '%' {
		return nil
	}
	name := rest
	value := ""
	if cut := strings.IndexAny(rest, " \t"); cut > 0 {
		name = rest[:cut]
		value = strings.TrimSpace(rest[cut:])
	}
	name = strings.TrimPrefix(name, "%")
	if eq, ok := strings.CutPrefix(value, "="); ok {
		value = strings.TrimSpace(eq)
	}
	return &Action{Type: ActionVar, VarName: name, VarValue: normalizeValue(value)}
}

// parseBareAssign handles `%name = value` and `%name[index] = value`
// statements outside a var keyword (arithmetic forms were already taken).
func parseBareAssign(line string) *Action {
	lhs, rhs, found := strings.Cut(line, "=")
	if !found {
		return nil
	}
	lhs = strings.TrimSpace(strings.TrimPrefix(lhs, "%"))
	act := &Action{Type: ActionVar, VarValue: normalizeValue(strings.TrimSpace(rhs))}
	if open := strings.IndexByte(lhs, '['); open >= 0 && strings.HasSuffix(lhs, "]") {
		act.VarName = lhs[:open]
		act.VarIndex = lhs[open+1 : len(lhs)-1]
	} else {
		act.VarName = lhs
	}
	return act
}

// normalizeValue strips one level of surrounding quotes; array literals
// and everything else pass through raw.
func normalizeValue(v string) string {
	if strings.HasPrefix(v, "[") {
		return v
	}
	return StripQuotes(v)
}

// splitCondHeader extracts the text inside the first balanced paren
// group and returns the remainder of the line after it.
func splitCondHeader(s string) (cond, rest string, ok bool) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", "", false
	}
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\\' && i+1 < len(s) {
				i++
			} else if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[open+1 : i]), s[i+1:], true
			}
		}
	}
	return "", "", false
}

// StripQuotes removes one level of surrounding double quotes.
func StripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Tokenize splits a statement into at most max tokens, treating
// double-quoted strings and bracketed array literals as atomic tokens.
// Quotes are stripped from quoted tokens; brackets are kept.
func Tokenize(s string, max int) []string {
	var toks []string
	i := 0
	for i < len(s) && len(toks) < max {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			break
		}
		switch s[i] {
		case '"':
			j := i + 1
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				j++
			}
			toks = append(toks, s[i+1:min(j, len(s))])
			i = j + 1
		case '[':
			depth := 0
			j := i
			for ; j < len(s); j++ {
				if s[j] == '[' {
					depth++
				} else if s[j] == ']' {
					depth--
					if depth == 0 {
						j++
						break
					}
				}
			}
			toks = append(toks, s[i:j])
			i = j
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

// IsArithmetic reports whether a line is an arithmetic statement:
// %v++, %v--, a compound assignment, or a plain assignment whose
// right-hand side contains an arithmetic operator.
func IsArithmetic(line string) bool {
	if len(line) == 0 || line[0] != '%' {
		return false
	}
	for _, op := range []string{"++", "--", "+=", "-=", "*=", "/="} {
		if strings.Contains(line, op) {
			return true
		}
	}
	if strings.ContainsRune(line, '=') && strings.ContainsAny(line, "+-*/") {
		return true
	}
	return false
}

// IsBuiltin reports whether name is a natively implemented script
// function.
func IsBuiltin(name string) bool {
	switch name {
	case "find_client", "find_server", "find_channel":
		return true
	}
	return false
}

// IsFunctionCall reports whether line is a function invocation:
// $name(...) for user functions, name(...) for builtins, or a var
// declaration whose right-hand side is itself a call.
func IsFunctionCall(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "var ") || strings.HasPrefix(line, "const var ") {
		if _, rhs, found := strings.Cut(line, "="); found {
			return IsFunctionCall(rhs)
		}
		return false
	}
	if line[0] == '$' {
		i := 1
		for i < len(line) && line[i] != '(' && line[i] != ' ' && line[i] != '\t' {
			i++
		}
		return i < len(line) && line[i] == '('
	}
	i := 0
	for i < len(line) && line[i] != '(' && line[i] != ' ' && line[i] != '\t' {
		i++
	}
	if i < len(line) && line[i] == '(' {
		return IsBuiltin(line[:i])
	}
	return false
}

// SplitCall breaks `$name(a, b)` into its name and comma-separated
// arguments. Arguments are trimmed; nested commas are not interpreted.
func SplitCall(line string) (string, []string) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "$")
	open := strings.IndexByte(line, '(')
	closeParen := strings.LastIndexByte(line, ')')
	if open <= 0 || closeParen < open {
		return "", nil
	}
	name := line[:open]
	inner := line[open+1 : closeParen]
	if strings.TrimSpace(inner) == "" {
		return name, nil
	}
	var args []string
	for _, a := range strings.Split(inner, ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return name, args
}
