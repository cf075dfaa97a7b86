package interp

import (
	"strconv"
	"strings"
)

// EvalArithmetic substitutes the expression and then evaluates it as
// integer arithmetic: + - * / applied strictly left to right with no
// precedence and no parentheses. Division by zero skips the division.
// An invalid character stops the scan at the value accumulated so far.
func (e *Engine) EvalArithmetic(expr string, client Client, channel Channel) int {
	s := e.Substitute(expr, client, channel)

	result := 0
	current := 0
	op := byte('+')
	first := true

	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i < len(s) && s[i] == '-' {
		op = '-'
		i++
	}

	apply := func() {
		if first {
			if op == '-' {
				result = -current
			} else {
				result = current
			}
			first = false
		} else {
			switch op {
			case '+':
				result += current
			case '-':
				result -= current
			case '*':
				result *= current
			case '/':
				if current != 0 {
					result /= current
				}
			}
		}
		current = 0
	}

	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			current = current*10 + int(c-'0')
		case c == '+' || c == '-' || c == '*' || c == '/':
			apply()
			op = c
		case c == ' ' || c == '\t':
		default:
			apply()
			return result
		}
	}
	apply()
	return result
}

// runArithStatement executes a `%v++` style statement, writing the new
// value back into the active scope as a string.
func (e *Engine) runArithStatement(stmt string, client Client, channel Channel) {
	stmt = strings.TrimSpace(stmt)
	if !strings.HasPrefix(stmt, "%") {
		return
	}

	nameEnd := 1
	for nameEnd < len(stmt) && isIdentChar(stmt[nameEnd]) {
		nameEnd++
	}
	name := stmt[1:nameEnd]
	rest := strings.TrimSpace(stmt[nameEnd:])

	cur := 0
	if v, ok := e.scope.Get(name); ok {
		cur = atoiLoose(v)
	}

	var out int
	switch {
	case rest == "++":
		out = cur + 1
	case rest == "--":
		out = cur - 1
	case strings.HasPrefix(rest, "+="):
		out = cur + e.EvalArithmetic(rest[2:], client, channel)
	case strings.HasPrefix(rest, "-="):
		out = cur - e.EvalArithmetic(rest[2:], client, channel)
	case strings.HasPrefix(rest, "*="):
		out = cur * e.EvalArithmetic(rest[2:], client, channel)
	case strings.HasPrefix(rest, "/="):
		div := e.EvalArithmetic(rest[2:], client, channel)
		if div == 0 {
			return
		}
		out = cur / div
	case strings.HasPrefix(rest, "="):
		out = e.EvalArithmetic(rest[1:], client, channel)
	default:
		e.log.Printf("[arith] unrecognized statement %q", stmt)
		return
	}
	e.setVar(name, StringValue(strconv.Itoa(out)), false)
}

// looksArithmetic reports whether a substituted value is a pure integer
// expression with at least one operator, so `return %n * 2` can yield
// the computed value rather than the raw text.
func looksArithmetic(s string) bool {
	hasOp := false
	hasDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '+' || c == '*' || c == '/':
			hasOp = true
		case c == '-':
			if i > 0 {
				hasOp = true
			}
		case c == ' ' || c == '\t':
		default:
			return false
		}
	}
	return hasOp && hasDigit
}
