package script

import "strings"

// Boolean expression grammar, loosest binding first:
//
//	expr    -> expr '||' expr
//	         | expr '&&' expr
//	         | '(' expr ')'
//	         | condition
//
// The splitter finds the first top-level operator outside parentheses,
// so `a && b || c` becomes Or(And(a,b), c) and `a || b && c` becomes
// Or(a, And(b,c)).

// ParseBoolExpr parses a trimmed condition string into an expression
// tree. It never fails: unparseable text degrades to a bare truthiness
// condition.
func ParseBoolExpr(s string) *BoolExpr {
	s = strings.TrimSpace(s)
	if s == "" {
		return &BoolExpr{Type: BoolSimple, Cond: &Condition{}}
	}

	if inner, ok := strippableParens(s); ok {
		return &BoolExpr{Type: BoolParen, Inner: ParseBoolExpr(inner)}
	}

	if i := topLevelIndex(s, "||"); i >= 0 {
		return &BoolExpr{
			Type:  BoolOr,
			Left:  ParseBoolExpr(s[:i]),
			Right: ParseBoolExpr(s[i+2:]),
		}
	}

	if i := topLevelIndex(s, "&&"); i >= 0 {
		return &BoolExpr{
			Type:  BoolAnd,
			Left:  ParseBoolExpr(s[:i]),
			Right: ParseBoolExpr(s[i+2:]),
		}
	}

	return &BoolExpr{Type: BoolSimple, Cond: ParseSimpleCondition(s)}
}

// strippableParens reports whether s is one fully enclosing matched
// paren group and returns its interior.
func strippableParens(s string) (string, bool) {
	if len(s) < 2 || s[0] != '(' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if i == len(s)-1 {
					return s[1 : len(s)-1], true
				}
				return "", false
			}
		}
	}
	return "", false
}

// topLevelIndex finds the first occurrence of op outside parentheses
// and double quotes, or -1.
func topLevelIndex(s, op string) int {
	depth := 0
	inQuote := false
	for i := 0; i+len(op) <= len(s); i++ {
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
		case depth == 0 && s[i:i+len(op)] == op:
			return i
		}
	}
	return -1
}

// Keyword operators in matching priority order. Kind controls how the
// two sides of the condition are filled in.
type keywordKind int

const (
	kwBinary     keywordKind = iota // variable kw value
	kwMembership                    // variable and value forced to $client / $chan
	kwChanValue                     // value forced to $chan
	kwFlag                          // no value
)

var keywordOps = []struct {
	name string
	kind keywordKind
}{
	{"hascap", kwBinary},
	{"ischanop", kwMembership},
	{"isvoice", kwMembership},
	{"ishalfop", kwMembership},
	{"isadmin", kwMembership},
	{"isowner", kwMembership},
	{"isoper", kwFlag},
	{"isinvisible", kwFlag},
	{"isregnick", kwFlag},
	{"ishidden", kwFlag},
	{"ishideoper", kwFlag},
	{"issecure", kwFlag},
	{"istls", kwFlag},
	{"isuline", kwFlag},
	{"isloggedin", kwFlag},
	{"isserver", kwFlag},
	{"isquarantined", kwFlag},
	{"isshunned", kwFlag},
	{"isvirus", kwFlag},
	{"isinvited", kwChanValue},
	{"isbanned", kwChanValue},
	{"hasaccess", kwBinary},
	{"in", kwBinary},
	{"insg", kwBinary},
	{"!insg", kwBinary},
	{"has", kwBinary},
}

var symbolicOps = []string{"<=", ">=", "==", "!=", "<", ">"}

// ParseSimpleCondition parses one comparison. Keyword operators are
// tried first in priority order with word-boundary anchoring, then the
// symbolic comparison operators, and finally the whole string becomes a
// bare truthiness test.
func ParseSimpleCondition(s string) *Condition {
	s = strings.TrimSpace(s)

	for _, kw := range keywordOps {
		i := keywordIndex(s, kw.name)
		if i < 0 {
			continue
		}
		left := strings.TrimSpace(s[:i])
		right := strings.TrimSpace(s[i+len(kw.name):])
		cond := &Condition{Variable: left, Operator: kw.name}
		switch kw.kind {
		case kwMembership:
			cond.Variable = "$client"
			cond.Value = "$chan"
		case kwChanValue:
			if cond.Variable == "" {
				cond.Variable = "$client"
			}
			cond.Value = "$chan"
		case kwFlag:
			if cond.Variable == "" {
				cond.Variable = "$client"
			}
		case kwBinary:
			cond.Value = StripQuotes(right)
		}
		return cond
	}

	for _, op := range symbolicOps {
		if i := strings.Index(s, op); i >= 0 {
			return &Condition{
				Variable: strings.TrimSpace(s[:i]),
				Operator: op,
				Value:    StripQuotes(strings.TrimSpace(s[i+len(op):])),
			}
		}
	}

	return &Condition{Variable: s}
}

// ParseLegacyCondition parses a for-loop condition with symbolic
// operators only, in the loop parser's own priority order.
func ParseLegacyCondition(s string) *Condition {
	s = strings.TrimSpace(s)
	for _, op := range []string{"!=", "==", "<=", ">=", "<", ">"} {
		if i := strings.Index(s, op); i >= 0 {
			return &Condition{
				Variable: strings.TrimSpace(s[:i]),
				Operator: op,
				Value:    StripQuotes(strings.TrimSpace(s[i+len(op):])),
			}
		}
	}
	return &Condition{Variable: s}
}

// keywordIndex finds op in s anchored on token boundaries: preceded by
// start-of-string or a space, followed by a space, ')', or end.
func keywordIndex(s, op string) int {
	from := 0
	for {
		i := strings.Index(s[from:], op)
		if i < 0 {
			return -1
		}
		i += from
		boundedLeft := i == 0 || s[i-1] == ' '
		end := i + len(op)
		boundedRight := end == len(s) || s[end] == ' ' || s[end] == ')'
		if boundedLeft && boundedRight {
			return i
		}
		from = i + 1
	}
}
