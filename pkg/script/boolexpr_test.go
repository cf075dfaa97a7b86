package script

import "testing"

func TestBoolExprAndBindsTighterThanOr(t *testing.T) {
	x := ParseBoolExpr("%a == 1 && %b == 1 || %c == 1")
	if x.Type != BoolOr {
		t.Fatalf("root = %v, want Or", x.Type)
	}
	if x.Left.Type != BoolAnd {
		t.Errorf("left = %v, want And", x.Left.Type)
	}
	if x.Right.Type != BoolSimple || x.Right.Cond.Variable != "%c" {
		t.Errorf("right = %+v, want simple %%c comparison", x.Right)
	}

	x = ParseBoolExpr("%a == 1 || %b == 1 && %c == 1")
	if x.Type != BoolOr {
		t.Fatalf("root = %v, want Or", x.Type)
	}
	if x.Left.Type != BoolSimple {
		t.Errorf("left = %v, want simple", x.Left.Type)
	}
	if x.Right.Type != BoolAnd {
		t.Errorf("right = %v, want And", x.Right.Type)
	}
}

func TestBoolExprParens(t *testing.T) {
	x := ParseBoolExpr("(%a == 1 || %b == 1) && %c == 1")
	if x.Type != BoolAnd {
		t.Fatalf("root = %v, want And", x.Type)
	}
	if x.Left.Type != BoolParen || x.Left.Inner.Type != BoolOr {
		t.Errorf("left = %+v, want parenthesised Or", x.Left)
	}
}

func TestBoolExprFullParens(t *testing.T) {
	x := ParseBoolExpr("($client isoper)")
	if x.Type != BoolParen {
		t.Fatalf("root = %v, want Paren", x.Type)
	}
	if x.Inner.Type != BoolSimple || x.Inner.Cond.Operator != "isoper" {
		t.Errorf("inner = %+v", x.Inner)
	}
}

func TestBoolExprOperatorInsideQuotes(t *testing.T) {
	x := ParseBoolExpr(`%msg == "a && b"`)
	if x.Type != BoolSimple {
		t.Fatalf("quoted && split the expression: %+v", x)
	}
	if x.Cond.Value != "a && b" {
		t.Errorf("value = %q", x.Cond.Value)
	}
}

func TestSimpleConditionKeywords(t *testing.T) {
	cases := []struct {
		in       string
		variable string
		op       string
		value    string
	}{
		{"isoper", "$client", "isoper", ""},
		{"$client isoper", "$client", "isoper", ""},
		{"%target isoper", "%target", "isoper", ""},
		{"ischanop", "$client", "ischanop", "$chan"},
		{"isbanned", "$client", "isbanned", "$chan"},
		{"$client hascap away-notify", "$client", "hascap", "away-notify"},
		{"$client in #go", "$client", "in", "#go"},
		{"$client insg opers", "$client", "insg", "opers"},
		{"$client !insg opers", "$client", "!insg", "opers"},
		{"$client.umodes has UMODE_OPER", "$client.umodes", "has", "UMODE_OPER"},
		{"$client hasaccess op", "$client", "hasaccess", "op"},
	}
	for _, c := range cases {
		cond := ParseSimpleCondition(c.in)
		if cond.Variable != c.variable || cond.Operator != c.op || cond.Value != c.value {
			t.Errorf("ParseSimpleCondition(%q) = {%q %q %q}, want {%q %q %q}",
				c.in, cond.Variable, cond.Operator, cond.Value, c.variable, c.op, c.value)
		}
	}
}

func TestSimpleConditionSymbolic(t *testing.T) {
	cases := []struct {
		in       string
		variable string
		op       string
		value    string
	}{
		{"%x == 5", "%x", "==", "5"},
		{"%x != 5", "%x", "!=", "5"},
		{"%x <= 5", "%x", "<=", "5"},
		{"%x >= 5", "%x", ">=", "5"},
		{"%x < 5", "%x", "<", "5"},
		{`%name == "long name"`, "%name", "==", "long name"},
	}
	for _, c := range cases {
		cond := ParseSimpleCondition(c.in)
		if cond.Variable != c.variable || cond.Operator != c.op || cond.Value != c.value {
			t.Errorf("ParseSimpleCondition(%q) = {%q %q %q}, want {%q %q %q}",
				c.in, cond.Variable, cond.Operator, cond.Value, c.variable, c.op, c.value)
		}
	}
}

func TestSimpleConditionBareTruthiness(t *testing.T) {
	cond := ParseSimpleCondition("%flag")
	if cond.Operator != "" || cond.Variable != "%flag" {
		t.Errorf("bare test = %+v", cond)
	}
}

func TestKeywordNeedsWordBoundary(t *testing.T) {
	// "in" embedded in a word must not be treated as the operator.
	cond := ParseSimpleCondition("%string == insane")
	if cond.Operator != "==" {
		t.Errorf("embedded keyword matched: %+v", cond)
	}
}

func TestLegacyCondition(t *testing.T) {
	cond := ParseLegacyCondition("%i < 10")
	if cond.Variable != "%i" || cond.Operator != "<" || cond.Value != "10" {
		t.Errorf("legacy = %+v", cond)
	}
	cond = ParseLegacyCondition("%i != %max")
	if cond.Operator != "!=" || cond.Value != "%max" {
		t.Errorf("legacy != = %+v", cond)
	}
}
