package script

import (
	"strings"
	"testing"
)

func parseOne(t *testing.T, src string) *File {
	t.Helper()
	f, err := ParseFile("test.obby", []byte(src))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return f
}

func TestParseBasicRule(t *testing.T) {
	f := parseOne(t, `
on PRIVMSG:#go:{
	PRIVMSG #go welcome
}
`)
	if len(f.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(f.Rules))
	}
	r := f.Rules[0]
	if r.Event != EventPrivmsg || r.Target != "#go" {
		t.Errorf("rule = %v/%q, want PRIVMSG/#go", r.Event, r.Target)
	}
	if len(r.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(r.Actions))
	}
	a := r.Actions[0]
	if a.Type != ActionCommand || a.Name != "PRIVMSG" {
		t.Errorf("action = %v/%q, want command PRIVMSG", a.Type, a.Name)
	}
	if len(a.Args) != 2 || a.Args[0] != "#go" || a.Args[1] != "welcome" {
		t.Errorf("args = %v", a.Args)
	}
}

func TestParseRuleHeaderTrailingText(t *testing.T) {
	f := parseOne(t, `
on PRIVMSG:#go:{ handles chatter
	PRIVMSG #go welcome
}
`)
	if len(f.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(f.Rules))
	}
	r := f.Rules[0]
	if r.Event != EventPrivmsg || r.Target != "#go" {
		t.Errorf("rule = %v/%q, want PRIVMSG/#go", r.Event, r.Target)
	}
	if len(r.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(r.Actions))
	}
}

func TestParseNewCommand(t *testing.T) {
	f := parseOne(t, `
new COMMAND:greet:{
	PRIVMSG $client.name hello
}
`)
	if f.Rules[0].Event != EventCommandNew {
		t.Errorf("event = %v, want COMMAND(new)", f.Rules[0].Event)
	}
	if f.Rules[0].Target != "greet" {
		t.Errorf("target = %q, want greet", f.Rules[0].Target)
	}
}

func TestParseCommandOverride(t *testing.T) {
	f := parseOne(t, `
on COMMAND:whois:{
	sendnotice $client whois hooked
}
`)
	if f.Rules[0].Event != EventCommandOverride {
		t.Errorf("event = %v, want COMMAND", f.Rules[0].Event)
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	if _, err := ParseFile("empty.obby", []byte("// nothing here\n")); err == nil {
		t.Error("expected error for file with no rules")
	}
}

func TestParseRejectsOversizeFile(t *testing.T) {
	big := strings.Repeat("x", MaxFileSize+1)
	if _, err := ParseFile("big.obby", []byte(big)); err == nil {
		t.Error("expected error for oversize file")
	}
}

func TestParseFunctionDef(t *testing.T) {
	f := parseOne(t, `
function $double(%n) {
	return %n * 2
}

on START:*:{
	var %x = $double(21)
}
`)
	if len(f.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(f.Functions))
	}
	fn := f.Functions[0]
	if fn.Name != "double" {
		t.Errorf("name = %q, want double", fn.Name)
	}
	if len(fn.Params) != 1 || fn.Params[0] != "n" {
		t.Errorf("params = %v, want [n]", fn.Params)
	}
	if len(fn.Body) != 1 || fn.Body[0].Type != ActionReturn {
		t.Fatalf("body = %+v, want single return", fn.Body)
	}
	if fn.Body[0].Args[0] != "%n * 2" {
		t.Errorf("return value = %q", fn.Body[0].Args[0])
	}
}

func TestParseFunctionOnlyFileRejected(t *testing.T) {
	_, err := ParseFile("fn.obby", []byte("function $f() {\n\treturn 1\n}\n"))
	if err == nil {
		t.Error("expected error: a file must contain at least one rule")
	}
}

func TestParseIfElseChain(t *testing.T) {
	f := parseOne(t, `
on PRIVMSG:*:{
	if (%x == 1) {
		PRIVMSG #c one
	} else if (%x == 2) {
		PRIVMSG #c two
	} else {
		PRIVMSG #c other
	}
}
`)
	acts := f.Rules[0].Actions
	if len(acts) != 1 || acts[0].Type != ActionIf {
		t.Fatalf("expected single if, got %+v", acts)
	}
	outer := acts[0]
	if len(outer.Nested) != 1 || outer.Nested[0].Args[1] != "one" {
		t.Errorf("then branch = %+v", outer.Nested)
	}
	if len(outer.Else) != 1 || outer.Else[0].Type != ActionIf {
		t.Fatalf("else branch should hold the chained if, got %+v", outer.Else)
	}
	chained := outer.Else[0]
	if len(chained.Nested) != 1 || chained.Nested[0].Args[1] != "two" {
		t.Errorf("chained then = %+v", chained.Nested)
	}
	if len(chained.Else) != 1 || chained.Else[0].Args[1] != "other" {
		t.Errorf("chained else = %+v", chained.Else)
	}
}

func TestParseSingleLineIf(t *testing.T) {
	f := parseOne(t, `
on PRIVMSG:*:{
	if (%x == 1) PRIVMSG #c hit
	PRIVMSG #c always
}
`)
	acts := f.Rules[0].Actions
	if len(acts) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(acts))
	}
	if acts[0].Type != ActionIf || len(acts[0].Nested) != 1 {
		t.Errorf("single-line if = %+v", acts[0])
	}
	if acts[1].Type != ActionCommand {
		t.Errorf("trailing command misplaced: %+v", acts[1])
	}
}

func TestParseWhile(t *testing.T) {
	f := parseOne(t, `
on START:*:{
	while (%i < 3) {
		%i++
	}
}
`)
	a := f.Rules[0].Actions[0]
	if a.Type != ActionWhile || a.Cond == nil {
		t.Fatalf("while = %+v", a)
	}
	if len(a.Nested) != 1 || a.Nested[0].Type != ActionArith {
		t.Errorf("loop body = %+v", a.Nested)
	}
}

func TestParseForRange(t *testing.T) {
	f := parseOne(t, `
on START:*:{
	for (%i in 1..5) {
		%sum += %i
	}
}
`)
	a := f.Rules[0].Actions[0]
	if a.Type != ActionFor {
		t.Fatalf("type = %v", a.Type)
	}
	if a.LoopVar != "i" || a.LoopStart != "1" || a.LoopEnd != "5" || a.LoopStep != "1" {
		t.Errorf("range header = %q %q..%q step %q", a.LoopVar, a.LoopStart, a.LoopEnd, a.LoopStep)
	}
}

func TestParseForCStyle(t *testing.T) {
	f := parseOne(t, `
on START:*:{
	for (%i = 0; %i < 3; %i++) {
		PRIVMSG #c tick
	}
}
`)
	a := f.Rules[0].Actions[0]
	if a.Init == nil || a.Init.Type != ActionVar || a.Init.VarName != "i" {
		t.Errorf("init = %+v", a.Init)
	}
	if a.Legacy == nil || a.Legacy.Operator != "<" || a.Legacy.Value != "3" {
		t.Errorf("legacy cond = %+v", a.Legacy)
	}
	if a.Increment != "%i++" {
		t.Errorf("increment = %q", a.Increment)
	}
}

func TestParseVarDecls(t *testing.T) {
	f := parseOne(t, `
on START:*:{
	var %greeting = "hello there"
	const var %limit = 5
	var %arr = ["a", "b"]
	%greeting = "bye"
	%arr[2] = "c"
}
`)
	acts := f.Rules[0].Actions
	if len(acts) != 5 {
		t.Fatalf("expected 5 actions, got %d", len(acts))
	}
	if acts[0].VarName != "greeting" || acts[0].VarValue != "hello there" || acts[0].Const {
		t.Errorf("var decl = %+v", acts[0])
	}
	if acts[1].VarName != "limit" || acts[1].VarValue != "5" || !acts[1].Const {
		t.Errorf("const decl = %+v", acts[1])
	}
	if acts[2].VarValue != `["a", "b"]` {
		t.Errorf("array literal kept raw, got %q", acts[2].VarValue)
	}
	if acts[3].VarName != "greeting" || acts[3].VarValue != "bye" {
		t.Errorf("bare assign = %+v", acts[3])
	}
	if acts[4].VarName != "arr" || acts[4].VarIndex != "2" || acts[4].VarValue != "c" {
		t.Errorf("indexed assign = %+v", acts[4])
	}
}

func TestParseBracesInsideStrings(t *testing.T) {
	f := parseOne(t, `
on PRIVMSG:#go:{
	PRIVMSG #go "a { brace } inside"
	sendnotice #go done
}
`)
	if len(f.Rules) != 1 {
		t.Fatalf("quoted braces broke block capture: %d rules", len(f.Rules))
	}
	if got := len(f.Rules[0].Actions); got != 2 {
		t.Errorf("expected 2 actions, got %d", got)
	}
}

func TestParseMalformedRuleDropped(t *testing.T) {
	f := parseOne(t, `
on NOSUCHEVENT:#go:{
	PRIVMSG #go never
}

on PRIVMSG:#go:{
	PRIVMSG #go survives
}
`)
	if len(f.Rules) != 1 {
		t.Fatalf("expected the good rule to survive, got %d rules", len(f.Rules))
	}
	if f.Rules[0].Actions[0].Args[1] != "survives" {
		t.Errorf("wrong rule survived: %+v", f.Rules[0])
	}
}

func TestParseSendNoticeAndCap(t *testing.T) {
	f := parseOne(t, `
on START:*:{
	cap obby/test
	isupport OBBY=1
	sendnotice #go "hello world" trailing
}
`)
	acts := f.Rules[0].Actions
	if acts[0].Type != ActionCap || acts[0].Args[0] != "obby/test" {
		t.Errorf("cap = %+v", acts[0])
	}
	if acts[1].Type != ActionISupport || acts[1].Args[0] != "OBBY=1" {
		t.Errorf("isupport = %+v", acts[1])
	}
	if acts[2].Type != ActionSendNotice {
		t.Fatalf("sendnotice = %+v", acts[2])
	}
	want := []string{"#go", "hello world", "trailing"}
	if len(acts[2].Args) != 3 || acts[2].Args[1] != want[1] {
		t.Errorf("sendnotice args = %v, want %v", acts[2].Args, want)
	}
}

func TestTokenize(t *testing.T) {
	toks := Tokenize(`#chan "hello world" [a, b] plain`, 20)
	want := []string{"#chan", "hello world", "[a, b]", "plain"}
	if len(toks) != len(want) {
		t.Fatalf("tokens = %v, want %v", toks, want)
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestIsArithmetic(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"%i++", true},
		{"%i--", true},
		{"%i += 2", true},
		{"%i = %a + %b", true},
		{"%greeting = hello", false},
		{"PRIVMSG #c hi", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsArithmetic(c.line); got != c.want {
			t.Errorf("IsArithmetic(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestIsFunctionCall(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"$double(21)", true},
		{"find_client(bob)", true},
		{"unknown(bob)", false},
		{"var %c = find_client(bob)", true},
		{"var %x = 5", false},
		{"PRIVMSG #c hi", false},
	}
	for _, c := range cases {
		if got := IsFunctionCall(c.line); got != c.want {
			t.Errorf("IsFunctionCall(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestSplitCall(t *testing.T) {
	name, args := SplitCall("$greet(bob, #go)")
	if name != "greet" {
		t.Errorf("name = %q", name)
	}
	if len(args) != 2 || args[0] != "bob" || args[1] != "#go" {
		t.Errorf("args = %v", args)
	}

	name, args = SplitCall("$noargs()")
	if name != "noargs" || args != nil {
		t.Errorf("empty call = %q %v", name, args)
	}
}
