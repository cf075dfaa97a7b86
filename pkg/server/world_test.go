package server

import (
	"io"
	"log"
	"testing"

	"github.com/obsidian-irc/obbyscript/pkg/interp"
)

func testWorld() *World {
	return NewWorld("irc.test.net", log.New(io.Discard, "", 0))
}

func TestCasefold(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Bob", "bob"},
		{"NICK[away]", "nick{away}"},
		{`back\slash`, "back|slash"},
		{"#Go", "#go"},
		{"plain", "plain"},
	}
	for _, c := range cases {
		if got := casefold(c.in); got != c.want {
			t.Errorf("casefold(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMatchMask(t *testing.T) {
	cases := []struct {
		mask, s string
		want    bool
	}{
		{"*!*@*.example.org", "bob!rjh@host.example.org", true},
		{"*!*@*.example.org", "bob!rjh@example.org", false},
		{"bob!*@*", "bob!anything@anywhere", true},
		{"BOB!*@*", "bob!x@y", true},
		{"b?b!*@*", "bob!x@y", true},
		{"b?b!*@*", "bb!x@y", false},
		{"*", "anything at all", true},
		{"exact", "exact", true},
		{"exact", "exactly", false},
	}
	for _, c := range cases {
		if got := matchMask(c.mask, c.s); got != c.want {
			t.Errorf("matchMask(%q, %q) = %v, want %v", c.mask, c.s, got, c.want)
		}
	}
}

func TestFindClientCasefolded(t *testing.T) {
	w := testWorld()
	u := &User{nick: "Bob[away]", channels: make(map[string]*Chan)}
	w.users[casefold(u.nick)] = u

	if _, ok := w.FindClient("bob{AWAY}"); !ok {
		t.Error("RFC1459-equivalent nick not found")
	}
	if _, ok := w.FindClient("alice"); ok {
		t.Error("unknown nick found")
	}
}

func TestFindServerSelf(t *testing.T) {
	w := testWorld()
	s, ok := w.FindServer("IRC.Test.Net")
	if !ok {
		t.Fatal("own server name not resolved")
	}
	if !s.IsServer() || s.Name() != "irc.test.net" {
		t.Errorf("self peer = %q server=%v", s.Name(), s.IsServer())
	}
}

func TestIsBanned(t *testing.T) {
	w := testWorld()
	u := &User{nick: "bob", ident: "rjh", host: "host.example.org", channels: make(map[string]*Chan)}
	ch := newChan("#go")
	ch.bans = []string{"*!*@*.example.org"}
	w.users["bob"] = u
	w.channels["#go"] = ch

	if !w.IsBanned(u, ch) {
		t.Error("matching ban not seen")
	}
	ch.bans = []string{"alice!*@*"}
	if w.IsBanned(u, ch) {
		t.Error("non-matching ban hit")
	}
}

func TestHasAccessRanks(t *testing.T) {
	w := testWorld()
	u := &User{nick: "bob", channels: make(map[string]*Chan)}
	ch := newChan("#go")
	ch.members[u] = &member{modes: "h"}
	w.users["bob"] = u
	w.channels["#go"] = ch

	// A halfop satisfies halfop and voice checks, but not op.
	if w.HasAccess(u, ch, "op") {
		t.Error("halfop passed op check")
	}
	if !w.HasAccess(u, ch, "halfop") {
		t.Error("halfop failed halfop check")
	}
	if !w.HasAccess(u, ch, "voice") {
		t.Error("halfop failed voice check")
	}

	ch.members[u].modes = "q"
	if !w.HasAccess(u, ch, "op") {
		t.Error("owner failed op check")
	}
	if w.HasAccess(u, ch, "bogus") {
		t.Error("unknown rank accepted")
	}
}

func TestSecurityGroups(t *testing.T) {
	w := testWorld()
	anon := &User{nick: "anon", channels: make(map[string]*Chan)}
	ident := &User{nick: "ident", account: "ident", channels: make(map[string]*Chan)}
	tlsOper := &User{nick: "op", oper: true, secure: true, channels: make(map[string]*Chan)}
	for _, u := range []*User{anon, ident, tlsOper} {
		w.users[casefold(u.nick)] = u
	}

	if w.InSecurityGroup(anon, "known-users") {
		t.Error("anon in known-users")
	}
	if !w.InSecurityGroup(ident, "known-users") {
		t.Error("logged-in user not in known-users")
	}
	if !w.InSecurityGroup(tlsOper, "tls-users") {
		t.Error("tls user not in tls-users")
	}
	if w.InSecurityGroup(ident, "tls-users") {
		t.Error("plaintext user in tls-users")
	}
	if !w.InSecurityGroup(tlsOper, "opers") {
		t.Error("oper not in opers")
	}
	if w.InSecurityGroup(ident, "opers") {
		t.Error("non-oper in opers")
	}
}

func TestRegisterCommandOverride(t *testing.T) {
	w := testWorld()
	calls := 0
	w.RegisterCommand("greet", false, func(interp.Client, []string) { calls++ })

	// A second non-override registration is refused.
	w.RegisterCommand("greet", false, func(interp.Client, []string) { calls += 100 })
	b, ok := w.Command("GREET")
	if !ok {
		t.Fatal("command missing")
	}
	b.Handler(nil, nil)
	if calls != 1 {
		t.Errorf("calls = %d, first registration should have survived", calls)
	}

	// An override replaces it.
	w.RegisterCommand("greet", true, func(interp.Client, []string) { calls += 10 })
	b, _ = w.Command("greet")
	b.Handler(nil, nil)
	if calls != 11 {
		t.Errorf("calls = %d, override should have replaced the handler", calls)
	}
}

func TestUserUmodeFlags(t *testing.T) {
	u := &User{nick: "bob", umodes: "ixH"}
	if !u.IsInvisible() || !u.IsHidden() || !u.IsHideOper() {
		t.Errorf("umode flags not derived from %q", u.umodes)
	}
	if u.IsRegNick() {
		t.Error("r flag reported without the mode")
	}
}

func TestChannelNamesSorted(t *testing.T) {
	u := &User{nick: "bob", channels: map[string]*Chan{
		"#zeta":  {name: "#zeta"},
		"#alpha": {name: "#alpha"},
	}}
	names := u.ChannelNames()
	if len(names) != 2 || names[0] != "#alpha" || names[1] != "#zeta" {
		t.Errorf("names = %v", names)
	}
}

func TestISupportSorted(t *testing.T) {
	w := testWorld()
	w.ISupportSet("NETWORK", "ObsidianNet")
	w.ISupportSet("BOT", "B")
	w.ISupportSet("EXCEPTS", "")

	got := w.ISupport()
	want := []string{"BOT=B", "EXCEPTS", "NETWORK=ObsidianNet"}
	if len(got) != len(want) {
		t.Fatalf("isupport = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("isupport[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
