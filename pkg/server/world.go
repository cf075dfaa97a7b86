package server

import (
	"log"
	"sort"
	"strings"

	"github.com/obsidian-irc/obbyscript/pkg/interp"
)

// casefold lowercases a nick or channel name for map keys. ASCII only;
// the RFC1459 bracket equivalences are folded too.
func casefold(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c == '[':
			c = '{'
		case c == ']':
			c = '}'
		case c == '\\':
			c = '|'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// User is one connected client. It satisfies interp.Client so scripts
// can inspect it directly.
type User struct {
	nick    string
	ident   string
	host    string
	ip      string
	gecos   string
	account string
	server  string
	umodes  string

	channels map[string]*Chan // casefolded name -> channel

	oper        bool
	secure      bool
	uline       bool
	remote      bool // attached via server link, not a local socket
	quarantined bool
	shunned     bool
	virus       bool
	caps        map[string]bool

	d *Descriptor // nil for remote or synthetic users
}

func (u *User) Name() string         { return u.nick }
func (u *User) Ident() string        { return u.ident }
func (u *User) Hostname() string     { return u.host }
func (u *User) IP() string           { return u.ip }
func (u *User) Gecos() string        { return u.gecos }
func (u *User) Account() string      { return u.account }
func (u *User) ServerName() string   { return u.server }
func (u *User) Umodes() string       { return u.umodes }
func (u *User) IsOper() bool         { return u.oper }
func (u *User) IsInvisible() bool    { return strings.ContainsRune(u.umodes, 'i') }
func (u *User) IsRegNick() bool      { return strings.ContainsRune(u.umodes, 'r') }
func (u *User) IsHidden() bool       { return strings.ContainsRune(u.umodes, 'x') }
func (u *User) IsHideOper() bool     { return strings.ContainsRune(u.umodes, 'H') }
func (u *User) IsSecure() bool       { return u.secure }
func (u *User) IsULine() bool        { return u.uline }
func (u *User) IsLoggedIn() bool     { return u.account != "" }
func (u *User) IsServer() bool       { return false }
func (u *User) IsQuarantined() bool  { return u.quarantined }
func (u *User) IsShunned() bool      { return u.shunned }
func (u *User) IsVirus() bool        { return u.virus }
func (u *User) HasCap(n string) bool { return u.caps[n] }

// ChannelNames returns the user's channel memberships, sorted for
// stable script iteration.
func (u *User) ChannelNames() []string {
	names := make([]string, 0, len(u.channels))
	for _, ch := range u.channels {
		names = append(names, ch.name)
	}
	sort.Strings(names)
	return names
}

// Peer is a linked server. It satisfies interp.Client because scripts
// treat servers as degenerate clients (the CONNECT/QUIT events carry
// them).
type Peer struct {
	name string
}

func (p *Peer) Name() string           { return p.name }
func (p *Peer) Ident() string          { return "" }
func (p *Peer) Hostname() string       { return p.name }
func (p *Peer) IP() string             { return "" }
func (p *Peer) Gecos() string          { return "" }
func (p *Peer) Account() string        { return "" }
func (p *Peer) ServerName() string     { return p.name }
func (p *Peer) Umodes() string         { return "" }
func (p *Peer) ChannelNames() []string { return nil }
func (p *Peer) IsOper() bool           { return false }
func (p *Peer) IsInvisible() bool      { return false }
func (p *Peer) IsRegNick() bool        { return false }
func (p *Peer) IsHidden() bool         { return false }
func (p *Peer) IsHideOper() bool       { return false }
func (p *Peer) IsSecure() bool         { return true }
func (p *Peer) IsULine() bool          { return false }
func (p *Peer) IsLoggedIn() bool       { return false }
func (p *Peer) IsServer() bool         { return true }
func (p *Peer) IsQuarantined() bool    { return false }
func (p *Peer) IsShunned() bool        { return false }
func (p *Peer) IsVirus() bool          { return false }
func (p *Peer) HasCap(string) bool     { return false }

// member holds a user's per-channel state.
type member struct {
	// prefix mode letters held in this channel, e.g. "ov"
	modes string
}

// Chan is one live channel. It satisfies interp.Channel.
type Chan struct {
	name    string
	topic   string
	members map[*User]*member
	invites map[string]bool // casefolded nicks
	bans    []string        // nick!user@host masks
	modes   map[byte]string // channel mode letter -> param ("" for flags)
}

func (c *Chan) Name() string   { return c.name }
func (c *Chan) Topic() string  { return c.topic }
func (c *Chan) UserCount() int { return len(c.members) }

func newChan(name string) *Chan {
	return &Chan{
		name:    name,
		members: make(map[*User]*member),
		invites: make(map[string]bool),
		modes:   make(map[byte]string),
	}
}

// CommandBinding is one entry in the dispatch table.
type CommandBinding struct {
	Handler  interp.CommandHandler
	Scripted bool // registered by a script, not the core
}

// World is the in-memory IRC state: users, channels, linked servers,
// the command dispatch table, and the ISUPPORT/CAP registries. All
// access happens on the event loop goroutine.
type World struct {
	name     string
	users    map[string]*User // casefolded nick
	channels map[string]*Chan // casefolded name
	peers    map[string]*Peer // casefolded server name
	commands map[string]*CommandBinding
	isupport map[string]string
	caps     map[string]bool

	log *log.Logger
	srv *Server // back-reference for Dispatch and notices; nil in tests
}

// NewWorld creates an empty world for the named server.
func NewWorld(name string, logger *log.Logger) *World {
	if logger == nil {
		logger = log.Default()
	}
	return &World{
		name:     name,
		users:    make(map[string]*User),
		channels: make(map[string]*Chan),
		peers:    make(map[string]*Peer),
		commands: make(map[string]*CommandBinding),
		isupport: make(map[string]string),
		caps:     make(map[string]bool),
		log:      logger,
	}
}

func (w *World) Name() string { return w.name }

func (w *World) FindClient(name string) (interp.Client, bool) {
	u, ok := w.users[casefold(name)]
	if !ok {
		return nil, false
	}
	return u, true
}

func (w *World) FindServer(name string) (interp.Client, bool) {
	if casefold(name) == casefold(w.name) {
		return &Peer{name: w.name}, true
	}
	p, ok := w.peers[casefold(name)]
	if !ok {
		return nil, false
	}
	return p, true
}

func (w *World) FindChannel(name string) (interp.Channel, bool) {
	c, ok := w.channels[casefold(name)]
	if !ok {
		return nil, false
	}
	return c, true
}

// user resolves an interp.Client back to the concrete *User.
func (w *World) user(c interp.Client) *User {
	if u, ok := c.(*User); ok {
		return u
	}
	if c != nil {
		if u, ok := w.users[casefold(c.Name())]; ok {
			return u
		}
	}
	return nil
}

func (w *World) channel(ch interp.Channel) *Chan {
	if cc, ok := ch.(*Chan); ok {
		return cc
	}
	if ch != nil {
		if cc, ok := w.channels[casefold(ch.Name())]; ok {
			return cc
		}
	}
	return nil
}

func (w *World) IsMember(c interp.Client, ch interp.Channel) bool {
	u, cc := w.user(c), w.channel(ch)
	if u == nil || cc == nil {
		return false
	}
	_, ok := cc.members[u]
	return ok
}

func (w *World) HasChannelMode(c interp.Client, ch interp.Channel, mode string) bool {
	u, cc := w.user(c), w.channel(ch)
	if u == nil || cc == nil {
		return false
	}
	m, ok := cc.members[u]
	return ok && strings.Contains(m.modes, mode)
}

func (w *World) IsInvited(c interp.Client, ch interp.Channel) bool {
	u, cc := w.user(c), w.channel(ch)
	if u == nil || cc == nil {
		return false
	}
	return cc.invites[casefold(u.nick)]
}

func (w *World) IsBanned(c interp.Client, ch interp.Channel) bool {
	u, cc := w.user(c), w.channel(ch)
	if u == nil || cc == nil {
		return false
	}
	for _, mask := range cc.bans {
		if matchMask(mask, u.nick+"!"+u.ident+"@"+u.host) {
			return true
		}
	}
	return false
}

// HasAccess reports whether a user holds at least the named rank in a
// channel: "op" covers q/a/o, "halfop" adds h, "voice" adds v.
func (w *World) HasAccess(c interp.Client, ch interp.Channel, what string) bool {
	u, cc := w.user(c), w.channel(ch)
	if u == nil || cc == nil {
		return false
	}
	m, ok := cc.members[u]
	if !ok {
		return false
	}
	var covering string
	switch strings.ToLower(what) {
	case "owner":
		covering = "q"
	case "admin":
		covering = "qa"
	case "op":
		covering = "qao"
	case "halfop":
		covering = "qaoh"
	case "voice":
		covering = "qaohv"
	default:
		return false
	}
	return strings.ContainsAny(m.modes, covering)
}

// InSecurityGroup checks membership in the built-in groups.
func (w *World) InSecurityGroup(c interp.Client, group string) bool {
	u := w.user(c)
	if u == nil {
		return false
	}
	switch strings.ToLower(group) {
	case "known-users":
		return u.account != "" || u.oper
	case "tls-users", "tls-and-known-users":
		if !u.secure {
			return false
		}
		return group == "tls-users" || u.account != ""
	case "opers", "ircops":
		return u.oper
	default:
		return false
	}
}

func (w *World) SendNotice(target, text string) {
	if w.srv != nil {
		w.srv.sendNotice(target, text)
		return
	}
	w.log.Printf("[notice] -> %s: %s", target, text)
}

// Dispatch runs a command as if issued by the server itself.
func (w *World) Dispatch(command string, args []string) {
	if w.srv != nil {
		w.srv.dispatchServer(command, args)
		return
	}
	w.log.Printf("[dispatch] %s %v", command, args)
}

func (w *World) ISupportSet(token, value string) {
	w.isupport[token] = value
}

// ISupport returns the registered tokens sorted for the 005 burst.
func (w *World) ISupport() []string {
	out := make([]string, 0, len(w.isupport))
	for k, v := range w.isupport {
		if v == "" {
			out = append(out, k)
		} else {
			out = append(out, k+"="+v)
		}
	}
	sort.Strings(out)
	return out
}

func (w *World) CapAdd(name string) {
	w.caps[name] = true
}

// Caps returns the advertised capability names, sorted.
func (w *World) Caps() []string {
	out := make([]string, 0, len(w.caps))
	for k := range w.caps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RegisterCommand installs a handler. Script registrations may override
// an existing command only when override is set; a non-override
// registration against an existing name is refused with a log line.
func (w *World) RegisterCommand(name string, override bool, h interp.CommandHandler) {
	key := strings.ToUpper(name)
	if _, ok := w.commands[key]; ok && !override {
		w.log.Printf("[world] command %s already exists, registration refused (use override)", key)
		return
	}
	w.commands[key] = &CommandBinding{Handler: h, Scripted: true}
}

// Command looks up a binding by name.
func (w *World) Command(name string) (*CommandBinding, bool) {
	b, ok := w.commands[strings.ToUpper(name)]
	return b, ok
}

// matchMask matches an IRC wildcard mask (* and ?) against a
// nick!user@host string, case-insensitively.
func matchMask(mask, s string) bool {
	return matchFold(casefold(mask), casefold(s))
}

func matchFold(p, s string) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for p = p[1:]; ; s = s[1:] {
				if matchFold(p, s) {
					return true
				}
				if len(s) == 0 {
					return false
				}
			}
		case '?':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || p[0] != s[0] {
				return false
			}
		}
		p, s = p[1:], s[1:]
	}
	return len(s) == 0
}
