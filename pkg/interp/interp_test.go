package interp

import (
	"io"
	"log"
	"testing"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// mockClient satisfies Client with plain fields.
type mockClient struct {
	name, ident, host, ip, gecos, account, server, umodes string
	channels                                              []string
	oper, secure, loggedIn, isServer, shunned             bool
	caps                                                  map[string]bool
}

func (c *mockClient) Name() string           { return c.name }
func (c *mockClient) Ident() string          { return c.ident }
func (c *mockClient) Hostname() string       { return c.host }
func (c *mockClient) IP() string             { return c.ip }
func (c *mockClient) Gecos() string          { return c.gecos }
func (c *mockClient) Account() string        { return c.account }
func (c *mockClient) ServerName() string     { return c.server }
func (c *mockClient) Umodes() string         { return c.umodes }
func (c *mockClient) ChannelNames() []string { return c.channels }
func (c *mockClient) IsOper() bool           { return c.oper }
func (c *mockClient) IsInvisible() bool      { return false }
func (c *mockClient) IsRegNick() bool        { return false }
func (c *mockClient) IsHidden() bool         { return false }
func (c *mockClient) IsHideOper() bool       { return false }
func (c *mockClient) IsSecure() bool         { return c.secure }
func (c *mockClient) IsULine() bool          { return false }
func (c *mockClient) IsLoggedIn() bool       { return c.loggedIn }
func (c *mockClient) IsServer() bool         { return c.isServer }
func (c *mockClient) IsQuarantined() bool    { return false }
func (c *mockClient) IsShunned() bool        { return c.shunned }
func (c *mockClient) IsVirus() bool          { return false }
func (c *mockClient) HasCap(name string) bool {
	return c.caps[name]
}

type mockChannel struct {
	name, topic string
	users       int
}

func (ch *mockChannel) Name() string   { return ch.name }
func (ch *mockChannel) Topic() string  { return ch.topic }
func (ch *mockChannel) UserCount() int { return ch.users }

type dispatched struct {
	command string
	args    []string
}

// mockWorld records every side effect the engine asks for. Membership
// and mode queries read from string-keyed maps so tests can stage state
// without building a real channel.
type mockWorld struct {
	name     string
	clients  map[string]*mockClient
	channels map[string]*mockChannel

	members map[string]bool // "nick #chan"
	modes   map[string]string
	invited map[string]bool
	banned  map[string]bool
	access  map[string]string
	groups  map[string]string

	dispatches []dispatched
	onDispatch func()
	notices    []string
	isupport   map[string]string
	capsAdded  []string
	commands   map[string]CommandHandler
}

func newMockWorld() *mockWorld {
	return &mockWorld{
		name:     "irc.test.net",
		clients:  make(map[string]*mockClient),
		channels: make(map[string]*mockChannel),
		members:  make(map[string]bool),
		modes:    make(map[string]string),
		invited:  make(map[string]bool),
		banned:   make(map[string]bool),
		access:   make(map[string]string),
		groups:   make(map[string]string),
		isupport: make(map[string]string),
		commands: make(map[string]CommandHandler),
	}
}

func (w *mockWorld) FindClient(name string) (Client, bool) {
	c, ok := w.clients[name]
	return c, ok
}

func (w *mockWorld) FindServer(name string) (Client, bool) {
	c, ok := w.clients[name]
	if !ok || !c.isServer {
		return nil, false
	}
	return c, true
}

func (w *mockWorld) FindChannel(name string) (Channel, bool) {
	ch, ok := w.channels[name]
	return ch, ok
}

func (w *mockWorld) Name() string { return w.name }

func (w *mockWorld) IsMember(c Client, ch Channel) bool {
	return w.members[c.Name()+" "+ch.Name()]
}

func (w *mockWorld) HasChannelMode(c Client, ch Channel, mode string) bool {
	for _, m := range w.modes[c.Name()+" "+ch.Name()] {
		if string(m) == mode {
			return true
		}
	}
	return false
}

func (w *mockWorld) IsInvited(c Client, ch Channel) bool {
	return w.invited[c.Name()+" "+ch.Name()]
}

func (w *mockWorld) IsBanned(c Client, ch Channel) bool {
	return w.banned[c.Name()+" "+ch.Name()]
}

func (w *mockWorld) HasAccess(c Client, ch Channel, what string) bool {
	return w.access[c.Name()+" "+ch.Name()] == what
}

func (w *mockWorld) InSecurityGroup(c Client, group string) bool {
	return w.groups[c.Name()] == group
}

func (w *mockWorld) Dispatch(command string, args []string) {
	w.dispatches = append(w.dispatches, dispatched{command: command, args: args})
	if w.onDispatch != nil {
		w.onDispatch()
	}
}

func (w *mockWorld) SendNotice(target, text string) {
	w.notices = append(w.notices, target+" "+text)
}

func (w *mockWorld) ISupportSet(token, value string) {
	w.isupport[token] = value
}

func (w *mockWorld) CapAdd(name string) {
	w.capsAdded = append(w.capsAdded, name)
}

func (w *mockWorld) RegisterCommand(name string, override bool, h CommandHandler) {
	w.commands[name] = h
}

// mockStore is an in-memory VarStore.
type mockStore struct {
	vals  map[string]string
	saves int
}

func newMockStore() *mockStore {
	return &mockStore{vals: make(map[string]string)}
}

func (s *mockStore) LoadGlobals() (map[string]string, error) {
	out := make(map[string]string, len(s.vals))
	for k, v := range s.vals {
		out[k] = v
	}
	return out, nil
}

func (s *mockStore) SaveGlobal(name, value string) error {
	s.vals[name] = value
	s.saves++
	return nil
}

func (s *mockStore) DeleteGlobal(name string) error {
	delete(s.vals, name)
	return nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(w *mockWorld) *Engine {
	e := New(w, testLogger())
	e.Init()
	return e
}

func loadScript(t *testing.T, e *Engine, src string) {
	t.Helper()
	f, err := script.ParseFile("test.obby", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	e.LoadParsed(f)
}
