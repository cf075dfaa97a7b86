// Package interp is the ObbyScript runtime: variable scopes, the
// substitution engine, the tree-walking action executor, user and
// builtin functions, and the deferred queue for destructive commands.
// It talks to the embedding server only through the World interface.
package interp

// Client is a read-only view of a connected user or server. The engine
// never owns a Client; bindings held in script variables are weak and
// must be re-resolved by name whenever execution is deferred.
type Client interface {
	Name() string
	Ident() string
	Hostname() string
	IP() string
	Gecos() string
	Account() string
	ServerName() string
	Umodes() string
	ChannelNames() []string

	IsOper() bool
	IsInvisible() bool
	IsRegNick() bool
	IsHidden() bool
	IsHideOper() bool
	IsSecure() bool
	IsULine() bool
	IsLoggedIn() bool
	IsServer() bool
	IsQuarantined() bool
	IsShunned() bool
	IsVirus() bool
	HasCap(name string) bool
}

// Channel is a read-only view of a live channel.
type Channel interface {
	Name() string
	Topic() string
	UserCount() int
}

// CommandHandler runs a script-registered command. params follows the
// IRC convention: params[0] is the command name, params[1:] the
// arguments.
type CommandHandler func(source Client, params []string)

// World is everything the engine needs from the embedding server:
// object lookup, membership and permission queries, the command
// dispatch table, and the ISUPPORT/CAP registries.
type World interface {
	FindClient(name string) (Client, bool)
	FindServer(name string) (Client, bool)
	FindChannel(name string) (Channel, bool)
	Name() string // this server's name

	// Membership and permission queries against a live channel.
	IsMember(c Client, ch Channel) bool
	HasChannelMode(c Client, ch Channel, mode string) bool // q a o h v
	IsInvited(c Client, ch Channel) bool
	IsBanned(c Client, ch Channel) bool
	HasAccess(c Client, ch Channel, what string) bool
	InSecurityGroup(c Client, group string) bool

	// Dispatch hands a fully substituted command line to the server's
	// command table as if issued by the server itself.
	Dispatch(command string, args []string)
	SendNotice(target, text string)

	ISupportSet(token, value string)
	CapAdd(name string)
	RegisterCommand(name string, override bool, h CommandHandler)
}

// Observer receives engine activity for metrics. All methods may be
// called from the event loop only.
type Observer interface {
	EventDispatched()
	ActionExecuted()
	SyntaxError()
	DeferredQueued()
	DeferredFlushed()
	DeferredDropped()
}

// VarStore persists global string variables across restarts.
type VarStore interface {
	LoadGlobals() (map[string]string, error)
	SaveGlobal(name, value string) error
	DeleteGlobal(name string) error
}
