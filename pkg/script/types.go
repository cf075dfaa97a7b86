// Package script holds the ObbyScript source representation: rules bound
// to server events, the action tree produced by the block parser, boolean
// expression trees, and user-defined functions.
package script

import "strings"

// EventType identifies the server hook a rule is bound to.
type EventType int

const (
	EventInvalid EventType = iota
	EventStart
	EventConnect
	EventQuit
	EventCanJoin
	EventJoin
	EventPart
	EventKick
	EventNick
	EventPrivmsg
	EventNotice
	EventTopic
	EventMode
	EventInvite
	EventKnock
	EventAway
	EventOper
	EventKill
	EventUmodeChange
	EventChanmode
	EventChannelCreate
	EventChannelDestroy
	EventWhois
	EventRehash
	EventAccountLogin
	EventPreCommand
	EventPostCommand
	EventTklAdd
	EventTklDel
	EventSpamfilter
	EventCommandOverride // on COMMAND:name - hooks an existing command
	EventCommandNew      // new COMMAND:name - registers a fresh command
	EventShutdown
)

var eventNames = map[string]EventType{
	"START":           EventStart,
	"CONNECT":         EventConnect,
	"QUIT":            EventQuit,
	"CAN_JOIN":        EventCanJoin,
	"JOIN":            EventJoin,
	"PART":            EventPart,
	"KICK":            EventKick,
	"NICK":            EventNick,
	"PRIVMSG":         EventPrivmsg,
	"NOTICE":          EventNotice,
	"TOPIC":           EventTopic,
	"MODE":            EventMode,
	"INVITE":          EventInvite,
	"KNOCK":           EventKnock,
	"AWAY":            EventAway,
	"OPER":            EventOper,
	"KILL":            EventKill,
	"UMODE_CHANGE":    EventUmodeChange,
	"CHANMODE":        EventChanmode,
	"CHANNEL_CREATE":  EventChannelCreate,
	"CHANNEL_DESTROY": EventChannelDestroy,
	"WHOIS":           EventWhois,
	"REHASH":          EventRehash,
	"ACCOUNT_LOGIN":   EventAccountLogin,
	"PRE_COMMAND":     EventPreCommand,
	"POST_COMMAND":    EventPostCommand,
	"TKL_ADD":         EventTklAdd,
	"TKL_DEL":         EventTklDel,
	"SPAMFILTER":      EventSpamfilter,
	"COMMAND":         EventCommandOverride,
	"SHUTDOWN":        EventShutdown,
}

// EventByName resolves a script event keyword, case-insensitively.
func EventByName(name string) (EventType, bool) {
	t, ok := eventNames[strings.ToUpper(name)]
	return t, ok
}

// String returns the script keyword for the event.
func (t EventType) String() string {
	for name, v := range eventNames {
		if v == t {
			return name
		}
	}
	if t == EventCommandNew {
		return "COMMAND(new)"
	}
	return "INVALID"
}

// ActionType discriminates the Action union.
type ActionType int

const (
	ActionCommand ActionType = iota
	ActionIf
	ActionWhile
	ActionFor
	ActionVar
	ActionArith
	ActionISupport
	ActionCap
	ActionSendNotice
	ActionReturn
	ActionBreak
	ActionContinue
	ActionFunctionCall
)

// Action is one executable statement. Sequences are plain slices; nested
// and else bodies are owned by their parent action.
type Action struct {
	Type ActionType

	// Command / function-call name.
	Name string
	// Raw, unexpanded arguments. For ActionArith this holds the whole
	// statement text; for ActionReturn the raw return value.
	Args []string

	// Condition for If/While: expression tree when present, legacy
	// single comparison otherwise (still produced by the for-loop
	// header parser).
	Cond   *BoolExpr
	Legacy *Condition

	Nested []*Action // then-branch / loop body
	Else   []*Action

	// Var assignment fields.
	VarName  string
	VarIndex string // raw text inside [...], "" when not indexed
	VarValue string // raw right-hand side
	Const    bool

	// For-loop fields. A C-style header carries Init/Legacy/Increment;
	// a range header carries LoopVar/LoopStart/LoopEnd/LoopStep.
	Init      *Action
	Increment string
	LoopVar   string
	LoopStart string
	LoopEnd   string
	LoopStep  string
}

// Condition is a single raw comparison, evaluated by dispatching on
// Operator. An empty Operator means a bare truthiness test of Variable.
type Condition struct {
	Variable string
	Operator string
	Value    string
}

// BoolExprType tags the BoolExpr union.
type BoolExprType int

const (
	BoolSimple BoolExprType = iota
	BoolAnd
	BoolOr
	BoolParen
)

// BoolExpr is the condition tree for if/while. Or binds loosest, And
// next, parenthesised groups and simple comparisons tightest.
type BoolExpr struct {
	Type        BoolExprType
	Cond        *Condition // BoolSimple
	Left, Right *BoolExpr  // BoolAnd, BoolOr
	Inner       *BoolExpr  // BoolParen
}

// Rule binds an event and a target pattern to an action list. Target is
// "*", a channel name, or a client name.
type Rule struct {
	Event   EventType
	Target  string
	Actions []*Action
}

// Function is a user-defined script function. The first definition of a
// name wins; redefinitions are dropped with a warning.
type Function struct {
	Name   string
	Params []string
	Body   []*Action
}

// File is everything parsed out of one script file. Files load and
// unload as a unit.
type File struct {
	Path      string
	Rules     []*Rule
	Functions []*Function
}
