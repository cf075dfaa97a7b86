// Package events carries server happenings (joins, messages, mode
// changes, oper grants) from the IRC core to every interested consumer:
// the script engine, the audit log, and live admin log tails.
package events

import "github.com/obsidian-irc/obbyscript/pkg/script"

// Event is one structured server happening. Client and Channel are
// names, not references; consumers that need the live object resolve it
// themselves, and consumers that outlive the object (audit, log tail)
// keep working.
type Event struct {
	Kind    script.EventType
	Client  string // acting client, or the victim for KICK/KILL
	Channel string // channel context, empty when none
	Source  string // originator when distinct from Client (kicker, killer)
	Extra   string // event payload: message text, new nick, mode string
}
