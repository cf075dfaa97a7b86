package interp

import (
	"github.com/google/uuid"
)

// destructiveCommands are the commands that may remove the very client
// or channel the current event is iterating over. Running them inline
// would invalidate the iteration, so they are queued and replayed after
// the event settles.
var destructiveCommands = map[string]bool{
	"KICK":  true,
	"KILL":  true,
	"KLINE": true,
	"GLINE": true,
	"ZLINE": true,
	"SHUN":  true,
}

// joinDestructiveCommands are only unsafe while a join is in flight,
// because they mutate the membership list being walked.
var joinDestructiveCommands = map[string]bool{
	"SVSJOIN": true,
	"SAJOIN":  true,
	"JOIN":    true,
}

// IsDestructiveCommand reports whether cmd must be deferred rather than
// dispatched inline. inJoin marks execution inside a JOIN event, where
// the join-family commands become unsafe too.
func IsDestructiveCommand(cmd string, inJoin bool) bool {
	if destructiveCommands[cmd] {
		return true
	}
	return inJoin && joinDestructiveCommands[cmd]
}

// Deferred is one queued destructive command. It holds names, not
// object references: by the time the queue flushes the client or
// channel may be gone, and a stale entry must be detectable.
type Deferred struct {
	ID          uuid.UUID
	Command     string
	Args        []string
	ClientName  string
	ChannelName string
}

func (e *Engine) queueDeferred(cmd string, args []string, client Client, channel Channel) {
	d := &Deferred{
		ID:      uuid.New(),
		Command: cmd,
		Args:    append([]string(nil), args...),
	}
	if client != nil {
		d.ClientName = client.Name()
	}
	if channel != nil {
		d.ChannelName = channel.Name()
	}
	e.deferred = append(e.deferred, d)
	if e.Obs != nil {
		e.Obs.DeferredQueued()
	}
	e.log.Printf("[deferred] queued %s %v (id=%s)", cmd, args, d.ID)
}

// DeferredCount reports the number of queued entries.
func (e *Engine) DeferredCount() int { return len(e.deferred) }

// FlushDeferred replays every queued destructive command. Entries whose
// client or channel no longer resolves are dropped. The flushing guard
// keeps a flush triggered from inside a replayed command from
// re-entering.
func (e *Engine) FlushDeferred() {
	if !e.flushing.SetToIf(false, true) {
		return
	}
	defer e.flushing.UnSet()

	for len(e.deferred) > 0 {
		pending := e.deferred
		e.deferred = nil

		for _, d := range pending {
			var client Client
			if d.ClientName != "" {
				c, ok := e.world.FindClient(d.ClientName)
				if !ok {
					e.log.Printf("[deferred] dropping %s: client %s is gone (id=%s)", d.Command, d.ClientName, d.ID)
					if e.Obs != nil {
						e.Obs.DeferredDropped()
					}
					continue
				}
				client = c
			}
			var channel Channel
			if d.ChannelName != "" {
				ch, ok := e.world.FindChannel(d.ChannelName)
				if !ok {
					e.log.Printf("[deferred] dropping %s: channel %s is gone (id=%s)", d.Command, d.ChannelName, d.ID)
					if e.Obs != nil {
						e.Obs.DeferredDropped()
					}
					continue
				}
				channel = ch
			}

			// Re-substitute against the freshly resolved objects.
			args := make([]string, len(d.Args))
			ok := true
			for i, raw := range d.Args {
				args[i] = e.Substitute(raw, client, channel)
				if args[i] == SyntaxError {
					e.log.Printf("[deferred] dropping %s: argument %q no longer substitutes (id=%s)", d.Command, raw, d.ID)
					if e.Obs != nil {
						e.Obs.DeferredDropped()
					}
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			e.world.Dispatch(d.Command, args)
			if e.Obs != nil {
				e.Obs.DeferredFlushed()
			}
		}
	}
}
