package server

import (
	"log"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// registerCoreCommands seeds the dispatch table so scripts can query
// and override the built-ins. Core bindings carry Scripted=false.
func (s *Server) registerCoreCommands() {
	core := []string{
		"NICK", "USER", "JOIN", "PART", "PRIVMSG", "NOTICE", "TOPIC",
		"MODE", "INVITE", "KNOCK", "AWAY", "OPER", "KILL", "KICK",
		"QUIT", "WHOIS", "PING", "PONG", "NAMES", "REHASH", "HELP", "MOTD",
	}
	for _, name := range core {
		s.World.commands[name] = &CommandBinding{Scripted: false}
	}
}

// handleMessage processes one parsed line. Runs on the event loop.
func (s *Server) handleMessage(d *Descriptor, msg ircmsg.Message) {
	cmd := strings.ToUpper(msg.Command)

	if d.State == ConnRegistering {
		s.handleRegistration(d, cmd, msg.Params)
		return
	}

	u := s.users[d]
	if u == nil {
		return
	}

	s.fire(script.EventPreCommand, u, nil, cmd)

	// Scripted bindings take the command away from the core entirely:
	// an override replaces a built-in, a new command extends the table.
	if b, ok := s.World.Command(cmd); ok && b.Scripted && b.Handler != nil {
		b.Handler(u, append([]string{cmd}, msg.Params...))
		s.fire(script.EventPostCommand, u, nil, cmd)
		return
	}

	s.handleCore(d, u, cmd, msg.Params)
	s.fire(script.EventPostCommand, u, nil, cmd)
}

func (s *Server) handleCore(d *Descriptor, u *User, cmd string, params []string) {
	switch cmd {
	case "PING":
		token := s.Conf.ServerName
		if len(params) > 0 {
			token = params[0]
		}
		s.sendTo(u, s.Conf.ServerName, "PONG", s.Conf.ServerName, token)

	case "PONG":
		// lag probe reply, nothing to do

	case "NICK":
		if len(params) > 0 {
			s.changeNick(u, params[0])
		}

	case "JOIN":
		if len(params) > 0 {
			for _, name := range strings.Split(params[0], ",") {
				s.joinChannel(u, name)
			}
		}

	case "PART":
		if len(params) > 0 {
			reason := ""
			if len(params) > 1 {
				reason = params[1]
			}
			for _, name := range strings.Split(params[0], ",") {
				s.partChannel(u, name, reason)
			}
		}

	case "PRIVMSG", "NOTICE":
		if len(params) >= 2 {
			s.deliverMessage(u, cmd, params[0], params[1])
		}

	case "TOPIC":
		if len(params) >= 2 {
			s.setTopic(u, params[0], params[1])
		}

	case "MODE":
		if len(params) >= 2 {
			s.applyMode(u, params[0], params[1], params[2:])
		}

	case "INVITE":
		if len(params) >= 2 {
			s.invite(u, params[0], params[1])
		}

	case "KNOCK":
		if len(params) >= 1 {
			if ch, ok := s.World.channels[casefold(params[0])]; ok {
				reason := ""
				if len(params) > 1 {
					reason = params[1]
				}
				s.fire(script.EventKnock, u, ch, reason)
			}
		}

	case "AWAY":
		msg := ""
		if len(params) > 0 {
			msg = params[0]
		}
		s.fire(script.EventAway, u, nil, msg)

	case "OPER":
		if len(params) >= 2 {
			s.operUp(u, params[0], params[1])
		}

	case "KICK":
		if len(params) >= 2 {
			reason := u.nick
			if len(params) > 2 {
				reason = params[2]
			}
			s.kickUser(u, params[0], params[1], reason)
		}

	case "KILL":
		if len(params) >= 1 && u.oper {
			reason := "Killed"
			if len(params) > 1 {
				reason = params[1]
			}
			s.killUser(u, params[0], reason)
		}

	case "QUIT":
		reason := "Client quit"
		if len(params) > 0 {
			reason = params[0]
		}
		delete(s.users, d)
		s.quitUser(u, reason)
		d.Close()

	case "WHOIS":
		if len(params) > 0 {
			s.whois(u, params[0])
		}

	case "NAMES":
		if len(params) > 0 {
			if ch, ok := s.World.channels[casefold(params[0])]; ok {
				s.sendNames(u, ch)
			}
		}

	case "MOTD":
		s.sendMotd(u)

	case "HELP":
		topic := ""
		if len(params) > 0 {
			topic = params[0]
		}
		s.helpCmd(u, topic)

	case "REHASH":
		if u.oper {
			s.Rehash()
			s.numeric(u, "382", "scripts", "Rehashing")
		} else {
			s.numeric(u, "481", "Permission Denied- You're not an IRC operator")
		}

	default:
		s.numeric(u, "421", cmd, "Unknown command")
	}
}

// --- registration ---

func (s *Server) handleRegistration(d *Descriptor, cmd string, params []string) {
	switch cmd {
	case "CAP":
		if len(params) > 0 {
			switch strings.ToUpper(params[0]) {
			case "LS":
				d.SendLine(":" + s.Conf.ServerName + " CAP * LS :" + strings.Join(s.World.Caps(), " "))
			case "REQ":
				if len(params) > 1 {
					acked := []string{}
					for _, c := range strings.Fields(params[1]) {
						if s.World.caps[c] {
							d.CapsHeld[c] = true
							acked = append(acked, c)
						}
					}
					d.SendLine(":" + s.Conf.ServerName + " CAP * ACK :" + strings.Join(acked, " "))
				}
			case "END":
				// registration proceeds once NICK+USER arrive
			}
		}
	case "NICK":
		if len(params) > 0 && s.nickFree(params[0]) {
			d.Nick = params[0]
		}
	case "USER":
		if len(params) >= 4 {
			d.Ident = params[0]
			d.Gecos = params[3]
			d.UserSet = true
		}
	case "QUIT":
		d.Close()
		return
	}

	if d.Nick != "" && d.UserSet {
		s.completeRegistration(d)
	}
}

func (s *Server) nickFree(nick string) bool {
	_, taken := s.World.users[casefold(nick)]
	return !taken && nick != "" && !strings.ContainsAny(nick, " ,#&!@:")
}

func (s *Server) completeRegistration(d *Descriptor) {
	host, ip := d.Addr, d.Addr
	if i := strings.LastIndex(d.Addr, ":"); i >= 0 {
		host, ip = d.Addr[:i], d.Addr[:i]
	}
	u := &User{
		nick:     d.Nick,
		ident:    d.Ident,
		host:     host,
		ip:       ip,
		gecos:    d.Gecos,
		server:   s.Conf.ServerName,
		channels: make(map[string]*Chan),
		secure:   d.IsTLS(),
		caps:     d.CapsHeld,
		d:        d,
	}
	s.World.users[casefold(u.nick)] = u
	s.users[d] = u
	d.State = ConnRegistered

	s.numeric(u, "001", "Welcome to "+s.Conf.Network+" "+prefix(u))
	s.numeric(u, "002", "Your host is "+s.Conf.ServerName)
	s.numeric(u, "004", s.Conf.ServerName, "obbyscriptd", "iorxs", "beiklmnopstv")
	for _, tok := range s.World.ISupport() {
		s.numeric(u, "005", tok, "are supported by this server")
	}
	s.sendMotd(u)

	log.Printf("[%d] %s registered from %s", d.ID, u.nick, d.Addr)
	s.fire(script.EventConnect, u, nil, "")
}

// --- channel operations ---

// joinChannel runs the CAN_JOIN gate and then performs the join. The
// script engine sees the JOIN event only after membership is recorded,
// and deferred commands are drained immediately afterwards so a rule
// that kicks on join acts before anything else happens.
func (s *Server) joinChannel(u *User, name string) {
	if !strings.HasPrefix(name, "#") && !strings.HasPrefix(name, "&") {
		s.numeric(u, "403", name, "No such channel")
		return
	}
	ch, exists := s.World.channels[casefold(name)]
	created := false
	if !exists {
		ch = newChan(name)
		created = true
	}
	if _, already := ch.members[u]; already {
		return
	}

	if !s.Engine.CanJoin(u, ch) {
		s.numeric(u, "474", name, "Cannot join channel")
		return
	}

	if created {
		s.World.channels[casefold(name)] = ch
		s.fire(script.EventChannelCreate, u, ch, "")
	}
	m := &member{}
	if created {
		m.modes = "o"
	}
	ch.members[u] = m
	u.channels[casefold(name)] = ch
	delete(ch.invites, casefold(u.nick))

	s.broadcastToChan(ch, u, "JOIN")
	if ch.topic != "" {
		s.numeric(u, "332", ch.name, ch.topic)
	}
	s.sendNames(u, ch)

	s.fire(script.EventJoin, u, ch, "")
	s.Engine.FlushDeferred()
}

func (s *Server) partChannel(u *User, name, reason string) {
	ch, ok := u.channels[casefold(name)]
	if !ok {
		s.numeric(u, "442", name, "You're not on that channel")
		return
	}
	s.fire(script.EventPart, u, ch, reason)
	s.broadcastToChan(ch, u, "PART", reason)
	delete(ch.members, u)
	delete(u.channels, casefold(name))
	s.reapChannel(ch)
}

func (s *Server) sendNames(u *User, ch *Chan) {
	names := make([]string, 0, len(ch.members))
	for m, mm := range ch.members {
		p := ""
		switch {
		case strings.Contains(mm.modes, "q"):
			p = "~"
		case strings.Contains(mm.modes, "a"):
			p = "&"
		case strings.Contains(mm.modes, "o"):
			p = "@"
		case strings.Contains(mm.modes, "h"):
			p = "%"
		case strings.Contains(mm.modes, "v"):
			p = "+"
		}
		names = append(names, p+m.nick)
	}
	s.numeric(u, "353", "=", ch.name, strings.Join(names, " "))
	s.numeric(u, "366", ch.name, "End of /NAMES list")
}

func (s *Server) deliverMessage(u *User, cmd, target, text string) {
	kind := script.EventPrivmsg
	if cmd == "NOTICE" {
		kind = script.EventNotice
	}
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch, ok := s.World.channels[casefold(target)]
		if !ok {
			s.numeric(u, "401", target, "No such nick/channel")
			return
		}
		s.fire(kind, u, ch, text)
		s.broadcastToChan(ch, u, cmd, text)
		return
	}
	tu, ok := s.World.users[casefold(target)]
	if !ok {
		s.numeric(u, "401", target, "No such nick/channel")
		return
	}
	s.fire(kind, u, nil, text)
	s.sendTo(tu, prefix(u), cmd, tu.nick, text)
}

func (s *Server) setTopic(u *User, name, topic string) {
	ch, ok := s.World.channels[casefold(name)]
	if !ok {
		s.numeric(u, "403", name, "No such channel")
		return
	}
	ch.topic = topic
	s.broadcastToChan(ch, u, "TOPIC", topic)
	s.sendTo(u, prefix(u), "TOPIC", ch.name, topic)
	s.fire(script.EventTopic, u, ch, topic)
}

func (s *Server) changeNick(u *User, newNick string) {
	if !s.nickFree(newNick) {
		s.numeric(u, "433", newNick, "Nickname is already in use")
		return
	}
	old := u.nick
	src := prefix(u)
	delete(s.World.users, casefold(old))
	u.nick = newNick
	s.World.users[casefold(newNick)] = u

	notified := map[*User]bool{u: true}
	if u.d != nil {
		u.d.SendMsg(ircmsg.MakeMessage(nil, src, "NICK", newNick))
	}
	for _, ch := range u.channels {
		for m := range ch.members {
			if !notified[m] {
				notified[m] = true
				s.sendTo(m, src, "NICK", newNick)
			}
		}
	}
	s.fire(script.EventNick, u, nil, old)
}

// applyMode handles both channel and user modes, firing CHANMODE or
// UMODE_CHANGE plus the generic MODE event.
func (s *Server) applyMode(u *User, target, modes string, args []string) {
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		ch, ok := s.World.channels[casefold(target)]
		if !ok {
			s.numeric(u, "403", target, "No such channel")
			return
		}
		s.applyChanMode(u, ch, modes, args)
		return
	}
	if casefold(target) != casefold(u.nick) {
		s.numeric(u, "502", "Can't change mode for other users")
		return
	}
	s.applyUmode(u, modes)
}

func (s *Server) applyChanMode(u *User, ch *Chan, modes string, args []string) {
	adding := true
	argi := 0
	nextArg := func() (string, bool) {
		if argi < len(args) {
			a := args[argi]
			argi++
			return a, true
		}
		return "", false
	}
	for i := 0; i < len(modes); i++ {
		switch c := modes[i]; c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'q', 'a', 'o', 'h', 'v':
			nick, ok := nextArg()
			if !ok {
				continue
			}
			tu, ok := s.World.users[casefold(nick)]
			if !ok {
				continue
			}
			m, ok := ch.members[tu]
			if !ok {
				continue
			}
			if adding {
				if !strings.ContainsRune(m.modes, rune(c)) {
					m.modes += string(c)
				}
			} else {
				m.modes = strings.ReplaceAll(m.modes, string(c), "")
			}
		case 'b':
			mask, ok := nextArg()
			if !ok {
				continue
			}
			if adding {
				ch.bans = append(ch.bans, mask)
			} else {
				for bi, b := range ch.bans {
					if casefold(b) == casefold(mask) {
						ch.bans = append(ch.bans[:bi], ch.bans[bi+1:]...)
						break
					}
				}
			}
		default:
			if adding {
				ch.modes[c] = ""
			} else {
				delete(ch.modes, c)
			}
		}
	}
	line := modes
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	s.broadcastToChan(ch, u, "MODE", append([]string{modes}, args...)...)
	s.sendTo(u, prefix(u), "MODE", append([]string{ch.name, modes}, args...)...)
	s.fire(script.EventChanmode, u, ch, line)
	s.fire(script.EventMode, u, ch, line)
}

func (s *Server) applyUmode(u *User, modes string) {
	adding := true
	for i := 0; i < len(modes); i++ {
		switch c := modes[i]; c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o':
			// oper is only granted via OPER, but -o works
			if !adding {
				u.oper = false
				u.umodes = strings.ReplaceAll(u.umodes, "o", "")
			}
		default:
			if adding {
				if !strings.ContainsRune(u.umodes, rune(c)) {
					u.umodes += string(c)
				}
			} else {
				u.umodes = strings.ReplaceAll(u.umodes, string(c), "")
			}
		}
	}
	s.sendTo(u, prefix(u), "MODE", u.nick, modes)
	s.fire(script.EventUmodeChange, u, nil, modes)
	s.fire(script.EventMode, u, nil, modes)
}

func (s *Server) invite(u *User, nick, chanName string) {
	tu, ok := s.World.users[casefold(nick)]
	if !ok {
		s.numeric(u, "401", nick, "No such nick/channel")
		return
	}
	ch, ok := s.World.channels[casefold(chanName)]
	if !ok {
		s.numeric(u, "403", chanName, "No such channel")
		return
	}
	ch.invites[casefold(tu.nick)] = true
	s.sendTo(tu, prefix(u), "INVITE", tu.nick, ch.name)
	s.numeric(u, "341", tu.nick, ch.name)
	s.fire(script.EventInvite, tu, ch, u.nick)
}

// operUp verifies credentials against the configured oper block. The
// OPER event fires only when the grant succeeds.
func (s *Server) operUp(u *User, name, password string) {
	hash, ok := s.Conf.Opers[name]
	if !ok || !CheckOperPassword(hash, password) {
		s.numeric(u, "464", "Password incorrect")
		return
	}
	u.oper = true
	if !strings.ContainsRune(u.umodes, 'o') {
		u.umodes += "o"
	}
	s.numeric(u, "381", "You are now an IRC operator")
	log.Printf("[server] %s opered up as %s", u.nick, name)
	s.fire(script.EventOper, u, nil, name)
}

// kickUser removes a victim from a channel. The KICK event carries the
// victim, with the kicker in the event payload.
func (s *Server) kickUser(kicker *User, chanName, nick, reason string) {
	ch, ok := s.World.channels[casefold(chanName)]
	if !ok {
		s.numeric(kicker, "403", chanName, "No such channel")
		return
	}
	victim, ok := s.World.users[casefold(nick)]
	if !ok {
		s.numeric(kicker, "401", nick, "No such nick/channel")
		return
	}
	if _, in := ch.members[victim]; !in {
		s.numeric(kicker, "441", nick, ch.name, "They aren't on that channel")
		return
	}
	src := prefix(kicker)
	for m := range ch.members {
		s.sendTo(m, src, "KICK", ch.name, victim.nick, reason)
	}
	delete(ch.members, victim)
	delete(victim.channels, casefold(chanName))
	s.fire(script.EventKick, victim, ch, kicker.nick)
	s.reapChannel(ch)
}

// killUser disconnects a victim. The KILL event carries the victim.
func (s *Server) killUser(killer *User, nick, reason string) {
	victim, ok := s.World.users[casefold(nick)]
	if !ok {
		return
	}
	by := s.Conf.ServerName
	if killer != nil {
		by = killer.nick
	}
	log.Printf("[server] KILL %s by %s: %s", victim.nick, by, reason)
	s.fire(script.EventKill, victim, nil, reason)
	s.quitUserLocal(victim, "Killed ("+reason+")")
}

// quitUserLocal is quitUser without the QUIT event, for removals that
// already fired their own event (KILL, server ban enforcement).
func (s *Server) quitUserLocal(u *User, reason string) {
	src := prefix(u)
	notified := make(map[*User]bool)
	for _, ch := range u.channels {
		for m := range ch.members {
			if m != u && !notified[m] {
				notified[m] = true
				s.sendTo(m, src, "QUIT", reason)
			}
		}
		delete(ch.members, u)
		s.reapChannel(ch)
	}
	u.channels = make(map[string]*Chan)
	delete(s.World.users, casefold(u.nick))
	if u.d != nil {
		s.sendTo(u, s.Conf.ServerName, "ERROR", reason)
		delete(s.users, u.d)
		u.d.Close()
	}
	log.Printf("[server] %s removed: %s", u.nick, reason)
}

func (s *Server) whois(u *User, nick string) {
	tu, ok := s.World.users[casefold(nick)]
	if !ok {
		s.numeric(u, "401", nick, "No such nick/channel")
		return
	}
	s.numeric(u, "311", tu.nick, tu.ident, tu.host, "*", tu.gecos)
	if len(tu.channels) > 0 {
		s.numeric(u, "319", tu.nick, strings.Join(tu.ChannelNames(), " "))
	}
	s.numeric(u, "312", tu.nick, tu.server, s.Conf.Network)
	if tu.oper {
		s.numeric(u, "313", tu.nick, "is an IRC operator")
	}
	s.numeric(u, "318", tu.nick, "End of /WHOIS list")
	s.fire(script.EventWhois, tu, nil, u.nick)
}

// --- server-issued dispatch ---

// dispatchServer executes a command on behalf of the server itself.
// This is the sink for script-issued commands, including replayed
// deferred ones.
func (s *Server) dispatchServer(command string, args []string) {
	cmd := strings.ToUpper(command)
	switch cmd {
	case "KICK":
		if len(args) >= 2 {
			reason := "Kicked"
			if len(args) > 2 {
				reason = args[2]
			}
			s.serverKick(args[0], args[1], reason)
		}
	case "KILL":
		if len(args) >= 1 {
			reason := "Killed"
			if len(args) > 1 {
				reason = args[1]
			}
			s.killUser(nil, args[0], reason)
		}
	case "KLINE", "GLINE", "ZLINE", "SHUN":
		if len(args) >= 1 {
			s.addTKL(cmd, args)
		}
	case "SVSJOIN", "SAJOIN", "JOIN":
		if len(args) >= 2 {
			if tu, ok := s.World.users[casefold(args[0])]; ok {
				s.joinChannel(tu, args[1])
			}
		}
	case "MODE":
		if len(args) >= 2 {
			s.serverMode(args[0], args[1], args[2:])
		}
	case "TOPIC":
		if len(args) >= 2 {
			if ch, ok := s.World.channels[casefold(args[0])]; ok {
				ch.topic = args[1]
				for m := range ch.members {
					s.sendTo(m, s.Conf.ServerName, "TOPIC", ch.name, args[1])
				}
			}
		}
	case "NOTICE", "PRIVMSG":
		if len(args) >= 2 {
			s.sendNotice(args[0], args[1])
		}
	default:
		// Script-registered commands are reachable from scripts too.
		if b, ok := s.World.Command(cmd); ok && b.Scripted && b.Handler != nil {
			b.Handler(nil, append([]string{cmd}, args...))
			return
		}
		log.Printf("[server] unhandled script command %s %v", cmd, args)
	}
}

func (s *Server) serverKick(chanName, nick, reason string) {
	ch, ok := s.World.channels[casefold(chanName)]
	if !ok {
		return
	}
	victim, ok := s.World.users[casefold(nick)]
	if !ok {
		return
	}
	if _, in := ch.members[victim]; !in {
		return
	}
	for m := range ch.members {
		s.sendTo(m, s.Conf.ServerName, "KICK", ch.name, victim.nick, reason)
	}
	delete(ch.members, victim)
	delete(victim.channels, casefold(chanName))
	s.fire(script.EventKick, victim, ch, s.Conf.ServerName)
	s.reapChannel(ch)
}

func (s *Server) serverMode(target, modes string, args []string) {
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if ch, ok := s.World.channels[casefold(target)]; ok {
			fake := &User{nick: s.Conf.ServerName, ident: "server", host: s.Conf.ServerName}
			s.applyChanMode(fake, ch, modes, args)
		}
		return
	}
	if tu, ok := s.World.users[casefold(target)]; ok {
		s.applyUmode(tu, modes)
	}
}

// addTKL records a server ban and enforces it against current users.
func (s *Server) addTKL(kind string, args []string) {
	mask := args[0]
	reason := "Banned"
	if len(args) > 1 {
		reason = args[len(args)-1]
	}
	s.fire(script.EventTklAdd, nil, nil, kind+" "+mask)
	log.Printf("[server] %s added for %s: %s", kind, mask, reason)

	if kind == "SHUN" {
		for _, u := range s.World.users {
			if matchMask(mask, u.nick+"!"+u.ident+"@"+u.host) {
				u.shunned = true
			}
		}
		return
	}
	var victims []*User
	for _, u := range s.World.users {
		target := u.nick + "!" + u.ident + "@" + u.host
		if kind == "ZLINE" {
			target = u.ip
		}
		if matchMask(mask, target) || matchMask(mask, u.ident+"@"+u.host) {
			victims = append(victims, u)
		}
	}
	for _, v := range victims {
		s.quitUserLocal(v, kind+": "+reason)
	}
}
