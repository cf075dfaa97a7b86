package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/obsidian-irc/obbyscript/pkg/events"
	"github.com/obsidian-irc/obbyscript/pkg/interp"
	"github.com/obsidian-irc/obbyscript/pkg/script"
)

// deferredFlushInterval is how often the event loop drains the script
// engine's deferred destructive commands.
const deferredFlushInterval = 10 * time.Millisecond

// Server is the IRC server: listener, connection registry, the single
// event-loop goroutine that owns all world and engine state, and the
// wiring between the two.
type Server struct {
	Conf   *Conf
	World  *World
	Engine *interp.Engine
	Bus    *events.Bus

	listener    net.Listener
	tlsListener net.Listener

	web     *WebServer
	watcher *ScriptWatcher
	audit   *AuditLog
	help    *HelpFile
	motd    *Motd

	loopCh chan func()
	quit   chan struct{}

	mu     sync.Mutex
	nextID int
	conns  map[int]*Descriptor
	users  map[*Descriptor]*User
}

// NewServer wires a server from config. The caller attaches the
// engine's Observer and VarStore before calling Start.
func NewServer(conf *Conf, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	world := NewWorld(conf.ServerName, logger)
	s := &Server{
		Conf:   conf,
		World:  world,
		Engine: interp.New(world, logger),
		Bus:    events.NewBus(),
		loopCh: make(chan func(), 256),
		quit:   make(chan struct{}),
		conns:  make(map[int]*Descriptor),
		users:  make(map[*Descriptor]*User),
	}
	world.srv = s
	s.registerCoreCommands()
	return s
}

// Start loads scripts, begins listening, and runs the event loop until
// Stop is called. Blocking.
func (s *Server) Start() error {
	if s.Conf.WebEnabled {
		s.web = NewWebServer(s, s.Conf)
		s.Engine.Obs = s.web.Metrics()
	}

	if err := s.Engine.LoadScripts(s.Conf.Scripts); err != nil {
		log.Printf("[server] script load: %v", err)
	}
	if s.Conf.HelpFile != "" {
		if s.help = LoadHelpFile(s.Conf.HelpFile); s.help != nil {
			log.Printf("[server] loaded %d help topic(s) from %s", len(s.help.Entries), s.Conf.HelpFile)
		} else {
			log.Printf("[server] help file %s not readable", s.Conf.HelpFile)
		}
	}
	if s.Conf.MotdFile != "" {
		m, err := NewMotd(s.Conf.MotdFile)
		if err != nil {
			log.Printf("[server] motd: %v", err)
		} else {
			s.motd = m
		}
	}
	s.fire(script.EventStart, nil, nil, "")

	ln, err := net.Listen("tcp", s.Conf.Listen)
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.listener = ln
	log.Printf("[server] %s listening on %s", s.Conf.ServerName, s.Conf.Listen)

	if s.Conf.TLSListen != "" {
		tr, err := SetupTLS(s.Conf)
		if err != nil {
			return fmt.Errorf("tls setup: %w", err)
		}
		raw, err := net.Listen("tcp", s.Conf.TLSListen)
		if err != nil {
			return fmt.Errorf("tls listener: %w", err)
		}
		s.tlsListener = tls.NewListener(raw, tr.Config)
		log.Printf("[server] %s listening on %s (tls)", s.Conf.ServerName, s.Conf.TLSListen)
		go s.acceptLoop(s.tlsListener)
	}

	if s.Conf.WatchScripts && len(s.Conf.Scripts) > 0 {
		w, err := NewScriptWatcher(s.Conf.Scripts, func() {
			s.Do(func() { s.Rehash() })
		})
		if err != nil {
			log.Printf("[server] script watcher: %v", err)
		} else {
			s.watcher = w
		}
	}

	if s.web != nil {
		go func() {
			if err := s.web.Start(); err != nil {
				log.Printf("[server] web server: %v", err)
			}
		}()
	}

	go s.acceptLoop(ln)
	s.eventLoop()
	return nil
}

// Stop fires the SHUTDOWN event on the event loop, then closes the
// listeners and stops the loop.
func (s *Server) Stop() {
	fired := make(chan struct{})
	s.Do(func() {
		s.fire(script.EventShutdown, nil, nil, "")
		close(fired)
	})
	select {
	case <-fired:
	case <-time.After(time.Second):
	}
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.motd != nil {
		s.motd.Close()
	}
	if s.web != nil {
		s.web.Stop()
	}
	s.Engine.Shutdown()
}

// AttachAudit subscribes an audit log to the full event stream.
func (s *Server) AttachAudit(a *AuditLog) {
	s.audit = a
	s.Bus.SubscribeGlobal(a)
}

func (s *Server) auditLog() *AuditLog { return s.audit }

// Do schedules fn onto the event loop goroutine.
func (s *Server) Do(fn func()) {
	select {
	case s.loopCh <- fn:
	case <-s.quit:
	}
}

// eventLoop owns every mutation of world and engine state. The ticker
// drains deferred destructive commands between events.
func (s *Server) eventLoop() {
	ticker := time.NewTicker(deferredFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case fn := <-s.loopCh:
			fn()
		case <-ticker.C:
			s.Engine.FlushDeferred()
		case <-s.quit:
			return
		}
	}
}

// Rehash reloads scripts from disk. Runs on the event loop.
func (s *Server) Rehash() {
	log.Printf("[server] rehash: reloading %d script file(s)", len(s.Conf.Scripts))
	if err := s.Engine.LoadScripts(s.Conf.Scripts); err != nil {
		log.Printf("[server] rehash: %v", err)
	}
	if s.Conf.HelpFile != "" {
		s.help = LoadHelpFile(s.Conf.HelpFile)
	}
	s.fire(script.EventRehash, nil, nil, "")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[server] accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// handleConnection runs the per-socket reader goroutine. Parsed lines
// are posted to the event loop; the socket is only read here.
func (s *Server) handleConnection(conn net.Conn) {
	s.mu.Lock()
	s.nextID++
	d := NewDescriptor(s.nextID, conn)
	s.conns[d.ID] = d
	s.mu.Unlock()

	log.Printf("[%d] new connection from %s", d.ID, d.Addr)

	defer func() {
		s.Do(func() { s.teardown(d, "Connection closed") })
		d.Close()
		s.mu.Lock()
		delete(s.conns, d.ID)
		s.mu.Unlock()
		log.Printf("[%d] connection closed from %s", d.ID, d.Addr)
	}()

	for {
		line, err := d.Reader.ReadString('\n')
		if err != nil {
			return
		}
		d.BytesRecv += len(line)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		msg, err := ircmsg.ParseLine(line)
		if err != nil {
			continue
		}
		d.LastCmd = time.Now()

		done := make(chan struct{})
		s.Do(func() {
			s.handleMessage(d, msg)
			close(done)
		})
		select {
		case <-done:
		case <-s.quit:
			return
		}
		if d.IsClosed() {
			return
		}
	}
}

// teardown removes a dead connection's user from the world. Runs on
// the event loop.
func (s *Server) teardown(d *Descriptor, reason string) {
	u := s.users[d]
	if u == nil {
		return
	}
	delete(s.users, d)
	s.quitUser(u, reason)
}

// quitUser detaches a user from all channels and the world, firing
// QUIT and, where channels empty out, CHANNEL_DESTROY.
func (s *Server) quitUser(u *User, reason string) {
	s.fire(script.EventQuit, u, nil, reason)
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
	log.Printf("[server] %s quit: %s", u.nick, reason)
}

// reapChannel destroys a channel when its last member leaves.
func (s *Server) reapChannel(ch *Chan) {
	if len(ch.members) > 0 {
		return
	}
	delete(s.World.channels, casefold(ch.name))
	s.fire(script.EventChannelDestroy, nil, ch, "")
}

// fire emits an event on the bus and hands it to the script engine.
func (s *Server) fire(kind script.EventType, client interp.Client, channel interp.Channel, extra string) {
	ev := events.Event{Kind: kind, Extra: extra}
	if client != nil {
		ev.Client = client.Name()
	}
	if channel != nil {
		ev.Channel = channel.Name()
	}
	s.Bus.Emit(ev)
	s.Engine.HandleEvent(kind, client, channel, extra)
}

// prefix is the :nick!user@host source for a user's outgoing lines.
func prefix(u *User) string {
	return u.nick + "!" + u.ident + "@" + u.host
}

// sendTo delivers one message to a user's socket, if it has one.
func (s *Server) sendTo(u *User, source, command string, params ...string) {
	if u.d == nil {
		return
	}
	u.d.SendMsg(ircmsg.MakeMessage(nil, source, command, params...))
}

// numeric sends a server-sourced numeric reply.
func (s *Server) numeric(u *User, code string, params ...string) {
	nick := u.nick
	if nick == "" {
		nick = "*"
	}
	s.sendTo(u, s.Conf.ServerName, code, append([]string{nick}, params...)...)
}

// broadcastToChan sends a line from u to every member of ch. Skip may
// be nil.
func (s *Server) broadcastToChan(ch *Chan, from *User, command string, params ...string) {
	src := prefix(from)
	for m := range ch.members {
		if m == from && (command == "PRIVMSG" || command == "NOTICE") {
			continue
		}
		s.sendTo(m, src, command, append([]string{ch.name}, params...)...)
	}
}

// sendNotice delivers a server notice to a nick or a whole channel.
func (s *Server) sendNotice(target, text string) {
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if ch, ok := s.World.channels[casefold(target)]; ok {
			for m := range ch.members {
				s.sendTo(m, s.Conf.ServerName, "NOTICE", ch.name, text)
			}
		}
		return
	}
	if u, ok := s.World.users[casefold(target)]; ok {
		s.sendTo(u, s.Conf.ServerName, "NOTICE", u.nick, text)
	}
}
