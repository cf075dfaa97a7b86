package server

import (
	"bufio"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircmsg"
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnRegistering ConnState = iota // awaiting NICK + USER
	ConnRegistered                   // welcomed, attached to a User
)

// Descriptor represents a single client socket. All writes go through
// Send* under the mutex; reads happen on the per-connection reader
// goroutine only.
type Descriptor struct {
	ID       int
	Conn     net.Conn
	Reader   *bufio.Reader
	State    ConnState
	Addr     string
	ConnTime time.Time
	LastCmd  time.Time

	// Registration scratch, consumed when the User is created.
	Nick     string
	UserSet  bool
	Ident    string
	Gecos    string
	CapsHeld map[string]bool

	BytesSent int
	BytesRecv int

	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		Reader:   bufio.NewReaderSize(conn, 4096),
		State:    ConnRegistering,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		CapsHeld: make(map[string]bool),
	}
}

// IsTLS reports whether the socket is a TLS connection.
func (d *Descriptor) IsTLS() bool {
	_, ok := d.Conn.(*tls.Conn)
	return ok
}

// SendMsg serializes an IRC message and writes it to the socket.
func (d *Descriptor) SendMsg(msg ircmsg.Message) {
	line, err := msg.LineBytes()
	if err != nil {
		return
	}
	d.sendRaw(line)
}

// SendLine writes one already-formatted IRC line, appending CRLF.
func (d *Descriptor) SendLine(line string) {
	d.sendRaw(append([]byte(line), '\r', '\n'))
}

func (d *Descriptor) sendRaw(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write(data)
	d.BytesSent += n
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.Conn.Close()
	}
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
