package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/obsidian-irc/obbyscript/pkg/events"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	event TEXT NOT NULL,
	client TEXT,
	channel TEXT,
	extra TEXT
);
CREATE INDEX IF NOT EXISTS audit_ts ON audit(ts);
CREATE INDEX IF NOT EXISTS audit_event ON audit(event);
`

// AuditLog records every server event into a SQLite database. It
// subscribes globally to the event bus, so it sees the same stream the
// script engine does.
type AuditLog struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	closed bool
}

// OpenAuditLog opens the audit database, sets WAL mode and a busy
// timeout, and creates the schema.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}
	return &AuditLog{db: db, path: path}, nil
}

// Close closes the audit database.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Path returns the filesystem path of the audit database.
func (a *AuditLog) Path() string { return a.path }

// --- events.Subscriber ---

// Receive writes one event row. Insert failures are logged, never
// propagated; auditing must not take the server down.
func (a *AuditLog) Receive(ev events.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO audit (ts, event, client, channel, extra) VALUES (?, ?, ?, ?, ?)",
		time.Now().Unix(), ev.Kind.String(), ev.Client, ev.Channel, ev.Extra)
	if err != nil {
		log.Printf("[audit] insert failed: %v", err)
	}
}

// Closed reports whether the log has been shut down.
func (a *AuditLog) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Recent returns the latest n audit rows as formatted lines, newest
// first. Used by the admin API.
func (a *AuditLog) Recent(n int) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("audit log closed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := a.db.QueryContext(ctx,
		"SELECT ts, event, client, channel, extra FROM audit ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ts int64
		var event, client, channel, extra string
		if err := rows.Scan(&ts, &event, &client, &channel, &extra); err != nil {
			return nil, err
		}
		line := fmt.Sprintf("%s %s client=%s channel=%s %s",
			time.Unix(ts, 0).Format(time.RFC3339), event, client, channel, extra)
		out = append(out, line)
	}
	return out, rows.Err()
}
