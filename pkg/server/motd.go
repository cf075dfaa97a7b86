package server

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Motd caches the message-of-the-day file and keeps the cache fresh by
// watching the file for changes. Lines returns a snapshot, so the send
// path never holds the lock across network writes.
type Motd struct {
	mu    sync.RWMutex
	lines []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewMotd loads path and starts watching it. A missing file is not an
// error; the MOTD is simply empty until the file appears.
func NewMotd(path string) (*Motd, error) {
	m := &Motd{done: make(chan struct{})}
	m.load(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	m.watcher = w

	// Watch the directory, not the file: editors replace files on save
	// and a direct watch dies with the old inode.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	target := filepath.Base(path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					m.load(path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("[motd] watcher: %v", err)
			case <-m.done:
				return
			}
		}
	}()

	return m, nil
}

func (m *Motd) load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		m.mu.Lock()
		m.lines = nil
		m.mu.Unlock()
		return
	}
	text := strings.TrimRight(string(data), "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	m.mu.Lock()
	m.lines = lines
	m.mu.Unlock()
	log.Printf("[motd] loaded %d line(s) from %s", len(lines), path)
}

// Lines returns the cached MOTD, or nil when none is configured.
func (m *Motd) Lines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lines
}

// Close stops the file watcher.
func (m *Motd) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	close(m.done)
}

// sendMotd answers the MOTD command and the end of registration.
func (s *Server) sendMotd(u *User) {
	var lines []string
	if s.motd != nil {
		lines = s.motd.Lines()
	}
	if len(lines) == 0 {
		s.numeric(u, "422", "MOTD File is missing")
		return
	}
	s.numeric(u, "375", "- "+s.Conf.ServerName+" Message of the Day -")
	for _, line := range lines {
		s.numeric(u, "372", "- "+line)
	}
	s.numeric(u, "376", "End of /MOTD command.")
}
