package server

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces
// into one reload.
const reloadDebounce = 250 * time.Millisecond

// ScriptWatcher watches script files for changes and triggers a
// reload callback.
type ScriptWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewScriptWatcher watches the directories containing the given script
// files. onChange runs after the debounce window whenever a tracked
// file is written or recreated.
func NewScriptWatcher(paths []string, onChange func()) (*ScriptWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		tracked[filepath.Base(p)] = true
		dirs[filepath.Dir(p)] = true
	}

	sw := &ScriptWatcher{watcher: watcher, done: make(chan struct{})}

	go func() {
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !tracked[filepath.Base(event.Name)] {
					continue
				}
				log.Printf("[watch] script changed on disk: %s", filepath.Base(event.Name))
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					timerC = timer.C
				} else {
					timer.Reset(reloadDebounce)
				}

			case <-timerC:
				timer = nil
				timerC = nil
				onChange()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[watch] watcher error: %v", err)

			case <-sw.done:
				return
			}
		}
	}()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			log.Printf("[watch] could not watch %s: %v", dir, err)
		} else {
			log.Printf("[watch] watching %s for script changes", dir)
		}
	}
	return sw, nil
}

// Close stops the watcher.
func (sw *ScriptWatcher) Close() {
	close(sw.done)
	sw.watcher.Close()
}
