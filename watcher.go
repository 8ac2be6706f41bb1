package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// FileChangeMsg is sent when a watched page changes
type FileChangeMsg struct {
	Page    string
	Deleted bool
}

// Watcher wraps fsnotify to watch vault directories for page changes
type Watcher struct {
	watcher *fsnotify.Watcher
	vault   *Vault
}

// NewWatcher creates a new file watcher for the given vault
func NewWatcher(vault *Vault) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Walk vault and add all directories (skip hidden ones)
	filepath.Walk(vault.Root(), func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != vault.Root() {
			return filepath.SkipDir
		}
		w.Add(path)
		return nil
	})

	return &Watcher{watcher: w, vault: vault}, nil
}

// next blocks until a page changes. ok is false once the watcher is closed.
func (w *Watcher) next() (FileChangeMsg, bool) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return FileChangeMsg{}, false
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
					w.watcher.Add(event.Name)
					continue
				}
			}

			page, isPage := w.vault.PageName(event.Name)
			if !isPage || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			deleted := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
			return FileChangeMsg{Page: page, Deleted: deleted}, true

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return FileChangeMsg{}, false
			}
		}
	}
}

// WatchCmd returns a BubbleTea command that listens for page changes
func (w *Watcher) WatchCmd() tea.Cmd {
	return func() tea.Msg {
		msg, ok := w.next()
		if !ok {
			return nil
		}
		return msg
	}
}

// Run calls fn for every page change until the watcher is closed
func (w *Watcher) Run(fn func(FileChangeMsg)) {
	for {
		msg, ok := w.next()
		if !ok {
			return
		}
		fn(msg)
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Debouncer coalesces rapid change events per key into a single call
type Debouncer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	duration time.Duration
}

// NewDebouncer creates a new debouncer with the given delay duration
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d, timers: make(map[string]*time.Timer)}
}

// Trigger starts or resets the timer for key; fn runs once the key is quiet
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}
