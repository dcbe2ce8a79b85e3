// Package watcher feeds workspace file changes into the mutation path.
// Raw fsnotify events are forwarded as-is; coalescing is the debounce
// controller's job.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed.
type Op int

const (
	// OpWrite covers creation and modification.
	OpWrite Op = iota
	// OpRemove covers deletion and rename-away.
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "write"
}

// Event is one observed file change.
type Event struct {
	URI  string
	Path string
	Op   Op
}

// Handler receives events from the watch loop goroutine.
type Handler func(Event)

// Watcher recursively watches a workspace root.
type Watcher struct {
	fs      *fsnotify.Watcher
	root    string
	ignore  []string
	handler Handler
	log     *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a Watcher over root. Directories whose base name matches an
// ignore entry are skipped entirely.
func New(root string, ignore []string, handler Handler, log *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{
		fs:      fs,
		root:    root,
		ignore:  ignore,
		handler: handler,
		log:     log,
	}, nil
}

// Start registers the directory tree and launches the event loop.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
	if err != nil {
		return fmt.Errorf("registering watches: %w", err)
	}

	w.wg.Add(1)
	go w.loop()

	w.log.Debug("watcher started", "root", w.root)
	return nil
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	if w.ignored(base) || strings.HasPrefix(base, ".") {
		return
	}

	// New directories must be added to the watch set themselves.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(ev.Name); err != nil {
				w.log.Warn("adding watch", "path", ev.Name, "error", err)
			}
			return
		}
	}

	var op Op
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		op = OpWrite
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpRemove
	default:
		return // chmod only
	}

	w.handler(Event{
		URI:  URIForPath(ev.Name),
		Path: ev.Name,
		Op:   op,
	})
}

func (w *Watcher) ignored(name string) bool {
	for _, pat := range w.ignore {
		if name == pat {
			return true
		}
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// URIForPath converts a filesystem path to the document URI used by the
// store.
func URIForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
