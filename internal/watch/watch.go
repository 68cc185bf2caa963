package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultSettle is how long a new file must stay quiet before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Handler receives the path of a new .torrent file. It runs on a watcher goroutine.
type Handler func(path string)

// Watcher reports .torrent files created in one directory.
type Watcher struct {
	dir     string
	w       *fsnotify.Watcher
	handler Handler
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}
}

// New starts watching dir.
func New(dir string, settle time.Duration, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	w := &Watcher{
		dir:     dir,
		w:       fw,
		handler: handler,
		settle:  settle,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}
	go w.loop()
	log.Debugf("Watching %s for torrent files", dir)
	return w, nil
}

// Dir is the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

func isTorrentFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".torrent")
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !isTorrentFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ev.Name)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warnf("Watcher error for %s", w.dir)
		}
	}
}

// schedule reports path once no further writes arrived for the settle period.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		log.Debugf("New torrent file %s", path)
		w.handler(path)
	})
}

// Close stops the watcher. Pending files are dropped.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	w.mu.Lock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()
	return err
}

// Set keeps one Watcher per configured directory.
type Set struct {
	handler Handler
	settle  time.Duration

	mu       sync.Mutex
	watchers map[string]*Watcher
}

func NewSet(settle time.Duration, handler Handler) *Set {
	return &Set{handler: handler, settle: settle, watchers: make(map[string]*Watcher)}
}

// Replace makes the set watch exactly dirs. Watchers for directories that stay
// configured are kept, new ones are started before old ones are closed.
func (s *Set) Replace(dirs []string) (added, removed []string) {
	want := make(map[string]struct{})
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		want[filepath.Clean(d)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for d := range want {
		if _, ok := s.watchers[d]; ok {
			continue
		}
		w, err := New(d, s.settle, s.handler)
		if err != nil {
			log.WithError(err).Warnf("Cannot watch %s", d)
			continue
		}
		s.watchers[d] = w
		added = append(added, d)
	}
	for d, w := range s.watchers {
		if _, ok := want[d]; ok {
			continue
		}
		if err := w.Close(); err != nil {
			log.WithError(err).Debugf("Closing watcher for %s", d)
		}
		delete(s.watchers, d)
		removed = append(removed, d)
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Dirs lists the watched directories.
func (s *Set) Dirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirs := make([]string, 0, len(s.watchers))
	for d := range s.watchers {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// Close stops every watcher.
func (s *Set) Close() {
	s.Replace(nil)
}
