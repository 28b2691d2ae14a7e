// Copyright (c) the wifisd authors
// Licensed under the MIT license

// Package watcher polls a card directory and reports new, modified and
// removed files. There is no change notification in the card protocol,
// so "new" means "present with an unchanged size for long enough":
// cameras write files incrementally and a growing file is not worth
// announcing yet.
package watcher

import (
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/ktctools/wifisd/internal/cardfs"
	"github.com/ktctools/wifisd/internal/fat32"
)

var log = logrus.WithField("pkg", "watcher")

// DefaultInterval is the polling period when Start is given zero.
const DefaultInterval = 5 * time.Second

// Callbacks fire from the polling goroutine (for the first pass, from
// Start's caller), per pass, in the order new, then modified, then
// removed.
type Callbacks struct {
	OnNewFile      func(*cardfs.File)
	OnFileModified func(*cardfs.File)
	OnFileRemoved  func(name string)
}

type unstable struct {
	size       uint32
	detectedAt time.Time
}

// Watcher tracks one directory. Subdirectories are ignored. At any
// instant a name is known, unstable, or neither, never two at once.
type Watcher struct {
	dir      *cardfs.Directory
	cb       Callbacks
	patterns []string
	now      func() time.Time

	interval time.Duration
	known    map[string]fat32.DirEntry
	pending  map[string]unstable
	stop     chan struct{}
}

type Option func(*Watcher)

// WithPatterns restricts watching to files matching any of the
// doublestar patterns ("*.jpg", "IMG_*"). No patterns means every file.
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) { w.patterns = patterns }
}

// WithClock substitutes the time source. Tests drive the heuristic with
// a fake clock; everyone else gets time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

func New(dir *cardfs.Directory, cb Callbacks, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		cb:      cb,
		now:     time.Now,
		known:   make(map[string]fat32.DirEntry),
		pending: make(map[string]unstable),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start seeds the known set from a fresh listing (no events for what is
// already there), runs one detection pass, then polls every interval.
func (w *Watcher) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w.interval = interval

	files, err := w.listFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		w.known[f.Name()] = f.Entry()
	}

	w.scan()

	w.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.scan()
			}
		}
	}()
	return nil
}

// Destroy cancels polling and forgets all state.
func (w *Watcher) Destroy() {
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	w.known = make(map[string]fat32.DirEntry)
	w.pending = make(map[string]unstable)
}

func (w *Watcher) listFiles() ([]*cardfs.File, error) {
	nodes, err := w.dir.List(true)
	if err != nil {
		return nil, err
	}
	var files []*cardfs.File
	for _, n := range nodes {
		f, ok := n.(*cardfs.File)
		if !ok || !w.match(f.Name()) {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

func (w *Watcher) match(name string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	for _, p := range w.patterns {
		if doublestar.MatchUnvalidated(p, name) {
			return true
		}
	}
	return false
}

// scan is one detection pass. A failed listing skips the pass; the next
// tick tries again.
func (w *Watcher) scan() {
	files, err := w.listFiles()
	if err != nil {
		log.WithError(err).Warn("poll failed, skipping pass")
		return
	}
	now := w.now()

	current := make(map[string]*cardfs.File, len(files))
	for _, f := range files {
		current[f.Name()] = f
	}

	var fresh, modified []*cardfs.File

	for _, f := range files {
		name := f.Name()
		if k, ok := w.known[name]; ok {
			if k.Modified != f.Entry().Modified || k.Size != f.Size() {
				w.known[name] = f.Entry()
				modified = append(modified, f)
			}
			continue
		}
		if u, ok := w.pending[name]; !ok || u.size != f.Size() {
			w.pending[name] = unstable{size: f.Size(), detectedAt: now}
		}
	}

	// Promote entries that have held their size long enough; forget
	// entries that vanished before stabilizing.
	for name, u := range w.pending {
		f, present := current[name]
		if !present {
			delete(w.pending, name)
			continue
		}
		if f.Size() == u.size && now.Sub(u.detectedAt) > 2*w.interval {
			delete(w.pending, name)
			w.known[name] = f.Entry()
			fresh = append(fresh, f)
		}
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Name() < fresh[j].Name() })

	var removed []string
	for name := range w.known {
		if _, ok := current[name]; !ok {
			delete(w.known, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	for _, f := range fresh {
		if w.cb.OnNewFile != nil {
			w.cb.OnNewFile(f)
		}
	}
	for _, f := range modified {
		if w.cb.OnFileModified != nil {
			w.cb.OnFileModified(f)
		}
	}
	for _, name := range removed {
		if w.cb.OnFileRemoved != nil {
			w.cb.OnFileRemoved(name)
		}
	}
}
