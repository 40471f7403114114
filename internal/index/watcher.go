package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"github.com/starford/linkmend/internal/checksum"
	"github.com/starford/linkmend/internal/parser"
	"github.com/starford/linkmend/internal/storage"
)

// EventKind names an index change made by the watcher.
type EventKind string

// Watcher event kinds.
const (
	EventIndexed EventKind = "document.indexed"
	EventRemoved EventKind = "document.removed"
	EventMoved   EventKind = "document.moved"
)

// Event describes one index change. Paths are absolute.
type Event struct {
	Kind    EventKind `json:"kind"`
	Path    string    `json:"path"`
	OldPath string    `json:"old_path,omitempty"`
}

// EventCallback is called after a watcher-driven index change.
type EventCallback func(Event)

// DefaultDebounce is the quiet period used when WatchOptions.Debounce is zero.
const DefaultDebounce = 300 * time.Millisecond

// WatchOptions tunes the watcher.
type WatchOptions struct {
	// Debounce is how long the event queue must stay quiet before pending
	// events are flushed.
	Debounce time.Duration
	// Exclude lists directory names that are never watched.
	Exclude []string
}

// Watch starts an fsnotify watcher on the workspace root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after each
// successful index mutation.
//
// Raw events are queued in a map of path to pending operation and flushed
// as one batch once no new event has arrived for the debounce window. Within
// a batch, a Rename of a document followed by a Create of a file with the
// same name is reported as a single move.
func Watch(ctx context.Context, db LinkStore, store storage.Provider, logger *slog.Logger, opts WatchOptions, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index: create watcher: %w", err)
	}
	defer w.Close()

	l := newWatchLoop(db, store, logger, opts, cb)
	if err := l.addDirsRecursive(w, store.Root()); err != nil {
		return fmt.Errorf("index: watch %s: %w", store.Root(), err)
	}

	logger.Info("watcher: started", slog.String("root", store.Root()), slog.Duration("debounce", l.debounce))

	tick := l.debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case now := <-ticker.C:
			if l.due(now) {
				l.flush()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			now := time.Now()
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if l.excluded(ev.Name) {
						continue
					}
					if addErr := l.addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					l.enqueueDir(ev.Name, now)
					continue
				}
			}
			l.enqueue(ev.Name, ev.Op, now)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// watchLoop owns the debounce state. It is only touched from the Watch
// goroutine.
type watchLoop struct {
	db       LinkStore
	store    storage.Provider
	logger   *slog.Logger
	cb       EventCallback
	debounce time.Duration
	exclude  map[string]struct{}

	pending   map[string]fsnotify.Op
	reconcile bool
	last      time.Time
	oldest    time.Time
}

func newWatchLoop(db LinkStore, store storage.Provider, logger *slog.Logger, opts WatchOptions, cb EventCallback) *watchLoop {
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	ex := make(map[string]struct{}, len(opts.Exclude))
	for _, name := range opts.Exclude {
		ex[name] = struct{}{}
	}
	return &watchLoop{
		db:       db,
		store:    store,
		logger:   logger,
		cb:       cb,
		debounce: d,
		exclude:  ex,
		pending:  make(map[string]fsnotify.Op),
	}
}

// enqueue records a raw event. Renames and removals of non-documents may be
// whole directories; they trigger a reconciliation pass on the next flush.
func (l *watchLoop) enqueue(path string, op fsnotify.Op, now time.Time) {
	if !parser.IsDocument(path) {
		if op&(fsnotify.Rename|fsnotify.Remove) == 0 {
			return
		}
		l.reconcile = true
		l.touch(now)
		return
	}
	if op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	l.pending[path] |= op
	l.touch(now)
}

// enqueueDir queues every document already present in a new directory.
func (l *watchLoop) enqueueDir(dir string, now time.Time) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && l.excluded(path) {
				return fs.SkipDir
			}
			return nil
		}
		l.enqueue(path, fsnotify.Create, now)
		return nil
	})
}

func (l *watchLoop) touch(now time.Time) {
	if l.oldest.IsZero() {
		l.oldest = now
	}
	l.last = now
}

// due reports whether the queue has been quiet for the debounce window, or
// has been held back for too long by a steady stream of events.
func (l *watchLoop) due(now time.Time) bool {
	if len(l.pending) == 0 && !l.reconcile {
		return false
	}
	return now.Sub(l.last) >= l.debounce || now.Sub(l.oldest) >= 10*l.debounce
}

// flush dispatches the pending batch: removals first, then moves and
// (re)indexing, then reconciliation when directories changed.
func (l *watchLoop) flush() {
	batch := l.pending
	reconcile := l.reconcile
	l.pending = make(map[string]fsnotify.Op)
	l.reconcile = false
	l.last, l.oldest = time.Time{}, time.Time{}

	var gone, present []string
	for p := range batch {
		if isRegular(p) {
			present = append(present, p)
		} else {
			gone = append(gone, p)
		}
	}
	sort.Strings(gone)
	sort.Strings(present)

	movedFrom := make(map[string]string)
	moved := make(map[string]bool)
	for _, g := range gone {
		if batch[g]&fsnotify.Rename == 0 {
			continue
		}
		for _, c := range present {
			if _, taken := movedFrom[c]; taken || batch[c]&fsnotify.Create == 0 || !sameName(g, c) {
				continue
			}
			movedFrom[c] = g
			moved[g] = true
			break
		}
	}

	for _, g := range gone {
		if !moved[g] {
			l.remove(g)
		}
	}
	for _, c := range present {
		if old, ok := movedFrom[c]; ok {
			l.move(old, c)
			continue
		}
		l.index(c)
	}
	if reconcile {
		l.reconcileAll()
	}
}

func (l *watchLoop) index(abs string) bool {
	rel, err := l.store.Rel(abs)
	if err != nil {
		return false
	}
	data, err := l.store.Read(rel)
	if err != nil {
		l.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	if cs, _ := l.db.GetChecksum(abs); cs != "" && cs == checksum.Sum(data) {
		return false
	}
	if _, err := IndexFile(l.db, abs, data); err != nil {
		l.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return false
	}
	l.logger.Debug("watcher: indexed", slog.String("path", rel))
	l.emit(Event{Kind: EventIndexed, Path: abs})
	return true
}

func (l *watchLoop) remove(abs string) {
	if cs, _ := l.db.GetChecksum(abs); cs == "" {
		return
	}
	if err := l.db.RemoveDocument(abs); err != nil {
		l.logger.Warn("watcher: delete failed", slog.String("path", abs), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("watcher: deleted", slog.String("path", abs))
	l.emit(Event{Kind: EventRemoved, Path: abs})
}

func (l *watchLoop) move(oldAbs, newAbs string) {
	if err := l.db.RemoveDocument(oldAbs); err != nil {
		l.logger.Warn("watcher: move delete failed", slog.String("path", oldAbs), slog.String("error", err.Error()))
	}
	rel, err := l.store.Rel(newAbs)
	if err != nil {
		return
	}
	data, err := l.store.Read(rel)
	if err != nil {
		l.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if _, err := IndexFile(l.db, newAbs, data); err != nil {
		l.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("watcher: moved", slog.String("from", oldAbs), slog.String("to", newAbs))
	l.emit(Event{Kind: EventMoved, Path: newAbs, OldPath: oldAbs})
}

// reconcileAll removes index entries whose files vanished and indexes files
// the index has not seen. Directory renames only report the directory, so
// this is how the documents inside them are picked up.
func (l *watchLoop) reconcileAll() {
	checksums, err := l.db.AllChecksums()
	if err != nil {
		l.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := l.store.List("")
	if err != nil {
		l.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		if abs, err := l.store.Abs(m.Path); err == nil {
			disk[abs] = m.Checksum
		}
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			l.remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs {
			l.index(p)
		}
	}
}

func (l *watchLoop) emit(ev Event) {
	if l.cb != nil {
		l.cb(ev)
	}
}

func (l *watchLoop) excluded(path string) bool {
	_, ok := l.exclude[filepath.Base(path)]
	return ok
}

// addDirsRecursive adds root and all its non-excluded subdirectories to the
// watcher.
func (l *watchLoop) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && l.excluded(path) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func sameName(a, b string) bool {
	return norm.NFC.String(filepath.Base(a)) == norm.NFC.String(filepath.Base(b))
}
