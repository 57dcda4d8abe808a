// Package watcher observes a directory and emits one LogRecord per
// debounced file change.
//
// A single observation goroutine owns the fsnotify handle and all debounce
// state. Records it produces are queued, in order, for a separate
// dispatcher goroutine that runs the callback, so a slow callback delays
// delivery but never stalls observation.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/models"
)

// ErrAlreadyRunning is returned by Start when the watcher is observing.
var ErrAlreadyRunning = errors.New("watcher: already running")

// Defaults applied by New to zero-valued options.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultQueueSize   = 64
	DefaultMaxFileSize = 10 << 20
)

// DefaultExtensions are the file extensions accepted when none are configured.
var DefaultExtensions = []string{".log", ".json", ".txt"}

// Callback receives every emitted record. Errors and panics are logged.
type Callback func(ctx context.Context, record models.LogRecord) error

// Options configures a Watcher.
type Options struct {
	Dir         string
	Recursive   bool
	Extensions  []string
	Ignore      []string // doublestar patterns relative to Dir
	Debounce    time.Duration
	QueueSize   int
	MaxFileSize int64
	InitialScan bool
}

// Watcher monitors Options.Dir for log file changes.
type Watcher struct {
	opts Options
	exts map[string]bool
	cb   Callback

	mu  sync.Mutex
	run *run
}

// run is the state of one Start..Stop cycle.
type run struct {
	cancel context.CancelFunc
	fsw    *fsnotify.Watcher
	wg     sync.WaitGroup
}

// New validates opts and returns a stopped Watcher.
func New(opts Options, cb Callback) (*Watcher, error) {
	if cb == nil {
		return nil, errors.New("watcher: callback is required")
	}
	if opts.Dir == "" {
		return nil, errors.New("watcher: directory is required")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	for _, p := range opts.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("watcher: invalid ignore pattern %q", p)
		}
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Watcher{opts: opts, exts: exts, cb: cb}, nil
}

// Start begins observing. It returns ErrAlreadyRunning if called while
// the watcher is running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.run != nil {
		return ErrAlreadyRunning
	}

	info, err := os.Stat(w.opts.Dir)
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watcher: %s is not a directory", w.opts.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	if err := w.addTree(fsw, w.opts.Dir); err != nil {
		fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, fsw: fsw}
	out := make(chan models.LogRecord, w.opts.QueueSize)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		w.observe(ctx, fsw, out)
	}()
	go func() {
		defer r.wg.Done()
		w.dispatch(ctx, out)
	}()
	w.run = r

	log.Info().
		Str("dir", w.opts.Dir).
		Bool("recursive", w.opts.Recursive).
		Dur("debounce", w.opts.Debounce).
		Msg("file watcher started")
	return nil
}

// Stop halts observation, discards pending debounces and waits for an
// in-progress callback to return. Stopping a stopped watcher is a no-op.
// Stop must not be called from the callback.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	r := w.run
	w.run = nil
	w.mu.Unlock()
	if r == nil {
		return nil
	}

	r.cancel()
	err := r.fsw.Close()
	r.wg.Wait()

	log.Info().Str("dir", w.opts.Dir).Msg("file watcher stopped")
	if err != nil {
		return fmt.Errorf("watcher: close: %w", err)
	}
	return nil
}

// IsRunning reports whether the watcher is observing.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.run != nil
}

// ── Observation loop ────────────────────────────────────────

func (w *Watcher) observe(ctx context.Context, fsw *fsnotify.Watcher, out chan<- models.LogRecord) {
	pending := make(map[string]time.Time) // path → flush deadline
	var ready []models.LogRecord

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	rearm := func() {
		timer.Stop()
		if len(pending) == 0 {
			return
		}
		var earliest time.Time
		for _, d := range pending {
			if earliest.IsZero() || d.Before(earliest) {
				earliest = d
			}
		}
		timer.Reset(time.Until(earliest))
	}

	schedule := func(path string, at time.Time) {
		if _, ok := pending[path]; !ok {
			pending[path] = at
		}
	}

	if w.opts.InitialScan {
		now := time.Now()
		for _, path := range w.existingFiles(w.opts.Dir) {
			schedule(path, now)
		}
		rearm()
	}

	for {
		var send chan<- models.LogRecord
		var next models.LogRecord
		if len(ready) > 0 {
			send = out
			next = ready[0]
		}

		select {
		case <-ctx.Done():
			if len(pending) > 0 || len(ready) > 0 {
				log.Debug().Int("pending", len(pending)).Int("queued", len(ready)).Msg("watcher discarding undelivered changes")
			}
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 && w.opts.Recursive && isDir(ev.Name) {
				if err := w.addTree(fsw, ev.Name); err != nil {
					log.Warn().Err(err).Str("dir", ev.Name).Msg("cannot watch new directory")
				}
				// Files may have landed before the watch was added.
				at := time.Now().Add(w.opts.Debounce)
				for _, path := range w.existingFiles(ev.Name) {
					schedule(path, at)
				}
				rearm()
				continue
			}
			if !w.accepts(ev.Name) {
				continue
			}
			schedule(ev.Name, time.Now().Add(w.opts.Debounce))
			rearm()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("dir", w.opts.Dir).Msg("watcher error")

		case <-timer.C:
			ready = append(ready, w.flush(pending, time.Now())...)
			rearm()

		case send <- next:
			ready[0] = models.LogRecord{}
			ready = ready[1:]
		}
	}
}

// flush removes every due path from pending and returns the records that
// could be read, ordered by deadline.
func (w *Watcher) flush(pending map[string]time.Time, now time.Time) []models.LogRecord {
	type due struct {
		path string
		at   time.Time
	}
	var paths []due
	for p, at := range pending {
		if !at.After(now) {
			paths = append(paths, due{p, at})
			delete(pending, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].at.Equal(paths[j].at) {
			return paths[i].path < paths[j].path
		}
		return paths[i].at.Before(paths[j].at)
	})

	records := make([]models.LogRecord, 0, len(paths))
	for _, d := range paths {
		if rec, ok := w.read(d.path); ok {
			records = append(records, rec)
		}
	}
	return records
}

// Errors returned by ReadRecord for files that are not summarized.
var (
	ErrNotRegular = errors.New("watcher: not a regular file")
	ErrEmptyFile  = errors.New("watcher: empty file")
	ErrTooLarge   = errors.New("watcher: file exceeds size limit")
)

// ReadRecord loads path into a LogRecord. A .json file whose content
// decodes is carried as structured content alongside the raw text.
func ReadRecord(path string, maxSize int64) (models.LogRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.LogRecord{}, err
	}
	if !info.Mode().IsRegular() {
		return models.LogRecord{}, ErrNotRegular
	}
	if info.Size() == 0 {
		return models.LogRecord{}, ErrEmptyFile
	}
	if maxSize > 0 && info.Size() > maxSize {
		return models.LogRecord{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.LogRecord{}, err
	}

	content := models.LogContent{Text: string(data)}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if v, err := models.DecodeJSON(data); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("json file did not decode; keeping raw text")
		} else {
			content.Structured = v
		}
	}

	return models.LogRecord{
		ID:         uuid.NewString(),
		FilePath:   path,
		Content:    content,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// read loads path, logging and skipping files that vanished, are not
// regular, are empty or exceed MaxFileSize.
func (w *Watcher) read(path string) (models.LogRecord, bool) {
	rec, err := ReadRecord(path, w.opts.MaxFileSize)
	switch {
	case err == nil:
		return rec, true
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrNotRegular):
	default:
		log.Warn().Err(err).Str("file", path).Msg("skipping file")
	}
	return models.LogRecord{}, false
}

// ── Dispatcher ──────────────────────────────────────────────

func (w *Watcher) dispatch(ctx context.Context, in <-chan models.LogRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-in:
			if ctx.Err() != nil {
				return
			}
			w.invoke(ctx, rec)
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, rec models.LogRecord) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("file", rec.FilePath).Msg("watcher callback panicked")
		}
	}()
	if err := w.cb(ctx, rec); err != nil {
		log.Error().Err(err).Str("file", rec.FilePath).Msg("watcher callback failed")
	}
}

// ── Filtering ───────────────────────────────────────────────

// accepts reports whether path passes the extension and ignore filters.
func (w *Watcher) accepts(path string) bool {
	if !w.exts[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	return !w.ignored(path)
}

func (w *Watcher) ignored(path string) bool {
	if len(w.opts.Ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.opts.Dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.opts.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// addTree watches dir and, in recursive mode, every non-ignored
// subdirectory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	if !w.opts.Recursive {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watcher: watch %s: %w", dir, err)
		}
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("cannot walk directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watcher: watch %s: %w", path, err)
		}
		return nil
	})
}

// existingFiles lists accepted files under dir, descending only in
// recursive mode.
func (w *Watcher) existingFiles(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && (!w.opts.Recursive || w.ignored(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
