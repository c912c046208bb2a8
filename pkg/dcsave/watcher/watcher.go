// Package watcher monitors the global save file and publishes what changed
// each time the game rewrites it.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/jamesainslie/dcsave/pkg/dcsave/logging"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savecodec"
	"github.com/jamesainslie/dcsave/pkg/dcsave/savediff"
)

const (
	// DefaultFile is the save file watched by default.
	DefaultFile = "DevilConnection_sf.sav"

	// DefaultDebounce coalesces bursts of writes.
	DefaultDebounce = 300 * time.Millisecond

	defaultRetries    = 3
	defaultRetryDelay = 100 * time.Millisecond
	subscriberBuffer  = 64
)

// EventType classifies a published event.
type EventType int

const (
	// EventChanged carries the differences from the previous version.
	EventChanged EventType = iota
	// EventCreated is sent when the file appears after being absent.
	EventCreated
	// EventRemoved is sent when the file disappears.
	EventRemoved
	// EventReset is sent once when the storage directory itself is removed,
	// which the game does when starting over from scratch.
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventCreated:
		return "created"
	case EventRemoved:
		return "removed"
	case EventReset:
		return "reset"
	}
	return "unknown"
}

// Event is delivered to subscribers.
type Event struct {
	Type    EventType
	Path    string
	Time    time.Time
	Changes []savediff.Change
}

// Subscriber receives events until it is unsubscribed or the watcher closes.
type Subscriber struct {
	ID     string
	Events chan *Event
}

// Options configures a Watcher.
type Options struct {
	File       string
	Debounce   time.Duration
	Ignored    []string
	Retries    int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.File == "" {
		o.File = DefaultFile
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Retries <= 0 {
		o.Retries = defaultRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return o
}

// Watcher keeps the last decoded version of the save file in memory and
// diffs every new version against it.
type Watcher struct {
	dir  string
	path string
	opts Options
	cmp  *savediff.Comparator
	fsw  *fsnotify.Watcher

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	closed      bool

	// touched only by Check, which Run serializes
	lastRaw  []byte
	lastData savecodec.Value
	present  bool
	reset    bool
}

// New watches dir and takes an initial snapshot of the save file.
func New(dir string, opts Options) (*Watcher, error) {
	opts = opts.withDefaults()
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, &os.PathError{Op: "watch", Path: abs, Err: errors.New("not a directory")}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:         abs,
		path:        filepath.Join(abs, opts.File),
		opts:        opts,
		cmp:         savediff.New(opts.Ignored...),
		fsw:         fsw,
		subscribers: make(map[string]*Subscriber),
	}
	w.snapshot()
	return w, nil
}

// Path returns the watched save file.
func (w *Watcher) Path() string { return w.path }

func (w *Watcher) snapshot() {
	raw, data, err := w.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Get("watcher").Warn("initial read failed", "path", w.path, "error", err)
		}
		return
	}
	w.lastRaw, w.lastData, w.present = raw, data, true
}

// Subscribe registers a new subscriber. It returns nil after Close.
func (w *Watcher) Subscribe() *Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	sub := &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan *Event, subscriberBuffer),
	}
	w.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if sub, ok := w.subscribers[id]; ok {
		close(sub.Events)
		delete(w.subscribers, id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (w *Watcher) SubscriberCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscribers)
}

func (w *Watcher) publish(ev *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	for _, sub := range w.subscribers {
		select {
		case sub.Events <- ev:
		default:
			logging.Get("watcher").Warn("subscriber too slow, event dropped", "subscriber", sub.ID)
		}
	}
}

// Run processes filesystem events until ctx is done or the watcher is
// closed. Events for the save file are debounced, then Check runs.
func (w *Watcher) Run(ctx context.Context) {
	log := logging.Get("watcher")
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case event.Name == w.dir && event.Op.Has(fsnotify.Remove):
				w.Check()
			case filepath.Base(event.Name) == w.opts.File:
				log.Debug("save file event", "op", event.Op.String())
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error("watcher error", "error", err)

		case <-timer.C:
			w.Check()
		}
	}
}

// Check compares the save file against the last version seen and publishes
// the result. It returns the published event, or nil when nothing changed.
// Check must not be called concurrently with itself or Run.
func (w *Watcher) Check() *Event {
	log := logging.Get("watcher")
	now := time.Now()

	if _, err := os.Stat(w.dir); errors.Is(err, os.ErrNotExist) {
		w.lastRaw, w.lastData, w.present = nil, nil, false
		if w.reset {
			return nil
		}
		w.reset = true
		ev := &Event{Type: EventReset, Path: w.dir, Time: now}
		log.Info("storage directory removed", "dir", w.dir)
		w.publish(ev)
		return ev
	}
	w.reset = false

	raw, data, err := w.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !w.present {
			return nil
		}
		w.lastRaw, w.lastData, w.present = nil, nil, false
		ev := &Event{Type: EventRemoved, Path: w.path, Time: now}
		w.publish(ev)
		return ev
	case err != nil && raw == nil:
		log.Warn("cannot read save file", "path", w.path, "error", err)
		return nil
	case err != nil:
		log.Warn("cannot decode save file, comparison skipped", "path", w.path, "error", err)
		w.lastRaw, w.lastData, w.present = raw, nil, true
		return nil
	}

	if !w.present {
		w.lastRaw, w.lastData, w.present = raw, data, true
		ev := &Event{Type: EventCreated, Path: w.path, Time: now}
		w.publish(ev)
		return ev
	}
	if bytes.Equal(raw, w.lastRaw) {
		return nil
	}

	prev := w.lastData
	w.lastRaw, w.lastData = raw, data
	if prev == nil {
		return nil
	}

	changes := w.cmp.Compare(prev, data)
	if len(changes) == 0 {
		return nil
	}
	ev := &Event{Type: EventChanged, Path: w.path, Time: now, Changes: changes}
	log.Debug("save file changed", "changes", len(changes))
	w.publish(ev)
	return ev
}

// read loads and decodes the save file, retrying while the game may still be
// writing it. A decode failure after the last attempt returns the raw bytes
// with the error.
func (w *Watcher) read() ([]byte, savecodec.Value, error) {
	var (
		raw     []byte
		lastErr error
	)
	for attempt := 0; attempt < w.opts.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(w.opts.RetryDelay * time.Duration(attempt))
		}
		b, err := os.ReadFile(w.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		if err != nil {
			lastErr = err
			continue
		}
		raw = b
		data, err := savecodec.Decode(b)
		if err == nil {
			return raw, data, nil
		}
		lastErr = err
	}
	return raw, nil, lastErr
}

// Close stops watching and closes every subscriber channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	for _, sub := range w.subscribers {
		close(sub.Events)
	}
	w.subscribers = make(map[string]*Subscriber)
	return w.fsw.Close()
}
