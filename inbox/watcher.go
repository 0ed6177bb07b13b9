// Package inbox watches a folder for saved HTML fragments and feeds them
// to the pipeline as if they had been dropped on the window.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"imgdrop/common"
	"imgdrop/ingest"
)

// Ingester runs one drop. *ingest.Pipeline implements it.
type Ingester interface {
	Ingest(ctx context.Context, payload ingest.DragPayload) (ingest.Result, error)
}

// Event represents one consumed inbox file
type Event struct {
	FilePath string
	Result   ingest.Result
	Err      error
}

const debounceDelay = 500 * time.Millisecond

// Watcher monitors the inbox folder for new fragments
type Watcher struct {
	dir      string
	ingester Ingester
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	events   chan Event

	mu       sync.Mutex
	debounce map[string]*time.Timer
	runs     sync.WaitGroup
}

// NewWatcher creates a watcher for dir. The folder is created if missing.
func NewWatcher(dir string, ingester Ingester, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = common.DiscardLogger()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, common.Wrap(common.KindStorage, "inbox.new", "create inbox folder", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, common.Wrap(common.KindPlatform, "inbox.new", "create fsnotify watcher", err)
	}

	return &Watcher{
		dir:      dir,
		ingester: ingester,
		logger:   logger.With("component", "inbox"),
		watcher:  fsWatcher,
		events:   make(chan Event, 100),
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Run watches the inbox until ctx is done. Fragments already waiting in
// the folder are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	if err := w.watcher.Add(w.dir); err != nil {
		return common.Wrap(common.KindPlatform, "inbox.run", fmt.Sprintf("watch folder %s", w.dir), err)
	}
	w.logger.Info("watching inbox", "dir", w.dir)

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return common.Wrap(common.KindStorage, "inbox.run", "list inbox", err)
	}
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if !entry.IsDir() && isFragment(path) {
			w.schedule(ctx, path)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isFragment(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Events returns the event channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// schedule debounces rapid successive writes to the same file.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.debounce[path]; exists {
		if !timer.Stop() {
			// already fired, the handler owns the file now
			return
		}
		w.runs.Done()
	}

	w.runs.Add(1)
	w.debounce[path] = time.AfterFunc(debounceDelay, func() {
		defer w.runs.Done()

		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()

		w.handle(ctx, path)
	})
}

func (w *Watcher) handle(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("cannot read fragment", "file", path, "error", err)
		}
		return
	}

	// The fragment is consumed whatever the outcome.
	if err := os.Remove(path); err != nil {
		w.logger.Warn("cannot remove fragment", "file", path, "error", err)
	}

	payload := ingest.HTMLPayload(strings.TrimSpace(string(data)))
	result, err := w.ingester.Ingest(ctx, payload)
	if err != nil {
		w.logger.Error("inbox drop failed", "file", path, "outcome", result.Outcome, "error", err)
	} else {
		w.logger.Info("inbox drop", "file", path, "outcome", result.Outcome)
	}

	select {
	case w.events <- Event{FilePath: path, Result: result, Err: err}:
	default:
		w.logger.Debug("event channel full, dropping event", "file", path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, timer := range w.debounce {
		if timer.Stop() {
			w.runs.Done()
		}
		delete(w.debounce, path)
	}
	w.mu.Unlock()

	w.runs.Wait()
	w.watcher.Close()
	close(w.events)
}

func isFragment(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".html" || ext == ".htm"
}
