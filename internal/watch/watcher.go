// Package watch ingests files dropped into a directory. Each settled file
// becomes one ingestion request for the configured tenant.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/cognidex/cognidex/internal/extract"
	"github.com/cognidex/cognidex/internal/ingest"
	"github.com/cognidex/cognidex/internal/store"
)

// Enqueuer receives ingestion requests for dropped files.
type Enqueuer interface {
	Enqueue(ctx context.Context, req ingest.Request) error
}

// Options configures the directory watcher.
type Options struct {
	// Dir is the flat directory to watch. Subdirectories are ignored.
	Dir string

	// TenantID is the tenant all dropped files are ingested under.
	TenantID int64

	// SettleWindow is how long a path must stay quiet before it is read.
	// Editors and copies emit bursts of writes; reading too early ingests
	// a half-written file.
	SettleWindow time.Duration
}

// Watcher turns file-drop events into ingestion requests. Files are
// ingested as the directory_ingestion source type with a fresh source id
// per drop, following the upload path's convention.
type Watcher struct {
	opts   Options
	sink   Enqueuer
	logger *slog.Logger

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

// New creates a watcher over the given directory.
func New(opts Options, sink Enqueuer, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SettleWindow <= 0 {
		opts.SettleWindow = 500 * time.Millisecond
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(opts.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		opts:   opts,
		sink:   sink,
		logger: logger,
		fsw:    fsw,
		timers: make(map[string]*time.Timer),
		done:   make(chan struct{}),
	}, nil
}

// Run processes events until the context is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("watching drop directory",
		"dir", w.opts.Dir, "tenant_id", w.opts.TenantID)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases the fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// schedule (re)arms the settle timer for a path. Every new event pushes
// the read back by the full window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if !extract.Allowed(ext) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.SettleWindow, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("reading dropped file failed", "path", path, "error", err)
		return
	}
	text, err := extract.Text(data, filepath.Ext(path))
	if err != nil {
		w.logger.Warn("extracting dropped file failed", "path", path, "error", err)
		return
	}

	name := filepath.Base(path)
	req := ingest.Request{
		TenantID:   w.opts.TenantID,
		SourceType: store.SourceTypeDirectoryIngest,
		SourceID:   uuid.NewString(),
		Version:    1,
		Name:       name,
		Content:    text,
	}
	if err := w.sink.Enqueue(ctx, req); err != nil {
		w.logger.Error("enqueueing dropped file failed", "path", path, "error", err)
		return
	}
	w.logger.Info("dropped file queued", "file", name, "tenant_id", w.opts.TenantID)
}
