// Package watcher ingests PDFs dropped into an inbox directory, using fsnotify with debouncing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/pdfqa/internal/fileid"
	"github.com/hyperjump/pdfqa/internal/models"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester ingests one file from disk.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*models.UploadResult, error)
}

// Watcher watches one inbox directory and ingests each new .pdf once per distinct content.
type Watcher struct {
	inbox       string
	ingester    Ingester
	debounce    time.Duration
	onIngested  func(path string, res *models.UploadResult)
	watcher     *fsnotify.Watcher
	ctx         context.Context
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	seen        map[string]string // content hash -> doc id
	ingestMu    sync.Mutex
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for event and ingestion output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested. Non-positive keeps the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIngestedHook is called after each successful ingestion.
func WithIngestedHook(fn func(path string, res *models.UploadResult)) WatcherOption {
	return func(w *Watcher) { w.onIngested = fn }
}

// NewWatcher creates a watcher for inbox. Files are handed to ingester.
func NewWatcher(inbox string, ingester Ingester, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		inbox:       filepath.Clean(inbox),
		ingester:    ingester,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		seen:        make(map[string]string),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Inbox returns the watched directory.
func (w *Watcher) Inbox() string {
	return w.inbox
}

// Start creates the inbox if needed and begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.inbox); err != nil {
		_ = watcher.Close()
		return err
	}
	w.watcher = watcher
	w.ctx = ctx
	w.started = true
	if w.logger != nil {
		w.logger.Info("watching inbox", zap.String("inbox", w.inbox), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx, watcher.Events, watcher.Errors)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if filepath.Dir(filepath.Clean(path)) != w.inbox || !isPDF(path) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		w.debounceIngest(path)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(path)
	}
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (w *Watcher) debounceIngest(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// ingest hands path to the ingester unless a file with the same content was already ingested.
// Ingestions run one at a time so two copies of a file cannot both pass the check.
func (w *Watcher) ingest(ctx context.Context, path string) {
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return
	}
	hash, err := fileid.FileContentID(path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("failed to hash inbox file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.mu.Lock()
	docID, dup := w.seen[hash]
	w.mu.Unlock()
	if dup {
		if w.logger != nil {
			w.logger.Debug("inbox file already ingested", zap.String("path", path), zap.String("doc_id", docID))
		}
		return
	}

	res, err := w.ingester.IngestFile(ctx, path)
	if err != nil {
		if w.logger != nil {
			w.logger.Error("inbox ingestion failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	w.mu.Lock()
	w.seen[hash] = res.ID
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Info("inbox file ingested", zap.String("path", path), zap.String("doc_id", res.ID), zap.Int("chunks", res.Chunks))
	}
	if w.onIngested != nil {
		w.onIngested(path, res)
	}
}

// SyncExisting ingests the PDFs already in the inbox. Call it after Start.
func (w *Watcher) SyncExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("failed to read inbox", zap.String("inbox", w.inbox), zap.Error(err))
		}
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, filepath.Join(w.inbox, e.Name()))
	}
}

// Stop stops the watcher and releases resources. Pending debounced files are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
