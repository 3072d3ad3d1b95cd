package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/pdfqa/internal/models"
)

type recordingIngester struct {
	mu    sync.Mutex
	paths []string
	fail  bool
}

func (r *recordingIngester) IngestFile(_ context.Context, path string) (*models.UploadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.fail {
		return nil, errors.New("boom")
	}
	return &models.UploadResult{ID: filepath.Base(path), Filename: filepath.Base(path), Chunks: 1}, nil
}

func (r *recordingIngester) ingested() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, inbox string, ing Ingester) *Watcher {
	t.Helper()
	w := NewWatcher(inbox, ing, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatcher_ingestsDroppedPDF(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	startWatcher(t, dir, ing)

	if err := writeFile(filepath.Join(dir, "report.pdf"), "%PDF-1.4 one"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "ignored"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ing.ingested()) == 1 })

	time.Sleep(150 * time.Millisecond)
	got := ing.ingested()
	if len(got) != 1 || filepath.Base(got[0]) != "report.pdf" {
		t.Errorf("ingested = %v, want only report.pdf", got)
	}
}

func TestWatcher_sameContentIngestedOnce(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	var hooked []string
	var mu sync.Mutex
	w := NewWatcher(dir, ing, WithDebounce(50*time.Millisecond), WithIngestedHook(func(path string, _ *models.UploadResult) {
		mu.Lock()
		hooked = append(hooked, path)
		mu.Unlock()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "a.pdf"), "%PDF-1.4 same"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ing.ingested()) == 1 })
	if err := writeFile(filepath.Join(dir, "copy.pdf"), "%PDF-1.4 same"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "b.pdf"), "%PDF-1.4 different"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ing.ingested()) == 2 })
	time.Sleep(150 * time.Millisecond)

	if got := ing.ingested(); len(got) != 2 {
		t.Errorf("ingested = %v, want a.pdf and b.pdf only", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 2 {
		t.Errorf("hook calls = %v", hooked)
	}
}

func TestWatcher_failedIngestionIsRetriedOnNextWrite(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{fail: true}
	startWatcher(t, dir, ing)

	path := filepath.Join(dir, "a.pdf")
	if err := writeFile(path, "%PDF-1.4 x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ing.ingested()) == 1 })

	ing.mu.Lock()
	ing.fail = false
	ing.mu.Unlock()
	if err := writeFile(path, "%PDF-1.4 x"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(ing.ingested()) == 2 })
}

func TestWatcher_debounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	ing := &recordingIngester{}
	w := NewWatcher(dir, ing, WithDebounce(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "big.pdf")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("%PDF chunk "); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	f.Close()

	waitFor(t, func() bool { return len(ing.ingested()) >= 1 })
	time.Sleep(300 * time.Millisecond)
	if got := ing.ingested(); len(got) != 1 {
		t.Errorf("expected one debounced ingestion, got %v", got)
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "old.PDF"), "%PDF-1.4 old"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "empty.pdf"), ""); err != nil {
		t.Fatal(err)
	}
	ing := &recordingIngester{}
	w := startWatcher(t, dir, ing)
	w.SyncExisting(context.Background())
	w.SyncExisting(context.Background())

	got := ing.ingested()
	if len(got) != 1 || filepath.Base(got[0]) != "old.PDF" {
		t.Errorf("expected only old.PDF once, got %v", got)
	}
}

func TestWatcher_Start_createsMissingInbox(t *testing.T) {
	inbox := filepath.Join(t.TempDir(), "drop", "here")
	w := startWatcher(t, inbox, &recordingIngester{})
	if _, err := os.Stat(inbox); err != nil {
		t.Errorf("inbox should exist after Start: %v", err)
	}
	if w.Inbox() != inbox {
		t.Errorf("Inbox() = %q", w.Inbox())
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b.pdf", true},
		{"/a/b.PDF", true},
		{"/a/b.pdf.part", false},
		{"/a/b", false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.path); got != tt.want {
			t.Errorf("isPDF(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
