package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{10000, 21 * time.Second},
		{100000, 60 * time.Second},
	}
	for _, tt := range tests {
		got := pollInterval(tt.files)
		if got != tt.expected {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.expected)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// touch moves a file's mtime forward so coarse filesystems see a change.
func touch(t *testing.T, path string) {
	t.Helper()
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}
}

func TestCaptureFingerprint(t *testing.T) {
	dir := t.TempDir()
	py := filepath.Join(dir, "main.py")
	writeFile(t, py, "print(1)\n")
	writeFile(t, filepath.Join(dir, "notes.bin"), "ignored")

	w := New(nil, nil)
	fp1, err := w.capture(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fp1.files != 1 {
		t.Fatalf("expected 1 file, got %d", fp1.files)
	}

	fp2, err := w.capture(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Error("unchanged dir should fingerprint identically")
	}

	touch(t, py)
	fp3, err := w.capture(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fp3 == fp1 {
		t.Error("fingerprint should change after mtime change")
	}
}

func resetPolls(w *Watcher) {
	for _, st := range w.targets {
		st.nextPoll = time.Time{}
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	dir := t.TempDir()
	py := filepath.Join(dir, "main.py")
	writeFile(t, py, "print(1)\n")

	var calls atomic.Int32
	var gotName, gotDir string
	w := New(func(_ context.Context, name, readDir string) error {
		calls.Add(1)
		gotName, gotDir = name, readDir
		return nil
	}, nil)
	w.Watch("proj", dir)

	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("first poll should not trigger index, got %d", calls.Load())
	}

	resetPolls(w)
	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("no-change poll should not trigger index, got %d", calls.Load())
	}

	touch(t, py)
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 1 {
		t.Fatalf("changed file should trigger index, got %d", calls.Load())
	}
	if gotName != "proj" || gotDir != dir {
		t.Errorf("index called with %q %q", gotName, gotDir)
	}

	resetPolls(w)
	w.pollAll()
	if calls.Load() != 1 {
		t.Errorf("fingerprint should be updated after a successful index, got %d", calls.Load())
	}
}

func TestWatcherNewFileTriggersIndex(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "main.py"), "print(1)\n")

	var calls atomic.Int32
	w := New(func(context.Context, string, string) error {
		calls.Add(1)
		return nil
	}, nil)
	w.Watch("proj", dir)
	w.pollAll()

	writeFile(t, filepath.Join(dir, "README.md"), "# hello\n")
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 1 {
		t.Errorf("new file should trigger index, got %d", calls.Load())
	}
}

func TestWatcherRetriesFailedIndex(t *testing.T) {
	dir := t.TempDir()
	py := filepath.Join(dir, "main.py")
	writeFile(t, py, "print(1)\n")

	var calls atomic.Int32
	w := New(func(context.Context, string, string) error {
		calls.Add(1)
		return errors.New("busy")
	}, nil)
	w.Watch("proj", dir)
	w.pollAll()

	touch(t, py)
	resetPolls(w)
	w.pollAll()
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 2 {
		t.Errorf("failed index should be retried, got %d calls", calls.Load())
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	var calls atomic.Int32
	w := New(func(context.Context, string, string) error {
		calls.Add(1)
		return nil
	}, nil)
	w.Watch("ghost", "/nonexistent/path")

	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("should not index missing root, got %d", calls.Load())
	}
	if w.targets["ghost"].nextPoll.Before(time.Now().Add(maxInterval - time.Second)) {
		t.Error("missing root should back off to maxInterval")
	}
}

func TestUnwatch(t *testing.T) {
	w := New(nil, nil)
	w.Watch("a", "/tmp/a")
	w.Watch("b", "/tmp/b")
	w.Unwatch("a")
	if w.Watching() != 1 {
		t.Errorf("expected 1 target, got %d", w.Watching())
	}
}

func TestWatcherCancellation(t *testing.T) {
	w := New(func(context.Context, string, string) error { return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}
