// Package watcher re-runs graph creation when a watched read directory changes.
package watcher

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/DeusData/repo-graphrag/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

// fingerprint summarizes a read dir: an xxh3 digest over every discovered
// file's path, size and mtime, plus the file count.
type fingerprint struct {
	hash  uint64
	files int
}

type targetState struct {
	readDir  string
	print    *fingerprint
	interval time.Duration
	nextPoll time.Time
}

// IndexFunc re-runs graph creation for one storage.
type IndexFunc func(ctx context.Context, storageName, readDir string) error

// Watcher polls watched read directories and calls IndexFunc on change.
type Watcher struct {
	indexFn IndexFunc
	opts    *discover.Options

	mu      sync.Mutex
	targets map[string]*targetState
	ctx     context.Context
}

// New creates a Watcher. opts selects which files count; nil uses the
// discovery defaults.
func New(indexFn IndexFunc, opts *discover.Options) *Watcher {
	return &Watcher{
		indexFn: indexFn,
		opts:    opts,
		targets: make(map[string]*targetState),
		ctx:     context.Background(),
	}
}

// Watch starts watching readDir for storageName, replacing any previous
// read dir for that storage. The first poll only records a baseline.
func (w *Watcher) Watch(storageName, readDir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.targets[storageName]; ok && st.readDir == readDir {
		return
	}
	w.targets[storageName] = &targetState{readDir: readDir}
	slog.Info("watcher.watch", "storage", storageName, "read_dir", readDir)
}

// Unwatch stops watching a storage.
func (w *Watcher) Unwatch(storageName string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.targets, storageName)
}

// Watching returns the number of watched storages.
func (w *Watcher) Watching() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.targets)
}

// Run blocks until ctx is cancelled. Ticks at baseInterval, polling each
// target only when its adaptive interval has elapsed.
func (w *Watcher) Run(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

// pollAll polls every target that is due. Index runs happen outside the lock.
func (w *Watcher) pollAll() {
	now := time.Now()
	w.mu.Lock()
	due := make(map[string]*targetState)
	for name, st := range w.targets {
		if st.print == nil || !now.Before(st.nextPoll) {
			due[name] = st
		}
	}
	w.mu.Unlock()

	for name, st := range due {
		w.pollTarget(name, st)
	}
}

// pollTarget fingerprints the read dir and compares with the previous poll.
// A failed index keeps the old fingerprint so the next poll retries.
func (w *Watcher) pollTarget(name string, st *targetState) {
	if _, err := os.Stat(st.readDir); err != nil {
		slog.Warn("watcher.root_gone", "storage", name, "path", st.readDir)
		st.nextPoll = time.Now().Add(maxInterval)
		return
	}

	fp, err := w.capture(st.readDir)
	if err != nil {
		slog.Warn("watcher.fingerprint", "storage", name, "err", err)
		st.nextPoll = time.Now().Add(max(st.interval, baseInterval))
		return
	}
	interval := pollInterval(fp.files)

	switch {
	case st.print == nil:
		slog.Debug("watcher.baseline", "storage", name, "files", fp.files)
		st.print = &fp
	case *st.print == fp:
	default:
		slog.Info("watcher.changed", "storage", name, "files", fp.files)
		if err := w.indexFn(w.ctx, name, st.readDir); err != nil {
			slog.Warn("watcher.index", "storage", name, "err", err)
		} else {
			st.print = &fp
		}
	}
	st.interval = interval
	st.nextPoll = time.Now().Add(interval)
}

// capture walks readDir with discover.Discover and digests every file's
// path, size and mtime in path order.
func (w *Watcher) capture(readDir string) (fingerprint, error) {
	files, err := discover.Discover(w.ctx, readDir, w.opts)
	if err != nil {
		return fingerprint{}, err
	}
	h := xxh3.New()
	var buf [16]byte
	n := 0
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			continue
		}
		_, _ = h.WriteString(f.RelPath)
		binary.LittleEndian.PutUint64(buf[:8], uint64(info.Size()))
		binary.LittleEndian.PutUint64(buf[8:], uint64(info.ModTime().UnixNano()))
		_, _ = h.Write(buf[:])
		n++
	}
	return fingerprint{hash: h.Sum64(), files: n}, nil
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}
