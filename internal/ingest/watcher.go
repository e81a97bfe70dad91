package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"callscope/internal/audio"
	"callscope/internal/logging"
	"callscope/internal/segstore"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
	pollInterval = time.Second
)

// Submitter is the part of Service the watcher needs.
type Submitter interface {
	Accepts(name string) bool
	SubmitFile(ctx context.Context, path, owner, displayName string, progress audio.ProgressFunc) (*Submission, error)
}

// Watcher submits recordings dropped into a directory. Files directly in
// the directory belong to the default owner; files in a first-level
// subdirectory belong to the owner named by that subdirectory. A file is
// submitted once its size and mtime have been stable for the settle period,
// then moved under processed/ or failed/.
type Watcher struct {
	dir       string
	submitter Submitter
	settle    time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]fileState
}

type fileState struct {
	size    int64
	modTime time.Time
	seen    time.Time
}

// NewWatcher constructs a watcher over dir.
func NewWatcher(dir string, submitter Submitter, settle time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:       dir,
		submitter: submitter,
		settle:    settle,
		logger:    logging.NewComponentLogger(logger, "watcher"),
		now:       time.Now,
		pending:   make(map[string]fileState),
	}
}

// Run watches until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if err := w.scan(watcher); err != nil {
		return err
	}
	w.logger.Info("watching for recordings", logging.String("path", w.dir), logging.Duration("settle", w.settle))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", logging.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// scan picks up files present before the watcher started.
func (w *Watcher) scan(watcher *fsnotify.Watcher) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if entry.IsDir() {
			if isReserved(entry.Name()) {
				continue
			}
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			children, err := os.ReadDir(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			for _, child := range children {
				if !child.IsDir() {
					w.track(filepath.Join(path, child.Name()))
				}
			}
			continue
		}
		w.track(path)
	}
	return nil
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if strings.HasSuffix(event.Name, ".tmp") || strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if filepath.Dir(event.Name) == filepath.Clean(w.dir) && !isReserved(info.Name()) {
			if err := watcher.Add(event.Name); err != nil {
				w.logger.Error("failed to watch owner directory", logging.String("path", event.Name), logging.Error(err))
				return
			}
			w.logger.Info("watching owner directory", logging.String("path", event.Name))
		}
		return
	}
	w.track(event.Name)
}

func (w *Watcher) track(path string) {
	if !w.submitter.Accepts(path) {
		return
	}
	if _, ok := w.ownerFor(path); !ok {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, ok := w.pending[path]
	if ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		return
	}
	w.pending[path] = fileState{size: info.Size(), modTime: info.ModTime(), seen: w.now()}
}

// flush submits every tracked file that has settled.
func (w *Watcher) flush(ctx context.Context) {
	for _, path := range w.settled() {
		w.submit(ctx, path)
	}
}

func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	now := w.now()
	for path, state := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != state.size || !info.ModTime().Equal(state.modTime) {
			w.pending[path] = fileState{size: info.Size(), modTime: info.ModTime(), seen: now}
			continue
		}
		if now.Sub(state.seen) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) submit(ctx context.Context, path string) {
	owner, _ := w.ownerFor(path)
	submission, err := w.submitter.SubmitFile(ctx, path, owner, "", nil)
	if err != nil {
		logging.WarnWithContext(w.logger, "watched recording rejected", "watch_submit_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the file and drop it in again"),
			logging.String(logging.FieldImpact, "file moved to failed/"),
		)
		w.move(path, failedDir)
		return
	}
	w.logger.Info("watched recording submitted",
		logging.String("path", path),
		logging.String(logging.FieldJobID, submission.JobID),
		logging.String(logging.FieldCallID, submission.Call.ID),
	)
	w.move(path, processedDir)
}

// ownerFor returns "" for the default owner.
func (w *Watcher) ownerFor(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	switch len(parts) {
	case 1:
		return "", true
	case 2:
		if isReserved(parts[0]) || segstore.ValidateComponent("owner", parts[0]) != nil {
			return "", false
		}
		return parts[0], true
	default:
		return "", false
	}
}

func (w *Watcher) move(path, bucket string) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return
	}
	target := filepath.Join(w.dir, bucket, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		w.logger.Error("failed to create archive directory", logging.String("path", target), logging.Error(err))
		return
	}
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		target = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(target, ext), w.now().Unix(), ext)
	}
	if err := os.Rename(path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Error("failed to archive watched file", logging.String("path", path), logging.Error(err))
	}
}

func isReserved(name string) bool {
	return name == processedDir || name == failedDir
}
