package printing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sgpatel/secure-pdf-viewer/internal/domain/printing"
	"go.uber.org/zap"
)

// workspacePrefix names every per-job temp directory so stale ones can be swept
const workspacePrefix = "spv-"

// Workspace is a private temp directory for a single print job. Every file it
// writes is tracked before creation, so Release removes all of them even when
// a write fails halfway.
type Workspace struct {
	dir       string
	logger    *zap.Logger
	remove    func(path string) error
	removeAll func(path string) error

	mu       sync.Mutex
	paths    []string
	released bool
}

// WorkspaceOption configures a Workspace
type WorkspaceOption func(*Workspace)

// WithRemover replaces the function Release uses to delete files and the
// job directory.
func WithRemover(remove func(path string) error) WorkspaceOption {
	return func(w *Workspace) {
		w.remove = remove
		w.removeAll = remove
	}
}

// NewWorkspace creates a fresh directory under baseDir, or the OS temp dir
// when baseDir is empty.
func NewWorkspace(baseDir string, logger *zap.Logger, opts ...WorkspaceOption) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, printing.NewPrintError(printing.ErrCodeTempFileFailed,
			fmt.Sprintf("failed to create temp root %s", baseDir), err)
	}

	dir, err := os.MkdirTemp(baseDir, workspacePrefix+"*")
	if err != nil {
		return nil, printing.NewPrintError(printing.ErrCodeTempFileFailed, "failed to create job directory", err)
	}
	w := &Workspace{
		dir:       dir,
		logger:    logger,
		remove:    os.Remove,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// Write stores data in a new file with an unguessable name ending in suffix
// and returns its path. The file is readable by the owner only.
func (w *Workspace) Write(suffix string, data []byte) (string, error) {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return "", printing.NewPrintError(printing.ErrCodeTempFileFailed, "workspace already released", nil)
	}
	path := filepath.Join(w.dir, uuid.NewString()+suffix)
	w.paths = append(w.paths, path)
	w.mu.Unlock()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", printing.NewPrintError(printing.ErrCodeTempFileFailed, "failed to create temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", printing.NewPrintError(printing.ErrCodeTempFileFailed, "failed to write temp file", err)
	}
	if err := f.Close(); err != nil {
		return "", printing.NewPrintError(printing.ErrCodeTempFileFailed, "failed to flush temp file", err)
	}
	return path, nil
}

// Paths returns every path the workspace has allocated
func (w *Workspace) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// Release removes every tracked file and the directory itself. Files that are
// already gone are not an error. Calling Release twice is a no-op.
func (w *Workspace) Release() error {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return nil
	}
	w.released = true
	paths := w.paths
	w.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := w.remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := w.removeAll(w.dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		w.logger.Warn("temp file cleanup incomplete",
			zap.String("dir", w.dir),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// SweepStale removes job directories under baseDir older than age. It
// catches leftovers from a process that died mid-job.
func SweepStale(ctx context.Context, baseDir string, age time.Duration, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, printing.NewPrintError(printing.ErrCodeTempFileFailed, "failed to read temp root", err)
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workspacePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())
		if err := os.RemoveAll(path); err == nil {
			removed++
			logger.Debug("removed stale job directory", zap.String("path", path))
		}
	}

	logger.Info("stale workspace sweep completed",
		zap.Int("removed", removed),
		zap.Duration("age", age),
	)
	return removed, nil
}
