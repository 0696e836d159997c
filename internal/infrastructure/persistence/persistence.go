// Package persistence provides crash-safe whole-file replacement.
//
// Documents are written to a sibling temp file, flushed to stable storage
// and atomically renamed over the destination, so a reader always observes
// either the complete old content or the complete new content. A crash
// mid-write leaves the destination untouched.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// NewFileSuffix is appended to the destination path to form the sibling
// temp file. Keeping the temp file in the same directory guarantees the
// final rename never crosses a filesystem boundary.
const NewFileSuffix = ".new"

// DefaultFileMode is used for documents unless overridden. State and
// config documents carry credentials, so group/world access is off.
const DefaultFileMode os.FileMode = 0o600

// WriteFileAtomic replaces the file at path with data.
//
// The payload is written to path+NewFileSuffix, synced, closed and renamed
// over path. On any failure before the rename the temp file is removed and
// the destination is left untouched. If the rename itself fails the temp
// file is left in place: it holds the complete new payload and can be
// recovered manually.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + NewFileSuffix

	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	cleanupTmp := true
	defer func() {
		if cleanupTmp {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Past this point the temp file is complete; keep it if the rename
	// fails so the newest payload survives.
	cleanupTmp = false

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	// Directory sync is best effort; rename durability across power loss
	// is filesystem dependent either way.
	_ = syncDir(filepath.Dir(path))

	return nil
}

// syncDir flushes directory metadata so a completed rename survives power loss.
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()

	return dir.Sync()
}

// Writer serializes atomic writes to a single destination path.
// Concurrent callers never interleave: the second writer blocks until the
// first replace completes, then performs its own complete write.
type Writer struct {
	path string
	perm os.FileMode
	mu   sync.Mutex
}

// NewWriter creates a writer for the given destination path.
func NewWriter(path string, perm os.FileMode) *Writer {
	if perm == 0 {
		perm = DefaultFileMode
	}
	return &Writer{
		path: path,
		perm: perm,
	}
}

// Path returns the destination path.
func (w *Writer) Path() string {
	return w.path
}

// Write atomically replaces the destination file with data.
func (w *Writer) Write(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WriteFileAtomic(w.path, data, w.perm)
}
