package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ReopenableFile is an append-only log file that can be closed and opened
// again under the same name, so an external tool may rotate it.
type ReopenableFile struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// OpenReopenable opens (creating if needed) the log file at path.
func OpenReopenable(path string) (*ReopenableFile, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	f := &ReopenableFile{path: path}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ReopenableFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", f.path, err)
	}
	f.file = file
	return nil
}

// Path returns the file name.
func (f *ReopenableFile) Path() string {
	return f.path
}

func (f *ReopenableFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		// closed: drop silently, slog handlers must not fail after teardown
		return len(p), nil
	}
	return f.file.Write(p)
}

// Reopen closes the current descriptor and opens the path again.
func (f *ReopenableFile) Reopen() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close log file %s: %w", f.path, err)
		}
		f.file = nil
	}
	return f.open()
}

// Close closes the file; later writes are discarded.
func (f *ReopenableFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
