package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

const (
	shrinkThreshold = 10 * 1000 * 1000
	shrinkKeep      = 200 * 1000
)

// ShrinkFile truncates the log at path to its last 200000 bytes once it has
// grown beyond 10000000 bytes. It reports whether the file was shrunk. A
// missing file is left alone.
func ShrinkFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() <= shrinkThreshold {
		return false, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open log file: %w", err)
	}
	tail := make([]byte, shrinkKeep)
	n, err := file.ReadAt(tail, info.Size()-shrinkKeep)
	file.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read log tail: %w", err)
	}

	tmp := path + ".shrink"
	if err := os.WriteFile(tmp, tail[:n], 0o644); err != nil {
		return false, fmt.Errorf("write shrunk log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("replace log file: %w", err)
	}
	return true, nil
}
