package preflight

import (
	"errors"
	"fmt"
	"strings"

	"coind/internal/config"
)

// MinFreeDiskBytes is the free space required in the data directory before
// workers start.
const MinFreeDiskBytes = 50 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the data directory checks for the given settings.
func RunAll(s *config.Settings) []Result {
	if s == nil {
		return nil
	}
	return []Result{
		CheckDirectoryAccess("Data directory", s.DataDir),
		CheckDiskSpace("Disk space", s.DataDir, MinFreeDiskBytes),
	}
}

// Failed joins the failing results into one error, or returns nil.
func Failed(results []Result) error {
	var failures []string
	for _, r := range results {
		if !r.Passed {
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errors.New(strings.Join(failures, "; "))
}
