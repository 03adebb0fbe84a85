package daemon

import (
	"errors"

	"golang.org/x/sys/unix"

	"coind/internal/bootstrap"
	"coind/internal/config"
	"coind/internal/instance"
)

// Process exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitLocked reports a data directory held by another process.
	ExitLocked = int(unix.EEXIST)
	// ExitConfig matches sysexits EX_CONFIG.
	ExitConfig = 78
)

// ExitCode maps the error returned by Run to the process exit status. An
// interrupted startup is a requested shutdown, not a failure.
func ExitCode(err error) int {
	var cfgErr *config.Error
	switch {
	case err == nil, errors.Is(err, bootstrap.ErrInterrupted):
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.Is(err, instance.ErrLockContention):
		return ExitLocked
	default:
		return ExitFailure
	}
}
