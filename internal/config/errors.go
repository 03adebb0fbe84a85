package config

import (
	"errors"
	"fmt"
)

var (
	errMissingHost = errors.New("missing host")
	errBadPort     = errors.New("port must be between 1 and 65535")
)

// Error is a fatal configuration problem: contradictory, unsupported or
// unparseable options. It is always reported before any resource is touched.
type Error struct {
	Option string
	Reason string
}

func (e *Error) Error() string {
	if e.Option == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: -%s: %s", e.Option, e.Reason)
}

func configErrorf(option, format string, args ...any) error {
	return &Error{Option: option, Reason: fmt.Sprintf(format, args...)}
}
