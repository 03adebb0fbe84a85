package keystore

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt reports key records that cannot be trusted.
	ErrCorrupt = errors.New("key store corrupt")
	// ErrTooNew reports a file written by a newer client.
	ErrTooNew = errors.New("key store requires newer version of coind")
	// ErrNeedsRewrite reports a legacy file that was migrated in place; the
	// daemon must be restarted to use it.
	ErrNeedsRewrite = errors.New("key store needed to be rewritten: restart coind to complete")
)

// LoadStatus classifies what Load found in the file.
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	LoadCorrupt
	LoadNonCritical
	LoadTooNew
	LoadNeedRewrite
)

func (s LoadStatus) String() string {
	switch s {
	case LoadOK:
		return "ok"
	case LoadCorrupt:
		return "corrupt"
	case LoadNonCritical:
		return "non-critical"
	case LoadTooNew:
		return "too new"
	case LoadNeedRewrite:
		return "need rewrite"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Fatal reports whether startup must stop.
func (s LoadStatus) Fatal() bool {
	switch s {
	case LoadCorrupt, LoadTooNew, LoadNeedRewrite:
		return true
	default:
		return false
	}
}

// LoadError carries a fatal load status.
type LoadError struct {
	Status LoadStatus
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
