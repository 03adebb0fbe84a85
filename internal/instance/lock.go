package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// LockFileName is the marker file inside the data directory.
const LockFileName = ".lock"

// ErrLockContention reports that another process holds the data directory.
var ErrLockContention = errors.New("data directory is locked by another coind process")

// State describes whether this process holds the lock.
type State int

const (
	Unlocked State = iota
	Held
)

func (s State) String() string {
	if s == Held {
		return "held"
	}
	return "unlocked"
}

// Lock is the single-instance guard bound to one data directory.
type Lock struct {
	path  string
	flock *flock.Flock

	mu    sync.Mutex
	state State
}

// New returns an unlocked guard for dataDir.
func New(dataDir string) *Lock {
	path := filepath.Join(dataDir, LockFileName)
	return &Lock{path: path, flock: flock.New(path)}
}

// Path returns the marker file path.
func (l *Lock) Path() string {
	return l.path
}

// State reports the current lock state.
func (l *Lock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// TryLock takes the lock without waiting. It creates the marker file if
// needed. Contention returns an error wrapping ErrLockContention; calling
// TryLock on a held lock is a no-op.
func (l *Lock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Held {
		return nil
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("cannot obtain a lock on %s, coind is probably already running: %w", filepath.Dir(l.path), ErrLockContention)
	}
	l.state = Held
	return nil
}

// Release drops the lock. The marker file is left in place.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Held {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	l.state = Unlocked
	return nil
}
