// Package instance guarantees that at most one coind process owns a data
// directory at a time.
//
// The guard is an advisory flock on <datadir>/.lock taken without blocking:
// a second process fails fast with ErrLockContention instead of waiting. The
// marker file itself is never deleted, only unlocked, so its inode stays
// stable for every contender. The package also manages the pid file that
// operators and the stop command use to find the running daemon.
package instance
