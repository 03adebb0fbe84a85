package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"coind/internal/instance"
	"coind/internal/ipc"
)

// ErrDaemonNotRunning indicates the control service is unavailable.
var ErrDaemonNotRunning = errors.New("coind is not running")

const pollInterval = 200 * time.Millisecond

// StopResult captures the stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// Status fetches the status of the node listening on socketPath.
func Status(socketPath string) (*ipc.StatusResponse, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	defer client.Close()
	return client.Status()
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// WaitForExit waits until pid has exited.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for ProcessAlive(pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("process %d still running after %s", pid, timeout)
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// ForceKillProcess sends SIGKILL to the process named by the pid file (or
// fallbackPID) and removes the pid file. The data directory lock is released
// by the kernel when the process dies.
func ForceKillProcess(pidPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	if parsed, err := instance.ReadPIDFile(pidPath); err == nil {
		pid = parsed
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine coind pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate coind process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill coind process %d: %w", pid, err)
	}
	if err := instance.RemovePIDFile(pidPath); err != nil {
		return 0, err
	}
	return pid, nil
}

// StopAndWait asks the node to shut down and waits for its process to exit.
// When force is set and the process outlives gracePeriod it is killed.
func StopAndWait(socketPath, pidPath, reason string, gracePeriod time.Duration, force bool) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		pid = status.PID
	}
	resp, err := client.Stop(reason)
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp != nil && resp.Accepted}

	waitErr := WaitForExit(pid, gracePeriod)
	if waitErr == nil {
		return result, nil
	}
	if !force {
		return result, waitErr
	}
	killed, killErr := ForceKillProcess(pidPath, pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop coind process: %w", killErr)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
