package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned by LockInstance when another live server owns the
// data directory.
var ErrLocked = errors.New("data directory is in use")

func lockPath(dataDir string) string {
	return filepath.Join(dataDir, "agentchat.lock")
}

// LockInstance records this process as the owner of dataDir so two servers
// do not run schedules against the same database. Stale locks left by dead
// processes are taken over.
func LockInstance(dataDir string) error {
	locked, pid, err := CheckInstanceLock(dataDir)
	if err != nil {
		return err
	}
	if locked && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d)", ErrLocked, pid)
	}
	// 0600 - user-only access
	return os.WriteFile(lockPath(dataDir), []byte(strconv.Itoa(os.Getpid())), 0600)
}

func UnlockInstance(dataDir string) error {
	err := os.Remove(lockPath(dataDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckInstanceLock returns (isLocked, runningPID, err).
func CheckInstanceLock(dataDir string) (bool, int, error) {
	data, err := os.ReadFile(lockPath(dataDir))
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !processAlive(pid) {
		_ = os.Remove(lockPath(dataDir))
		return false, 0, nil
	}
	return true, pid, nil
}

// processAlive probes pid with signal 0. Where signals are unsupported the
// probe fails and the lock is treated as stale.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
