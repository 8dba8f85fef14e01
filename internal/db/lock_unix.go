//go:build unix

package db

import (
	"golang.org/x/sys/unix"
)

// tryLock takes a non-blocking exclusive flock on the lock file.
func (l *writeLocker) tryLock() error {
	return unix.Flock(int(l.lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// unlock drops the flock.
func (l *writeLocker) unlock() {
	if l.lockFile == nil {
		return
	}
	_ = unix.Flock(int(l.lockFile.Fd()), unix.LOCK_UN)
}

// isProcessAlive probes pid with signal 0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
