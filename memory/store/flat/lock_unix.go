//go:build unix

package flat

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// acquireFileLock takes an exclusive advisory lock on "<path>.lock",
// blocking until it is available, and returns the release function.
// Memory-only stores get a no-op release.
func (s *Store) acquireFileLock() (func(), error) {
	if s.path == "" {
		return func() {}, nil
	}
	lockPath := s.path + lockSuffix
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
