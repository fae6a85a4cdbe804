// Package lock keeps two workers from driving the same playout channel.
//
// Each channel is guarded by an advisory file lock in the data directory.
// The operating system releases the lock when the process dies, so a crash
// never leaves a channel blocked.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process holds a channel lock.
var ErrHeld = errors.New("lock: channel is driven by another worker")

// ChannelPath returns the lock file path for a channel.
func ChannelPath(dataDir string, channelID int) string {
	return filepath.Join(dataDir, "playout-"+strconv.Itoa(channelID)+".lock")
}

// Set holds the locks of every channel a worker drives.
type Set struct {
	locks []*flock.Flock
}

// Acquire takes the lock of every channel without blocking. On failure
// the locks taken so far are released.
//
// Parameters:
//   - dataDir: Directory for the lock files; created if missing
//   - channelIDs: Channels this worker drives
//
// Returns:
//   - *Set: Held locks, release with Release
//   - error: ErrHeld naming the first contended channel
func Acquire(dataDir string, channelIDs []int) (*Set, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	s := &Set{}
	for _, id := range channelIDs {
		fl := flock.New(ChannelPath(dataDir, id))
		ok, err := fl.TryLock()
		if err != nil {
			s.Release() //nolint:errcheck // Already failing
			return nil, fmt.Errorf("locking channel %d: %w", id, err)
		}
		if !ok {
			s.Release() //nolint:errcheck // Already failing
			return nil, fmt.Errorf("%w: channel %d (%s)", ErrHeld, id, fl.Path())
		}
		s.locks = append(s.locks, fl)
	}
	return s, nil
}

// Release unlocks every held lock. Safe to call more than once.
func (s *Set) Release() error {
	var errs []error
	for _, fl := range s.locks {
		if err := fl.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlocking %s: %w", fl.Path(), err))
		}
	}
	s.locks = nil
	return errors.Join(errs...)
}
