package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mod-net/stack/internal/liveness"
	"github.com/mod-net/stack/internal/retry"
)

// ErrLockTimeout is returned when the lock resource could not be acquired
// within the caller's wait bound, after stale-lock recovery and holder
// eviction have been attempted.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Handle represents an acquired singleton lock. It keeps the flock(2)
// sidecar held until Release, so a concurrent acquirer blocks on sidecar
// contention instead of mistaking the live owner for an evictable holder.
type Handle struct {
	Path       string
	PID        int
	AcquiredAt time.Time

	sidecar *flock.Flock
}

// Coordinator implements singleton-resource mutual exclusion over an
// on-disk lock marker (pid + start-time metadata). Acquirers serialize
// through a flock(2) sidecar next to the marker; the winner holds the
// sidecar for the lock's full lifetime. The kernel releases the sidecar
// when its owner dies, so a marker left by a crashed owner is reachable
// again and takes the stale path, and a marker written by a foreign
// process that never held the sidecar (the daemon's own lock file) takes
// the eviction path.
type Coordinator struct {
	oracle liveness.Oracle

	// EvictGrace is how long a live holder gets to exit after the graceful
	// termination signal before a forceful kill is issued.
	EvictGrace time.Duration

	// OnStaleRecovered, when set, is invoked after a marker with no live
	// holder has been removed. Informational, not an error.
	OnStaleRecovered func(path string, pid int)

	// OnEvicted, when set, is invoked after a live holder was terminated
	// to free the resource. forced reports whether SIGKILL was needed.
	OnEvicted func(path string, pid int, forced bool)
}

const (
	acquirePollInterval = 100 * time.Millisecond
	killConfirmWindow   = 2 * time.Second
)

func New(oracle liveness.Oracle, evictGrace time.Duration) *Coordinator {
	if evictGrace <= 0 {
		evictGrace = 5 * time.Second
	}
	return &Coordinator{oracle: oracle, EvictGrace: evictGrace}
}

// Acquire obtains the singleton lock at lockPath within wait, or returns
// ErrLockTimeout. A stale marker (no live holder) is removed and the
// acquisition retried immediately. A live holder is evicted: graceful
// signal, bounded grace, then forceful kill. The marker of a holder that
// survives even the forced kill is never removed.
func (c *Coordinator) Acquire(lockPath string, wait time.Duration) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	deadline := time.Now().Add(wait)
	sidecar := flock.New(lockPath + ".acquire")
	for {
		h, retryNow, err := c.attempt(sidecar, lockPath, deadline)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		if !retryNow {
			if !retrySleep(deadline, acquirePollInterval) {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
			}
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
		}
	}
}

// attempt performs one full acquisition round under the sidecar lock.
// It returns (handle, _, nil) on success, (nil, true, nil) when the caller
// should retry without sleeping (marker was just cleared), and
// (nil, false, nil) when the resource is still contended. On success the
// sidecar stays locked, carried by the handle until Release.
func (c *Coordinator) attempt(sidecar *flock.Flock, lockPath string, deadline time.Time) (h *Handle, retryNow bool, err error) {
	locked, err := sidecar.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("sidecar lock %s: %w", sidecar.Path(), err)
	}
	if !locked {
		// The lock is owned, or another acquirer is mid-acquisition.
		return nil, false, nil
	}
	defer func() {
		if h == nil {
			_ = sidecar.Unlock()
		}
	}()

	if mh, werr := writeMarker(lockPath); werr == nil {
		mh.sidecar = sidecar
		return mh, false, nil
	} else if !errors.Is(werr, os.ErrExist) {
		return nil, false, fmt.Errorf("lock marker %s: %w", lockPath, werr)
	}

	holder, ok := c.oracle.ResolveLockHolder(lockPath)
	if ok && holder == os.Getpid() {
		return nil, false, fmt.Errorf("lock %s already held by this process", lockPath)
	}
	if !ok || !c.oracle.IsAlive(holder) {
		// Stale marker: crashed or recycled holder. Remove and retry now.
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("remove stale marker %s: %w", lockPath, err)
		}
		if c.OnStaleRecovered != nil {
			c.OnStaleRecovered(lockPath, holder)
		}
		return nil, true, nil
	}

	forced, dead := c.evict(holder, deadline)
	if !dead {
		// Holder survives even the forced-kill path; the marker is genuinely
		// held and must not be removed.
		return nil, false, nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("remove marker %s: %w", lockPath, err)
	}
	if c.OnEvicted != nil {
		c.OnEvicted(lockPath, holder, forced)
	}
	return nil, true, nil
}

// evict terminates a live holder. forced reports whether SIGKILL was sent,
// dead whether the holder was confirmed gone within the deadline.
func (c *Coordinator) evict(pid int, deadline time.Time) (forced, dead bool) {
	gone := func() bool { return !c.oracle.IsAlive(pid) }
	_ = terminate(pid)
	if retry.Until(boundBy(c.EvictGrace, deadline), acquirePollInterval, gone) {
		return false, true
	}
	_ = kill(pid)
	return true, retry.Until(boundBy(killConfirmWindow, deadline), acquirePollInterval, gone)
}

// Release removes the marker unconditionally and frees the sidecar.
func (c *Coordinator) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	err := os.Remove(h.Path)
	if h.sidecar != nil {
		_ = h.sidecar.Unlock()
	}
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeMarker creates the marker exclusively with our own identity.
func writeMarker(lockPath string) (*Handle, error) {
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	pid := os.Getpid()
	m := liveness.Marker{PID: pid, StartUnix: liveness.ProcStartUnix(pid)}
	if _, err := f.Write(m.Encode()); err != nil {
		_ = f.Close()
		_ = os.Remove(lockPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(lockPath)
		return nil, err
	}
	return &Handle{Path: lockPath, PID: pid, AcquiredAt: time.Now()}, nil
}

// boundBy clips d so it never extends past deadline.
func boundBy(d time.Duration, deadline time.Time) time.Duration {
	if remain := time.Until(deadline); remain < d {
		return remain
	}
	return d
}

// retrySleep sleeps one poll interval without crossing deadline; the return
// value reports whether any time remained to sleep.
func retrySleep(deadline time.Time, interval time.Duration) bool {
	remain := time.Until(deadline)
	if remain <= 0 {
		return false
	}
	if remain < interval {
		interval = remain
	}
	time.Sleep(interval)
	return true
}
