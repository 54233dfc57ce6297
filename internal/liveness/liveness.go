package liveness

// Oracle answers liveness questions about processes and lock markers.
// Implementations are pure queries with no side effects and must be safe
// for concurrent use.
type Oracle interface {
	// IsAlive reports whether a process with the given pid exists.
	IsAlive(pid int) bool
	// ResolveLockHolder reads the lock marker at lockPath and returns the
	// recorded holder pid. ok is false when the marker is absent, empty or
	// unparseable, or when the marker's start-time metadata shows the pid
	// has been reused by an unrelated process.
	ResolveLockHolder(lockPath string) (pid int, ok bool)
}

// New returns the platform oracle.
func New() Oracle { return platformOracle{} }
