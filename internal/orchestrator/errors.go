package orchestrator

import (
	"errors"

	"github.com/mod-net/stack/internal/lock"
	"github.com/mod-net/stack/internal/registry"
)

// Error taxonomy of orchestration operations. Re-exported sentinels keep
// the whole taxonomy checkable through this package with errors.Is.
var (
	// ErrUnknownService: name not in the registry. Fatal to the single
	// call; other services in a bulk operation are unaffected.
	ErrUnknownService = registry.ErrUnknownService

	// ErrLockTimeout: the singleton resource was not acquired within its
	// bound after stale-lock recovery and holder eviction attempts. The
	// process was not started.
	ErrLockTimeout = lock.ErrLockTimeout

	// ErrHealthTimeout: the process launched but was never confirmed
	// healthy within its bound. The process is left running.
	ErrHealthTimeout = errors.New("health check timed out")

	// ErrProcessStartFailure: the underlying launch failed to spawn or
	// exited immediately. No automatic retry.
	ErrProcessStartFailure = errors.New("process failed to start")
)
