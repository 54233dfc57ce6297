package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mod-net/stack/internal/liveness"
	"github.com/mod-net/stack/internal/logger"
	"github.com/mod-net/stack/internal/registry"
	"github.com/mod-net/stack/internal/retry"
)

// ErrNotManaged is returned for services the supervisor has never started
// or adopted.
var ErrNotManaged = errors.New("process not managed")

const (
	stopPollInterval  = 100 * time.Millisecond
	killConfirmWindow = 2 * time.Second
)

// Status is a snapshot of one supervised process.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitErr   error     `json:"-"`
	Adopted   bool      `json:"adopted"` // recovered from a pid file, not spawned by this run
}

// StopResult reports how a stop concluded.
type StopResult struct {
	Stopped bool `json:"stopped"` // a live process was terminated
	Forced  bool `json:"forced"`  // SIGKILL was required
}

// Supervisor starts, stops and observes the stack's processes through the
// host process manager. It assumes one orchestration operation at a time
// per service; cross-call serialization is the orchestrator's job.
type Supervisor struct {
	mu     sync.Mutex
	oracle liveness.Oracle
	logCfg logger.Config
	log    *slog.Logger
	procs  map[string]*managed
}

type managed struct {
	desc      registry.Descriptor
	cmd       cmdHandle
	pid       int
	adopted   bool
	running   bool
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	waitDone  chan struct{}
	outW      io.WriteCloser
	errW      io.WriteCloser
}

// cmdHandle is the slice of *exec.Cmd the supervisor needs; kept as an
// interface so tests can observe wait handling.
type cmdHandle interface {
	Wait() error
}

func New(oracle liveness.Oracle, logCfg logger.Config, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		oracle: oracle,
		logCfg: logCfg,
		log:    log,
		procs:  make(map[string]*managed),
	}
}

// Start launches the descriptor's process. It is idempotent: a live
// process already tracked under this name (spawned by this run, or adopted
// from its pid file) is returned as-is without spawning another.
//
// The alive-check-then-spawn sequence has a race window under truly
// concurrent invocation; callers serialize operations per service, and
// singleton services additionally hold their lock across this call.
func (s *Supervisor) Start(d registry.Descriptor) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := s.procs[d.Name]; m != nil && m.running && s.oracle.IsAlive(m.pid) {
		return m.pid, nil
	}
	if pid, ok := s.adoptLocked(d); ok {
		return pid, nil
	}
	return s.spawnLocked(d)
}

// Adopt tracks an already-running process without spawning: either one this
// supervisor knows, or one recovered from the descriptor's pid file.
func (s *Supervisor) Adopt(d registry.Descriptor) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.procs[d.Name]; m != nil && m.running && s.oracle.IsAlive(m.pid) {
		return m.pid, true
	}
	return s.adoptLocked(d)
}

// adoptLocked recovers a process a previous orchestrator run left behind,
// using the pid file's pid + start-time metadata.
func (s *Supervisor) adoptLocked(d registry.Descriptor) (int, bool) {
	if d.PIDFile == "" {
		return 0, false
	}
	pid, ok := s.oracle.ResolveLockHolder(d.PIDFile)
	if !ok || !s.oracle.IsAlive(pid) {
		return 0, false
	}
	s.log.Info("adopted running process", "service", d.Name, "pid", pid)
	s.procs[d.Name] = &managed{
		desc:      d,
		pid:       pid,
		adopted:   true,
		running:   true,
		startedAt: time.Unix(liveness.ProcStartUnix(pid), 0),
	}
	return pid, true
}

func (s *Supervisor) spawnLocked(d registry.Descriptor) (int, error) {
	cmd := buildCommand(d.Command)
	if d.WorkDir != "" {
		cmd.Dir = d.WorkDir
	}
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	setProcAttrs(cmd)

	outW, errW := s.logCfg.Writers(d.Name)
	if s.logCfg.Dir != "" {
		_ = os.MkdirAll(s.logCfg.Dir, 0o750)
	}
	// exec.Cmd connects nil Stdout/Stderr to the null device.
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return 0, fmt.Errorf("spawn %s: %w", d.Name, err)
	}

	m := &managed{
		desc:      d,
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		running:   true,
		startedAt: time.Now(),
		waitDone:  make(chan struct{}),
		outW:      outW,
		errW:      errW,
	}
	s.procs[d.Name] = m
	s.writePIDFile(d, m.pid)
	s.log.Info("spawned process", "service", d.Name, "pid", m.pid, "command", d.Command)

	go s.reap(d.Name, m)
	return m.pid, nil
}

// reap waits on the child so it never lingers as a zombie; it owns the
// exit bookkeeping for spawned processes.
func (s *Supervisor) reap(name string, m *managed) {
	err := m.cmd.Wait()
	s.mu.Lock()
	m.running = false
	m.stoppedAt = time.Now()
	m.exitErr = err
	if m.outW != nil {
		_ = m.outW.Close()
		m.outW = nil
	}
	if m.errW != nil {
		_ = m.errW.Close()
		m.errW = nil
	}
	close(m.waitDone)
	s.mu.Unlock()
	s.log.Debug("process exited", "service", name, "pid", m.pid, "err", err)
}

func (s *Supervisor) writePIDFile(d registry.Descriptor, pid int) {
	if d.PIDFile == "" {
		return
	}
	_ = os.MkdirAll(filepath.Dir(d.PIDFile), 0o750)
	m := liveness.Marker{PID: pid, StartUnix: liveness.ProcStartUnix(pid)}
	_ = os.WriteFile(d.PIDFile, m.Encode(), 0o600)
}

func (s *Supervisor) removePIDFile(d registry.Descriptor) {
	if d.PIDFile != "" {
		_ = os.Remove(d.PIDFile)
	}
}

// Stop terminates a supervised process: graceful signal, bounded grace
// window, forced kill if still alive. The result records which path was
// taken. Stopping a process that is not running is a no-op.
func (s *Supervisor) Stop(name string, grace time.Duration) (StopResult, error) {
	s.mu.Lock()
	m := s.procs[name]
	var pid int
	var running bool
	var desc registry.Descriptor
	if m != nil {
		pid, running, desc = m.pid, m.running, m.desc
	}
	s.mu.Unlock()
	if m == nil {
		return StopResult{}, fmt.Errorf("%w: %s", ErrNotManaged, name)
	}
	if !running || !s.oracle.IsAlive(pid) {
		s.markStopped(m)
		s.removePIDFile(desc)
		return StopResult{}, nil
	}

	_ = sigTerm(pid)
	if s.waitDead(m, grace) {
		s.removePIDFile(desc)
		return StopResult{Stopped: true}, nil
	}

	_ = sigKill(pid)
	if !s.waitDead(m, killConfirmWindow) {
		return StopResult{Forced: true}, fmt.Errorf("process %s (pid %d) survived SIGKILL", name, pid)
	}
	s.removePIDFile(desc)
	return StopResult{Stopped: true, Forced: true}, nil
}

// waitDead waits until the process is confirmed gone, via the reaper for
// spawned children and the oracle for adopted ones.
func (s *Supervisor) waitDead(m *managed, bound time.Duration) bool {
	if m.waitDone != nil {
		select {
		case <-m.waitDone:
			return true
		case <-time.After(bound):
			return false
		}
	}
	dead := retry.Until(bound, stopPollInterval, func() bool { return !s.oracle.IsAlive(m.pid) })
	if dead {
		s.markStopped(m)
	}
	return dead
}

func (s *Supervisor) markStopped(m *managed) {
	s.mu.Lock()
	if m.running {
		m.running = false
		m.stoppedAt = time.Now()
	}
	s.mu.Unlock()
}

// Restart is stop-then-start with the caller's grace window.
func (s *Supervisor) Restart(d registry.Descriptor, grace time.Duration) (int, error) {
	if _, err := s.Stop(d.Name, grace); err != nil && !errors.Is(err, ErrNotManaged) {
		return 0, err
	}
	return s.Start(d)
}

// Status reports the current snapshot, re-checking liveness on demand.
func (s *Supervisor) Status(name string) Status {
	s.mu.Lock()
	m := s.procs[name]
	var snap Status
	if m != nil {
		snap = Status{
			Name:      name,
			Running:   m.running,
			PID:       m.pid,
			StartedAt: m.startedAt,
			StoppedAt: m.stoppedAt,
			ExitErr:   m.exitErr,
			Adopted:   m.adopted,
		}
	}
	s.mu.Unlock()
	if m == nil {
		return Status{Name: name}
	}
	snap.Running = snap.Running && s.oracle.IsAlive(snap.PID)
	return snap
}

// Logs streams the service's captured stdout log to w. With follow, it
// keeps tailing appended output until ctx is done.
func (s *Supervisor) Logs(ctx context.Context, name string, w io.Writer, follow bool) error {
	path, _ := s.logCfg.Paths(name)
	if path == "" {
		return fmt.Errorf("no log destination configured for %s", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	if !follow {
		return nil
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := io.Copy(w, f); err != nil {
				return err
			}
		}
	}
}
