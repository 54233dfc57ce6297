//go:build !windows

package supervisor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/mod-net/stack/internal/liveness"
	"github.com/mod-net/stack/internal/logger"
	"github.com/mod-net/stack/internal/registry"
	"github.com/mod-net/stack/internal/retry"
)

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	s := New(liveness.New(), logger.Config{Dir: filepath.Join(dir, "logs")}, nil)
	return s, dir
}

func desc(name, command, dir string) registry.Descriptor {
	return registry.Descriptor{
		Name:    name,
		Command: command,
		PIDFile: filepath.Join(dir, name+".pid"),
	}
}

func TestStartIdempotent(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("chain-node", "sleep 30", dir)

	pid1, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _, _ = s.Stop(d.Name, time.Second) })

	pid2, err := s.Start(d)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if pid1 != pid2 {
		t.Fatalf("duplicate spawn: %d vs %d", pid1, pid2)
	}
}

func TestStartWithoutLogCapture(t *testing.T) {
	dir := t.TempDir()
	s := New(liveness.New(), logger.Config{}, nil)
	d := desc("chain-node", "sleep 30", dir)

	pid, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !liveness.New().IsAlive(pid) {
		t.Fatalf("pid %d not alive", pid)
	}
	if res, err := s.Stop(d.Name, time.Second); err != nil || !res.Stopped {
		t.Fatalf("stop: %+v, %v", res, err)
	}
}

func TestStartFailureSurfaces(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("bridge-worker", "/definitely/not/a/binary-xyz", dir)
	if _, err := s.Start(d); err == nil {
		t.Fatalf("expected spawn failure")
	}
}

func TestStopGraceful(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("dashboard", "sleep 30", dir)
	pid, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := s.Stop(d.Name, 3*time.Second)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !res.Stopped || res.Forced {
		t.Fatalf("expected graceful stop, got %+v", res)
	}
	if liveness.New().IsAlive(pid) {
		t.Fatalf("pid %d still alive after stop", pid)
	}
	st := s.Status(d.Name)
	if st.Running {
		t.Fatalf("status still running after stop")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	s, dir := newTestSupervisor(t)
	armed := filepath.Join(dir, "armed")
	d := desc("storage-daemon", `/bin/sh -c 'trap "" TERM; : > `+armed+`; while :; do sleep 0.1; done'`, dir)
	if _, err := s.Start(d); err != nil {
		t.Fatalf("start: %v", err)
	}
	// The child signals readiness after installing its trap, so the stop
	// signal cannot win the race against trap setup.
	if !retry.Until(3*time.Second, 10*time.Millisecond, func() bool {
		_, err := os.Stat(armed)
		return err == nil
	}) {
		t.Fatalf("child never armed its trap")
	}

	res, err := s.Stop(d.Name, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !res.Stopped || !res.Forced {
		t.Fatalf("expected forced stop, got %+v", res)
	}
}

func TestStopNotRunningIsNoop(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("dashboard", "true", dir)
	pid, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Wait for the short-lived child to exit and be reaped.
	if !retry.Until(3*time.Second, 20*time.Millisecond, func() bool { return !s.Status(d.Name).Running }) {
		t.Fatalf("pid %d never exited", pid)
	}
	res, err := s.Stop(d.Name, time.Second)
	if err != nil {
		t.Fatalf("stop after exit: %v", err)
	}
	if res.Stopped || res.Forced {
		t.Fatalf("stop of dead process should be a no-op, got %+v", res)
	}
}

func TestStopUnknownService(t *testing.T) {
	s, _ := newTestSupervisor(t)
	if _, err := s.Stop("ghost", time.Second); err == nil {
		t.Fatalf("expected ErrNotManaged")
	}
}

func TestAdoptFromPIDFile(t *testing.T) {
	dir := t.TempDir()
	// A process left behind by a previous orchestrator run.
	orphan := exec.Command("sleep", "30")
	if err := orphan.Start(); err != nil {
		t.Fatalf("start orphan: %v", err)
	}
	t.Cleanup(func() {
		_ = orphan.Process.Kill()
		_, _ = orphan.Process.Wait()
	})
	go func() { _ = orphan.Wait() }()

	d := desc("chain-node", "sleep 30", dir)
	m := liveness.Marker{PID: orphan.Process.Pid, StartUnix: liveness.ProcStartUnix(orphan.Process.Pid)}
	if err := os.WriteFile(d.PIDFile, m.Encode(), 0o644); err != nil {
		t.Fatalf("write pidfile: %v", err)
	}

	s := New(liveness.New(), logger.Config{}, nil)
	pid, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if pid != orphan.Process.Pid {
		t.Fatalf("spawned a duplicate (pid %d) instead of adopting %d", pid, orphan.Process.Pid)
	}
	if !s.Status(d.Name).Adopted {
		t.Fatalf("status does not record adoption")
	}
}

func TestLogsCaptured(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("bridge-worker", `/bin/sh -c 'echo bridge ready; sleep 20'`, dir)
	if _, err := s.Start(d); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _, _ = s.Stop(d.Name, time.Second) })

	var buf bytes.Buffer
	ok := retry.Until(3*time.Second, 50*time.Millisecond, func() bool {
		buf.Reset()
		if err := s.Logs(context.Background(), d.Name, &buf, false); err != nil {
			return false
		}
		return bytes.Contains(buf.Bytes(), []byte("bridge ready"))
	})
	if !ok {
		t.Fatalf("log output not captured, got %q", buf.String())
	}
}

func TestRestartChangesPID(t *testing.T) {
	s, dir := newTestSupervisor(t)
	d := desc("dashboard", "sleep 30", dir)
	pid1, err := s.Start(d)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	pid2, err := s.Restart(d, 2*time.Second)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	t.Cleanup(func() { _, _ = s.Stop(d.Name, time.Second) })
	if pid1 == pid2 {
		t.Fatalf("restart kept pid %d", pid1)
	}
}
