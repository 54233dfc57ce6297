package stack

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func testStack(t *testing.T) *Stack {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.BaseDir = dir
	cfg.LockDir = filepath.Join(dir, "locks")
	cfg.RunDir = filepath.Join(dir, "run")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.StopGrace = time.Second
	s, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new stack: %v", err)
	}
	t.Cleanup(func() {
		s.StopAll()
		_ = s.Close()
	})
	return s
}

func TestFacadeServicesInDependencyOrder(t *testing.T) {
	s := testStack(t)
	names := s.Services()
	if len(names) != 4 {
		t.Fatalf("got %d services: %v", len(names), names)
	}
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	if pos[BridgeWorker] < pos[ChainNode] || pos[BridgeWorker] < pos[StorageDaemon] {
		t.Fatalf("bridge-worker ordered before its dependencies: %v", names)
	}
	if pos[Dashboard] < pos[BridgeWorker] {
		t.Fatalf("dashboard ordered before bridge-worker: %v", names)
	}
}

func TestFacadeUnknownService(t *testing.T) {
	s := testStack(t)
	if err := s.Start("telemetry"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("start unknown: %v", err)
	}
	if _, err := s.Status("telemetry"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("status unknown: %v", err)
	}
}

func TestFacadeJournalRecordsStops(t *testing.T) {
	requireUnix(t)
	s := testStack(t)
	// Default sqlite journal: a stop attempt must leave a trace even when
	// nothing was running.
	if res := s.StopAll(); !res.OK() {
		t.Fatalf("stop all: %v", res.Err())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	evs, err := s.Recent(ctx, StorageDaemon, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(evs) == 0 {
		t.Fatalf("no journal events for %s", StorageDaemon)
	}
	if evs[0].State != "stopped" {
		t.Fatalf("newest event state %q, want stopped", evs[0].State)
	}
}

func TestRegisterMetricsIdempotent(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}
