package main

import (
	"errors"
	"strings"
	"testing"

	stack "github.com/mod-net/stack"
)

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot()
	want := []string{"start", "stop", "restart", "status", "logs", "test", "serve"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestTestCommandAcceptsServiceArg(t *testing.T) {
	root := buildRoot()
	cmd, args, err := root.Find([]string{"test", "chain-node"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if cmd.Name() != "test" {
		t.Fatalf("resolved %q, want the test subcommand", cmd.Name())
	}
	if err := cmd.Args(cmd, args); err != nil {
		t.Fatalf("test subcommand rejects a service argument: %v", err)
	}
	if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
		t.Fatalf("test subcommand accepts two arguments")
	}
}

func TestStartRejectsExtraArgs(t *testing.T) {
	root := buildRoot()
	root.SetArgs([]string{"start", "chain-node", "extra"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected an argument error")
	}
}

func TestStatusTableRendersRows(t *testing.T) {
	out := statusTable([]stack.Status{
		{Name: "chain-node", State: "running", PID: 4242, Healthy: true},
		{Name: "storage-daemon", State: "stopped", Singleton: true},
	})
	for _, want := range []string{"SERVICE", "chain-node", "running", "4242", "storage-daemon", "stopped"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestCheckTableRendersTargets(t *testing.T) {
	out := checkTable([]stack.CheckResult{
		{Name: "bridge-worker", Target: "http://127.0.0.1:8765/health", Healthy: false, Detail: "connection refused"},
	})
	for _, want := range []string{"bridge-worker", "http://127.0.0.1:8765/health", "connection refused"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestJournalTableHandlesMissingEvents(t *testing.T) {
	sts := []stack.Status{{Name: "chain-node"}, {Name: "dashboard"}}
	events := map[string]stack.Event{
		"chain-node": {Service: "chain-node", State: "stopped", Forced: true, Detail: "graceful signal ignored, forced kill"},
	}
	out := journalTable(sts, events)
	for _, want := range []string{"chain-node", "stopped", "forced kill", "dashboard"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestReportBulkAggregatesFailures(t *testing.T) {
	res := &stack.BulkResult{
		Attempted: []string{"chain-node", "bridge-worker"},
		Failed:    []string{"bridge-worker"},
		Errors:    map[string]error{"bridge-worker": errors.New("health check timed out")},
	}
	err := reportBulk(res, "started")
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("aggregate error: %v", err)
	}
	if err := reportBulk(&stack.BulkResult{Attempted: []string{"chain-node"}}, "started"); err != nil {
		t.Fatalf("clean bulk returned %v", err)
	}
}
