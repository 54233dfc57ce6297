package supervisor

import (
	"strings"
	"testing"
)

func TestBuildCommandPlain(t *testing.T) {
	cmd := buildCommand("mod-net-node --dev --rpc-port 9944")
	if !strings.HasSuffix(cmd.Path, "mod-net-node") && cmd.Args[0] != "mod-net-node" {
		t.Fatalf("path = %q args = %v", cmd.Path, cmd.Args)
	}
	if len(cmd.Args) != 4 {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestBuildCommandMetacharsUseShell(t *testing.T) {
	cmd := buildCommand("ipfs daemon > /dev/null 2>&1")
	if cmd.Path != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell wrap, got %q %v", cmd.Path, cmd.Args)
	}
}

func TestBuildCommandExplicitShellNotDoubleWrapped(t *testing.T) {
	cmd := buildCommand(`sh -c 'echo hi > /tmp/x'`)
	if cmd.Path != "/bin/sh" {
		t.Fatalf("path = %q", cmd.Path)
	}
	if got := cmd.Args[len(cmd.Args)-1]; got != "echo hi > /tmp/x" {
		t.Fatalf("inner script = %q", got)
	}
}

func TestBuildCommandEmpty(t *testing.T) {
	cmd := buildCommand("   ")
	if cmd.Path != "/bin/true" {
		t.Fatalf("path = %q", cmd.Path)
	}
}
