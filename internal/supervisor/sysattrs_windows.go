//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setProcAttrs(_ *exec.Cmd) {}

func killPID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Windows cannot signal an unrelated process gracefully; both paths kill.
func sigTerm(pid int) error { return killPID(pid) }
func sigKill(pid int) error { return killPID(pid) }
