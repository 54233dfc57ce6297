//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcAttrs puts the child in its own process group so stop signals
// reach the whole tree.
func setProcAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the child's process group, falling back to the
// single pid when no group exists (adopted processes).
func signalGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	return syscall.Kill(pid, sig)
}

func sigTerm(pid int) error { return signalGroup(pid, syscall.SIGTERM) }
func sigKill(pid int) error { return signalGroup(pid, syscall.SIGKILL) }
