//go:build !windows

package lock

import "syscall"

// terminate asks the holder to exit gracefully.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// kill forcefully removes the holder.
func kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
