//go:build windows

package lock

import "os"

// terminate asks the holder to exit. Windows has no graceful signal for
// unrelated processes, so both paths end at Kill.
func terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func kill(pid int) error {
	return terminate(pid)
}
