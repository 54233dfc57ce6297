//go:build windows

package liveness

import (
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type platformOracle struct{}

func (platformOracle) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}

func (o platformOracle) ResolveLockHolder(lockPath string) (int, bool) {
	m, err := ReadMarker(lockPath)
	if err != nil || m.PID <= 0 {
		return 0, false
	}
	if m.StartUnix > 0 {
		if cur := ProcStartUnix(m.PID); cur > 0 && cur != m.StartUnix {
			return 0, false
		}
	}
	return m.PID, true
}

// ProcStartUnix returns the process start time as Unix seconds, or 0 when
// unavailable.
func ProcStartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
