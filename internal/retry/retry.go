package retry

import "time"

// Until polls cond every interval until it returns true or timeout elapses.
// cond is evaluated once immediately before the first sleep. The return value
// reports whether cond became true within the bound.
//
// This is the single bounded-wait primitive shared by lock acquisition,
// health probing and stop escalation; nothing in this package sleeps past
// the caller's timeout.
func Until(timeout, interval time.Duration, cond func() bool) bool {
	if cond() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return false
		}
		if remain < interval {
			time.Sleep(remain)
		} else {
			time.Sleep(interval)
		}
		if cond() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
	}
}
