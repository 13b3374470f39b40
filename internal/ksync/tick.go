package ksync

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// TicksPerSecond is the rate of the system tick counter.
const TicksPerSecond = 268_111_856

// SystemTick is a reading of the monotonic system tick counter.
type SystemTick uint64

// Now reads the tick counter.
func Now(c *svc.Client) SystemTick {
	return SystemTick(c.GetSystemTick())
}

// TicksFor converts a duration to ticks.
func TicksFor(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ns := uint64(d)
	sec, rem := ns/uint64(time.Second), ns%uint64(time.Second)
	return sec*TicksPerSecond + rem*TicksPerSecond/uint64(time.Second)
}

// Duration converts a tick count to a duration.
func Duration(ticks uint64) time.Duration {
	sec, rem := ticks/TicksPerSecond, ticks%TicksPerSecond
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)/TicksPerSecond)
}

// Add returns the tick d after t.
func (t SystemTick) Add(d time.Duration) SystemTick {
	return t + SystemTick(TicksFor(d))
}

// Until returns the timeout from now to t, or svc.None if t has passed.
func (t SystemTick) Until(now SystemTick) svc.Timeout {
	if t <= now {
		return svc.None
	}
	return svc.TimeoutOf(Duration(uint64(t - now)))
}
