package svc

import (
	"math"
	"time"
)

// Timeout is a relative timeout in nanoseconds.
type Timeout int64

const (
	// None makes a wait return immediately.
	None Timeout = 0
	// Forever blocks until the object is signaled.
	Forever Timeout = math.MaxInt64
)

// TimeoutOf converts a duration. Negative durations become None.
func TimeoutOf(d time.Duration) Timeout {
	if d < 0 {
		return None
	}
	return Timeout(d.Nanoseconds())
}

// Duration converts back to a time.Duration.
func (t Timeout) Duration() time.Duration { return time.Duration(t) }

func (t Timeout) low() uint32  { return uint32(uint64(t)) }
func (t Timeout) high() uint32 { return uint32(uint64(t) >> 32) }

// TimeoutFromRegs reassembles a timeout from its register halves.
func TimeoutFromRegs(low, high uint32) Timeout {
	return Timeout(int64(uint64(high)<<32 | uint64(low)))
}
