package svc

import (
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
)

// LimitType names a resource tracked by a resource limit object.
type LimitType uint32

const (
	LimitPriority LimitType = iota
	LimitMemoryAllocatable
	LimitThreads
	LimitEvents
	LimitMutexes
	LimitSemaphores
	LimitTimers
	LimitSharedMemoryHandles
	LimitAddressArbiters
	LimitCPUTime
)

// BreakReason is the argument of Break.
type BreakReason uint32

const (
	BreakPanic    BreakReason = 0
	BreakAssert   BreakReason = 1
	BreakUser     BreakReason = 2
	BreakLoadRo   BreakReason = 3
	BreakUnloadRo BreakReason = 4
)

// GetSystemTick returns the tick counter (0x28). The call has no result
// code: r0 holds the high word and r1 the low word.
func (c *Client) GetSystemTick() uint64 {
	var f Frame
	c.trapper.Trap(c.thread, NumGetSystemTick, &f)
	return uint64(f.Regs[0])<<32 | uint64(f.Regs[1])
}

// GetSystemInfo queries system information (0x2A). The 64-bit answer comes
// back low word in r1, high word in r2.
func (c *Client) GetSystemInfo(typ uint32, param int32) (int64, error) {
	f := Frame{Regs: Registers{1: typ, 2: uint32(param)}}
	if err := c.call(NumGetSystemInfo, &f); err != nil {
		return 0, err
	}
	return int64(uint64(f.Regs[2])<<32 | uint64(f.Regs[1])), nil
}

// GetProcessID returns the id of the process h refers to (0x35).
func (c *Client) GetProcessID(process handle.Borrowed) (uint32, error) {
	f := Frame{Regs: Registers{1: process.Raw()}}
	if err := c.call(NumGetProcessID, &f); err != nil {
		return 0, err
	}
	return f.Regs[1], nil
}

// GetResourceLimit returns the resource limit object of a process (0x38).
func (c *Client) GetResourceLimit(process handle.Borrowed) (*handle.Owned, error) {
	var out uint32
	var f Frame
	f.Bind(0, &out)
	f.Regs[1] = process.Raw()
	if err := c.call(NumGetResourceLimit, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// GetResourceLimitLimitValues fills values with the limit of each type (0x39).
func (c *Client) GetResourceLimitLimitValues(limits handle.Borrowed, values []int64, types []LimitType) error {
	return c.resourceLimitValues(NumGetResourceLimitLimitValues, limits, values, types)
}

// GetResourceLimitCurrentValues fills values with the current use of each type (0x3A).
func (c *Client) GetResourceLimitCurrentValues(limits handle.Borrowed, values []int64, types []LimitType) error {
	return c.resourceLimitValues(NumGetResourceLimitCurrentValues, limits, values, types)
}

func (c *Client) resourceLimitValues(num Number, limits handle.Borrowed, values []int64, types []LimitType) error {
	if len(values) != len(types) {
		panic("svc: resource limit values and types differ in length")
	}
	var f Frame
	f.Bind(0, values)
	f.Regs[1] = limits.Raw()
	f.Bind(2, types)
	f.Regs[3] = uint32(len(types))
	return c.call(num, &f)
}

// Break stops the process with reason (0x3C).
func (c *Client) Break(reason BreakReason) {
	f := Frame{Regs: Registers{uint32(reason)}}
	c.trapper.Trap(c.thread, NumBreak, &f)
	noReturn(NumBreak)
}

// OutputDebugString sends bytes to the attached debugger (0x3D).
func (c *Client) OutputDebugString(msg []byte) {
	var f Frame
	f.Bind(0, msg)
	f.Regs[1] = uint32(len(msg))
	_ = c.invoke(NumOutputDebugString, &f)
}

// OutputDebugJSON encodes v as JSON and sends it as a debug string.
func (c *Client) OutputDebugJSON(v any) error {
	b, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	c.OutputDebugString(b)
	return nil
}

// StopPoint traps into an attached debugger (0xFF).
func (c *Client) StopPoint() {
	var f Frame
	c.trapper.Trap(c.thread, NumStopPoint, &f)
}
