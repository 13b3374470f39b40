package svc

import (
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// EntryPoint is the first function a created thread runs. thread is the new
// thread's local storage and arg the value passed to CreateThread.
type EntryPoint func(thread *tls.Storage, arg any)

// CreateThread starts a thread running entry(arg) on the given stack (0x08).
// processor -2 selects the default core.
func (c *Client) CreateThread(priority int32, entry EntryPoint, arg any, stack []byte, processor int32) (*handle.Owned, error) {
	var f Frame
	f.Regs[0] = uint32(priority)
	f.Bind(1, entry)
	f.Bind(2, arg)
	f.Bind(3, stack)
	f.Regs[4] = uint32(processor)
	if err := c.call(NumCreateThread, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// ExitThread terminates the calling thread (0x09).
func (c *Client) ExitThread() {
	var f Frame
	c.trapper.Trap(c.thread, NumExitThread, &f)
	noReturn(NumExitThread)
}

// ExitProcess terminates the calling process (0x03).
func (c *Client) ExitProcess() {
	var f Frame
	c.trapper.Trap(c.thread, NumExitProcess, &f)
	noReturn(NumExitProcess)
}

// SleepThread pauses the calling thread (0x0A). The result code is not
// reported; the call cannot meaningfully fail.
func (c *Client) SleepThread(d Timeout) {
	f := Frame{Regs: Registers{d.low(), d.high()}}
	_ = c.invoke(NumSleepThread, &f)
}

// GetThreadPriority returns the priority of thread h (0x0B).
func (c *Client) GetThreadPriority(h handle.Borrowed) (int32, error) {
	f := Frame{Regs: Registers{1: h.Raw()}}
	if err := c.call(NumGetThreadPriority, &f); err != nil {
		return 0, err
	}
	return int32(f.Regs[1]), nil
}
