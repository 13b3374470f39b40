package svc

import (
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
)

// ResetType selects how an event returns to the unsignaled state.
type ResetType uint32

const (
	// ResetOneShot clears the event when one waiter is released.
	ResetOneShot ResetType = 0
	// ResetSticky keeps the event signaled until ClearEvent.
	ResetSticky ResetType = 1
	// ResetPulse releases current waiters and clears.
	ResetPulse ResetType = 2
)

// ArbitrationType is the operation performed by ArbitrateAddress.
type ArbitrationType uint32

const (
	ArbitrateSignal                            ArbitrationType = 0
	ArbitrateWaitIfLessThan                    ArbitrationType = 1
	ArbitrateDecrementAndWaitIfLessThan        ArbitrationType = 2
	ArbitrateWaitIfLessThanTimeout             ArbitrationType = 3
	ArbitrateDecrementAndWaitIfLessThanTimeout ArbitrationType = 4
)

// CreateMutex creates a kernel mutex (0x13).
func (c *Client) CreateMutex(initiallyLocked bool) (*handle.Owned, error) {
	f := Frame{Regs: Registers{flag(initiallyLocked)}}
	if err := c.call(NumCreateMutex, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// ReleaseMutex releases a mutex held by the calling thread (0x14).
func (c *Client) ReleaseMutex(h handle.Borrowed) error {
	f := Frame{Regs: Registers{h.Raw()}}
	return c.call(NumReleaseMutex, &f)
}

// CreateEvent creates an event (0x17).
func (c *Client) CreateEvent(reset ResetType) (*handle.Owned, error) {
	f := Frame{Regs: Registers{uint32(reset)}}
	if err := c.call(NumCreateEvent, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// SignalEvent signals an event (0x18).
func (c *Client) SignalEvent(h handle.Borrowed) error {
	f := Frame{Regs: Registers{h.Raw()}}
	return c.call(NumSignalEvent, &f)
}

// ClearEvent clears an event (0x19).
func (c *Client) ClearEvent(h handle.Borrowed) error {
	f := Frame{Regs: Registers{h.Raw()}}
	return c.call(NumClearEvent, &f)
}

// CreateAddressArbiter creates an address arbiter (0x21).
func (c *Client) CreateAddressArbiter() (*handle.Owned, error) {
	var f Frame
	if err := c.call(NumCreateAddressArbiter, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// ArbitrateAddress waits on or wakes threads waiting on the value at addr
// (0x22). For Signal, value is the number of threads to wake, negative for
// all of them.
func (c *Client) ArbitrateAddress(arbiter handle.Borrowed, addr *atomic.Int32, typ ArbitrationType, value int32, timeout Timeout) error {
	var f Frame
	f.Regs[0] = arbiter.Raw()
	f.Bind(1, addr)
	f.Regs[2] = uint32(typ)
	f.Regs[3] = uint32(value)
	f.Regs[4] = timeout.low()
	f.Regs[5] = timeout.high()
	return c.call(NumArbitrateAddress, &f)
}

// WaitSynchronization waits for h to be signaled (0x24). Note the high
// half of the timeout goes in r2 and the low half in r3.
func (c *Client) WaitSynchronization(h handle.Borrowed, timeout Timeout) error {
	f := Frame{Regs: Registers{h.Raw(), 0, timeout.high(), timeout.low()}}
	return c.call(NumWaitSynchronization, &f)
}

// WaitSynchronizationN waits on several handles (0x25). With waitAll it
// returns once every handle is signaled; otherwise it returns the index of
// the handle that woke the thread, or -1 when the kernel reports none.
func (c *Client) WaitSynchronizationN(handles []handle.Borrowed, waitAll bool, timeout Timeout) (int, error) {
	var f Frame
	f.Regs[0] = timeout.low()
	f.Bind(1, handles)
	f.Regs[2] = uint32(len(handles))
	f.Regs[3] = flag(waitAll)
	f.Regs[4] = timeout.high()
	base := f.Regs[1]

	if err := c.call(NumWaitSynchronizationN, &f); err != nil {
		return 0, err
	}
	signaled := f.Regs[1]
	if signaled == 0 {
		return -1, nil
	}
	return int(signaled-base) / 4, nil
}
