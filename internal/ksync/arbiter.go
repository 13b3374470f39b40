package ksync

import (
	"errors"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// Arbiter is an address arbiter: threads wait on and wake each other
// through the value of a shared variable. The zero value creates its kernel
// object on first use.
type Arbiter struct {
	cell handle.Cell
}

// NewArbiter creates the kernel object eagerly.
func NewArbiter(c *svc.Client) (*Arbiter, error) {
	h, err := c.CreateAddressArbiter()
	if err != nil {
		return nil, err
	}
	a := new(Arbiter)
	_, _ = a.cell.GetOrInit(func() (*handle.Owned, error) { return h, nil })
	return a, nil
}

func (a *Arbiter) handle(c *svc.Client) (handle.Borrowed, error) {
	return a.cell.GetOrInit(c.CreateAddressArbiter)
}

// Arbitrate performs one arbitration on addr.
func (a *Arbiter) Arbitrate(c *svc.Client, addr *atomic.Int32, typ svc.ArbitrationType, value int32, timeout svc.Timeout) error {
	h, err := a.handle(c)
	if err != nil {
		return err
	}
	return c.ArbitrateAddress(h, addr, typ, value, timeout)
}

// WakeUp wakes at most n threads waiting on addr.
func (a *Arbiter) WakeUp(c *svc.Client, addr *atomic.Int32, n int32) error {
	return a.Arbitrate(c, addr, svc.ArbitrateSignal, n, svc.Forever)
}

// WakeUpAll wakes every thread waiting on addr.
func (a *Arbiter) WakeUpAll(c *svc.Client, addr *atomic.Int32) error {
	return a.Arbitrate(c, addr, svc.ArbitrateSignal, -1, svc.Forever)
}

// WaitIfLessThan sleeps while *addr < value. The comparison and the sleep
// are atomic with respect to WakeUp.
func (a *Arbiter) WaitIfLessThan(c *svc.Client, addr *atomic.Int32, value int32) error {
	return a.Arbitrate(c, addr, svc.ArbitrateWaitIfLessThan, value, svc.None)
}

// WaitIfLessThanTimeout is WaitIfLessThan with a timeout.
func (a *Arbiter) WaitIfLessThanTimeout(c *svc.Client, addr *atomic.Int32, value int32, timeout svc.Timeout) error {
	return a.Arbitrate(c, addr, svc.ArbitrateWaitIfLessThanTimeout, value, timeout)
}

// DecrementAndWaitIfLessThan decrements *addr and sleeps if the old value
// was less than value.
func (a *Arbiter) DecrementAndWaitIfLessThan(c *svc.Client, addr *atomic.Int32, value int32) error {
	return a.Arbitrate(c, addr, svc.ArbitrateDecrementAndWaitIfLessThan, value, svc.None)
}

// Close destroys the kernel object.
func (a *Arbiter) Close(c *svc.Client) error {
	return a.cell.Take(c).Close()
}

// ErrStickyCleared is returned by StickyEvent.TryWait on a cleared event.
var ErrStickyCleared = errors.New("ksync: sticky event is cleared")

const (
	stickyCleared  int32 = 0
	stickySignaled int32 = 1
)

// StickyEvent stays signaled until cleared. It lives entirely in memory and
// needs no handle of its own, so it can be declared statically; waiting
// goes through the shared Arbiter.
type StickyEvent struct {
	Arbiter *Arbiter
	state   atomic.Int32
}

// NewStickyEvent returns a cleared event arbitrated by a.
func NewStickyEvent(a *Arbiter) *StickyEvent {
	return &StickyEvent{Arbiter: a}
}

// Signal sets the event and wakes all waiters.
func (e *StickyEvent) Signal(c *svc.Client) error {
	if !e.state.CompareAndSwap(stickyCleared, stickySignaled) {
		return nil
	}
	return e.Arbiter.WakeUpAll(c, &e.state)
}

// Clear resets the event.
func (e *StickyEvent) Clear() {
	e.state.Store(stickyCleared)
}

// Wait blocks until the event is signaled.
func (e *StickyEvent) Wait(c *svc.Client) error {
	for e.state.Load() != stickySignaled {
		if err := e.Arbiter.WaitIfLessThan(c, &e.state, stickySignaled); err != nil {
			return err
		}
	}
	return nil
}

// TryWait reports whether the event is signaled without blocking.
func (e *StickyEvent) TryWait() error {
	if e.state.Load() == stickySignaled {
		return nil
	}
	return ErrStickyCleared
}
