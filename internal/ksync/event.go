package ksync

import (
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// ResetType values re-exported for callers that only import ksync.
const (
	ResetOneShot = svc.ResetOneShot
	ResetSticky  = svc.ResetSticky
	ResetPulse   = svc.ResetPulse
)

// Event is a kernel event.
type Event struct {
	client *svc.Client
	h      *handle.Owned
}

// NewEvent creates an event with the given reset policy.
func NewEvent(c *svc.Client, reset svc.ResetType) (*Event, error) {
	h, err := c.CreateEvent(reset)
	if err != nil {
		return nil, err
	}
	return &Event{client: c, h: h}, nil
}

// EventFromHandle adopts an event handle, for example one received over IPC.
func EventFromHandle(c *svc.Client, h *handle.Owned) *Event {
	return &Event{client: c, h: h}
}

// Handle returns a borrowed view of the event handle.
func (e *Event) Handle() handle.Borrowed { return e.h.Borrow() }

// Wait blocks until the event is signaled or timeout passes. A timeout is
// reported as result.TimedOut.
func (e *Event) Wait(timeout svc.Timeout) error {
	return e.client.WaitSynchronization(e.h.Borrow(), timeout)
}

// Signal signals the event.
func (e *Event) Signal() error {
	return e.client.SignalEvent(e.h.Borrow())
}

// Clear resets the event.
func (e *Event) Clear() error {
	return e.client.ClearEvent(e.h.Borrow())
}

// Duplicate returns a second Event on the same kernel object.
func (e *Event) Duplicate() (*Event, error) {
	h, err := e.h.Duplicate()
	if err != nil {
		return nil, err
	}
	return &Event{client: e.client, h: h}, nil
}

// Close closes the event handle.
func (e *Event) Close() error { return e.h.Close() }

func handlesOf(events []*Event) []handle.Borrowed {
	hs := make([]handle.Borrowed, len(events))
	for i, e := range events {
		hs[i] = e.Handle()
	}
	return hs
}

// WaitAny blocks until one of events is signaled and returns its index.
func WaitAny(c *svc.Client, events []*Event, timeout svc.Timeout) (int, error) {
	return c.WaitSynchronizationN(handlesOf(events), false, timeout)
}

// WaitAll blocks until every event is signaled.
func WaitAll(c *svc.Client, events []*Event, timeout svc.Timeout) error {
	_, err := c.WaitSynchronizationN(handlesOf(events), true, timeout)
	return err
}
