package ksync

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// Mutex is a kernel mutex. The zero value is an unlocked mutex whose kernel
// object is created on first use, so a Mutex can be declared before any
// syscall is possible. The kernel mutex is recursive and owned by the
// locking thread.
type Mutex struct {
	cell handle.Cell
}

// NewMutex creates the kernel object eagerly.
func NewMutex(c *svc.Client) (*Mutex, error) {
	h, err := c.CreateMutex(false)
	if err != nil {
		return nil, err
	}
	return MutexFromHandle(h), nil
}

// MutexFromHandle adopts a mutex handle.
func MutexFromHandle(h *handle.Owned) *Mutex {
	m := new(Mutex)
	_, _ = m.cell.GetOrInit(func() (*handle.Owned, error) { return h, nil })
	return m
}

func (m *Mutex) handle(c *svc.Client) (handle.Borrowed, error) {
	return m.cell.GetOrInit(func() (*handle.Owned, error) {
		return c.CreateMutex(false)
	})
}

// Handle returns the kernel handle, or a closed handle before first use.
func (m *Mutex) Handle() handle.Borrowed { return m.cell.Get() }

// Lock blocks until the calling thread owns the mutex.
func (m *Mutex) Lock(c *svc.Client) error {
	return m.TryLockFor(c, svc.Forever)
}

// TryLock acquires the mutex if it is free, without blocking.
func (m *Mutex) TryLock(c *svc.Client) bool {
	return m.TryLockFor(c, svc.None) == nil
}

// TryLockFor waits at most timeout for the mutex.
func (m *Mutex) TryLockFor(c *svc.Client, timeout svc.Timeout) error {
	h, err := m.handle(c)
	if err != nil {
		return err
	}
	return c.WaitSynchronization(h, timeout)
}

// TryLockUntil waits for the mutex until the tick counter reaches deadline.
func (m *Mutex) TryLockUntil(c *svc.Client, deadline SystemTick) error {
	return m.TryLockFor(c, deadline.Until(Now(c)))
}

// Unlock releases the mutex held by the calling thread.
func (m *Mutex) Unlock(c *svc.Client) error {
	h, err := m.handle(c)
	if err != nil {
		return err
	}
	return c.ReleaseMutex(h)
}

// Close destroys the kernel object. The Mutex can be used again afterwards
// and will create a new one.
func (m *Mutex) Close(c *svc.Client) error {
	return m.cell.Take(c).Close()
}

// Locker returns a sync.Locker for the thread behind c. Its methods panic
// when the kernel refuses the operation.
func (m *Mutex) Locker(c *svc.Client) sync.Locker {
	return locker{m: m, c: c}
}

type locker struct {
	m *Mutex
	c *svc.Client
}

func (l locker) Lock() {
	if err := l.m.Lock(l.c); err != nil {
		panic(fmt.Sprintf("ksync: lock mutex: %v", err))
	}
}

func (l locker) Unlock() {
	if err := l.m.Unlock(l.c); err != nil {
		panic(fmt.Sprintf("ksync: unlock mutex: %v", err))
	}
}
