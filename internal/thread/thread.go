// Package thread spawns kernel threads running Go functions.
package thread

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

const (
	// DefaultPriority is the priority of threads spawned without one.
	DefaultPriority int32 = 0x30
	// DefaultStackSize is the stack size of threads spawned without one.
	DefaultStackSize = 0x1000
	// DefaultProcessor lets the kernel pick the core.
	DefaultProcessor int32 = -2
)

// Builder configures a thread before it is spawned.
type Builder struct {
	Priority    int32
	StackSize   int
	ProcessorID int32
}

// NewBuilder returns a builder with the default settings.
func NewBuilder() Builder {
	return Builder{
		Priority:    DefaultPriority,
		StackSize:   DefaultStackSize,
		ProcessorID: DefaultProcessor,
	}
}

// WithPriority returns a copy of b with the given priority.
func (b Builder) WithPriority(p int32) Builder {
	b.Priority = p
	return b
}

// WithStackSize returns a copy of b with the given stack size.
func (b Builder) WithStackSize(n int) Builder {
	b.StackSize = n
	return b
}

// PanicError is returned by Join when the thread function panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("thread: panicked: %v", e.Value)
}

// memory is the single allocation shared with the running thread: its
// stack, the function to run and the slot the result is stored in.
type memory[T any] struct {
	stack    []byte
	run      func(c *svc.Client) T
	result   T
	panicked any
}

// JoinHandle owns a running thread. Dropping it without Join leaks the
// thread handle and its memory for the lifetime of the process.
type JoinHandle[T any] struct {
	h   *handle.Owned
	mem *memory[T]
}

// Spawn starts f on a new thread with the default settings.
func Spawn[T any](c *svc.Client, f func(c *svc.Client) T) (*JoinHandle[T], error) {
	return SpawnWith(c, NewBuilder(), f)
}

// SpawnWith starts f on a new thread configured by b. f receives a client
// bound to the new thread.
func SpawnWith[T any](c *svc.Client, b Builder, f func(c *svc.Client) T) (*JoinHandle[T], error) {
	stack := (b.StackSize + 7) &^ 7
	mem := &memory[T]{
		stack: make([]byte, stack),
		run:   f,
	}

	entry := func(thread *tls.Storage, arg any) {
		m := arg.(*memory[T])
		tc := c.ForThread(thread)
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.panicked = r
				}
			}()
			m.result = m.run(tc)
		}()
		tc.ExitThread()
	}

	c.Logger().Debug("launching thread",
		zap.Int32("priority", b.Priority),
		zap.Int("stack_size", stack),
		zap.Int32("processor", b.ProcessorID))

	h, err := c.CreateThread(b.Priority, entry, mem, mem.stack, b.ProcessorID)
	if err != nil {
		return nil, err
	}
	return &JoinHandle[T]{h: h, mem: mem}, nil
}

// Handle returns a borrowed view of the thread handle.
func (j *JoinHandle[T]) Handle() handle.Borrowed { return j.h.Borrow() }

// Join waits for the thread to exit, releases its memory and returns what
// the thread function returned.
func (j *JoinHandle[T]) Join(c *svc.Client) (T, error) {
	var zero T
	if j.mem == nil {
		return zero, fmt.Errorf("thread: already joined")
	}
	if err := c.WaitSynchronization(j.h.Borrow(), svc.Forever); err != nil {
		return zero, err
	}

	mem := j.mem
	j.mem = nil
	_ = j.h.Close()

	if mem.panicked != nil {
		return zero, &PanicError{Value: mem.panicked}
	}
	return mem.result, nil
}

// IsRunning reports whether the thread has not exited yet.
func (j *JoinHandle[T]) IsRunning(c *svc.Client) bool {
	return c.WaitSynchronization(j.h.Borrow(), svc.None) != nil
}

// Priority returns the thread's current priority.
func (j *JoinHandle[T]) Priority(c *svc.Client) (int32, error) {
	return c.GetThreadPriority(j.h.Borrow())
}
