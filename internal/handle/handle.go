// Package handle implements ownership of kernel object handles.
//
// An Owned handle is closed exactly once, either by Close or never at all
// after Leak hands its raw value to someone else. A Borrowed handle is a
// plain value that refers to an object owned elsewhere and can never be
// closed through this package.
package handle

import (
	"fmt"
	"sync/atomic"
)

// Closed is the raw value of a handle that refers to nothing.
const Closed uint32 = 0

// Kernel is the subset of the syscall layer handle ownership needs.
type Kernel interface {
	CloseHandle(h Borrowed) error
	DuplicateHandle(h Borrowed) (*Owned, error)
}

// Borrowed is a non-owning view of a handle.
type Borrowed uint32

const (
	// CurrentThread always refers to the calling thread.
	CurrentThread Borrowed = 0xFFFF8000
	// CurrentProcess always refers to the calling process.
	CurrentProcess Borrowed = 0xFFFF8001
)

// Raw returns the register value.
func (b Borrowed) Raw() uint32 { return uint32(b) }

// IsClosed reports whether b is the closed sentinel.
func (b Borrowed) IsClosed() bool { return uint32(b) == Closed }

// IsPseudo reports whether b is one of the well-known constants that are
// valid without being created.
func (b Borrowed) IsPseudo() bool { return b == CurrentThread || b == CurrentProcess }

func (b Borrowed) String() string {
	switch b {
	case CurrentThread:
		return "handle(current-thread)"
	case CurrentProcess:
		return "handle(current-process)"
	}
	return fmt.Sprintf("handle(%#08x)", uint32(b))
}

// Owned is an owning handle. The zero value is closed.
type Owned struct {
	raw    atomic.Uint32
	kernel Kernel
}

// New takes ownership of raw, a value returned by the kernel.
func New(k Kernel, raw uint32) *Owned {
	o := &Owned{kernel: k}
	o.raw.Store(raw)
	return o
}

// Borrow returns a non-owning view. It reads as Closed once o is closed or
// leaked.
func (o *Owned) Borrow() Borrowed {
	if o == nil {
		return Borrowed(Closed)
	}
	return Borrowed(o.raw.Load())
}

// IsClosed reports whether o no longer owns a handle.
func (o *Owned) IsClosed() bool { return o.Borrow().IsClosed() }

// Close closes the handle. Only the first call reaches the kernel; later
// calls return nil.
func (o *Owned) Close() error {
	if o == nil {
		return nil
	}
	raw := o.raw.Swap(Closed)
	if raw == Closed {
		return nil
	}
	return o.kernel.CloseHandle(Borrowed(raw))
}

// Leak gives up ownership and returns the raw value. The caller, or the
// kernel it is handed to, becomes responsible for closing it.
func (o *Owned) Leak() uint32 {
	if o == nil {
		return Closed
	}
	return o.raw.Swap(Closed)
}

// Take moves ownership into a new Owned, leaving o closed.
func (o *Owned) Take() *Owned {
	return New(o.kernel, o.Leak())
}

// Duplicate asks the kernel for a second owning handle to the same object.
func (o *Owned) Duplicate() (*Owned, error) {
	return o.kernel.DuplicateHandle(o.Borrow())
}

func (o *Owned) String() string {
	if o.IsClosed() {
		return "handle(closed)"
	}
	return o.Borrow().String()
}
