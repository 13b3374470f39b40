package handle

import "sync/atomic"

// Cell is a lazily initialized handle shared between threads. The zero
// value is empty and usable without any syscall.
type Cell struct {
	raw atomic.Uint32
}

// Get returns the current value without initializing.
func (c *Cell) Get() Borrowed {
	return Borrowed(c.raw.Load())
}

// GetOrInit returns the handle in the cell, creating it with create on first
// use. When several callers race, exactly one created handle is installed;
// every other candidate is closed before returning and all callers observe
// the installed value.
func (c *Cell) GetOrInit(create func() (*Owned, error)) (Borrowed, error) {
	if raw := c.raw.Load(); raw != Closed {
		return Borrowed(raw), nil
	}

	candidate, err := create()
	if err != nil {
		return Borrowed(Closed), err
	}

	raw := candidate.Borrow().Raw()
	if c.raw.CompareAndSwap(Closed, raw) {
		candidate.Leak()
		return Borrowed(raw), nil
	}

	// Lost the race. The error from closing our own candidate is not the
	// caller's concern; the installed handle is valid.
	_ = candidate.Close()
	return Borrowed(c.raw.Load()), nil
}

// Take empties the cell and returns ownership of its handle, if any.
func (c *Cell) Take(k Kernel) *Owned {
	return New(k, c.raw.Swap(Closed))
}
