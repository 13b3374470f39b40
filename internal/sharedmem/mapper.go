// Package sharedmem finds room in the shared-memory address window for
// kernel memory blocks and maps them there.
package sharedmem

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

const (
	// WindowStart is the first address of the default shared-memory window.
	WindowStart uint32 = 0x10000000
	// WindowEnd is the first address past the default window.
	WindowEnd uint32 = 0x14000000

	pageSize = 0x1000
)

// ErrNoGap is returned when no free range in the window can hold a
// request. It carries the OutOfMemory result code.
var ErrNoGap = fmt.Errorf("sharedmem: no gap in address window: %w", result.OutOfMemory.Err())

// Block is a mapped memory block. It must be passed back to Unmap; dropping
// it leaks the mapping and the handle.
type Block struct {
	Address uint32
	Size    uint32
	Handle  *handle.Owned
}

// Mapper allocates addresses with a rotating next-fit cursor. Map and Unmap
// are not atomic against each other: two callers racing for the same gap
// can both pick it. Callers sharing a Mapper between threads must serialize
// them.
type Mapper struct {
	start  uint32
	end    uint32
	cursor atomic.Uint32
	logger *zap.Logger
}

// NewMapper creates a mapper over [start, end).
func NewMapper(start, end uint32, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mapper{start: start, end: end, logger: logger}
	m.cursor.Store(start)
	return m
}

// NewDefaultMapper creates a mapper over the default window.
func NewDefaultMapper(logger *zap.Logger) *Mapper {
	return NewMapper(WindowStart, WindowEnd, logger)
}

// Cursor returns the address the next search starts from.
func (m *Mapper) Cursor() uint32 { return m.cursor.Load() }

// Window returns the bounds of the address window.
func (m *Mapper) Window() (start, end uint32) { return m.start, m.end }

// Map maps memory block h at the next free address able to hold size
// bytes, rounded up to whole pages. On success the block owns h; on failure
// the caller keeps it.
func (m *Mapper) Map(c *svc.Client, h *handle.Owned, size uint32, myPerm, otherPerm svc.MemoryPermission) (*Block, error) {
	size = (size + pageSize - 1) &^ (pageSize - 1)
	if size == 0 {
		size = pageSize
	}

	addr, err := m.FindGap(c, size)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("mapping memory block",
		zap.Uint32("address", addr),
		zap.Uint32("size", size),
		zap.Stringer("handle", h.Borrow()))

	if err := c.MapMemoryBlock(h.Borrow(), addr, myPerm, otherPerm); err != nil {
		return nil, err
	}
	m.cursor.Store(addr + size)

	return &Block{Address: addr, Size: size, Handle: h}, nil
}

// Unmap unmaps b, rewinds the cursor to its address and returns the handle,
// which the caller may close or map again.
func (m *Mapper) Unmap(c *svc.Client, b *Block) (*handle.Owned, error) {
	if err := c.UnmapMemoryBlock(b.Handle.Borrow(), b.Address); err != nil {
		return nil, err
	}
	m.cursor.Store(b.Address)

	m.logger.Debug("unmapped memory block",
		zap.Uint32("address", b.Address),
		zap.Uint32("size", b.Size))

	return b.Handle, nil
}

// FindGap returns the first free address at or after the cursor that can
// hold size bytes, wrapping once to the start of the window and stopping at
// the cursor.
func (m *Mapper) FindGap(c *svc.Client, size uint32) (uint32, error) {
	cursor := m.cursor.Load()
	if cursor < m.start || cursor > m.end {
		cursor = m.start
	}

	addr, err := m.findGapWithin(c, cursor, m.end, size)
	if err == nil || !errors.Is(err, ErrNoGap) {
		return addr, err
	}
	return m.findGapWithin(c, m.start, cursor, size)
}

func (m *Mapper) findGapWithin(c *svc.Client, from, to, size uint32) (uint32, error) {
	probe := from
	for uint64(probe)+uint64(size) <= uint64(to) {
		region, err := c.QueryMemory(probe)
		if err != nil {
			return 0, err
		}

		end := uint64(region.Base) + uint64(region.Size)
		if end <= uint64(probe) {
			// The kernel never reports an empty region; treat it as the end
			// of the usable space rather than spin.
			break
		}
		if region.State == svc.MemoryFree && end-uint64(probe) >= uint64(size) {
			return probe, nil
		}
		if end > uint64(to) {
			break
		}
		probe = uint32(end)
	}
	return 0, ErrNoGap
}

// CreateBlock asks the kernel for a new memory block of size bytes backed by
// kernel-allocated memory.
func CreateBlock(c *svc.Client, size uint32, myPerm, otherPerm svc.MemoryPermission) (*handle.Owned, error) {
	size = (size + pageSize - 1) &^ (pageSize - 1)
	return c.CreateMemoryBlock(0, size, myPerm, otherPerm)
}
