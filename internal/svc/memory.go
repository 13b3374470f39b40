package svc

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
)

// MemoryState is the state of a region reported by QueryMemory.
type MemoryState uint32

const (
	MemoryFree       MemoryState = 0
	MemoryReserved   MemoryState = 1
	MemoryIO         MemoryState = 2
	MemoryStatic     MemoryState = 3
	MemoryCode       MemoryState = 4
	MemoryPrivate    MemoryState = 5
	MemoryShared     MemoryState = 6
	MemoryContinuous MemoryState = 7
	MemoryAliased    MemoryState = 8
	MemoryAlias      MemoryState = 9
	MemoryAliasCode  MemoryState = 10
	MemoryLocked     MemoryState = 11
)

var memoryStateNames = [...]string{
	"free", "reserved", "io", "static", "code", "private",
	"shared", "continuous", "aliased", "alias", "alias_code", "locked",
}

func (s MemoryState) String() string {
	if int(s) < len(memoryStateNames) {
		return memoryStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint32(s))
}

// MemoryPermission is a page protection.
type MemoryPermission uint32

const (
	PermNone     MemoryPermission = 0
	PermR        MemoryPermission = 1
	PermW        MemoryPermission = 2
	PermRW       MemoryPermission = 3
	PermX        MemoryPermission = 4
	PermRX       MemoryPermission = 5
	PermWX       MemoryPermission = 6
	PermRWX      MemoryPermission = 7
	PermDontCare MemoryPermission = 0x10000000
)

func (p MemoryPermission) String() string {
	if p == PermDontCare {
		return "dont_care"
	}
	if p == PermNone {
		return "---"
	}
	b := []byte("---")
	if p&PermR != 0 {
		b[0] = 'r'
	}
	if p&PermW != 0 {
		b[1] = 'w'
	}
	if p&PermX != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// MemoryOperation is the op word of ControlMemory: action | region | target.
type MemoryOperation uint32

const (
	OpFree             MemoryOperation = 1
	OpReserve          MemoryOperation = 2
	OpAllocate         MemoryOperation = 3
	OpMap              MemoryOperation = 4
	OpUnmap            MemoryOperation = 5
	OpChangeProtection MemoryOperation = 6

	OpRegionApp    MemoryOperation = 0x100
	OpRegionSystem MemoryOperation = 0x200
	OpRegionBase   MemoryOperation = 0x300

	OpLinear MemoryOperation = 0x10000

	opActionMask MemoryOperation = 0xFF
)

// Action returns the action part of the op word.
func (o MemoryOperation) Action() MemoryOperation { return o & opActionMask }

// QueryResult describes the region containing a queried address.
type QueryResult struct {
	Base       uint32
	Size       uint32
	Permission MemoryPermission
	State      MemoryState
	PageFlags  uint32
}

// End returns the first address past the region.
func (q QueryResult) End() uint32 { return q.Base + q.Size }

// ControlMemory allocates, frees or reprotects memory (0x01).
func (c *Client) ControlMemory(op MemoryOperation, addr0, addr1, size uint32, perm MemoryPermission) (uint32, error) {
	f := Frame{Regs: Registers{uint32(op), addr0, addr1, size, uint32(perm)}}
	if err := c.call(NumControlMemory, &f); err != nil {
		return 0, err
	}
	return f.Regs[1], nil
}

// QueryMemory describes the region containing addr (0x02).
func (c *Client) QueryMemory(addr uint32) (QueryResult, error) {
	f := Frame{Regs: Registers{2: addr}}
	if err := c.call(NumQueryMemory, &f); err != nil {
		return QueryResult{}, err
	}
	return QueryResult{
		Base:       f.Regs[1],
		Size:       f.Regs[2],
		Permission: MemoryPermission(f.Regs[3]),
		State:      MemoryState(f.Regs[4]),
		PageFlags:  f.Regs[5],
	}, nil
}

// CreateMemoryBlock creates a shared memory object over [addr, addr+size).
// addr 0 lets the kernel allocate the backing memory (0x1E).
func (c *Client) CreateMemoryBlock(addr, size uint32, myPerm, otherPerm MemoryPermission) (*handle.Owned, error) {
	f := Frame{Regs: Registers{uint32(otherPerm), addr, size, uint32(myPerm)}}
	if err := c.call(NumCreateMemoryBlock, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// MapMemoryBlock maps a shared memory object at addr (0x1F).
func (c *Client) MapMemoryBlock(h handle.Borrowed, addr uint32, myPerm, otherPerm MemoryPermission) error {
	f := Frame{Regs: Registers{h.Raw(), addr, uint32(myPerm), uint32(otherPerm)}}
	return c.call(NumMapMemoryBlock, &f)
}

// UnmapMemoryBlock unmaps a shared memory object from addr (0x20).
func (c *Client) UnmapMemoryBlock(h handle.Borrowed, addr uint32) error {
	f := Frame{Regs: Registers{h.Raw(), addr}}
	return c.call(NumUnmapMemoryBlock, &f)
}
