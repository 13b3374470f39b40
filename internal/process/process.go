// Package process exposes the calling process's identity, resource limits
// and memory accounting.
package process

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// ID returns the id of the calling process.
func ID(c *svc.Client) (uint32, error) {
	return c.GetProcessID(handle.CurrentProcess)
}

// Limits is the resource limit object of a process.
type Limits struct {
	client *svc.Client
	h      *handle.Owned
}

// Limit is one limit of a Limits object.
type Limit struct {
	limits *Limits
	typ    svc.LimitType
}

// OpenLimits opens the resource limits of process.
func OpenLimits(c *svc.Client, process handle.Borrowed) (*Limits, error) {
	h, err := c.GetResourceLimit(process)
	if err != nil {
		return nil, err
	}
	return &Limits{client: c, h: h}, nil
}

// Get returns the limit of typ.
func (l *Limits) Get(typ svc.LimitType) Limit {
	return Limit{limits: l, typ: typ}
}

// MemoryAllocatable returns the limit on allocatable memory.
func (l *Limits) MemoryAllocatable() Limit {
	return l.Get(svc.LimitMemoryAllocatable)
}

// Values returns the limit and the current use of each type in one call
// per kind.
func (l *Limits) Values(types ...svc.LimitType) (limit, current []int64, err error) {
	limit = make([]int64, len(types))
	current = make([]int64, len(types))
	if err := l.client.GetResourceLimitLimitValues(l.h.Borrow(), limit, types); err != nil {
		return nil, nil, err
	}
	if err := l.client.GetResourceLimitCurrentValues(l.h.Borrow(), current, types); err != nil {
		return nil, nil, err
	}
	return limit, current, nil
}

// Close closes the limits handle.
func (l *Limits) Close() error { return l.h.Close() }

// Limit returns the maximum for the limit's type.
func (l Limit) Limit() (int64, error) {
	v := []int64{0}
	err := l.limits.client.GetResourceLimitLimitValues(l.limits.h.Borrow(), v, []svc.LimitType{l.typ})
	return v[0], err
}

// Current returns the current use.
func (l Limit) Current() (int64, error) {
	v := []int64{0}
	err := l.limits.client.GetResourceLimitCurrentValues(l.limits.h.Borrow(), v, []svc.LimitType{l.typ})
	return v[0], err
}

// Remaining returns limit minus current use.
func (l Limit) Remaining() (int64, error) {
	current, err := l.Current()
	if err != nil {
		return 0, err
	}
	limit, err := l.Limit()
	if err != nil {
		return 0, err
	}
	return limit - current, nil
}

// MemoryRegion selects a memory pool for accounting queries.
type MemoryRegion int32

const (
	RegionAll         MemoryRegion = 0
	RegionApplication MemoryRegion = 1
	RegionSystem      MemoryRegion = 2
	RegionBase        MemoryRegion = 3
)

func (r MemoryRegion) String() string {
	switch r {
	case RegionAll:
		return "all"
	case RegionApplication:
		return "application"
	case RegionSystem:
		return "system"
	case RegionBase:
		return "base"
	}
	return fmt.Sprintf("region(%d)", int32(r))
}

const sysInfoMemoryUsed = 0

// MemoryUsed returns the bytes in use in region.
func MemoryUsed(c *svc.Client, region MemoryRegion) (uint64, error) {
	v, err := c.GetSystemInfo(sysInfoMemoryUsed, int32(region))
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// AllocateLinear allocates size bytes of physically contiguous heap and
// returns its address.
func AllocateLinear(c *svc.Client, size uint32, perm svc.MemoryPermission) (uint32, error) {
	size = (size + 0xFFF) &^ 0xFFF
	return c.ControlMemory(svc.OpAllocate|svc.OpLinear, 0, 0, size, perm)
}

// FreeLinear frees memory returned by AllocateLinear.
func FreeLinear(c *svc.Client, addr, size uint32) error {
	size = (size + 0xFFF) &^ 0xFFF
	_, err := c.ControlMemory(svc.OpFree|svc.OpLinear, addr, 0, size, svc.PermNone)
	return err
}
