package simkernel

import (
	"slices"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

const (
	firstHandle  = 0x10
	pageSize     = 0x1000
	addressLimit = 0x40000000
)

// Process is a simulated process: a handle table, a memory map and the
// threads attached to it. All fields are guarded by the kernel lock.
type Process struct {
	k    *Kernel
	id   uint32
	name string

	handles map[uint32]object
	next    uint32

	regions   []*region
	allocated uint32
	limits    map[svc.LimitType]int64
	exited    bool
}

type region struct {
	base  uint32
	size  uint32
	perm  svc.MemoryPermission
	state svc.MemoryState
	block *blockObj
}

func (r *region) end() uint64 { return uint64(r.base) + uint64(r.size) }

// ID returns the process id.
func (p *Process) ID() uint32 { return p.id }

// Name returns the name the process was created with.
func (p *Process) Name() string { return p.name }

// Attach creates a thread in the process for the calling goroutine and
// returns a client issuing syscalls as that thread.
func (p *Process) Attach(opts ...svc.Option) *svc.Client {
	k := p.k
	k.mu.Lock()
	t := k.newThread(p, DefaultPriority, false)
	k.mu.Unlock()

	opts = append([]svc.Option{svc.WithLogger(k.logger)}, opts...)
	return svc.NewClient(k, t.storage, opts...)
}

// insert adds obj to the handle table and returns its value.
func (p *Process) insert(obj object) uint32 {
	h := p.next
	p.next++
	p.handles[h] = obj
	return h
}

// lookup resolves a handle value as seen from thread t, including the
// pseudo handles.
func (p *Process) lookup(raw uint32, t *thread) object {
	switch handle.Borrowed(raw) {
	case handle.CurrentThread:
		return t
	case handle.CurrentProcess:
		return p
	}
	return p.handles[raw]
}

func (p *Process) remove(raw uint32) bool {
	if _, ok := p.handles[raw]; !ok {
		return false
	}
	delete(p.handles, raw)
	return true
}

// count reports the number of handles referring to objects of kind.
func (p *Process) count(kind string) int64 {
	var n int64
	for _, obj := range p.handles {
		if obj.kind() == kind {
			n++
		}
	}
	return n
}

// current returns the use of a limited resource.
func (p *Process) current(typ svc.LimitType) int64 {
	switch typ {
	case svc.LimitMemoryAllocatable:
		return int64(p.allocated)
	case svc.LimitThreads:
		var n int64
		for _, t := range p.k.threads {
			if t.proc == p && !t.exited && !t.worker {
				n++
			}
		}
		return n
	case svc.LimitEvents:
		return p.count("event")
	case svc.LimitMutexes:
		return p.count("mutex")
	case svc.LimitSharedMemoryHandles:
		return p.count("memory_block")
	case svc.LimitAddressArbiters:
		return p.count("address_arbiter")
	}
	return 0
}

// admit reports whether one more object of typ fits the process limits.
func (p *Process) admit(typ svc.LimitType) bool {
	limit, ok := p.limits[typ]
	return !ok || p.current(typ) < limit
}

// regionAt returns the mapped region containing addr.
func (p *Process) regionAt(addr uint32) *region {
	i, found := slices.BinarySearchFunc(p.regions, addr, func(r *region, a uint32) int {
		switch {
		case uint64(a) < uint64(r.base):
			return 1
		case uint64(a) >= r.end():
			return -1
		}
		return 0
	})
	if !found {
		return nil
	}
	return p.regions[i]
}

// query describes the region containing addr, synthesizing a free region
// for unmapped addresses that spans to the neighboring mappings.
func (p *Process) query(addr uint32) (svc.QueryResult, bool) {
	if addr >= addressLimit {
		return svc.QueryResult{}, false
	}
	if r := p.regionAt(addr); r != nil {
		return svc.QueryResult{Base: r.base, Size: r.size, Permission: r.perm, State: r.state}, true
	}

	var lo uint64
	hi := uint64(addressLimit)
	for _, r := range p.regions {
		if r.end() <= uint64(addr) {
			lo = r.end()
			continue
		}
		hi = uint64(r.base)
		break
	}
	return svc.QueryResult{
		Base:       uint32(lo),
		Size:       uint32(hi - lo),
		Permission: svc.PermNone,
		State:      svc.MemoryFree,
	}, true
}

// free reports whether [base, base+size) overlaps no mapping.
func (p *Process) free(base, size uint32) bool {
	end := uint64(base) + uint64(size)
	if size == 0 || end > addressLimit {
		return false
	}
	for _, r := range p.regions {
		if uint64(r.base) < end && uint64(base) < r.end() {
			return false
		}
	}
	return true
}

// findFree returns the lowest gap of size bytes inside area.
func (p *Process) findFree(area Area, size uint32) (uint32, bool) {
	cursor := uint64(area.Base)
	end := cursor + uint64(area.Size)
	for _, r := range p.regions {
		if r.end() <= cursor {
			continue
		}
		if uint64(r.base) >= end {
			break
		}
		if uint64(r.base) >= cursor+uint64(size) {
			return uint32(cursor), true
		}
		cursor = r.end()
	}
	if cursor+uint64(size) <= end {
		return uint32(cursor), true
	}
	return 0, false
}

func (p *Process) addRegion(r *region) {
	i, _ := slices.BinarySearchFunc(p.regions, r.base, func(x *region, base uint32) int {
		switch {
		case x.base < base:
			return -1
		case x.base > base:
			return 1
		}
		return 0
	})
	p.regions = slices.Insert(p.regions, i, r)
}

func (p *Process) removeRegion(r *region) {
	p.regions = slices.DeleteFunc(p.regions, func(x *region) bool { return x == r })
}
