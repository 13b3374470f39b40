package simkernel

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

func aligned(v uint32) bool { return v%pageSize == 0 }

func (k *Kernel) queryMemory(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	q, ok := t.proc.query(f.Regs[2])
	if !ok {
		fail(f, InvalidAddress)
		return
	}
	f.Regs[1] = q.Base
	f.Regs[2] = q.Size
	f.Regs[3] = uint32(q.Permission)
	f.Regs[4] = uint32(q.State)
	f.Regs[5] = q.PageFlags
	succeed(f)
}

func (k *Kernel) controlMemory(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	op := svc.MemoryOperation(f.Regs[0])
	addr0, size := f.Regs[1], f.Regs[3]
	perm := svc.MemoryPermission(f.Regs[4])
	p := t.proc

	if !aligned(addr0) {
		fail(f, MisalignedAddress)
		return
	}
	if !aligned(size) || size == 0 {
		fail(f, MisalignedSize)
		return
	}

	switch op.Action() {
	case svc.OpAllocate:
		if perm&^svc.PermRW != 0 {
			fail(f, InvalidEnumValue)
			return
		}
		if limit, ok := p.limits[svc.LimitMemoryAllocatable]; ok && int64(p.allocated)+int64(size) > limit {
			fail(f, OutOfMemory)
			return
		}

		area, state := k.layout.Heap, svc.MemoryPrivate
		if op&svc.OpLinear != 0 {
			area, state = k.layout.Linear, svc.MemoryContinuous
		}
		addr := addr0
		switch {
		case addr0 == 0:
			var ok bool
			if addr, ok = p.findFree(area, size); !ok {
				fail(f, OutOfMemory)
				return
			}
		case uint64(addr0) < uint64(area.Base) || uint64(addr0)+uint64(size) > uint64(area.Base)+uint64(area.Size):
			fail(f, InvalidAddress)
			return
		case !p.free(addr0, size):
			fail(f, InvalidAddress)
			return
		}

		p.addRegion(&region{base: addr, size: size, perm: perm, state: state})
		p.allocated += size
		f.Regs[1] = addr
		succeed(f)

		k.logger.Debug("memory allocated",
			zap.Uint32("pid", p.id),
			zap.Uint32("addr", addr),
			zap.Uint32("size", size),
			zap.Stringer("state", state))

	case svc.OpFree:
		r := p.regionAt(addr0)
		if r == nil || r.base != addr0 || r.size != size || r.block != nil ||
			(r.state != svc.MemoryPrivate && r.state != svc.MemoryContinuous) {
			fail(f, InvalidAddress)
			return
		}
		p.removeRegion(r)
		p.allocated -= size
		f.Regs[1] = addr0
		succeed(f)

	default:
		fail(f, NotImplemented)
	}
}

func (k *Kernel) createMemoryBlock(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	otherPerm := svc.MemoryPermission(f.Regs[0])
	addr, size := f.Regs[1], f.Regs[2]
	myPerm := svc.MemoryPermission(f.Regs[3])
	p := t.proc

	if !aligned(addr) {
		fail(f, MisalignedAddress)
		return
	}
	if !aligned(size) || size == 0 {
		fail(f, MisalignedSize)
		return
	}
	if !p.admit(svc.LimitSharedMemoryHandles) {
		fail(f, LimitReached)
		return
	}

	b := &blockObj{
		id:        k.ids.Block(),
		owner:     p,
		size:      size,
		myPerm:    myPerm,
		otherPerm: otherPerm,
	}
	if addr == 0 {
		if limit, ok := p.limits[svc.LimitMemoryAllocatable]; ok && int64(p.allocated)+int64(size) > limit {
			fail(f, OutOfMemory)
			return
		}
		b.data = make([]byte, size)
		b.backed = true
		p.allocated += size
	} else {
		r := p.regionAt(addr)
		if r == nil || uint64(addr)+uint64(size) > r.end() ||
			(r.state != svc.MemoryPrivate && r.state != svc.MemoryContinuous) {
			fail(f, InvalidAddress)
			return
		}
	}

	f.Regs[1] = p.insert(b)
	succeed(f)
}

func (k *Kernel) mapMemoryBlock(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := t.proc.lookup(f.Regs[0], t).(*blockObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	addr := f.Regs[1]
	perm := svc.MemoryPermission(f.Regs[2])
	if perm == svc.PermDontCare {
		perm = b.myPerm
		if b.owner != t.proc {
			perm = b.otherPerm
		}
	}

	if !aligned(addr) {
		fail(f, MisalignedAddress)
		return
	}
	if !t.proc.free(addr, b.size) {
		fail(f, InvalidAddress)
		return
	}

	t.proc.addRegion(&region{base: addr, size: b.size, perm: perm, state: svc.MemoryShared, block: b})
	b.mappings++
	succeed(f)

	k.logger.Debug("memory block mapped",
		zap.Uint32("pid", t.proc.id),
		zap.Stringer("block", b.id),
		zap.Uint32("addr", addr),
		zap.Uint32("size", b.size))
}

func (k *Kernel) unmapMemoryBlock(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := t.proc.lookup(f.Regs[0], t).(*blockObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	addr := f.Regs[1]
	r := t.proc.regionAt(addr)
	if r == nil || r.base != addr || r.block != b {
		fail(f, InvalidAddress)
		return
	}
	t.proc.removeRegion(r)
	b.mappings--
	succeed(f)
}
