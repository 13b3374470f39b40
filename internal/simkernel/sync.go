package simkernel

import (
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// create inserts obj after checking the limit of typ.
func (k *Kernel) create(t *thread, f *svc.Frame, typ svc.LimitType, obj object) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !t.proc.admit(typ) {
		fail(f, LimitReached)
		return
	}
	f.Regs[1] = t.proc.insert(obj)
	succeed(f)
}

func (k *Kernel) createMutex(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !t.proc.admit(svc.LimitMutexes) {
		fail(f, LimitReached)
		return
	}
	m := &mutexObj{}
	if f.Regs[0] != 0 {
		m.acquire(t)
	}
	f.Regs[1] = t.proc.insert(m)
	succeed(f)
}

func (k *Kernel) releaseMutex(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := t.proc.lookup(f.Regs[0], t).(*mutexObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	if m.owner != t {
		fail(f, NotOwner)
		return
	}
	m.release()
	k.cond.Broadcast()
	succeed(f)
}

func (k *Kernel) createEvent(t *thread, f *svc.Frame) {
	reset := svc.ResetType(f.Regs[0])
	if reset > svc.ResetPulse {
		fail(f, InvalidEnumValue)
		return
	}
	k.create(t, f, svc.LimitEvents, &eventObj{reset: reset})
}

func (k *Kernel) signalEvent(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := t.proc.lookup(f.Regs[0], t).(*eventObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	e.signal()
	k.cond.Broadcast()
	succeed(f)
}

func (k *Kernel) clearEvent(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := t.proc.lookup(f.Regs[0], t).(*eventObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	e.signaled = false
	succeed(f)
}

func (k *Kernel) createAddressArbiter(t *thread, f *svc.Frame) {
	k.create(t, f, svc.LimitAddressArbiters, &arbiterObj{})
}

func (k *Kernel) arbitrateAddress(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	a, ok := t.proc.lookup(f.Regs[0], t).(*arbiterObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	addr, ok := f.Pointer(1).(*atomic.Int32)
	if !ok {
		fail(f, InvalidAddress)
		return
	}
	typ := svc.ArbitrationType(f.Regs[2])
	value := int32(f.Regs[3])
	timeout := svc.TimeoutFromRegs(f.Regs[4], f.Regs[5])

	switch typ {
	case svc.ArbitrateSignal:
		if n := a.wake(addr, value); n > 0 {
			k.cond.Broadcast()
		}
		succeed(f)
		return
	case svc.ArbitrateWaitIfLessThan, svc.ArbitrateDecrementAndWaitIfLessThan:
		timeout = svc.Forever
	case svc.ArbitrateWaitIfLessThanTimeout, svc.ArbitrateDecrementAndWaitIfLessThanTimeout:
	default:
		fail(f, InvalidEnumValue)
		return
	}

	v := addr.Load()
	if v >= value {
		succeed(f)
		return
	}
	if typ == svc.ArbitrateDecrementAndWaitIfLessThan || typ == svc.ArbitrateDecrementAndWaitIfLessThanTimeout {
		addr.Store(v - 1)
	}

	w := &arbWaiter{addr: addr}
	a.waiters = append(a.waiters, w)
	if !k.wait(timeout, func() bool { return w.woken }) {
		a.remove(w)
		fail(f, result.TimedOut)
		return
	}
	succeed(f)
}

func (k *Kernel) closeHandle(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	raw := f.Regs[0]
	if handle.Borrowed(raw).IsPseudo() || !t.proc.remove(raw) {
		fail(f, InvalidHandle)
		return
	}
	succeed(f)
}

func (k *Kernel) duplicateHandle(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	obj := t.proc.lookup(f.Regs[1], t)
	if obj == nil {
		fail(f, InvalidHandle)
		return
	}
	f.Regs[1] = t.proc.insert(obj)
	succeed(f)
}

func (k *Kernel) waitSynchronization(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	w, ok := t.proc.lookup(f.Regs[0], t).(waitable)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	timeout := svc.TimeoutFromRegs(f.Regs[3], f.Regs[2])

	snap := w.snapshot()
	if !k.wait(timeout, func() bool { return w.ready(t, snap) }) {
		fail(f, result.TimedOut)
		return
	}
	w.acquire(t)
	succeed(f)
}

func (k *Kernel) waitSynchronizationN(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	handles, ok := f.Pointer(1).([]handle.Borrowed)
	if !ok || int(f.Regs[2]) != len(handles) {
		fail(f, InvalidAddress)
		return
	}
	if len(handles) == 0 {
		fail(f, OutOfRange)
		return
	}
	waitAll := f.Regs[3] != 0
	timeout := svc.TimeoutFromRegs(f.Regs[0], f.Regs[4])

	objs := make([]waitable, len(handles))
	snaps := make([]uint64, len(handles))
	for i, h := range handles {
		w, ok := t.proc.lookup(h.Raw(), t).(waitable)
		if !ok {
			fail(f, InvalidHandle)
			return
		}
		objs[i] = w
		snaps[i] = w.snapshot()
	}

	signaled := -1
	ready := func() bool {
		for i, w := range objs {
			if w.ready(t, snaps[i]) {
				if !waitAll {
					signaled = i
					return true
				}
			} else if waitAll {
				return false
			}
		}
		return waitAll
	}

	base := f.Regs[1]
	if !k.wait(timeout, ready) {
		fail(f, result.TimedOut)
		return
	}
	if waitAll {
		for _, w := range objs {
			w.acquire(t)
		}
		f.Regs[1] = 0
	} else {
		objs[signaled].acquire(t)
		f.Regs[1] = base + uint32(signaled)*4
	}
	succeed(f)
}
