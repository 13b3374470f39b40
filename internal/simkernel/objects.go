package simkernel

import (
	"fmt"
	"sync/atomic"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// object is anything a handle can refer to.
type object interface {
	kind() string
	describe() string
}

// waitable objects can be passed to WaitSynchronization. snapshot captures
// the state a waiter starts from; ready reports whether t may proceed and
// acquire consumes the signal once it does.
type waitable interface {
	object
	snapshot() uint64
	ready(t *thread, snap uint64) bool
	acquire(t *thread)
}

type mutexObj struct {
	owner *thread
	count int
}

func (*mutexObj) kind() string { return "mutex" }

func (m *mutexObj) describe() string {
	if m.owner == nil {
		return "unlocked"
	}
	return fmt.Sprintf("held by thread %d (%d)", m.owner.id, m.count)
}

func (*mutexObj) snapshot() uint64 { return 0 }

func (m *mutexObj) ready(t *thread, _ uint64) bool {
	return m.owner == nil || m.owner == t
}

func (m *mutexObj) acquire(t *thread) {
	if m.owner == nil {
		m.owner = t
		t.held[m] = struct{}{}
	}
	m.count++
}

func (m *mutexObj) release() {
	m.count--
	if m.count == 0 {
		delete(m.owner.held, m)
		m.owner = nil
	}
}

type eventObj struct {
	reset    svc.ResetType
	signaled bool
	gen      uint64
}

func (*eventObj) kind() string { return "event" }

func (e *eventObj) describe() string {
	return fmt.Sprintf("reset=%d signaled=%t", e.reset, e.signaled)
}

func (e *eventObj) snapshot() uint64 { return e.gen }

func (e *eventObj) ready(_ *thread, snap uint64) bool {
	if e.reset == svc.ResetPulse {
		return e.gen != snap
	}
	return e.signaled
}

func (e *eventObj) acquire(*thread) {
	if e.reset == svc.ResetOneShot {
		e.signaled = false
	}
}

func (e *eventObj) signal() {
	e.gen++
	if e.reset != svc.ResetPulse {
		e.signaled = true
	}
}

type arbWaiter struct {
	addr  *atomic.Int32
	woken bool
}

type arbiterObj struct {
	waiters []*arbWaiter
}

func (*arbiterObj) kind() string { return "address_arbiter" }

func (a *arbiterObj) describe() string {
	return fmt.Sprintf("%d waiting", len(a.waiters))
}

// wake releases up to n waiters on addr in arrival order, all of them when
// n is negative.
func (a *arbiterObj) wake(addr *atomic.Int32, n int32) int {
	woken := 0
	kept := a.waiters[:0]
	for _, w := range a.waiters {
		if w.addr == addr && (n < 0 || int32(woken) < n) {
			w.woken = true
			woken++
			continue
		}
		kept = append(kept, w)
	}
	a.waiters = kept
	return woken
}

func (a *arbiterObj) remove(w *arbWaiter) {
	for i, x := range a.waiters {
		if x == w {
			a.waiters = append(a.waiters[:i], a.waiters[i+1:]...)
			return
		}
	}
}

type blockObj struct {
	id        id.BlockID
	owner     *Process
	size      uint32
	myPerm    svc.MemoryPermission
	otherPerm svc.MemoryPermission
	data      []byte
	mappings  int
	backed    bool
}

func (*blockObj) kind() string { return "memory_block" }

func (b *blockObj) describe() string {
	return fmt.Sprintf("%s size=%#x mapped=%d", b.id, b.size, b.mappings)
}

type thread struct {
	id       uint32
	proc     *Process
	storage  *tls.Storage
	priority int32
	exited   bool
	worker   bool
	held     map[*mutexObj]struct{}
}

func (*thread) kind() string { return "thread" }

func (t *thread) describe() string {
	state := "running"
	if t.exited {
		state = "exited"
	}
	return fmt.Sprintf("tid=%d pid=%d priority=%#x %s", t.id, t.proc.id, t.priority, state)
}

func (*thread) snapshot() uint64 { return 0 }

func (t *thread) ready(*thread, uint64) bool { return t.exited }

func (*thread) acquire(*thread) {}

type limitsObj struct {
	proc *Process
}

func (*limitsObj) kind() string { return "resource_limit" }

func (l *limitsObj) describe() string { return fmt.Sprintf("pid=%d", l.proc.id) }

// registration is a named endpoint: a global port or a service registered
// with the service manager.
type registration struct {
	id      id.ServiceID
	name    string
	owner   *Process
	service Service
	closed  bool
}

// serverPort is the handle a process receives for a service it registered.
type serverPort struct {
	reg *registration
}

func (*serverPort) kind() string { return "server_port" }

func (p *serverPort) describe() string { return p.reg.name }

type session struct {
	id     id.SessionID
	target *registration
}

func (*session) kind() string { return "session" }

func (s *session) describe() string {
	return fmt.Sprintf("%s -> %s", s.id, s.target.name)
}

func (p *Process) kind() string { return "process" }

func (p *Process) describe() string { return fmt.Sprintf("pid=%d %s", p.id, p.name) }

func (p *Process) snapshot() uint64 { return 0 }

func (p *Process) ready(*thread, uint64) bool { return p.exited }

func (*Process) acquire(*thread) {}
