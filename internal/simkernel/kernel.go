package simkernel

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/errf"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

const (
	// DefaultPriority is the priority of attached threads.
	DefaultPriority int32 = 0x30
	// DefaultPoolSize bounds the number of requests served concurrently.
	DefaultPoolSize = 64
	// TicksPerSecond is the rate of the system tick counter.
	TicksPerSecond = 268_111_856

	maxPortName = 11
)

// Service serves one IPC request. The request is in the command buffer of
// c's thread, already translated into the service's process; the reply is
// written back to the same buffer. sender is the requesting process id.
type Service interface {
	ServeIPC(c *svc.Client, sender uint32)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(c *svc.Client, sender uint32)

// ServeIPC calls fn.
func (fn ServiceFunc) ServeIPC(c *svc.Client, sender uint32) { fn(c, sender) }

// Kernel is a simulated kernel. It implements svc.Trapper.
type Kernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	logger *zap.Logger
	layout Layout
	start  time.Time
	ids    *id.Generator
	pool   *ants.Pool

	ports cmap.ConcurrentMap[string, *registration]

	threads  map[*tls.Storage]*thread
	procs    map[uint32]*Process
	nextPID  uint32
	nextTID  uint32
	services map[string]*registration
	system   *Process
	srv      *srvService

	console    console
	reports    []errf.ErrorInfo
	breaks     []svc.BreakReason
	stopPoints int
}

// Option configures a Kernel.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	layout   Layout
	poolSize int
}

// WithLogger sets the kernel logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLayout replaces DefaultLayout.
func WithLayout(l Layout) Option {
	return func(o *options) { o.layout = l }
}

// WithPoolSize bounds the number of requests served concurrently.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// New starts a kernel with the built-in srv:, err:f and cfg:u services.
func New(opts ...Option) (*Kernel, error) {
	o := options{
		logger:   zap.NewNop(),
		layout:   DefaultLayout(),
		poolSize: DefaultPoolSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.layout.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		logger:   o.logger,
		layout:   o.layout,
		start:    time.Now(),
		ids:      id.NewGenerator(),
		ports:    cmap.New[*registration](),
		threads:  make(map[*tls.Storage]*thread),
		procs:    make(map[uint32]*Process),
		nextPID:  o.layout.FirstProcessID,
		services: make(map[string]*registration),
	}
	k.cond = sync.NewCond(&k.mu)
	k.console.logger = k.logger.Named("debug")

	pool, err := ants.NewPool(o.poolSize, ants.WithPanicHandler(func(v any) {
		k.logger.Error("service worker panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("create service pool: %w", err)
	}
	k.pool = pool

	k.system = k.NewProcess("system")

	k.srv = newSrvService(k)
	k.RegisterPort(srvPortName, k.srv)
	k.RegisterPort(errf.PortName, ServiceFunc(k.serveErrf))
	if err := k.RegisterService(cfgServiceName, newCfgService(k.layout.Console)); err != nil {
		pool.Release()
		return nil, err
	}

	k.logger.Info("simulated kernel started",
		zap.Int("pool_size", o.poolSize),
		zap.Int("regions", len(o.layout.Regions)))
	return k, nil
}

// Close stops the service pool.
func (k *Kernel) Close() {
	k.pool.Release()
}

// NewProcess creates a process with the layout's initial mappings.
func (k *Kernel) NewProcess(name string) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := &Process{
		k:       k,
		id:      k.nextPID,
		name:    name,
		handles: make(map[uint32]object),
		next:    firstHandle,
		limits:  k.layout.limits(),
	}
	k.nextPID++
	for _, spec := range k.layout.Regions {
		r, _ := spec.region()
		p.addRegion(r)
	}
	k.procs[p.id] = p

	k.logger.Debug("process created", zap.Uint32("pid", p.id), zap.String("name", name))
	return p
}

// RegisterPort publishes a global port served by s. ConnectToPort(name)
// opens sessions to it.
func (k *Kernel) RegisterPort(name string, s Service) {
	k.ports.Set(name, &registration{
		id:      k.ids.Service(),
		name:    name,
		owner:   k.system,
		service: s,
	})
}

// RegisterService registers name with the service manager on behalf of the
// system process; GetServiceHandle(name) opens sessions served by s.
func (k *Kernel) RegisterService(name string, s Service) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, code := k.registerService(name, k.system, s); !code.IsSuccess() {
		return code.Err()
	}
	return nil
}

// registerService must be called with k.mu held.
func (k *Kernel) registerService(name string, owner *Process, s Service) (*registration, result.Code) {
	if _, ok := k.services[name]; ok {
		return nil, srvAlreadyRegistered
	}
	reg := &registration{id: k.ids.Service(), name: name, owner: owner, service: s}
	k.services[name] = reg
	k.cond.Broadcast()

	k.logger.Debug("service registered",
		zap.String("service", name),
		zap.Uint32("pid", owner.id),
		zap.Stringer("id", reg.id))
	return reg, result.Success
}

// newThread must be called with k.mu held.
func (k *Kernel) newThread(p *Process, priority int32, worker bool) *thread {
	t := &thread{
		id:       k.nextTID,
		proc:     p,
		storage:  tls.New(),
		priority: priority,
		worker:   worker,
		held:     make(map[*mutexObj]struct{}),
	}
	k.nextTID++
	k.threads[t.storage] = t
	return t
}

// exitThread marks t exited and abandons the mutexes it holds. It must be
// called with k.mu held.
func (k *Kernel) exitThread(t *thread) {
	if t.exited {
		return
	}
	t.exited = true
	for m := range t.held {
		m.owner = nil
		m.count = 0
	}
	clear(t.held)
	delete(k.threads, t.storage)
	k.cond.Broadcast()
}

func (k *Kernel) threadOf(storage *tls.Storage) *thread {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.threads[storage]
	if !ok {
		panic("simkernel: trap from a thread the kernel does not know")
	}
	return t
}

// Trap executes one syscall for the thread owning storage.
func (k *Kernel) Trap(storage *tls.Storage, num svc.Number, f *svc.Frame) {
	t := k.threadOf(storage)

	switch num {
	case svc.NumControlMemory:
		k.controlMemory(t, f)
	case svc.NumQueryMemory:
		k.queryMemory(t, f)
	case svc.NumExitProcess:
		k.exitProcess(t)
	case svc.NumCreateThread:
		k.createThread(t, f)
	case svc.NumExitThread:
		k.mu.Lock()
		k.exitThread(t)
		k.mu.Unlock()
		runtime.Goexit()
	case svc.NumSleepThread:
		if d := svc.TimeoutFromRegs(f.Regs[0], f.Regs[1]); d > 0 {
			time.Sleep(d.Duration())
		}
		f.Regs[0] = uint32(result.Success)
	case svc.NumGetThreadPriority:
		k.getThreadPriority(t, f)
	case svc.NumCreateMutex:
		k.createMutex(t, f)
	case svc.NumReleaseMutex:
		k.releaseMutex(t, f)
	case svc.NumCreateEvent:
		k.createEvent(t, f)
	case svc.NumSignalEvent:
		k.signalEvent(t, f)
	case svc.NumClearEvent:
		k.clearEvent(t, f)
	case svc.NumCreateMemoryBlock:
		k.createMemoryBlock(t, f)
	case svc.NumMapMemoryBlock:
		k.mapMemoryBlock(t, f)
	case svc.NumUnmapMemoryBlock:
		k.unmapMemoryBlock(t, f)
	case svc.NumCreateAddressArbiter:
		k.createAddressArbiter(t, f)
	case svc.NumArbitrateAddress:
		k.arbitrateAddress(t, f)
	case svc.NumCloseHandle:
		k.closeHandle(t, f)
	case svc.NumWaitSynchronization:
		k.waitSynchronization(t, f)
	case svc.NumWaitSynchronizationN:
		k.waitSynchronizationN(t, f)
	case svc.NumDuplicateHandle:
		k.duplicateHandle(t, f)
	case svc.NumGetSystemTick:
		ticks := k.ticks()
		f.Regs[0] = uint32(ticks >> 32)
		f.Regs[1] = uint32(ticks)
	case svc.NumGetSystemInfo:
		k.getSystemInfo(t, f)
	case svc.NumConnectToPort:
		k.connectToPort(t, f)
	case svc.NumSendSyncRequest:
		k.sendSyncRequest(t, f)
	case svc.NumGetProcessID:
		k.getProcessID(t, f)
	case svc.NumGetResourceLimit:
		k.getResourceLimit(t, f)
	case svc.NumGetResourceLimitLimitValues:
		k.resourceLimitValues(t, f, false)
	case svc.NumGetResourceLimitCurrentValues:
		k.resourceLimitValues(t, f, true)
	case svc.NumBreak:
		k.breakProcess(t, svc.BreakReason(f.Regs[0]))
	case svc.NumOutputDebugString:
		k.outputDebugString(f)
	case svc.NumStopPoint:
		k.mu.Lock()
		k.stopPoints++
		k.mu.Unlock()
		k.logger.Debug("stop point", zap.Uint32("pid", t.proc.id), zap.Uint32("tid", t.id))
	default:
		k.logger.Warn("unimplemented syscall", zap.Stringer("svc", num))
		fail(f, NotImplemented)
	}
}

func succeed(f *svc.Frame) { f.Regs[0] = uint32(result.Success) }

func fail(f *svc.Frame, code result.Code) { f.Regs[0] = uint32(code) }

// wait blocks until ready reports true or timeout expires and reports
// which happened. It must be called with k.mu held. A negative timeout
// waits forever, a zero timeout polls.
func (k *Kernel) wait(timeout svc.Timeout, ready func() bool) bool {
	if ready() {
		return true
	}
	if timeout == svc.None {
		return false
	}

	expired := false
	if timeout > 0 && timeout != svc.Forever {
		timer := time.AfterFunc(timeout.Duration(), func() {
			k.mu.Lock()
			expired = true
			k.cond.Broadcast()
			k.mu.Unlock()
		})
		defer timer.Stop()
	}
	for !ready() {
		if expired {
			return false
		}
		k.cond.Wait()
	}
	return true
}

func (k *Kernel) ticks() uint64 {
	return ticksFor(time.Since(k.start))
}
