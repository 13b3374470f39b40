package simkernel

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

const (
	highestPriority int32 = 0x00
	lowestPriority  int32 = 0x3F
)

func (k *Kernel) createThread(t *thread, f *svc.Frame) {
	priority := int32(f.Regs[0])
	entry, ok := f.Pointer(1).(svc.EntryPoint)
	if !ok || entry == nil {
		fail(f, InvalidAddress)
		return
	}
	arg := f.Pointer(2)
	if stack, ok := f.Pointer(3).([]byte); !ok || len(stack) == 0 {
		fail(f, InvalidAddress)
		return
	}
	processor := int32(f.Regs[4])

	if priority < highestPriority || priority > lowestPriority {
		fail(f, OutOfRange)
		return
	}
	if processor < -2 || processor > 1 {
		fail(f, OutOfRange)
		return
	}

	k.mu.Lock()
	if !t.proc.admit(svc.LimitThreads) {
		k.mu.Unlock()
		fail(f, LimitReached)
		return
	}
	child := k.newThread(t.proc, priority, false)
	f.Regs[1] = t.proc.insert(child)
	k.mu.Unlock()

	k.logger.Debug("thread created",
		zap.Uint32("pid", t.proc.id),
		zap.Uint32("tid", child.id),
		zap.Int32("priority", priority),
		zap.Int32("processor", processor))

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer func() {
			k.mu.Lock()
			k.exitThread(child)
			k.mu.Unlock()
		}()
		entry(child.storage, arg)
	}()
	succeed(f)
}

func (k *Kernel) getThreadPriority(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	target, ok := t.proc.lookup(f.Regs[1], t).(*thread)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	f.Regs[1] = uint32(target.priority)
	succeed(f)
}

// terminate marks p exited and ends the calling goroutine. Other threads
// of the process are not interrupted; waiters on the process handle are
// released.
func (k *Kernel) terminate(t *thread) {
	k.mu.Lock()
	t.proc.exited = true
	k.exitThread(t)
	k.mu.Unlock()
	runtime.Goexit()
}

func (k *Kernel) exitProcess(t *thread) {
	k.logger.Info("process exited", zap.Uint32("pid", t.proc.id), zap.String("name", t.proc.name))
	k.terminate(t)
}

func (k *Kernel) breakProcess(t *thread, reason svc.BreakReason) {
	k.mu.Lock()
	k.breaks = append(k.breaks, reason)
	k.mu.Unlock()

	k.logger.Error("process break",
		zap.Uint32("pid", t.proc.id),
		zap.Uint32("tid", t.id),
		zap.Uint32("reason", uint32(reason)))
	k.terminate(t)
}
