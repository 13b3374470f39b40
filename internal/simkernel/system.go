package simkernel

import (
	"bytes"
	"math/bits"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// System info types answered by GetSystemInfo.
const (
	SysInfoMemoryUsed    uint32 = 0
	SysInfoKernelSpawned uint32 = 26
)

// ticksFor converts elapsed time to ticks without overflowing.
func ticksFor(d time.Duration) uint64 {
	hi, lo := bits.Mul64(uint64(d), TicksPerSecond)
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}

func (k *Kernel) getSystemInfo(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var v uint64
	switch f.Regs[1] {
	case SysInfoMemoryUsed:
		var app uint64
		for _, p := range k.procs {
			app += uint64(p.allocated)
		}
		switch int32(f.Regs[2]) {
		case 0:
			v = app + k.layout.SystemMemory + k.layout.BaseMemory
		case 1:
			v = app
		case 2:
			v = k.layout.SystemMemory
		case 3:
			v = k.layout.BaseMemory
		default:
			fail(f, InvalidEnumValue)
			return
		}
	case SysInfoKernelSpawned:
		v = uint64(len(k.procs))
	default:
		fail(f, InvalidEnumValue)
		return
	}
	f.Regs[1] = uint32(v)
	f.Regs[2] = uint32(v >> 32)
	succeed(f)
}

func (k *Kernel) getProcessID(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := t.proc.lookup(f.Regs[1], t).(*Process)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	f.Regs[1] = p.id
	succeed(f)
}

func (k *Kernel) getResourceLimit(t *thread, f *svc.Frame) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := t.proc.lookup(f.Regs[1], t).(*Process)
	if !ok {
		fail(f, InvalidHandle)
		return
	}
	h := t.proc.insert(&limitsObj{proc: p})
	if out, ok := f.Pointer(0).(*uint32); ok {
		*out = h
	}
	f.Regs[1] = h
	succeed(f)
}

func (k *Kernel) resourceLimitValues(t *thread, f *svc.Frame, current bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	values, ok := f.Pointer(0).([]int64)
	types, typesOK := f.Pointer(2).([]svc.LimitType)
	if !ok || !typesOK || len(values) != len(types) || int(f.Regs[3]) != len(types) {
		fail(f, InvalidAddress)
		return
	}
	l, ok := t.proc.lookup(f.Regs[1], t).(*limitsObj)
	if !ok {
		fail(f, InvalidHandle)
		return
	}

	for i, typ := range types {
		if typ > svc.LimitCPUTime {
			fail(f, InvalidEnumValue)
			return
		}
		if current {
			values[i] = l.proc.current(typ)
		} else {
			values[i] = l.proc.limits[typ]
		}
	}
	succeed(f)
}

// console assembles debug output into lines and logs each completed line.
type console struct {
	logger *zap.Logger
	line   *bytebufferpool.ByteBuffer
	all    strings.Builder
}

func (c *console) write(b []byte) {
	for len(b) > 0 {
		if c.line == nil {
			c.line = bytebufferpool.Get()
		}
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			_, _ = c.line.Write(b)
			return
		}
		_, _ = c.line.Write(b[:i])
		c.flush()
		b = b[i+1:]
	}
}

func (c *console) flush() {
	if c.line == nil {
		return
	}
	s := c.line.String()
	c.logger.Info("debug output", zap.String("line", s))
	c.all.WriteString(s)
	c.all.WriteByte('\n')
	bytebufferpool.Put(c.line)
	c.line = nil
}

func (k *Kernel) outputDebugString(f *svc.Frame) {
	msg, ok := f.Pointer(0).([]byte)
	if !ok || int(f.Regs[1]) > len(msg) {
		fail(f, InvalidAddress)
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.console.write(msg[:f.Regs[1]])
	succeed(f)
}
