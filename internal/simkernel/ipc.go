package simkernel

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

func (k *Kernel) connectToPort(t *thread, f *svc.Frame) {
	name, ok := f.Pointer(1).(string)
	if !ok {
		fail(f, InvalidAddress)
		return
	}
	if len(name) > maxPortName {
		fail(f, NameTooLong)
		return
	}
	reg, ok := k.ports.Get(name)
	if !ok {
		fail(f, PortNotFound)
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	f.Regs[1] = k.openSession(t.proc, reg)
	succeed(f)
}

// openSession creates a session to reg in process p and returns its
// handle value. It must be called with k.mu held.
func (k *Kernel) openSession(p *Process, reg *registration) uint32 {
	s := &session{id: k.ids.Session(), target: reg}
	k.logger.Debug("session opened",
		zap.String("service", reg.name),
		zap.Stringer("session", s.id),
		zap.Uint32("pid", p.id))
	return p.insert(s)
}

func (k *Kernel) sendSyncRequest(t *thread, f *svc.Frame) {
	k.mu.Lock()
	s, ok := t.proc.lookup(f.Regs[0], t).(*session)
	if !ok {
		k.mu.Unlock()
		fail(f, InvalidHandle)
		return
	}
	reg := s.target
	if reg.closed || reg.service == nil {
		k.mu.Unlock()
		fail(f, SessionClosed)
		return
	}

	worker := k.newThread(reg.owner, DefaultPriority, true)
	code := k.copyMessage(t, worker, true)
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.exitThread(worker)
		k.mu.Unlock()
	}()
	if !code.IsSuccess() {
		fail(f, code)
		return
	}

	wc := svc.NewClient(k, worker.storage, svc.WithLogger(k.logger.Named(reg.name)))
	done := make(chan struct{})
	err := k.pool.Submit(func() {
		defer close(done)
		k.serve(reg, wc, t.proc.id)
	})
	if err != nil {
		k.logger.Error("submit request", zap.String("service", reg.name), zap.Error(err))
		fail(f, SessionClosed)
		return
	}
	<-done

	k.mu.Lock()
	code = k.copyMessage(worker, t, false)
	k.mu.Unlock()
	if !code.IsSuccess() {
		fail(f, code)
		return
	}
	succeed(f)
}

// serve runs one request, turning a panic into an error reply.
func (k *Kernel) serve(reg *registration, c *svc.Client, sender uint32) {
	command := ipc.Header(c.Thread().CommandBuffer()[0]).CommandID()
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("service failed",
				zap.String("service", reg.name),
				zap.Uint16("command", command),
				zap.String("panic", fmt.Sprint(r)))
			ipc.WriteError(c.Thread(), command, UnknownCommand)
		}
	}()
	reg.service.ServeIPC(c, sender)
}

// copyMessage copies the message in from's command buffer to to's,
// processing translate parameters on the way. The receiver of a request
// gets receive buffers installed on demand; the receiver of a reply must
// have installed them. It must be called with k.mu held.
func (k *Kernel) copyMessage(from, to *thread, request bool) result.Code {
	in := from.storage.CommandBuffer()
	out := to.storage.CommandBuffer()

	// The receive table overlaps the upper half of the command buffer, so
	// it is read before the message overwrites it.
	var recv [tls.StaticBufferWords]uint32
	copy(recv[:], to.storage.StaticBuffers())

	header := ipc.Header(in[0])
	normal, translate := header.NormalWords(), header.TranslateWords()
	end := 1 + normal + translate
	if end > len(in) {
		return InvalidMessage
	}
	msg := make([]uint32, end)
	copy(msg, in[:end])

	for i := 1 + normal; i < end; {
		desc := msg[i]
		i++
		switch ipc.Kind(desc) {
		case ipc.KindHandles:
			count, move := ipc.DecodeHandleDescriptor(desc)
			if i+count > end {
				return InvalidMessage
			}
			for j := i; j < i+count; j++ {
				raw := msg[j]
				if raw == handle.Closed {
					continue
				}
				obj := from.proc.lookup(raw, from)
				if obj == nil {
					return InvalidHandle
				}
				msg[j] = to.proc.insert(obj)
				if move && !handle.Borrowed(raw).IsPseudo() {
					from.proc.remove(raw)
				}
			}
			i += count

		case ipc.KindProcessID:
			if i >= end {
				return InvalidMessage
			}
			msg[i] = from.proc.id
			i++

		case ipc.KindStaticBuffer:
			if i >= end {
				return InvalidMessage
			}
			size, slot := ipc.DecodeStaticBufferDescriptor(desc)
			v, _ := from.storage.Resolve(msg[i])
			data, ok := v.([]byte)
			if !ok || len(data) < size {
				return InvalidAddress
			}

			addr := recv[2*slot+1]
			dst, ok := resolveBytes(to.storage, addr)
			if !ok && request {
				dst = make([]byte, size)
				addr = to.storage.SetStaticBuffer(slot, dst)
				ok = true
			}
			if !ok || len(dst) < size {
				return StaticBufferTooSmall
			}
			copy(dst, data[:size])
			msg[i] = addr
			i++

		default:
			return InvalidMessage
		}
	}

	copy(out, msg)
	return result.Success
}

func resolveBytes(s *tls.Storage, addr uint32) ([]byte, bool) {
	v, ok := s.Resolve(addr)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
