package simkernel

import (
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/errf"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/srv"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/services/cfg"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

const (
	srvPortName    = srv.PortName
	cfgServiceName = "cfg:u"

	// maxPendingNotifications bounds each client's notification queue.
	maxPendingNotifications = 16
	// maxReportedSubscribers bounds the pids PublishAndGetSubscribers returns.
	maxReportedSubscribers = 60

	flagCoalesce       = 1
	flagIgnoreOverflow = 2
)

var srvAlreadyRegistered = srv.AlreadyRegistered

type srvClient struct {
	pid     uint32
	notify  handle.Borrowed
	pending *queue.Queue
	counts  map[uint32]int
	subs    map[uint32]struct{}
}

// srvService is the service manager behind the srv: port.
type srvService struct {
	k *Kernel

	mu      sync.Mutex
	clients map[uint32]*srvClient
}

func newSrvService(k *Kernel) *srvService {
	return &srvService{k: k, clients: make(map[uint32]*srvClient)}
}

func (s *srvService) client(pid uint32) *srvClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[pid]
}

func readName(in *ipc.Incoming) (string, bool) {
	w0, w1, n := in.Word(), in.Word(), in.Word()
	if n > srv.MaxNameLength {
		return "", false
	}
	return srv.UnpackName(w0, w1, n), true
}

// ServeIPC handles one service manager command.
func (s *srvService) ServeIPC(c *svc.Client, sender uint32) {
	thread := c.Thread()
	in := ipc.ReadIncoming(thread)
	cmd := in.Header().CommandID()

	if cmd == srv.CmdRegisterClient {
		pid := in.ProcessID()
		s.mu.Lock()
		if _, ok := s.clients[pid]; !ok {
			s.clients[pid] = &srvClient{
				pid:     pid,
				pending: queue.New(maxPendingNotifications),
				counts:  make(map[uint32]int),
				subs:    make(map[uint32]struct{}),
			}
		}
		s.mu.Unlock()
		ipc.NewReplyWriter(thread, cmd, result.Success).Finish()
		return
	}

	cl := s.client(sender)
	if cl == nil {
		ipc.WriteError(thread, cmd, srv.ClientNotRegistered)
		return
	}

	switch cmd {
	case srv.CmdEnableNotifications:
		s.enableNotifications(c, cl, cmd)
	case srv.CmdRegisterService, srv.CmdUnregisterService, srv.CmdGetServiceHandle, srv.CmdIsServiceRegistered:
		name, ok := readName(in)
		if !ok {
			ipc.WriteError(thread, cmd, srv.NameTooLong)
			return
		}
		s.serveRegistry(c, in, cmd, name, sender)
	case srv.CmdSubscribe, srv.CmdUnsubscribe:
		id := in.Word()
		s.mu.Lock()
		if cmd == srv.CmdSubscribe {
			cl.subs[id] = struct{}{}
		} else {
			delete(cl.subs, id)
		}
		s.mu.Unlock()
		ipc.NewReplyWriter(thread, cmd, result.Success).Finish()
	case srv.CmdReceiveNotification:
		s.receiveNotification(thread, cl, cmd)
	case srv.CmdPublishToSubscriber, srv.CmdPublishAndGetSubscriber:
		id, flags := in.Word(), in.Word()
		pids, code := s.publish(c, id, flags)
		if !code.IsSuccess() {
			ipc.WriteError(thread, cmd, code)
			return
		}
		w := ipc.NewReplyWriter(thread, cmd, result.Success)
		if cmd == srv.CmdPublishAndGetSubscriber {
			if len(pids) > maxReportedSubscribers {
				pids = pids[:maxReportedSubscribers]
			}
			w.Param(uint32(len(pids))).Params(pids...)
		}
		w.Finish()
	default:
		ipc.WriteError(thread, cmd, UnknownCommand)
	}
}

func (s *srvService) enableNotifications(c *svc.Client, cl *srvClient, cmd uint16) {
	thread := c.Thread()

	s.mu.Lock()
	defer s.mu.Unlock()

	var ev *handle.Owned
	var err error
	if cl.notify.IsClosed() {
		ev, err = c.CreateEvent(svc.ResetOneShot)
		if err == nil {
			var keep *handle.Owned
			if keep, err = c.DuplicateHandle(ev.Borrow()); err == nil {
				cl.notify = handle.Borrowed(keep.Leak())
			}
		}
	} else {
		ev, err = c.DuplicateHandle(cl.notify)
	}
	if err != nil {
		code, _ := result.CodeOf(err)
		ipc.WriteError(thread, cmd, code)
		return
	}
	ipc.NewReplyWriter(thread, cmd, result.Success).Translate(ipc.MoveHandles(ev)).Finish()
}

func (s *srvService) serveRegistry(c *svc.Client, in *ipc.Incoming, cmd uint16, name string, sender uint32) {
	thread := c.Thread()
	k := s.k

	switch cmd {
	case srv.CmdRegisterService:
		_ = in.Word() // max sessions

		k.mu.Lock()
		reg, code := k.registerService(name, k.procs[sender], nil)
		var raw uint32
		if code.IsSuccess() {
			raw = k.system.insert(&serverPort{reg: reg})
		}
		k.mu.Unlock()

		if !code.IsSuccess() {
			ipc.WriteError(thread, cmd, code)
			return
		}
		ipc.NewReplyWriter(thread, cmd, result.Success).
			Translate(ipc.MoveHandles(handle.New(c, raw))).
			Finish()

	case srv.CmdUnregisterService:
		k.mu.Lock()
		reg, ok := k.services[name]
		if ok && reg.owner.id == sender {
			delete(k.services, name)
			reg.closed = true
		}
		k.mu.Unlock()

		if !ok || reg.owner.id != sender {
			ipc.WriteError(thread, cmd, srv.NotRegistered)
			return
		}
		ipc.NewReplyWriter(thread, cmd, result.Success).Finish()

	case srv.CmdGetServiceHandle:
		policy := srv.BlockingPolicy(in.Word())

		k.mu.Lock()
		reg, ok := k.services[name]
		if !ok && policy == srv.Blocking {
			k.logger.Debug("waiting for service", zap.String("service", name), zap.Uint32("pid", sender))
			k.wait(svc.Forever, func() bool {
				reg, ok = k.services[name]
				return ok
			})
		}
		var raw uint32
		if ok {
			raw = k.openSession(k.system, reg)
		}
		k.mu.Unlock()

		if !ok {
			ipc.WriteError(thread, cmd, srv.NotRegistered)
			return
		}
		ipc.NewReplyWriter(thread, cmd, result.Success).
			Translate(ipc.MoveHandles(handle.New(c, raw))).
			Finish()

	case srv.CmdIsServiceRegistered:
		k.mu.Lock()
		_, ok := k.services[name]
		k.mu.Unlock()

		var v uint32
		if ok {
			v = 1
		}
		ipc.NewReplyWriter(thread, cmd, result.Success).Param(v).Finish()
	}
}

func (s *srvService) receiveNotification(thread *tls.Storage, cl *srvClient, cmd uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cl.pending.Empty() {
		ipc.WriteError(thread, cmd, srv.NoNotification)
		return
	}
	items, err := cl.pending.Get(1)
	if err != nil || len(items) == 0 {
		ipc.WriteError(thread, cmd, srv.NoNotification)
		return
	}
	id := items[0].(uint32)
	cl.counts[id]--
	ipc.NewReplyWriter(thread, cmd, result.Success).Param(id).Finish()
}

// publish queues id for every subscriber and signals their notification
// events. It returns the pids the notification is pending for. A full
// queue fails the whole publish before anything is queued, unless
// flagIgnoreOverflow skips those subscribers.
func (s *srvService) publish(c *svc.Client, id, flags uint32) ([]uint32, result.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pids []uint32
	var targets []*srvClient
	for _, cl := range s.clients {
		if _, ok := cl.subs[id]; !ok {
			continue
		}
		if flags&flagCoalesce != 0 && cl.counts[id] > 0 {
			pids = append(pids, cl.pid)
			continue
		}
		if cl.pending.Len() >= maxPendingNotifications {
			if flags&flagIgnoreOverflow != 0 {
				continue
			}
			return nil, LimitReached
		}
		targets = append(targets, cl)
	}

	for _, cl := range targets {
		if err := cl.pending.Put(id); err != nil {
			continue
		}
		cl.counts[id]++
		pids = append(pids, cl.pid)

		if !cl.notify.IsClosed() {
			if err := c.SignalEvent(cl.notify); err != nil {
				s.k.logger.Warn("signal notification event",
					zap.Uint32("pid", cl.pid),
					zap.Error(err))
			}
		}
	}
	return pids, result.Success
}

// serveErrf records fatal error reports.
func (k *Kernel) serveErrf(c *svc.Client, sender uint32) {
	thread := c.Thread()
	in := ipc.ReadIncoming(thread)
	cmd := in.Header().CommandID()
	if cmd != errf.CmdThrow {
		ipc.WriteError(thread, cmd, UnknownCommand)
		return
	}

	info, err := errf.DecodeErrorInfo(in.Words(in.Remaining()))
	if err != nil {
		ipc.WriteError(thread, cmd, InvalidMessage)
		return
	}

	k.mu.Lock()
	k.reports = append(k.reports, info)
	k.mu.Unlock()

	k.logger.Error("fatal error reported",
		zap.Uint32("sender", sender),
		zap.Stringer("type", info.Type),
		zap.Stringer("result", info.Result),
		zap.Uint32("pid", info.ProcessID),
		zap.String("message", info.Message))
	ipc.NewReplyWriter(thread, cmd, result.Success).Finish()
}

// cfgService answers configuration queries from the layout's console.
type cfgService struct {
	region      cfg.Region
	model       cfg.SystemModel
	is2DS       bool
	canadaOrUSA bool
	seed        uint64
}

func newCfgService(c Console) *cfgService {
	region, _ := parseRegion(c.Region)
	model, _ := parseModel(c.Model)
	return &cfgService{
		region:      region,
		model:       model,
		is2DS:       c.Is2DS,
		canadaOrUSA: c.CanadaOrUSA,
		seed:        c.HashSeed,
	}
}

func parseRegion(s string) (cfg.Region, bool) {
	for r := cfg.Japan; r <= cfg.Taiwan; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

func parseModel(s string) (cfg.SystemModel, bool) {
	for m := cfg.ModelCTR; m <= cfg.ModelJAN; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// mix is the splitmix64 finalizer.
func mix(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ x>>30) * 0xBF58476D1CE4E5B9
	x = (x ^ x>>27) * 0x94D049BB133111EB
	return x ^ x>>31
}

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// ServeIPC handles one configuration command.
func (s *cfgService) ServeIPC(c *svc.Client, _ uint32) {
	thread := c.Thread()
	in := ipc.ReadIncoming(thread)
	cmd := in.Header().CommandID()
	w := ipc.NewReplyWriter(thread, cmd, result.Success)

	switch cmd {
	case cfg.CmdSecureInfoRegion:
		w.Param(uint32(s.region))
	case cfg.CmdGenerateConsoleUniqueHash:
		h := mix(s.seed ^ uint64(in.Word()&0xFFFFF))
		w.Params(uint32(h), uint32(h>>32))
	case cfg.CmdIsCanadaOrUSA:
		w.Param(flag(s.canadaOrUSA))
	case cfg.CmdSystemModel:
		w.Param(uint32(s.model))
	case cfg.CmdIs2DS:
		w.Param(flag(s.is2DS))
	default:
		ipc.WriteError(thread, cmd, UnknownCommand)
		return
	}
	w.Finish()
}
