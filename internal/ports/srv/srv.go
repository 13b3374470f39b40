// Package srv is the client of the service manager port, through which
// processes register services and obtain sessions to them.
package srv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// PortName is the name of the global service manager port.
const PortName = "srv:"

// Command ids.
const (
	CmdRegisterClient          uint16 = 0x1
	CmdEnableNotifications     uint16 = 0x2
	CmdRegisterService         uint16 = 0x3
	CmdUnregisterService       uint16 = 0x4
	CmdGetServiceHandle        uint16 = 0x5
	CmdSubscribe               uint16 = 0x9
	CmdUnsubscribe             uint16 = 0xA
	CmdReceiveNotification     uint16 = 0xB
	CmdPublishToSubscriber     uint16 = 0xC
	CmdPublishAndGetSubscriber uint16 = 0xD
	CmdIsServiceRegistered     uint16 = 0xE
)

// MaxNameLength is the longest service name the protocol carries.
const MaxNameLength = 8

// Result codes reported by the service manager.
var (
	NotRegistered       = result.New(result.LevelPermanent, result.SummaryWouldBlock, result.ModuleSrv, result.DescriptionNotFound)
	AlreadyRegistered   = result.New(result.LevelPermanent, result.SummaryWrongArgument, result.ModuleSrv, result.DescriptionAlreadyExists)
	ClientNotRegistered = result.New(result.LevelPermanent, result.SummaryInvalidState, result.ModuleSrv, result.DescriptionNotInitialized)
	NameTooLong         = result.New(result.LevelPermanent, result.SummaryWrongArgument, result.ModuleSrv, result.DescriptionTooLarge)
	NoNotification      = result.New(result.LevelStatus, result.SummaryNop, result.ModuleSrv, result.DescriptionNoData)
)

// BlockingPolicy controls GetServiceHandle when the service is not
// registered yet.
type BlockingPolicy uint32

const (
	Blocking    BlockingPolicy = 0
	NonBlocking BlockingPolicy = 1
)

// PackName packs a service name into the two words and length the protocol
// uses. Names longer than 8 bytes are truncated.
func PackName(name string) (w0, w1, n uint32) {
	var b [MaxNameLength]byte
	n = uint32(copy(b[:], name))
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), n
}

// UnpackName is the inverse of PackName.
func UnpackName(w0, w1, n uint32) string {
	var b [MaxNameLength]byte
	binary.LittleEndian.PutUint32(b[0:4], w0)
	binary.LittleEndian.PutUint32(b[4:8], w1)
	if n > MaxNameLength {
		n = MaxNameLength
	}
	return string(b[:n])
}

// Client is a registered session with the service manager.
type Client struct {
	c      *svc.Client
	h      *handle.Owned
	policy BlockingPolicy
}

// Connect opens the service manager port and registers this process as a
// client.
func Connect(c *svc.Client) (*Client, error) {
	c.Logger().Debug("connecting to port", zap.String("port", PortName))
	h, err := c.ConnectToPort(PortName)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", PortName, err)
	}

	s := &Client{c: c, h: h, policy: Blocking}
	if err := s.registerClient(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("register client: %w", err)
	}
	return s, nil
}

// Handle returns a borrowed view of the session.
func (s *Client) Handle() handle.Borrowed { return s.h.Borrow() }

// Close closes the session.
func (s *Client) Close() error { return s.h.Close() }

// BlockingPolicy returns the policy used by GetServiceHandle.
func (s *Client) BlockingPolicy() BlockingPolicy { return s.policy }

// SetBlockingPolicy changes the policy used by GetServiceHandle.
func (s *Client) SetBlockingPolicy(p BlockingPolicy) { s.policy = p }

func (s *Client) registerClient() error {
	_, err := ipc.NewRequest(s.c, CmdRegisterClient).
		Translate(ipc.ThisProcessID()).
		Dispatch(s.h.Borrow())
	return err
}

// EnableNotifications returns the semaphore signaled when a subscribed
// notification is published.
func (s *Client) EnableNotifications() (*handle.Owned, error) {
	reply, err := ipc.NewRequest(s.c, CmdEnableNotifications).Dispatch(s.h.Borrow())
	if err != nil {
		return nil, err
	}
	return reply.FinishResults().Handle(), nil
}

// RegisterService registers name and returns the server port accepting
// sessions to it.
func (s *Client) RegisterService(name string, maxSessions uint32) (*handle.Owned, error) {
	w0, w1, n := PackName(name)
	reply, err := ipc.NewRequest(s.c, CmdRegisterService).
		Params(w0, w1, n, maxSessions).
		Dispatch(s.h.Borrow())
	if err != nil {
		return nil, err
	}
	return reply.FinishResults().Handle(), nil
}

// UnregisterService removes name.
func (s *Client) UnregisterService(name string) error {
	w0, w1, n := PackName(name)
	_, err := ipc.NewRequest(s.c, CmdUnregisterService).
		Params(w0, w1, n).
		Dispatch(s.h.Borrow())
	return err
}

// GetServiceHandle opens a session to name.
func (s *Client) GetServiceHandle(name string) (*handle.Owned, error) {
	w0, w1, n := PackName(name)
	reply, err := ipc.NewRequest(s.c, CmdGetServiceHandle).
		Params(w0, w1, n, uint32(s.policy)).
		Dispatch(s.h.Borrow())
	if err != nil {
		return nil, err
	}
	return reply.FinishResults().Handle(), nil
}

// GetServiceHandleAlternatives opens a session to the first of names that
// succeeds and reports which one it was. Every name but the last is looked
// up without blocking; the last one follows the client's policy. The error
// of the last attempt is returned when none succeeds.
func (s *Client) GetServiceHandleAlternatives(names ...string) (*handle.Owned, int, error) {
	err := errors.New("srv: no service names given")
	policy := s.policy
	defer func() { s.policy = policy }()

	for i, name := range names {
		s.policy = NonBlocking
		if i == len(names)-1 {
			s.policy = policy
		}
		var h *handle.Owned
		h, err = s.GetServiceHandle(name)
		if err == nil {
			return h, i, nil
		}
	}
	return nil, -1, err
}

// GetServiceHandleRetry polls for name with a non-blocking lookup, backing
// off exponentially between attempts, until the service is registered,
// another error occurs or ctx ends.
func (s *Client) GetServiceHandleRetry(ctx context.Context, name string, maxInterval time.Duration) (*handle.Owned, error) {
	policy := s.policy
	s.policy = NonBlocking
	defer func() { s.policy = policy }()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() (*handle.Owned, error) {
		attempt++
		h, err := s.GetServiceHandle(name)
		if err == nil {
			return h, nil
		}
		if code, ok := result.CodeOf(err); ok && code == NotRegistered {
			s.c.Logger().Debug("service not registered yet",
				zap.String("service", name),
				zap.Int("attempt", attempt))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	return backoff.RetryWithData(op, backoff.WithContext(b, ctx))
}

// IsServiceRegistered reports whether name is registered.
func (s *Client) IsServiceRegistered(name string) (bool, error) {
	w0, w1, n := PackName(name)
	reply, err := ipc.NewRequest(s.c, CmdIsServiceRegistered).
		Params(w0, w1, n).
		Dispatch(s.h.Borrow())
	if err != nil {
		return false, err
	}
	return reply.Word() != 0, nil
}

// Subscribe subscribes this process to notification id.
func (s *Client) Subscribe(id uint32) error {
	_, err := ipc.NewRequest(s.c, CmdSubscribe).Param(id).Dispatch(s.h.Borrow())
	return err
}

// Unsubscribe removes the subscription to notification id.
func (s *Client) Unsubscribe(id uint32) error {
	_, err := ipc.NewRequest(s.c, CmdUnsubscribe).Param(id).Dispatch(s.h.Borrow())
	return err
}

// ReceiveNotification pops the next pending notification id.
func (s *Client) ReceiveNotification() (uint32, error) {
	reply, err := ipc.NewRequest(s.c, CmdReceiveNotification).Dispatch(s.h.Borrow())
	if err != nil {
		return 0, err
	}
	return reply.Word(), nil
}

// PublishFlags packs the publish options.
func PublishFlags(coalescePending, ignoreOverflow bool) uint32 {
	var f uint32
	if coalescePending {
		f |= 1
	}
	if ignoreOverflow {
		f |= 2
	}
	return f
}

// PublishToSubscriber publishes notification id to every subscriber.
func (s *Client) PublishToSubscriber(id uint32, coalescePending, ignoreOverflow bool) error {
	_, err := ipc.NewRequest(s.c, CmdPublishToSubscriber).
		Params(id, PublishFlags(coalescePending, ignoreOverflow)).
		Dispatch(s.h.Borrow())
	return err
}

// PublishAndGetSubscribers publishes id and returns the process ids it was
// delivered to.
func (s *Client) PublishAndGetSubscribers(id uint32, coalescePending, ignoreOverflow bool) ([]uint32, error) {
	reply, err := ipc.NewRequest(s.c, CmdPublishAndGetSubscriber).
		Params(id, PublishFlags(coalescePending, ignoreOverflow)).
		Dispatch(s.h.Borrow())
	if err != nil {
		return nil, err
	}
	n := int(reply.Word())
	pids := make([]uint32, n)
	copy(pids, reply.Words(n))
	return pids, nil
}
