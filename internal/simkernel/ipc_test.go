package simkernel

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

const (
	cmdAdd     = 0x1
	cmdSignal  = 0x2
	cmdReverse = 0x3
	cmdPanic   = 0x4
	cmdConsume = 0x5
)

// echo is a small service exercising every kind of translate parameter.
func echo(c *svc.Client, sender uint32) {
	in := ipc.ReadIncoming(c.Thread())
	cmd := in.Header().CommandID()
	reply := ipc.NewReplyWriter(c.Thread(), cmd, result.Success)

	switch cmd {
	case cmdAdd:
		reply.Param(in.Word() + in.Word())
	case cmdSignal:
		hs := in.Handles()
		pid := in.ProcessID()
		if err := c.SignalEvent(hs[0]); err != nil {
			code, _ := result.CodeOf(err)
			ipc.WriteError(c.Thread(), cmd, code)
			return
		}
		reply.Params(pid, sender).Translate(ipc.MoveHandles(handle.New(c, hs[0].Raw())))
	case cmdReverse:
		data := slices.Clone(in.StaticBuffer())
		slices.Reverse(data)
		reply.Translate(ipc.StaticBuffer(0, data))
	case cmdPanic:
		panic("boom")
	case cmdConsume:
		hs := in.Handles()
		for _, h := range hs {
			_ = c.CloseHandle(h)
		}
		reply.Param(uint32(len(hs)))
	default:
		ipc.WriteError(c.Thread(), cmd, UnknownCommand)
		return
	}
	reply.Finish()
}

func connectEcho(t *testing.T) (*Kernel, *Process, *svc.Client, *handle.Owned) {
	t.Helper()
	k := newKernel(t)
	k.RegisterPort("echo", ServiceFunc(echo))
	p, c := attach(t, k)

	session, err := c.ConnectToPort("echo")
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return k, p, c, session
}

func TestNormalWords(t *testing.T) {
	_, _, c, session := connectEcho(t)

	reply, err := ipc.NewRequest(c, cmdAdd).Params(40, 2).Dispatch(session.Borrow())
	require.NoError(t, err)
	assert.Equal(t, ipc.NewHeader(cmdAdd, 2, 0), reply.Header())
	assert.Equal(t, uint32(42), reply.Word())
}

func TestHandlesAndProcessID(t *testing.T) {
	k, p, c, session := connectEcho(t)

	ev, err := c.CreateEvent(svc.ResetSticky)
	require.NoError(t, err)
	defer ev.Close()

	reply, err := ipc.NewRequest(c, cmdSignal).
		Translate(ipc.CopyHandles(ev.Borrow())).
		Translate(ipc.ThisProcessID()).
		Dispatch(session.Borrow())
	require.NoError(t, err)

	assert.Equal(t, p.ID(), reply.Word(), "process id inserted by the kernel")
	assert.Equal(t, p.ID(), reply.Word(), "sender passed to the service")

	back := reply.FinishResults().Handle()
	defer back.Close()
	assert.NotEqual(t, ev.Borrow(), back.Borrow())

	require.NoError(t, c.WaitSynchronization(ev.Borrow(), svc.None))
	require.NoError(t, c.WaitSynchronization(back.Borrow(), svc.None))

	for _, h := range k.Handles(k.system.ID()) {
		assert.NotEqual(t, "event", h.Kind, "moved handle must leave the service process")
	}
}

func TestMovedHandleLeavesSender(t *testing.T) {
	k, p, c, session := connectEcho(t)

	ev, err := c.CreateEvent(svc.ResetOneShot)
	require.NoError(t, err)
	raw := ev.Borrow()

	reply, err := ipc.NewRequest(c, cmdConsume).
		Translate(ipc.MoveHandles(ev)).
		Dispatch(session.Borrow())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), reply.Word())
	assert.True(t, ev.IsClosed())

	for _, h := range k.Handles(p.ID()) {
		assert.NotEqual(t, raw.Raw(), h.Handle)
	}
	requireCode(t, c.SignalEvent(raw), InvalidHandle)
}

func TestStaticBuffers(t *testing.T) {
	_, _, c, session := connectEcho(t)

	recv := make([]byte, 64)
	c.Thread().SetStaticBuffer(0, recv)
	defer c.Thread().ClearStaticBuffer(0)

	reply, err := ipc.NewRequest(c, cmdReverse).
		Translate(ipc.StaticBuffer(0, []byte("stressed"))).
		Dispatch(session.Borrow())
	require.NoError(t, err)

	id, data := reply.FinishResults().StaticBuffer()
	assert.Equal(t, 0, id)
	assert.Equal(t, "desserts", string(data))
	assert.Equal(t, "desserts", string(recv[:8]))
	assert.Equal(t, 1, c.Thread().Pinned(), "only the receive buffer stays pinned")
}

func TestStaticBufferTooSmall(t *testing.T) {
	_, _, c, session := connectEcho(t)

	c.Thread().SetStaticBuffer(0, make([]byte, 2))
	defer c.Thread().ClearStaticBuffer(0)

	_, err := ipc.NewRequest(c, cmdReverse).
		Translate(ipc.StaticBuffer(0, []byte("stressed"))).
		Dispatch(session.Borrow())
	requireCode(t, err, StaticBufferTooSmall)
}

func TestServiceFailures(t *testing.T) {
	_, _, c, session := connectEcho(t)

	tests := []struct {
		name string
		cmd  uint16
		want result.Code
	}{
		{"panic", cmdPanic, UnknownCommand},
		{"unknown", 0x77, UnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reply, err := ipc.NewRequest(c, tt.cmd).DispatchNoFail(session.Borrow())
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
			assert.Zero(t, reply.Remaining())
		})
	}

	_, err := ipc.NewRequest(c, cmdConsume).
		Translate(ipc.CopyHandles(handle.Borrowed(0x999))).
		Dispatch(session.Borrow())
	requireCode(t, err, InvalidHandle)
}

func TestConnectToPort(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	_, err := c.ConnectToPort("nope")
	requireCode(t, err, PortNotFound)

	_, err = c.ConnectToPort("name:too:long")
	requireCode(t, err, NameTooLong)

	requireCode(t, c.SendSyncRequest(handle.Borrowed(0x4444)), InvalidHandle)
}
