package simkernel

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	uthread "github.com/GriffinCanCode/AgentOS/ctrkit/internal/thread"
)

const short = svc.Timeout(20 * time.Millisecond)

func newKernel(t *testing.T, opts ...Option) *Kernel {
	t.Helper()
	k, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k
}

func attach(t *testing.T, k *Kernel) (*Process, *svc.Client) {
	t.Helper()
	p := k.NewProcess(t.Name())
	return p, p.Attach()
}

func requireCode(t *testing.T, err error, want result.Code) {
	t.Helper()
	require.Error(t, err)
	got, ok := result.CodeOf(err)
	require.True(t, ok, "error %v carries no result code", err)
	assert.Equal(t, want, got, "got %s", got)
}

func TestBuiltinServicesRegistered(t *testing.T) {
	k := newKernel(t)
	assert.Equal(t, []string{"cfg:u"}, k.Services())

	procs := k.Processes()
	require.Len(t, procs, 1)
	assert.Equal(t, "system", procs[0].Name)
	assert.Equal(t, DefaultLayout().FirstProcessID, procs[0].ID)
}

func TestProcessIdentity(t *testing.T) {
	k := newKernel(t)
	p, c := attach(t, k)

	pid, err := c.GetProcessID(handle.CurrentProcess)
	require.NoError(t, err)
	assert.Equal(t, p.ID(), pid)

	got, ok := k.Process(pid)
	require.True(t, ok)
	assert.Same(t, p, got)

	_, err = c.GetProcessID(handle.Borrowed(0x1234))
	requireCode(t, err, InvalidHandle)
}

func TestHandleCloseAndDuplicate(t *testing.T) {
	k := newKernel(t)
	p, c := attach(t, k)

	ev, err := c.CreateEvent(svc.ResetSticky)
	require.NoError(t, err)
	dup, err := ev.Duplicate()
	require.NoError(t, err)
	assert.NotEqual(t, ev.Borrow(), dup.Borrow())

	require.NoError(t, ev.Close())
	require.NoError(t, c.SignalEvent(dup.Borrow()))
	require.NoError(t, c.WaitSynchronization(dup.Borrow(), svc.None))

	requireCode(t, c.CloseHandle(ev.Borrow()), InvalidHandle)
	requireCode(t, c.CloseHandle(handle.CurrentThread), InvalidHandle)

	hs := k.Handles(p.ID())
	require.Len(t, hs, 1)
	assert.Equal(t, "event", hs[0].Kind)
	assert.Equal(t, dup.Borrow().Raw(), hs[0].Handle)
}

func TestEventResetModes(t *testing.T) {
	tests := []struct {
		name       string
		reset      svc.ResetType
		secondWait bool
		latched    bool
	}{
		{"one shot", svc.ResetOneShot, false, true},
		{"sticky", svc.ResetSticky, true, true},
		{"pulse", svc.ResetPulse, false, false},
	}

	k := newKernel(t)
	_, c := attach(t, k)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.CreateEvent(tt.reset)
			require.NoError(t, err)
			defer ev.Close()

			requireCode(t, c.WaitSynchronization(ev.Borrow(), svc.None), result.TimedOut)
			require.NoError(t, c.SignalEvent(ev.Borrow()))

			err = c.WaitSynchronization(ev.Borrow(), svc.None)
			if !tt.latched {
				requireCode(t, err, result.TimedOut)
				return
			}
			require.NoError(t, err)

			err = c.WaitSynchronization(ev.Borrow(), svc.None)
			if tt.secondWait {
				require.NoError(t, err)
				require.NoError(t, c.ClearEvent(ev.Borrow()))
				requireCode(t, c.WaitSynchronization(ev.Borrow(), svc.None), result.TimedOut)
			} else {
				requireCode(t, err, result.TimedOut)
			}
		})
	}

	_, err := c.CreateEvent(svc.ResetType(7))
	requireCode(t, err, InvalidEnumValue)
}

func TestPulseReleasesCurrentWaiters(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	ev, err := c.CreateEvent(svc.ResetPulse)
	require.NoError(t, err)

	var woke atomic.Int32
	waiters := make([]*uthread.JoinHandle[error], 3)
	for i := range waiters {
		waiters[i], err = uthread.Spawn(c, func(tc *svc.Client) error {
			err := tc.WaitSynchronization(ev.Borrow(), svc.Forever)
			woke.Add(1)
			return err
		})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		_ = c.SignalEvent(ev.Borrow())
		return woke.Load() == 3
	}, 2*time.Second, 5*time.Millisecond)

	for _, w := range waiters {
		werr, err := w.Join(c)
		require.NoError(t, err)
		assert.NoError(t, werr)
	}
}

func TestWaitTimesOut(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	ev, err := c.CreateEvent(svc.ResetOneShot)
	require.NoError(t, err)

	start := time.Now()
	requireCode(t, c.WaitSynchronization(ev.Borrow(), short), result.TimedOut)
	assert.GreaterOrEqual(t, time.Since(start), short.Duration())
}

func TestMutexOwnership(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	m, err := c.CreateMutex(true)
	require.NoError(t, err)

	// recursive acquisition by the owner
	require.NoError(t, c.WaitSynchronization(m.Borrow(), svc.None))

	other, err := uthread.Spawn(c, func(tc *svc.Client) []error {
		return []error{
			tc.WaitSynchronization(m.Borrow(), svc.None),
			tc.ReleaseMutex(m.Borrow()),
		}
	})
	require.NoError(t, err)
	errs, err := other.Join(c)
	require.NoError(t, err)
	requireCode(t, errs[0], result.TimedOut)
	requireCode(t, errs[1], NotOwner)

	require.NoError(t, c.ReleaseMutex(m.Borrow()))
	require.NoError(t, c.ReleaseMutex(m.Borrow()))
	requireCode(t, c.ReleaseMutex(m.Borrow()), NotOwner)

	taker, err := uthread.Spawn(c, func(tc *svc.Client) error {
		if err := tc.WaitSynchronization(m.Borrow(), svc.None); err != nil {
			return err
		}
		return tc.ReleaseMutex(m.Borrow())
	})
	require.NoError(t, err)
	terr, err := taker.Join(c)
	require.NoError(t, err)
	assert.NoError(t, terr)
}

func TestMutexAbandonedOnThreadExit(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	m, err := c.CreateMutex(false)
	require.NoError(t, err)

	holder, err := uthread.Spawn(c, func(tc *svc.Client) error {
		return tc.WaitSynchronization(m.Borrow(), svc.None)
	})
	require.NoError(t, err)
	herr, err := holder.Join(c)
	require.NoError(t, err)
	require.NoError(t, herr)

	assert.NoError(t, c.WaitSynchronization(m.Borrow(), short))
}

func TestWaitSynchronizationN(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	e0, err := c.CreateEvent(svc.ResetSticky)
	require.NoError(t, err)
	e1, err := c.CreateEvent(svc.ResetSticky)
	require.NoError(t, err)
	hs := []handle.Borrowed{e0.Borrow(), e1.Borrow()}

	_, err = c.WaitSynchronizationN(hs, false, svc.None)
	requireCode(t, err, result.TimedOut)

	require.NoError(t, c.SignalEvent(e1.Borrow()))
	i, err := c.WaitSynchronizationN(hs, false, svc.None)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = c.WaitSynchronizationN(hs, true, svc.None)
	requireCode(t, err, result.TimedOut)

	require.NoError(t, c.SignalEvent(e0.Borrow()))
	i, err = c.WaitSynchronizationN(hs, true, svc.None)
	require.NoError(t, err)
	assert.Equal(t, -1, i)

	_, err = c.WaitSynchronizationN([]handle.Borrowed{e0.Borrow(), 0x777}, false, svc.None)
	requireCode(t, err, InvalidHandle)
}

func TestArbitrateAddress(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	arb, err := c.CreateAddressArbiter()
	require.NoError(t, err)

	var v atomic.Int32
	v.Store(5)

	t.Run("no wait when not less", func(t *testing.T) {
		require.NoError(t, c.ArbitrateAddress(arb.Borrow(), &v, svc.ArbitrateWaitIfLessThan, 5, svc.None))
	})

	t.Run("timeout", func(t *testing.T) {
		err := c.ArbitrateAddress(arb.Borrow(), &v, svc.ArbitrateWaitIfLessThanTimeout, 6, short)
		requireCode(t, err, result.TimedOut)
		assert.Equal(t, int32(5), v.Load())
	})

	t.Run("decrement then timeout", func(t *testing.T) {
		err := c.ArbitrateAddress(arb.Borrow(), &v, svc.ArbitrateDecrementAndWaitIfLessThanTimeout, 6, svc.None)
		requireCode(t, err, result.TimedOut)
		assert.Equal(t, int32(4), v.Load())
	})

	t.Run("wake", func(t *testing.T) {
		var gate atomic.Int32
		waiter, err := uthread.Spawn(c, func(tc *svc.Client) error {
			return tc.ArbitrateAddress(arb.Borrow(), &gate, svc.ArbitrateWaitIfLessThan, 1, svc.None)
		})
		require.NoError(t, err)

		gate.Store(1)
		assert.Eventually(t, func() bool {
			_ = c.ArbitrateAddress(arb.Borrow(), &gate, svc.ArbitrateSignal, -1, svc.None)
			return !waiter.IsRunning(c)
		}, 2*time.Second, 5*time.Millisecond)

		werr, err := waiter.Join(c)
		require.NoError(t, err)
		assert.NoError(t, werr)
	})

	t.Run("bad type", func(t *testing.T) {
		err := c.ArbitrateAddress(arb.Borrow(), &v, svc.ArbitrationType(9), 0, svc.None)
		requireCode(t, err, InvalidEnumValue)
	})
}

func TestThreads(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	j, err := uthread.SpawnWith(c, uthread.NewBuilder().WithPriority(0x2C), func(tc *svc.Client) int32 {
		p, _ := tc.GetThreadPriority(handle.CurrentThread)
		return p
	})
	require.NoError(t, err)
	p, err := j.Priority(c)
	if err == nil {
		assert.Equal(t, int32(0x2C), p)
	}
	got, err := j.Join(c)
	require.NoError(t, err)
	assert.Equal(t, int32(0x2C), got)

	_, err = uthread.SpawnWith(c, uthread.NewBuilder().WithPriority(0x40), func(*svc.Client) int { return 0 })
	requireCode(t, err, OutOfRange)
}

func TestSystemTickAdvances(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	a := c.GetSystemTick()
	c.SleepThread(svc.TimeoutOf(5 * time.Millisecond))
	b := c.GetSystemTick()
	assert.Greater(t, b, a)
	assert.GreaterOrEqual(t, b-a, uint64(TicksPerSecond/1000*5))
}

func TestTicksFor(t *testing.T) {
	assert.Equal(t, uint64(TicksPerSecond), ticksFor(time.Second))
	assert.Equal(t, uint64(0), ticksFor(0))
	assert.Equal(t, uint64(TicksPerSecond)*3600, ticksFor(time.Hour))
}

func TestDebugOutput(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	c.OutputDebugString([]byte("hello\nwor"))
	assert.Equal(t, []string{"hello"}, k.DebugOutput())

	c.OutputDebugString([]byte("ld\n"))
	require.NoError(t, c.OutputDebugJSON(map[string]int{"n": 1}))
	c.OutputDebugString([]byte("\n"))
	assert.Equal(t, []string{"hello", "world", `{"n":1}`}, k.DebugOutput())
}

func TestStopPoint(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	c.StopPoint()
	c.StopPoint()
	assert.Equal(t, 2, k.StopPoints())
}

func TestBreakEndsThread(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	j, err := uthread.Spawn(c, func(tc *svc.Client) int {
		tc.Break(svc.BreakAssert)
		return 1
	})
	require.NoError(t, err)
	_, err = j.Join(c)
	require.NoError(t, err)

	assert.Equal(t, []svc.BreakReason{svc.BreakAssert}, k.Breaks())
}

func TestResourceLimits(t *testing.T) {
	layout := DefaultLayout()
	layout.Limits["events"] = 2
	k := newKernel(t, WithLayout(layout))
	_, c := attach(t, k)

	for i := 0; i < 2; i++ {
		_, err := c.CreateEvent(svc.ResetOneShot)
		require.NoError(t, err)
	}
	_, err := c.CreateEvent(svc.ResetOneShot)
	requireCode(t, err, LimitReached)

	lim, err := c.GetResourceLimit(handle.CurrentProcess)
	require.NoError(t, err)

	types := []svc.LimitType{svc.LimitEvents, svc.LimitMemoryAllocatable, svc.LimitPriority}
	values := make([]int64, len(types))
	require.NoError(t, c.GetResourceLimitLimitValues(lim.Borrow(), values, types))
	assert.Equal(t, []int64{2, 0x04000000, 0x18}, values)

	require.NoError(t, c.GetResourceLimitCurrentValues(lim.Borrow(), values, types))
	assert.Equal(t, []int64{2, 0, 0}, values)
}

func TestUnimplementedSyscall(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	var f svc.Frame
	k.Trap(c.Thread(), svc.Number(0x70), &f)
	assert.Equal(t, uint32(NotImplemented), f.Regs[0])
}
