package svc

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// recorder captures the input frame of the last trap and answers with out.
type recorder struct {
	num Number
	in  Registers
	ptr map[int]any
	out func(f *Frame)
}

func (r *recorder) Trap(_ *tls.Storage, num Number, f *Frame) {
	r.num = num
	r.in = f.Regs
	r.ptr = make(map[int]any)
	for i := range f.Regs {
		if p := f.Pointer(i); p != nil {
			r.ptr[i] = p
		}
	}
	f.Regs = Registers{}
	if r.out != nil {
		r.out(f)
	}
}

func newRecorder(out func(f *Frame)) (*recorder, *Client) {
	r := &recorder{out: out}
	return r, NewClient(r, tls.New())
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) ObserveSyscall(num Number, code result.Code, elapsed time.Duration) {
	m.Called(num, code)
}

func (m *mockObserver) ObserveRequest(command uint16, code result.Code, elapsed time.Duration) {
	m.Called(command, code)
}

const timeout = Timeout(0x0000000A_B0000001)

func TestRegisterPlacement(t *testing.T) {
	tests := []struct {
		name string
		num  Number
		call func(c *Client)
		want Registers
	}{
		{
			name: "sleep thread low then high",
			num:  NumSleepThread,
			call: func(c *Client) { c.SleepThread(timeout) },
			want: Registers{0xB0000001, 0x0000000A},
		},
		{
			name: "wait synchronization high in r2 low in r3",
			num:  NumWaitSynchronization,
			call: func(c *Client) { _ = c.WaitSynchronization(0x1234, timeout) },
			want: Registers{0x1234, 0, 0x0000000A, 0xB0000001},
		},
		{
			name: "close handle",
			num:  NumCloseHandle,
			call: func(c *Client) { _ = c.CloseHandle(0x77) },
			want: Registers{0x77},
		},
		{
			name: "duplicate handle skips r0",
			num:  NumDuplicateHandle,
			call: func(c *Client) { _, _ = c.DuplicateHandle(0x99) },
			want: Registers{0, 0x99},
		},
		{
			name: "query memory address in r2",
			num:  NumQueryMemory,
			call: func(c *Client) { _, _ = c.QueryMemory(0x10000000) },
			want: Registers{0, 0, 0x10000000},
		},
		{
			name: "control memory",
			num:  NumControlMemory,
			call: func(c *Client) {
				_, _ = c.ControlMemory(OpAllocate|OpLinear, 0, 0, 0x2000, PermRW)
			},
			want: Registers{0x10003, 0, 0, 0x2000, 3},
		},
		{
			name: "create memory block other perm first",
			num:  NumCreateMemoryBlock,
			call: func(c *Client) { _, _ = c.CreateMemoryBlock(0, 0x1000, PermRW, PermR) },
			want: Registers{uint32(PermR), 0, 0x1000, uint32(PermRW)},
		},
		{
			name: "map memory block",
			num:  NumMapMemoryBlock,
			call: func(c *Client) { _ = c.MapMemoryBlock(5, 0x10000000, PermRW, PermDontCare) },
			want: Registers{5, 0x10000000, 3, 0x10000000},
		},
		{
			name: "get system info skips r0",
			num:  NumGetSystemInfo,
			call: func(c *Client) { _, _ = c.GetSystemInfo(0, 1) },
			want: Registers{0, 0, 1},
		},
		{
			name: "create mutex",
			num:  NumCreateMutex,
			call: func(c *Client) { _, _ = c.CreateMutex(true) },
			want: Registers{1},
		},
		{
			name: "create event",
			num:  NumCreateEvent,
			call: func(c *Client) { _, _ = c.CreateEvent(ResetSticky) },
			want: Registers{1},
		},
		{
			name: "send sync request",
			num:  NumSendSyncRequest,
			call: func(c *Client) { _ = c.SendSyncRequest(0x42) },
			want: Registers{0x42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, c := newRecorder(nil)
			tt.call(c)
			assert.Equal(t, tt.num, r.num)
			assert.Equal(t, tt.want, r.in)
		})
	}
}

func TestArbitrateAddressRegisters(t *testing.T) {
	r, c := newRecorder(nil)
	var v atomic.Int32

	require.NoError(t, c.ArbitrateAddress(3, &v, ArbitrateWaitIfLessThanTimeout, 1, timeout))

	assert.Equal(t, NumArbitrateAddress, r.num)
	assert.Equal(t, uint32(3), r.in[0])
	assert.Same(t, &v, r.ptr[1])
	assert.Equal(t, uint32(ArbitrateWaitIfLessThanTimeout), r.in[2])
	assert.Equal(t, uint32(1), r.in[3])
	assert.Equal(t, uint32(0xB0000001), r.in[4], "low half in r4")
	assert.Equal(t, uint32(0x0000000A), r.in[5], "high half in r5")
}

func TestWaitSynchronizationN(t *testing.T) {
	handles := []handle.Borrowed{10, 11, 12}

	tests := []struct {
		name   string
		answer func(base uint32) uint32
		want   int
	}{
		{"second handle", func(base uint32) uint32 { return base + 4 }, 1},
		{"first handle", func(base uint32) uint32 { return base }, 0},
		{"none", func(uint32) uint32 { return 0 }, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var base uint32
			r := &recorder{}
			r.out = func(f *Frame) { f.Regs[1] = tt.answer(base) }
			c := NewClient(TrapperFunc(func(th *tls.Storage, num Number, f *Frame) {
				base = f.Regs[1]
				r.Trap(th, num, f)
			}), tls.New())

			idx, err := c.WaitSynchronizationN(handles, false, timeout)
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx)

			assert.Equal(t, uint32(0xB0000001), r.in[0], "low half in r0")
			assert.Equal(t, handles, r.ptr[1])
			assert.Equal(t, uint32(3), r.in[2])
			assert.Equal(t, uint32(0), r.in[3])
			assert.Equal(t, uint32(0x0000000A), r.in[4], "high half in r4")
		})
	}
}

func TestGetSystemTickHighThenLow(t *testing.T) {
	_, c := newRecorder(func(f *Frame) {
		f.Regs[0] = 0x00000001
		f.Regs[1] = 0x80000000
	})
	assert.Equal(t, uint64(0x1_80000000), c.GetSystemTick())
}

func TestGetSystemInfoLowThenHigh(t *testing.T) {
	_, c := newRecorder(func(f *Frame) {
		f.Regs[1] = 0x00001000
		f.Regs[2] = 0x00000002
	})
	v, err := c.GetSystemInfo(0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0x2_00001000), v)
}

func TestOutputsIgnoredOnFailure(t *testing.T) {
	_, c := newRecorder(func(f *Frame) {
		f.Regs[0] = uint32(result.OutOfMemory)
		f.Regs[1] = 0xBAD
	})

	h, err := c.CreateEvent(ResetOneShot)
	assert.Nil(t, h)
	code, ok := result.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, result.OutOfMemory, code)

	_, err = c.QueryMemory(0)
	assert.Error(t, err)
}

func TestQueryMemoryDecode(t *testing.T) {
	_, c := newRecorder(func(f *Frame) {
		f.Regs = Registers{0, 0x10000000, 0x3000, uint32(PermRW), uint32(MemoryShared), 0}
	})
	q, err := c.QueryMemory(0x10000800)
	require.NoError(t, err)
	assert.Equal(t, QueryResult{Base: 0x10000000, Size: 0x3000, Permission: PermRW, State: MemoryShared}, q)
	assert.Equal(t, uint32(0x10003000), q.End())
}

func TestReturnedHandleIsOwned(t *testing.T) {
	var closed []Registers
	c := NewClient(TrapperFunc(func(_ *tls.Storage, num Number, f *Frame) {
		switch num {
		case NumCreateAddressArbiter:
			f.Regs[1] = 0x30
		case NumCloseHandle:
			closed = append(closed, f.Regs)
		}
		f.Regs[0] = 0
	}), tls.New())

	h, err := c.CreateAddressArbiter()
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Len(t, closed, 1)
	assert.Equal(t, uint32(0x30), closed[0][0])
}

func TestNeverReturningCallsPanic(t *testing.T) {
	_, c := newRecorder(nil)
	assert.Panics(t, func() { c.ExitThread() })
	assert.Panics(t, func() { c.ExitProcess() })
	assert.Panics(t, func() { c.Break(BreakPanic) })
}

func TestObserver(t *testing.T) {
	obs := new(mockObserver)
	obs.On("ObserveSyscall", NumSignalEvent, result.Success).Once()

	c := NewClient(TrapperFunc(func(*tls.Storage, Number, *Frame) {}), tls.New(), WithObserver(obs))
	require.NoError(t, c.SignalEvent(1))
	obs.AssertExpectations(t)
}

func TestForThread(t *testing.T) {
	var seen *tls.Storage
	c := NewClient(TrapperFunc(func(th *tls.Storage, _ Number, _ *Frame) { seen = th }), tls.New())

	other := tls.New()
	c.ForThread(other).StopPoint()
	assert.Same(t, other, seen)
	assert.NotSame(t, other, c.Thread())
}

func TestTimeout(t *testing.T) {
	assert.Equal(t, None, TimeoutOf(-time.Second))
	assert.Equal(t, Timeout(1500), TimeoutOf(1500*time.Nanosecond))
	assert.Equal(t, timeout, TimeoutFromRegs(timeout.low(), timeout.high()))
	assert.Equal(t, Forever, TimeoutFromRegs(Forever.low(), Forever.high()))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "SendSyncRequest", NumSendSyncRequest.String())
	assert.Equal(t, "svc(0x7f)", Number(0x7F).String())
	for num, e := range Table {
		assert.NotEmpty(t, e.Name, "entry %#x", uint8(num))
	}
}

func TestPermissionString(t *testing.T) {
	assert.Equal(t, "rw-", PermRW.String())
	assert.Equal(t, "r-x", PermRX.String())
	assert.Equal(t, "dont_care", PermDontCare.String())
	assert.Equal(t, "shared", MemoryShared.String())
}
