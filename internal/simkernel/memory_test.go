package simkernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/process"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/sharedmem"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

func TestQueryMemory(t *testing.T) {
	tests := []struct {
		name  string
		addr  uint32
		base  uint32
		size  uint32
		state svc.MemoryState
		perm  svc.MemoryPermission
	}{
		{"below code", 0, 0, 0x00100000, svc.MemoryFree, svc.PermNone},
		{"code", 0x00100800, 0x00100000, 0x00100000, svc.MemoryCode, svc.PermRX},
		{"data", 0x00200000, 0x00200000, 0x00040000, svc.MemoryPrivate, svc.PermRW},
		{"shared window", 0x10000000, 0x10000000, 0x0FF82000, svc.MemoryFree, svc.PermNone},
		{"stack", 0x0FFFFFFC, 0x0FFC0000, 0x00040000, svc.MemoryLocked, svc.PermRW},
		{"above tls", 0x1FF83000, 0x1FF83000, addressLimit - 0x1FF83000, svc.MemoryFree, svc.PermNone},
	}

	k := newKernel(t)
	_, c := attach(t, k)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.QueryMemory(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.base, q.Base)
			assert.Equal(t, tt.size, q.Size)
			assert.Equal(t, tt.state, q.State)
			assert.Equal(t, tt.perm, q.Permission)
		})
	}

	_, err := c.QueryMemory(addressLimit)
	requireCode(t, err, InvalidAddress)
}

func TestControlMemoryErrors(t *testing.T) {
	tests := []struct {
		name string
		op   svc.MemoryOperation
		addr uint32
		size uint32
		perm svc.MemoryPermission
		want error
	}{
		{"misaligned address", svc.OpAllocate, 0x08000010, 0x1000, svc.PermRW, MisalignedAddress.Err()},
		{"misaligned size", svc.OpAllocate, 0, 0x800, svc.PermRW, MisalignedSize.Err()},
		{"zero size", svc.OpAllocate, 0, 0, svc.PermRW, MisalignedSize.Err()},
		{"executable", svc.OpAllocate, 0, 0x1000, svc.PermRWX, InvalidEnumValue.Err()},
		{"outside heap", svc.OpAllocate, 0x00300000, 0x1000, svc.PermRW, InvalidAddress.Err()},
		{"over limit", svc.OpAllocate | svc.OpLinear, 0, 0x04001000, svc.PermRW, OutOfMemory.Err()},
		{"free unmapped", svc.OpFree, 0x08000000, 0x1000, svc.PermNone, InvalidAddress.Err()},
		{"free code", svc.OpFree, 0x00100000, 0x00100000, svc.PermNone, InvalidAddress.Err()},
		{"reserve", svc.OpReserve, 0, 0x1000, svc.PermNone, NotImplemented.Err()},
	}

	k := newKernel(t)
	_, c := attach(t, k)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ControlMemory(tt.op, tt.addr, 0, tt.size, tt.perm)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHeapAllocationFirstFit(t *testing.T) {
	k := newKernel(t)
	p, c := attach(t, k)

	a, err := c.ControlMemory(svc.OpAllocate, 0, 0, 0x2000, svc.PermRW)
	require.NoError(t, err)
	b, err := c.ControlMemory(svc.OpAllocate, 0, 0, 0x1000, svc.PermRW)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08000000), a)
	assert.Equal(t, uint32(0x08002000), b)

	_, err = c.ControlMemory(svc.OpFree, a, 0, 0x2000, svc.PermNone)
	require.NoError(t, err)

	again, err := c.ControlMemory(svc.OpAllocate, 0, 0, 0x1000, svc.PermRW)
	require.NoError(t, err)
	assert.Equal(t, a, again)

	fixed, err := c.ControlMemory(svc.OpAllocate, 0x08100000, 0, 0x1000, svc.PermR)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08100000), fixed)
	_, err = c.ControlMemory(svc.OpAllocate, 0x08100000, 0, 0x1000, svc.PermR)
	requireCode(t, err, InvalidAddress)

	q, err := c.QueryMemory(b)
	require.NoError(t, err)
	assert.Equal(t, svc.MemoryPrivate, q.State)

	info, ok := k.Process(p.ID())
	require.True(t, ok)
	assert.Equal(t, uint32(0x3000), info.allocated)
}

func TestLinearAllocation(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	before, err := process.MemoryUsed(c, process.RegionApplication)
	require.NoError(t, err)
	assert.Zero(t, before)

	addr, err := process.AllocateLinear(c, 0x1800, svc.PermRW)
	require.NoError(t, err)
	assert.Equal(t, DefaultLayout().Linear.Base, addr)

	q, err := c.QueryMemory(addr)
	require.NoError(t, err)
	assert.Equal(t, svc.MemoryContinuous, q.State)
	assert.Equal(t, uint32(0x2000), q.Size)

	used, err := process.MemoryUsed(c, process.RegionApplication)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2000), used)

	all, err := process.MemoryUsed(c, process.RegionAll)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2000)+DefaultLayout().SystemMemory+DefaultLayout().BaseMemory, all)

	require.NoError(t, process.FreeLinear(c, addr, 0x1800))
	used, err = process.MemoryUsed(c, process.RegionApplication)
	require.NoError(t, err)
	assert.Zero(t, used)

	_, err = process.MemoryUsed(c, process.MemoryRegion(9))
	requireCode(t, err, InvalidEnumValue)
}

func TestMemoryLimit(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	limits, err := process.OpenLimits(c, 0xFFFF8001)
	require.NoError(t, err)
	defer limits.Close()

	remaining, err := limits.MemoryAllocatable().Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(0x04000000), remaining)

	_, err = process.AllocateLinear(c, 0x00100000, svc.PermRW)
	require.NoError(t, err)

	remaining, err = limits.MemoryAllocatable().Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(0x03F00000), remaining)

	limit, current, err := limits.Values(svc.LimitMemoryAllocatable, svc.LimitThreads)
	require.NoError(t, err)
	assert.Equal(t, []int64{0x04000000, 32}, limit)
	assert.Equal(t, []int64{0x00100000, 1}, current)
}

func TestMemoryBlocks(t *testing.T) {
	k := newKernel(t)
	p, c := attach(t, k)

	h, err := sharedmem.CreateBlock(c, 0x1800, svc.PermRW, svc.PermR)
	require.NoError(t, err)

	m := sharedmem.NewDefaultMapper(nil)
	first, err := m.Map(c, h, 0x1800, svc.PermRW, svc.PermDontCare)
	require.NoError(t, err)
	assert.Equal(t, sharedmem.WindowStart, first.Address)
	assert.Equal(t, uint32(0x2000), first.Size)
	assert.Equal(t, sharedmem.WindowStart+0x2000, m.Cursor())

	q, err := c.QueryMemory(first.Address)
	require.NoError(t, err)
	assert.Equal(t, svc.MemoryShared, q.State)
	assert.Equal(t, svc.PermRW, q.Permission)

	h2, err := sharedmem.CreateBlock(c, 0x1000, svc.PermR, svc.PermR)
	require.NoError(t, err)
	second, err := m.Map(c, h2, 0x1000, svc.PermDontCare, svc.PermDontCare)
	require.NoError(t, err)
	assert.Equal(t, first.Address+first.Size, second.Address)

	q, err = c.QueryMemory(second.Address)
	require.NoError(t, err)
	assert.Equal(t, svc.PermR, q.Permission)

	// mapping the same block twice at a taken address fails
	requireCode(t, c.MapMemoryBlock(h2.Borrow(), second.Address, svc.PermR, svc.PermDontCare), InvalidAddress)

	back, err := m.Unmap(c, first)
	require.NoError(t, err)
	assert.Equal(t, first.Address, m.Cursor())
	requireCode(t, c.UnmapMemoryBlock(back.Borrow(), first.Address), InvalidAddress)

	regions := k.Memory(p.ID())
	var shared int
	for _, r := range regions {
		if r.State == svc.MemoryShared.String() {
			shared++
		}
	}
	assert.Equal(t, 1, shared)

	require.NoError(t, back.Close())
	_, err = m.Unmap(c, second)
	require.NoError(t, err)
	require.NoError(t, h2.Close())
}

func TestMemoryBlockOverExistingMemory(t *testing.T) {
	k := newKernel(t)
	_, c := attach(t, k)

	addr, err := c.ControlMemory(svc.OpAllocate, 0, 0, 0x2000, svc.PermRW)
	require.NoError(t, err)

	h, err := c.CreateMemoryBlock(addr, 0x2000, svc.PermRW, svc.PermRW)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = c.CreateMemoryBlock(addr+0x1000, 0x2000, svc.PermRW, svc.PermRW)
	requireCode(t, err, InvalidAddress)

	_, err = c.CreateMemoryBlock(addr+0x10, 0x1000, svc.PermRW, svc.PermRW)
	requireCode(t, err, MisalignedAddress)
}
