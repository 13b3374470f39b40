package app

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ksync"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/errf"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/sharedmem"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/thread"
)

func newKernel(t *testing.T) *simkernel.Kernel {
	t.Helper()
	k, err := simkernel.New()
	require.NoError(t, err)
	t.Cleanup(k.Close)
	return k
}

func waitDone(t *testing.T, a *App) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("app did not finish")
	}
}

func TestSpawnRunsRounds(t *testing.T) {
	k := newKernel(t)
	m := NewManager(k)

	cfg := DefaultConfig()
	cfg.Interval = time.Millisecond
	cfg.Rounds = 2

	a, err := m.Spawn("demo", cfg)
	require.NoError(t, err)
	waitDone(t, a)

	info := a.Info()
	assert.Equal(t, StateStopped, info.State, info.LastError)
	assert.Equal(t, 2, info.Rounds)
	require.NotNil(t, info.Last)
	assert.Equal(t, 6, info.Last.Total)
	assert.Equal(t, "cfg:u", info.Last.Service)
	assert.Equal(t, sharedmem.WindowStart, info.Last.Block)

	lines := k.DebugOutput()
	require.Len(t, lines, 2)
	var rep Report
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rep))
	assert.Equal(t, 1, rep.Round)
	assert.Equal(t, 2, rep.Total)

	p, ok := k.Process(info.PID)
	require.True(t, ok)
	assert.Equal(t, "demo", p.Name())
	assert.Empty(t, k.Handles(info.PID), "app left handles open")
}

func TestStop(t *testing.T) {
	k := newKernel(t)
	m := NewManager(k)

	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	a, err := m.Spawn("forever", cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Info().Rounds >= 2 }, 5*time.Second, time.Millisecond)
	assert.True(t, m.Stop(a.Info().ID))
	assert.Equal(t, StateStopped, a.Info().State)
	assert.False(t, m.Stop("app_missing"))
}

func TestListAndGet(t *testing.T) {
	k := newKernel(t)
	m := NewManager(k)
	t.Cleanup(m.StopAll)

	cfg := DefaultConfig()
	cfg.Rounds = 1
	first, err := m.Spawn("one", cfg)
	require.NoError(t, err)
	second, err := m.Spawn("two", cfg)
	require.NoError(t, err)
	waitDone(t, first)
	waitDone(t, second)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "one", list[0].Name)
	assert.Equal(t, "two", list[1].Name)
	assert.NotEqual(t, list[0].PID, list[1].PID)

	got, ok := m.Get(second.Info().ID)
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSpawnRejectsConfig(t *testing.T) {
	m := NewManager(newKernel(t))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero interval", Config{WindowStart: sharedmem.WindowStart, WindowEnd: sharedmem.WindowEnd}},
		{"empty window", Config{Interval: time.Second, WindowStart: 0x2000, WindowEnd: 0x2000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Spawn("bad", tt.cfg)
			assert.Error(t, err)
		})
	}
	assert.Empty(t, m.List())
}

func TestWorkloadReport(t *testing.T) {
	k := newKernel(t)
	c := k.NewProcess("reporter").Attach()

	w, err := NewWorkload(c, sharedmem.NewDefaultMapper(nil))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Report(result.TimedOut.Err()))

	reports := k.ErrorReports()
	require.Len(t, reports, 1)
	assert.Equal(t, errf.Failure, reports[0].Type)
	assert.Equal(t, result.TimedOut, reports[0].Result)
	assert.Contains(t, reports[0].Message, "timeout")
}

func TestAwaitWorkerJoinsAfterTimeout(t *testing.T) {
	k := newKernel(t)
	p := k.NewProcess("handoff")
	c := p.Attach()

	gate, err := ksync.NewEvent(c, svc.ResetOneShot)
	require.NoError(t, err)
	done, err := ksync.NewEvent(c, svc.ResetOneShot)
	require.NoError(t, err)

	// The worker never signals done, so the wait below times out.
	worker, err := thread.Spawn(c, func(tc *svc.Client) error {
		_ = tc.WaitSynchronization(gate.Handle(), svc.Timeout(50*time.Millisecond))
		return nil
	})
	require.NoError(t, err)

	err = awaitWorker(c, done, worker, svc.None)
	require.Error(t, err)
	code, ok := result.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, result.TimedOut, code)

	_, err = worker.Join(c)
	assert.Error(t, err, "worker was not joined")

	require.NoError(t, gate.Close())
	require.NoError(t, done.Close())
	assert.Empty(t, k.Handles(p.ID()), "timed out hand-off left handles open")
}
