package monitoring_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/srv"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

type fakeSource struct {
	handles  int
	services []string
}

func (f fakeSource) LiveHandles() int   { return f.handles }
func (f fakeSource) Services() []string { return f.services }

func TestResultLabel(t *testing.T) {
	tests := []struct {
		code result.Code
		want string
	}{
		{result.Success, "success"},
		{result.TimedOut, "timeout"},
		{result.OutOfMemory, "out_of_memory"},
		{simkernel.InvalidHandle, "invalid_handle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, monitoring.ResultLabel(tt.code))
	}
	assert.Equal(t, "0x5", monitoring.CommandLabel(srv.CmdGetServiceHandle))
	assert.Equal(t, "0x401", monitoring.CommandLabel(0x401))
}

func TestObserveThroughKernel(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	k, err := simkernel.New()
	require.NoError(t, err)
	t.Cleanup(k.Close)

	c := k.NewProcess("observed").Attach(svc.WithObserver(m))

	_, err = c.GetProcessID(handle.CurrentProcess)
	require.NoError(t, err)
	assert.Error(t, c.CloseHandle(handle.Borrowed(0x7777)))

	name := svc.NumGetProcessID.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyscallsTotal.WithLabelValues(name, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.SyscallsTotal.WithLabelValues(svc.NumCloseHandle.String(), "invalid_handle")))

	s, err := srv.Connect(c)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues(monitoring.CommandLabel(srv.CmdRegisterClient), "success")))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests)
	assert.Zero(t, snap.RequestErrors)
	assert.GreaterOrEqual(t, snap.Syscalls, int64(4))
	assert.Equal(t, int64(1), snap.SyscallErrors)
}

func TestSample(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	m.Sample(fakeSource{handles: 7, services: []string{"cfg:u", "demo"}})

	assert.Equal(t, 7.0, testutil.ToFloat64(m.LiveHandles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Services))
	assert.Equal(t, int64(7), m.Snapshot().LiveHandles)
}

func TestRunStopsWithContext(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, fakeSource{handles: 3}, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.LiveHandles) == 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := monitoring.NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(monitoring.Middleware(m))
	r.GET("/debug/handles/:pid", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/debug/handles/1", "/debug/handles/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/debug/handles/:pid", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}

func TestRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	monitoring.NewMetrics(reg)
	assert.Panics(t, func() { monitoring.NewMetrics(reg) })
}
