package monitoring

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

const namespace = "ctrsim"

// Source exposes the kernel state sampled into gauges.
type Source interface {
	LiveHandles() int
	Services() []string
}

// Metrics holds all Prometheus metrics. It implements svc.Observer.
type Metrics struct {
	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// IPC metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Debug server metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Kernel state
	LiveHandles prometheus.Gauge
	Services    prometheus.Gauge
	Uptime      prometheus.Gauge
	startTime   time.Time

	// Snapshot for the JSON API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON API.
type Snapshot struct {
	Syscalls       int64   `json:"syscalls"`
	SyscallErrors  int64   `json:"syscall_errors"`
	Requests       int64   `json:"requests"`
	RequestErrors  int64   `json:"request_errors"`
	RequestSeconds float64 `json:"request_seconds"`
	LiveHandles    int64   `json:"live_handles"`
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		startTime: time.Now(),

		SyscallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syscalls_total",
				Help:      "Total number of supervisor calls by result",
			},
			[]string{"svc", "result"},
		),
		SyscallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "syscall_duration_seconds",
				Help:      "Supervisor call duration in seconds",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"svc"},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_requests_total",
				Help:      "Total number of IPC requests by command and result",
			},
			[]string{"command", "result"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_request_duration_seconds",
				Help:      "IPC round trip duration in seconds",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"command"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of debug server requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Debug server request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"method", "path"},
		),

		LiveHandles: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_handles",
				Help:      "Number of open handles across all processes",
			},
		),
		Services: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registered_services",
				Help:      "Number of services registered with the service manager",
			},
		),
		Uptime: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Simulator uptime in seconds",
			},
		),
	}
}

// ResultLabel names a result code for metric labels.
func ResultLabel(code result.Code) string {
	if code.IsSuccess() {
		return "success"
	}
	return code.Description().String()
}

// CommandLabel names an IPC command id.
func CommandLabel(command uint16) string {
	return "0x" + strconv.FormatUint(uint64(command), 16)
}

// ObserveSyscall records one supervisor call.
func (m *Metrics) ObserveSyscall(num svc.Number, code result.Code, elapsed time.Duration) {
	name := num.String()
	m.SyscallsTotal.WithLabelValues(name, ResultLabel(code)).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	m.mu.Lock()
	m.snapshot.Syscalls++
	if !code.IsSuccess() {
		m.snapshot.SyscallErrors++
	}
	m.mu.Unlock()
}

// ObserveRequest records one IPC round trip.
func (m *Metrics) ObserveRequest(command uint16, code result.Code, elapsed time.Duration) {
	cmd := CommandLabel(command)
	m.RequestsTotal.WithLabelValues(cmd, ResultLabel(code)).Inc()
	m.RequestDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())

	m.mu.Lock()
	m.snapshot.Requests++
	m.snapshot.RequestSeconds += elapsed.Seconds()
	if !code.IsSuccess() {
		m.snapshot.RequestErrors++
	}
	m.mu.Unlock()
}

// RecordHTTPRequest records a debug server request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Sample updates the kernel state gauges once.
func (m *Metrics) Sample(src Source) {
	live := src.LiveHandles()
	m.LiveHandles.Set(float64(live))
	m.Services.Set(float64(len(src.Services())))
	m.Uptime.Set(time.Since(m.startTime).Seconds())

	m.mu.Lock()
	m.snapshot.LiveHandles = int64(live)
	m.mu.Unlock()
}

// Run samples src every interval until ctx is done.
func (m *Metrics) Run(ctx context.Context, src Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Sample(src)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(src)
		}
	}
}

// Snapshot returns the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
