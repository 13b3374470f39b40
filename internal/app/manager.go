package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/sharedmem"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// State is the lifecycle state of an application.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Config drives one application.
type Config struct {
	Interval    time.Duration
	Rounds      int // 0 runs until stopped
	WindowStart uint32
	WindowEnd   uint32
}

// DefaultConfig returns an application running one round per second in
// the default shared memory window.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		WindowStart: sharedmem.WindowStart,
		WindowEnd:   sharedmem.WindowEnd,
	}
}

// Info is a snapshot of an application.
type Info struct {
	ID        id.AppID  `json:"id"`
	Name      string    `json:"name"`
	PID       uint32    `json:"pid"`
	State     State     `json:"state"`
	Rounds    int       `json:"rounds"`
	LastError string    `json:"last_error,omitempty"`
	Last      *Report   `json:"last,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// App is one running application.
type App struct {
	mu   sync.RWMutex
	info Info

	cancel context.CancelFunc
	done   chan struct{}
}

// Info returns a snapshot of the application.
func (a *App) Info() Info {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.info
}

// Done is closed when the application thread has exited.
func (a *App) Done() <-chan struct{} { return a.done }

func (a *App) update(fn func(*Info)) {
	a.mu.Lock()
	fn(&a.info)
	a.mu.Unlock()
}

// Manager orchestrates application lifecycle
type Manager struct {
	kernel *simkernel.Kernel
	apps   sync.Map
	ids    *id.Generator
	logger *zap.Logger
	opts   []svc.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver attaches o to every application thread.
func WithObserver(o svc.Observer) Option {
	return func(m *Manager) { m.opts = append(m.opts, svc.WithObserver(o)) }
}

// NewManager creates a new app manager
func NewManager(k *simkernel.Kernel, opts ...Option) *Manager {
	m := &Manager{
		kernel: k,
		ids:    id.Default(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Spawn creates a process named name and runs a Workload on its main
// thread until the configured rounds are done or the app is stopped.
func (m *Manager) Spawn(name string, cfg Config) (*App, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("app: interval must be positive")
	}
	if cfg.WindowStart >= cfg.WindowEnd {
		return nil, errors.New("app: empty shared memory window")
	}

	p := m.kernel.NewProcess(name)
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		info: Info{
			ID:        m.ids.App(),
			Name:      name,
			PID:       p.ID(),
			State:     StateStarting,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.apps.Store(a.info.ID, a)

	logger := m.logger.With(zap.Stringer("app", a.info.ID), zap.String("name", name), zap.Uint32("pid", p.ID()))
	go m.run(ctx, a, p, cfg, logger)

	logger.Info("app spawned")
	return a, nil
}

func (m *Manager) run(ctx context.Context, a *App, p *simkernel.Process, cfg Config, logger *zap.Logger) {
	defer close(a.done)

	opts := append([]svc.Option{svc.WithLogger(logger)}, m.opts...)
	c := p.Attach(opts...)

	w, err := NewWorkload(c, sharedmem.NewMapper(cfg.WindowStart, cfg.WindowEnd, logger))
	if err != nil {
		logger.Error("app failed to start", zap.Error(err))
		a.update(func(i *Info) { i.State, i.LastError = StateFailed, err.Error() })
		return
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("closing app sessions", zap.Error(err))
		}
	}()
	a.update(func(i *Info) { i.State = StateRunning })

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for n := 1; cfg.Rounds == 0 || n <= cfg.Rounds; n++ {
		rep, err := w.Round(n)
		if err != nil {
			logger.Error("round failed", zap.Int("round", n), zap.Error(err))
			if rerr := w.Report(err); rerr != nil {
				logger.Error("error report failed", zap.Error(rerr))
			}
			a.update(func(i *Info) { i.State, i.LastError = StateFailed, err.Error() })
			return
		}
		a.update(func(i *Info) { i.Rounds, i.Last = n, &rep })
		logger.Debug("round done", zap.Int("round", n), zap.Int("total", rep.Total))

		if cfg.Rounds != 0 && n == cfg.Rounds {
			break
		}
		select {
		case <-ctx.Done():
			a.update(func(i *Info) { i.State = StateStopped })
			return
		case <-ticker.C:
		}
	}
	a.update(func(i *Info) { i.State = StateStopped })
}

// Get retrieves an app by ID
func (m *Manager) Get(appID id.AppID) (*App, bool) {
	val, ok := m.apps.Load(appID)
	if !ok {
		return nil, false
	}
	return val.(*App), true
}

// List returns a snapshot of every app ordered by start time
func (m *Manager) List() []Info {
	var out []Info
	m.apps.Range(func(_, v any) bool {
		out = append(out, v.(*App).Info())
		return true
	})
	slices.SortFunc(out, func(a, b Info) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Stop cancels an app and waits for its thread to exit.
func (m *Manager) Stop(appID id.AppID) bool {
	a, ok := m.Get(appID)
	if !ok {
		return false
	}
	a.cancel()
	<-a.done
	return true
}

// StopAll stops every app.
func (m *Manager) StopAll() {
	m.apps.Range(func(k, _ any) bool {
		m.Stop(k.(id.AppID))
		return true
	})
}
