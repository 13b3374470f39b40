package svc

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// Observer receives one callback per completed syscall and per IPC request.
type Observer interface {
	ObserveSyscall(num Number, code result.Code, elapsed time.Duration)
	ObserveRequest(command uint16, code result.Code, elapsed time.Duration)
}

// Client issues syscalls on behalf of one thread.
type Client struct {
	trapper  Trapper
	thread   *tls.Storage
	logger   *zap.Logger
	observer Observer
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used for failed calls and handle traffic
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client for the thread owning the given storage
func NewClient(t Trapper, thread *tls.Storage, opts ...Option) *Client {
	c := &Client{
		trapper: t,
		thread:  thread,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForThread returns a client for another thread sharing this client's
// trapper, logger and observer
func (c *Client) ForThread(thread *tls.Storage) *Client {
	clone := *c
	clone.thread = thread
	return &clone
}

// Thread returns the calling thread's local storage
func (c *Client) Thread() *tls.Storage { return c.thread }

// Logger returns the client logger
func (c *Client) Logger() *zap.Logger { return c.logger }

// Observer returns the metrics observer, which may be nil
func (c *Client) Observer() Observer { return c.observer }

// invoke traps and returns the result code found in r0.
func (c *Client) invoke(num Number, f *Frame) result.Code {
	start := time.Now()
	c.trapper.Trap(c.thread, num, f)
	code := result.Code(f.Regs[0])

	if c.observer != nil {
		c.observer.ObserveSyscall(num, code, time.Since(start))
	}
	if !code.IsSuccess() {
		c.logger.Debug("syscall failed",
			zap.Stringer("svc", num),
			zap.Stringer("result", code))
	}
	return code
}

// call is invoke for bindings whose only output is the result code.
func (c *Client) call(num Number, f *Frame) error {
	return c.invoke(num, f).Err()
}

// own wraps a handle returned in a register.
func (c *Client) own(raw uint32) *handle.Owned {
	return handle.New(c, raw)
}

var _ handle.Kernel = (*Client)(nil)
