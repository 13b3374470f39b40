package app

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ksync"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/errf"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/srv"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/services/cfg"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/sharedmem"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/thread"
)

const (
	blockSize     = 0x1800
	workerTimeout = svc.Timeout(2 * time.Second)
)

// Report is what one round observed. It is written to the debug console
// as JSON.
type Report struct {
	Round   int    `json:"round"`
	Service string `json:"service"`
	Region  string `json:"region"`
	Model   string `json:"model"`
	Hash    uint64 `json:"hash"`
	Block   uint32 `json:"block"`
	Total   int    `json:"total"`
	Tick    uint64 `json:"tick"`
}

// Workload holds the sessions of one application thread.
type Workload struct {
	c      *svc.Client
	srv    *srv.Client
	cfg    *cfg.Client
	errf   *errf.Client
	mapper *sharedmem.Mapper
	logger *zap.Logger

	mu    ksync.Mutex
	total int
}

// NewWorkload opens the sessions the workload needs on behalf of c's thread.
func NewWorkload(c *svc.Client, mapper *sharedmem.Mapper) (*Workload, error) {
	s, err := srv.Connect(c)
	if err != nil {
		return nil, err
	}
	conf, err := cfg.Open(c, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	ef, err := errf.Connect(c)
	if err != nil {
		_ = conf.Close()
		_ = s.Close()
		return nil, err
	}
	return &Workload{
		c:      c,
		srv:    s,
		cfg:    conf,
		errf:   ef,
		mapper: mapper,
		logger: c.Logger(),
	}, nil
}

// Round runs one iteration and returns its report.
func (w *Workload) Round(n int) (Report, error) {
	rep := Report{Round: n, Service: w.cfg.Name()}

	region, err := w.cfg.SecureInfoRegion()
	if err != nil {
		return rep, fmt.Errorf("secure info region: %w", err)
	}
	model, err := w.cfg.SystemModel()
	if err != nil {
		return rep, fmt.Errorf("system model: %w", err)
	}
	hash, err := w.cfg.GenerateConsoleUniqueHash(uint32(n))
	if err != nil {
		return rep, fmt.Errorf("console hash: %w", err)
	}
	rep.Region, rep.Model, rep.Hash = region.String(), model.String(), hash

	if rep.Block, err = w.cycleBlock(); err != nil {
		return rep, err
	}
	if rep.Total, err = w.handOff(n); err != nil {
		return rep, err
	}
	rep.Tick = uint64(ksync.Now(w.c))

	if err := w.c.OutputDebugJSON(rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// cycleBlock creates a memory block, maps it into the window and releases it.
func (w *Workload) cycleBlock() (uint32, error) {
	h, err := sharedmem.CreateBlock(w.c, blockSize, svc.PermRW, svc.PermR)
	if err != nil {
		return 0, fmt.Errorf("create block: %w", err)
	}
	b, err := w.mapper.Map(w.c, h, blockSize, svc.PermDontCare, svc.PermR)
	if err != nil {
		_ = h.Close()
		return 0, fmt.Errorf("map block: %w", err)
	}
	addr := b.Address
	h, err = w.mapper.Unmap(w.c, b)
	if err != nil {
		return 0, fmt.Errorf("unmap block: %w", err)
	}
	return addr, h.Close()
}

// handOff adds n to the running total on this thread and on a spawned
// worker, both under the workload mutex, and waits for the worker's event.
func (w *Workload) handOff(n int) (int, error) {
	done, err := ksync.NewEvent(w.c, svc.ResetOneShot)
	if err != nil {
		return 0, err
	}
	defer done.Close()

	if err := w.mu.Lock(w.c); err != nil {
		return 0, err
	}
	worker, err := thread.Spawn(w.c, func(tc *svc.Client) error {
		if err := w.mu.Lock(tc); err != nil {
			return err
		}
		w.total += n
		if err := w.mu.Unlock(tc); err != nil {
			return err
		}
		return tc.SignalEvent(done.Handle())
	})
	if err != nil {
		_ = w.mu.Unlock(w.c)
		return 0, err
	}
	w.total += n
	if err := w.mu.Unlock(w.c); err != nil {
		_, _ = worker.Join(w.c)
		return 0, err
	}

	if err := awaitWorker(w.c, done, worker, workerTimeout); err != nil {
		return 0, err
	}

	if err := w.mu.Lock(w.c); err != nil {
		return 0, err
	}
	defer w.mu.Unlock(w.c)
	return w.total, nil
}

// awaitWorker waits for the worker's completion event, then joins it. The
// worker is joined on every path so its handle and memory are released.
func awaitWorker(c *svc.Client, done *ksync.Event, worker *thread.JoinHandle[error], timeout svc.Timeout) error {
	if err := done.Wait(timeout); err != nil {
		werr := fmt.Errorf("wait for worker: %w", err)
		if _, jerr := worker.Join(c); jerr != nil {
			return errors.Join(werr, jerr)
		}
		return werr
	}
	werr, err := worker.Join(c)
	if err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("worker: %w", werr)
	}
	return nil
}

// Report sends a failure report for err to err:f.
func (w *Workload) Report(err error) error {
	code, ok := result.CodeOf(err)
	if !ok {
		code = result.InvalidResultValue
	}
	info := errf.FromResultWithMessage(w.c, code, err.Error())
	w.logger.Warn("reporting failure", zap.Stringer("result", code), zap.Error(err))
	return w.errf.Throw(info)
}

// Close closes every session and the workload mutex.
func (w *Workload) Close() error {
	return errors.Join(
		w.mu.Close(w.c),
		w.errf.Close(),
		w.cfg.Close(),
		w.srv.Close(),
	)
}
