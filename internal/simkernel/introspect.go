package simkernel

import (
	"slices"
	"strings"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/errf"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// HandleInfo describes one handle table entry.
type HandleInfo struct {
	Process uint32 `json:"process"`
	Handle  uint32 `json:"handle"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

// RegionInfo describes one mapping.
type RegionInfo struct {
	Process    uint32 `json:"process"`
	Base       uint32 `json:"base"`
	Size       uint32 `json:"size"`
	State      string `json:"state"`
	Permission string `json:"permission"`
}

// ProcessInfo summarizes a process.
type ProcessInfo struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Handles   int    `json:"handles"`
	Allocated uint32 `json:"allocated"`
	Exited    bool   `json:"exited"`
}

// Processes lists the processes by id.
func (k *Kernel) Processes() []ProcessInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]ProcessInfo, 0, len(k.procs))
	for _, p := range k.procs {
		out = append(out, ProcessInfo{
			ID:        p.id,
			Name:      p.name,
			Handles:   len(p.handles),
			Allocated: p.allocated,
			Exited:    p.exited,
		})
	}
	slices.SortFunc(out, func(a, b ProcessInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

// Handles lists every handle of pid, or of all processes when pid is 0.
func (k *Kernel) Handles(pid uint32) []HandleInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []HandleInfo
	for _, p := range k.procs {
		if pid != 0 && p.id != pid {
			continue
		}
		for h, obj := range p.handles {
			out = append(out, HandleInfo{Process: p.id, Handle: h, Kind: obj.kind(), Detail: obj.describe()})
		}
	}
	slices.SortFunc(out, func(a, b HandleInfo) int {
		if a.Process != b.Process {
			return int(a.Process) - int(b.Process)
		}
		return int(a.Handle) - int(b.Handle)
	})
	return out
}

// LiveHandles counts the handles of all processes.
func (k *Kernel) LiveHandles() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	n := 0
	for _, p := range k.procs {
		n += len(p.handles)
	}
	return n
}

// Memory lists the mappings of pid, or of all processes when pid is 0.
func (k *Kernel) Memory(pid uint32) []RegionInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []RegionInfo
	for _, p := range k.procs {
		if pid != 0 && p.id != pid {
			continue
		}
		for _, r := range p.regions {
			out = append(out, RegionInfo{
				Process:    p.id,
				Base:       r.base,
				Size:       r.size,
				State:      r.state.String(),
				Permission: r.perm.String(),
			})
		}
	}
	slices.SortFunc(out, func(a, b RegionInfo) int {
		if a.Process != b.Process {
			return int(a.Process) - int(b.Process)
		}
		return int(a.Base>>12) - int(b.Base>>12)
	})
	return out
}

// Process returns the process with the given id.
func (k *Kernel) Process(pid uint32) (*Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.procs[pid]
	return p, ok
}

// Services lists the names registered with the service manager.
func (k *Kernel) Services() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	names := make([]string, 0, len(k.services))
	for name := range k.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DebugOutput returns every completed line written with OutputDebugString.
func (k *Kernel) DebugOutput() []string {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := strings.TrimSuffix(k.console.all.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// ErrorReports returns the reports received by err:f.
func (k *Kernel) ErrorReports() []errf.ErrorInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	return slices.Clone(k.reports)
}

// Breaks returns the reasons of every Break call.
func (k *Kernel) Breaks() []svc.BreakReason {
	k.mu.Lock()
	defer k.mu.Unlock()

	return slices.Clone(k.breaks)
}

// StopPoints counts StopPoint calls.
func (k *Kernel) StopPoints() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.stopPoints
}
