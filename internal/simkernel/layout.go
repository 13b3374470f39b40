package simkernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// Area is an address range.
type Area struct {
	Base uint32 `yaml:"base" toml:"base" json:"base"`
	Size uint32 `yaml:"size" toml:"size" json:"size"`
}

// RegionSpec is a mapping present in every process at creation.
type RegionSpec struct {
	Name       string `yaml:"name" toml:"name"`
	Base       uint32 `yaml:"base" toml:"base"`
	Size       uint32 `yaml:"size" toml:"size"`
	State      string `yaml:"state" toml:"state"`
	Permission string `yaml:"permission" toml:"permission"`
}

// Console describes the hardware the configuration service reports.
type Console struct {
	Region      string `yaml:"region" toml:"region"`
	Model       string `yaml:"model" toml:"model"`
	Is2DS       bool   `yaml:"is_2ds" toml:"is_2ds"`
	CanadaOrUSA bool   `yaml:"canada_or_usa" toml:"canada_or_usa"`
	HashSeed    uint64 `yaml:"hash_seed" toml:"hash_seed"`
}

// Layout is the static configuration of a simulated kernel.
type Layout struct {
	FirstProcessID uint32           `yaml:"first_process_id" toml:"first_process_id"`
	Regions        []RegionSpec     `yaml:"regions" toml:"regions"`
	Heap           Area             `yaml:"heap" toml:"heap"`
	Linear         Area             `yaml:"linear" toml:"linear"`
	Limits         map[string]int64 `yaml:"limits" toml:"limits"`
	SystemMemory   uint64           `yaml:"system_memory" toml:"system_memory"`
	BaseMemory     uint64           `yaml:"base_memory" toml:"base_memory"`
	Console        Console          `yaml:"console" toml:"console"`
}

var limitNames = map[string]svc.LimitType{
	"priority":      svc.LimitPriority,
	"memory":        svc.LimitMemoryAllocatable,
	"threads":       svc.LimitThreads,
	"events":        svc.LimitEvents,
	"mutexes":       svc.LimitMutexes,
	"semaphores":    svc.LimitSemaphores,
	"timers":        svc.LimitTimers,
	"shared_memory": svc.LimitSharedMemoryHandles,
	"arbiters":      svc.LimitAddressArbiters,
	"cpu_time":      svc.LimitCPUTime,
}

var stateNames = map[string]svc.MemoryState{
	"free":       svc.MemoryFree,
	"reserved":   svc.MemoryReserved,
	"io":         svc.MemoryIO,
	"static":     svc.MemoryStatic,
	"code":       svc.MemoryCode,
	"private":    svc.MemoryPrivate,
	"shared":     svc.MemoryShared,
	"continuous": svc.MemoryContinuous,
	"aliased":    svc.MemoryAliased,
	"alias":      svc.MemoryAlias,
	"alias_code": svc.MemoryAliasCode,
	"locked":     svc.MemoryLocked,
}

// DefaultLayout returns the layout of an application process.
func DefaultLayout() Layout {
	return Layout{
		FirstProcessID: 0x20,
		Regions: []RegionSpec{
			{Name: "code", Base: 0x00100000, Size: 0x00100000, State: "code", Permission: "r-x"},
			{Name: "data", Base: 0x00200000, Size: 0x00040000, State: "private", Permission: "rw-"},
			{Name: "stack", Base: 0x0FFC0000, Size: 0x00040000, State: "locked", Permission: "rw-"},
			{Name: "tls", Base: 0x1FF82000, Size: 0x00001000, State: "static", Permission: "rw-"},
		},
		Heap:   Area{Base: 0x08000000, Size: 0x08000000},
		Linear: Area{Base: 0x14000000, Size: 0x08000000},
		Limits: map[string]int64{
			"priority":      0x18,
			"memory":        0x04000000,
			"threads":       32,
			"events":        64,
			"mutexes":       64,
			"semaphores":    8,
			"timers":        8,
			"shared_memory": 16,
			"arbiters":      2,
			"cpu_time":      0,
		},
		SystemMemory: 0x02C00000,
		BaseMemory:   0x00600000,
		Console: Console{
			Region:   "europe",
			Model:    "ktr",
			HashSeed: 0x5A17C0DE,
		},
	}
}

// LoadLayout reads a layout file. The format follows the extension: .yaml,
// .yml or .toml. Fields the file leaves out keep their default values.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// ParseLayout decodes a layout in the given format ("yaml", "yml" or
// "toml") on top of DefaultLayout and validates it.
func ParseLayout(data []byte, format string) (Layout, error) {
	l := DefaultLayout()
	defaults := l.Limits
	l.Limits = nil

	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &l)
	case "toml":
		err = toml.Unmarshal(data, &l)
	default:
		return Layout{}, fmt.Errorf("layout: unsupported format %q", format)
	}
	if err != nil {
		return Layout{}, fmt.Errorf("parse %s layout: %w", format, err)
	}

	for name, v := range defaults {
		if _, ok := l.Limits[name]; !ok {
			if l.Limits == nil {
				l.Limits = make(map[string]int64, len(defaults))
			}
			l.Limits[name] = v
		}
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks alignment, overlap and names.
func (l Layout) Validate() error {
	if _, ok := parseRegion(l.Console.Region); !ok {
		return fmt.Errorf("layout: unknown console region %q", l.Console.Region)
	}
	if _, ok := parseModel(l.Console.Model); !ok {
		return fmt.Errorf("layout: unknown console model %q", l.Console.Model)
	}
	for name := range l.Limits {
		if _, ok := limitNames[name]; !ok {
			return fmt.Errorf("layout: unknown limit %q", name)
		}
	}
	for _, a := range []struct {
		name string
		area Area
	}{{"heap", l.Heap}, {"linear", l.Linear}} {
		if a.area.Base%pageSize != 0 || a.area.Size%pageSize != 0 {
			return fmt.Errorf("layout: %s area %#x+%#x is not page aligned", a.name, a.area.Base, a.area.Size)
		}
		if uint64(a.area.Base)+uint64(a.area.Size) > addressLimit {
			return fmt.Errorf("layout: %s area ends past %#x", a.name, addressLimit)
		}
	}

	p := &Process{}
	for _, spec := range l.Regions {
		r, err := spec.region()
		if err != nil {
			return err
		}
		if !p.free(r.base, r.size) {
			return fmt.Errorf("layout: region %q at %#x overlaps another", spec.Name, spec.Base)
		}
		p.addRegion(r)
	}
	return nil
}

func (s RegionSpec) region() (*region, error) {
	if s.Base%pageSize != 0 || s.Size%pageSize != 0 || s.Size == 0 {
		return nil, fmt.Errorf("layout: region %q %#x+%#x is not page aligned", s.Name, s.Base, s.Size)
	}
	state, ok := stateNames[strings.ToLower(s.State)]
	if !ok {
		return nil, fmt.Errorf("layout: region %q has unknown state %q", s.Name, s.State)
	}
	perm, err := parsePermission(s.Permission)
	if err != nil {
		return nil, fmt.Errorf("layout: region %q: %w", s.Name, err)
	}
	return &region{base: s.Base, size: s.Size, perm: perm, state: state}, nil
}

// parsePermission accepts the "rwx" notation MemoryPermission prints.
func parsePermission(s string) (svc.MemoryPermission, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("permission %q is not of the form rwx", s)
	}
	var p svc.MemoryPermission
	for i, bit := range []svc.MemoryPermission{svc.PermR, svc.PermW, svc.PermX} {
		switch s[i] {
		case "rwx"[i]:
			p |= bit
		case '-':
		default:
			return 0, fmt.Errorf("permission %q is not of the form rwx", s)
		}
	}
	return p, nil
}

func (l Layout) limits() map[svc.LimitType]int64 {
	m := make(map[svc.LimitType]int64, len(l.Limits))
	for name, v := range l.Limits {
		if typ, ok := limitNames[name]; ok {
			m[typ] = v
		}
	}
	return m
}
