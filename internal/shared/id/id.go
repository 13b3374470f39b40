// Package id generates the identifiers the simulated kernel attaches to
// sessions, memory blocks and service registrations so that debug views and
// logs can correlate objects across processes.
//
// Identifiers are prefixed ULIDs: sortable by creation time and readable in
// logs (sess_01H..., blk_01H...).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies an IPC session
type SessionID string

// BlockID identifies a shared memory block
type BlockID string

// ServiceID identifies a service registration
type ServiceID string

// AppID identifies an application launched on the simulator
type AppID string

const (
	SessionPrefix = "sess"
	BlockPrefix   = "blk"
	ServicePrefix = "svc"
	AppPrefix     = "app"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it for deterministic identifiers.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// Session generates a session identifier
func (g *Generator) Session() SessionID {
	return SessionID(g.GenerateWithPrefix(SessionPrefix))
}

// Block generates a memory block identifier
func (g *Generator) Block() BlockID {
	return BlockID(g.GenerateWithPrefix(BlockPrefix))
}

// Service generates a service registration identifier
func (g *Generator) Service() ServiceID {
	return ServiceID(g.GenerateWithPrefix(ServicePrefix))
}

// App generates an application identifier
func (g *Generator) App() AppID {
	return AppID(g.GenerateWithPrefix(AppPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id BlockID) String() string   { return string(id) }
func (id ServiceID) String() string { return string(id) }
func (id AppID) String() string     { return string(id) }

// Split separates a prefixed identifier into its prefix and ULID
func Split(s string) (prefix string, u ulid.ULID, err error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok {
		return "", ulid.ULID{}, fmt.Errorf("id: %q has no prefix", s)
	}
	u, err = ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id: %q: %w", s, err)
	}
	return prefix, u, nil
}

// Timestamp extracts the creation time of a prefixed identifier
func Timestamp(s string) (time.Time, error) {
	_, u, err := Split(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
