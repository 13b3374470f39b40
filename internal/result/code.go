// Package result implements the packed 32-bit status word returned by every
// syscall and by every IPC reply.
//
// Layout of a nonzero code:
//
//	bits 27..31  level        (5 bits)
//	bits 21..26  summary      (6 bits)
//	bits 10..17  module       (8 bits)
//	bits  0..9   description  (10 bits)
//
// Zero is the only success value. Every 32-bit input decodes to some set of
// fields; names are looked up lazily and unknown values print numerically.
package result

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	levelShift   = 27
	summaryShift = 21
	moduleShift  = 10

	levelMask       = 0b1_1111
	summaryMask     = 0b11_1111
	moduleMask      = 0b1111_1111
	descriptionMask = 0b11_1111_1111
)

// Code is a raw result code as it crosses register and process boundaries.
type Code uint32

// Success is the only code that does not indicate failure.
const Success Code = 0

// New packs the four fields into a code. Fields wider than their slot are
// truncated to the slot width.
func New(level Level, summary Summary, module Module, description Description) Code {
	return Code(uint32(level&levelMask)<<levelShift |
		uint32(summary&summaryMask)<<summaryShift |
		uint32(module&moduleMask)<<moduleShift |
		uint32(description&descriptionMask))
}

// IsSuccess reports whether c is the success code.
func (c Code) IsSuccess() bool { return c == Success }

// Level returns the level field.
func (c Code) Level() Level { return Level((uint32(c) >> levelShift) & levelMask) }

// Summary returns the summary field.
func (c Code) Summary() Summary { return Summary((uint32(c) >> summaryShift) & summaryMask) }

// Module returns the module field.
func (c Code) Module() Module { return Module((uint32(c) >> moduleShift) & moduleMask) }

// Description returns the description field.
func (c Code) Description() Description { return Description(uint32(c) & descriptionMask) }

// Err returns nil for Success and an Error otherwise.
func (c Code) Err() error {
	if c == Success {
		return nil
	}
	return Error(c)
}

// String renders the code with its decoded fields.
func (c Code) String() string {
	if c == Success {
		return "0x00000000 (success)"
	}
	return fmt.Sprintf("0x%08x (level=%s summary=%s module=%s description=%s)",
		uint32(c), c.Level(), c.Summary(), c.Module(), c.Description())
}

// Error is the error form of a nonzero Code.
type Error Code

func (e Error) Error() string {
	return "result: " + Code(e).String()
}

// Code returns the raw code.
func (e Error) Code() Code { return Code(e) }

// CodeOf extracts the result code carried by err, looking through wrapping.
func CodeOf(err error) (Code, bool) {
	var e Error
	if errors.As(err, &e) {
		return Code(e), true
	}
	return Success, false
}

// Common failure codes raised by this runtime itself.
var (
	OutOfMemory        = New(LevelFatal, SummaryOutOfResource, ModuleApplication, DescriptionOutOfMemory)
	NotAuthorized      = New(LevelFatal, SummaryInternal, ModuleApplication, DescriptionNotAuthorized)
	InvalidResultValue = New(LevelFatal, SummaryInvalidResultValue, ModuleApplication, DescriptionInvalidResultValue)
	TimedOut           = New(LevelInfo, SummaryStatusChanged, ModuleOS, DescriptionTimeout)
)

// Decoded is the field-by-field form of a code.
type Decoded struct {
	Raw         string `json:"raw"`
	Success     bool   `json:"success"`
	Level       string `json:"level"`
	Summary     string `json:"summary"`
	Module      string `json:"module"`
	Description string `json:"description"`
}

// Decode splits c into its named fields.
func (c Code) Decode() Decoded {
	return Decoded{
		Raw:         fmt.Sprintf("0x%08x", uint32(c)),
		Success:     c.IsSuccess(),
		Level:       c.Level().String(),
		Summary:     c.Summary().String(),
		Module:      c.Module().String(),
		Description: c.Description().String(),
	}
}

// Parse reads a code written in decimal, hex (0x), octal or binary, or as
// the negative 32-bit integer a signed register view shows.
func Parse(s string) (Code, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("parse result code %q: %w", s, err)
		}
		return Code(uint32(int32(v))), nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse result code %q: %w", s, err)
	}
	return Code(v), nil
}
