// Package svc is the syscall invocation layer. Each kernel service number
// has one binding that places typed arguments in registers, traps, and
// decodes the result registers. r0 always carries the result code on the
// way out; the remaining output registers are read only on success.
package svc

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// Number is a syscall number as encoded in the trap instruction.
type Number uint8

// Registers is the r0..r7 register file.
type Registers [8]uint32

const pointerBase = 0x08000000

// Frame is the register file of one trap together with the caller memory
// its pointer-typed registers refer to.
type Frame struct {
	Regs Registers
	mem  map[uint32]any
}

// Bind places a reference to v in register reg. The register receives a
// non-zero address; Pointer resolves it back to v for as long as the frame
// lives. Addresses of different registers are 1 MiB apart so that element
// offsets into a bound slice stay distinguishable.
func (f *Frame) Bind(reg int, v any) {
	if f.mem == nil {
		f.mem = make(map[uint32]any, 2)
	}
	addr := pointerBase + uint32(reg)<<20
	f.mem[addr] = v
	f.Regs[reg] = addr
}

// Pointer returns the value the register refers to, or nil.
func (f *Frame) Pointer(reg int) any {
	return f.mem[f.Regs[reg]]
}

// Trapper executes the trap instruction. thread is the calling thread's
// local storage, which the hardware passes implicitly. On return the frame
// holds the output registers.
type Trapper interface {
	Trap(thread *tls.Storage, num Number, f *Frame)
}

// TrapperFunc adapts a function to Trapper.
type TrapperFunc func(thread *tls.Storage, num Number, f *Frame)

// Trap calls fn.
func (fn TrapperFunc) Trap(thread *tls.Storage, num Number, f *Frame) { fn(thread, num, f) }

// bool registers
func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func noReturn(num Number) {
	panic(fmt.Sprintf("svc: %s returned", num))
}
