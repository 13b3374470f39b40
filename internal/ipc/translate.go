package ipc

import (
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// TranslateParam is a parameter the kernel processes while copying the
// message: handles, the sender's process id, or a static buffer.
type TranslateParam interface {
	encode(e *encoder)
}

// encoder is the write side shared by requests and server replies.
type encoder struct {
	w      writer
	thread *tls.Storage
	pinned []uint32
}

// release drops the pins taken for static buffers.
func (e *encoder) release() {
	for _, addr := range e.pinned {
		e.thread.Unpin(addr)
	}
	e.pinned = nil
}

type moveHandles []*handle.Owned

// MoveHandles transfers ownership of hs to the receiver. The handles are
// leaked into the buffer when the parameter is encoded and read as closed
// afterwards. An empty group encodes nothing.
func MoveHandles(hs ...*handle.Owned) TranslateParam { return moveHandles(hs) }

func (p moveHandles) encode(e *encoder) {
	if len(p) == 0 {
		return
	}
	e.w.write(HandleDescriptor(len(p), true))
	for _, h := range p {
		e.w.write(h.Leak())
	}
}

type copyHandles []handle.Borrowed

// CopyHandles gives the receiver duplicates of hs; the sender keeps its own.
func CopyHandles(hs ...handle.Borrowed) TranslateParam { return copyHandles(hs) }

func (p copyHandles) encode(e *encoder) {
	if len(p) == 0 {
		return
	}
	e.w.write(HandleDescriptor(len(p), false))
	for _, h := range p {
		e.w.write(h.Raw())
	}
}

type thisProcessID struct{}

// ThisProcessID asks the kernel to insert the sender's process id.
func ThisProcessID() TranslateParam { return thisProcessID{} }

func (thisProcessID) encode(e *encoder) {
	e.w.write(ProcessIDDescriptor())
	e.w.write(0)
}

type staticBuffer struct {
	id   int
	data []byte
}

// StaticBuffer copies data into the receiver's static buffer slot id
// (0..15). It panics when id or len(data) does not fit the descriptor.
func StaticBuffer(id int, data []byte) TranslateParam {
	if id < 0 || id >= MaxStaticBufferID {
		panic(violation("static buffer id %d outside 0..%d", id, MaxStaticBufferID-1))
	}
	if len(data) > MaxStaticBufferSize {
		panic(violation("static buffer of %d bytes exceeds %d", len(data), MaxStaticBufferSize))
	}
	return staticBuffer{id: id, data: data}
}

func (p staticBuffer) encode(e *encoder) {
	addr := e.thread.Pin(p.data)
	e.pinned = append(e.pinned, addr)
	e.w.write(StaticBufferDescriptor(len(p.data), p.id))
	e.w.write(addr)
}
