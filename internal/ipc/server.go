package ipc

import (
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/tls"
)

// Incoming is a request as the receiving service sees it in its own
// command buffer, after the kernel processed the translate parameters.
type Incoming struct {
	thread    *tls.Storage
	header    Header
	normal    reader
	translate reader
}

// ReadIncoming parses the request in the service thread's command buffer.
func ReadIncoming(thread *tls.Storage) *Incoming {
	buf := thread.CommandBuffer()
	header := Header(buf[0])
	return &Incoming{
		thread:    thread,
		header:    header,
		normal:    newReader(buf, 1, header.NormalWords()),
		translate: newReader(buf, 1+header.NormalWords(), header.TranslateWords()),
	}
}

// Header returns the request header.
func (in *Incoming) Header() Header { return in.header }

// Word reads the next normal word.
func (in *Incoming) Word() uint32 { return in.normal.read() }

// Words reads the next n normal words.
func (in *Incoming) Words(n int) []uint32 { return in.normal.slice(n) }

// Remaining returns the number of unread normal words.
func (in *Incoming) Remaining() int { return in.normal.remaining() }

// Handles reads a handle group. The values are valid in the receiving
// process.
func (in *Incoming) Handles() []handle.Borrowed {
	desc := in.translate.read()
	if Kind(desc) != KindHandles {
		panic(violation("expected handle descriptor, found %s (%#08x)", Kind(desc), desc))
	}
	count, _ := DecodeHandleDescriptor(desc)
	raw := in.translate.slice(count)
	hs := make([]handle.Borrowed, count)
	for i, v := range raw {
		hs[i] = handle.Borrowed(v)
	}
	return hs
}

// ProcessID reads a process id parameter.
func (in *Incoming) ProcessID() uint32 {
	desc := in.translate.read()
	if Kind(desc) != KindProcessID {
		panic(violation("expected process id descriptor, found %s (%#08x)", Kind(desc), desc))
	}
	return in.translate.read()
}

// StaticBuffer reads a static buffer parameter and returns the bytes the
// kernel placed in the receiver's slot.
func (in *Incoming) StaticBuffer() []byte {
	desc := in.translate.read()
	if Kind(desc) != KindStaticBuffer {
		panic(violation("expected static buffer descriptor, found %s (%#08x)", Kind(desc), desc))
	}
	size, id := DecodeStaticBufferDescriptor(desc)
	v, ok := in.thread.Resolve(in.translate.read())
	buf, isBytes := v.([]byte)
	if !ok || !isBytes || size > len(buf) {
		panic(violation("static buffer parameter for slot %d does not resolve", id))
	}
	return buf[:size]
}

// ReplyWriter builds a reply in the service thread's command buffer.
type ReplyWriter struct {
	enc       encoder
	id        uint16
	normal    int
	translate int
}

// NewReplyWriter starts a reply to command id carrying code.
func NewReplyWriter(thread *tls.Storage, id uint16, code result.Code) *ReplyWriter {
	w := &ReplyWriter{
		id: id,
		enc: encoder{
			w:      writer{buf: thread.CommandBuffer(), pos: 1},
			thread: thread,
		},
	}
	return w.Param(uint32(code))
}

// Param appends a normal word. Normal words cannot follow translate words.
func (w *ReplyWriter) Param(v uint32) *ReplyWriter {
	if w.translate > 0 {
		panic(violation("normal word after translate parameters in reply %#x", w.id))
	}
	w.enc.w.write(v)
	w.normal++
	return w
}

// Params appends normal words.
func (w *ReplyWriter) Params(vs ...uint32) *ReplyWriter {
	for _, v := range vs {
		w.Param(v)
	}
	return w
}

// Translate appends a translate parameter.
func (w *ReplyWriter) Translate(p TranslateParam) *ReplyWriter {
	start := w.enc.w.pos
	p.encode(&w.enc)
	w.translate += w.enc.w.pos - start
	return w
}

// Finish writes the header and returns it.
func (w *ReplyWriter) Finish() Header {
	if w.normal > MaxWords || w.translate > MaxWords {
		panic(violation("reply %#x has %d normal and %d translate words, header holds at most %d",
			w.id, w.normal, w.translate, MaxWords))
	}
	h := NewHeader(w.id, w.normal, w.translate)
	w.enc.w.buf[0] = uint32(h)
	return h
}

// Release drops pins taken for static buffers once the kernel has copied
// them.
func (w *ReplyWriter) Release() { w.enc.release() }

// WriteError writes a reply that carries only a failing result code.
func WriteError(thread *tls.Storage, id uint16, code result.Code) Header {
	return NewReplyWriter(thread, id, code).Finish()
}
