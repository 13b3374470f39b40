package ipc

import (
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// Reply reads the normal words of a reply in the calling thread's command
// buffer. Slices it returns alias the buffer and are valid only until the
// thread sends its next request.
type Reply struct {
	client *svc.Client
	buf    []uint32
	header Header
	code   result.Code
	normal reader
}

// TranslateReply reads the translate results that follow the normal words.
type TranslateReply struct {
	client    *svc.Client
	translate reader
}

func newReply(c *svc.Client, buf []uint32) *Reply {
	header := Header(buf[0])
	if header.NormalWords() == 0 {
		panic(violation("reply %s carries no result code", header))
	}

	r := &Reply{
		client: c,
		buf:    buf,
		header: header,
		normal: newReader(buf, 1, header.NormalWords()),
	}
	r.code = result.Code(r.normal.read())
	if !r.code.IsSuccess() {
		// Nothing past the result code is trustworthy.
		r.normal.end = r.normal.pos
	}
	return r
}

// Header returns the reply header.
func (r *Reply) Header() Header { return r.header }

// Result returns the result code carried in the reply.
func (r *Reply) Result() result.Code { return r.code }

// Word reads the next normal word.
func (r *Reply) Word() uint32 { return r.normal.read() }

// Words reads the next n normal words.
func (r *Reply) Words(n int) []uint32 { return r.normal.slice(n) }

// Remaining returns the number of unread normal words.
func (r *Reply) Remaining() int { return r.normal.remaining() }

// FinishResults moves past the normal words to the translate results. A
// reply with fewer than two translate words has no translate results.
func (r *Reply) FinishResults() *TranslateReply {
	n := r.header.TranslateWords()
	if n < 2 || !r.code.IsSuccess() {
		n = 0
	}
	return &TranslateReply{
		client:    r.client,
		translate: newReader(r.buf, 1+r.header.NormalWords(), n),
	}
}

func (t *TranslateReply) handleGroup() []uint32 {
	desc := t.translate.read()
	if Kind(desc) != KindHandles {
		panic(violation("expected handle descriptor, found %s (%#08x)", Kind(desc), desc))
	}
	count, _ := DecodeHandleDescriptor(desc)
	return t.translate.slice(count)
}

// Handle reads a group of exactly one handle and takes ownership of it.
func (t *TranslateReply) Handle() *handle.Owned {
	hs := t.Handles()
	if len(hs) != 1 {
		for _, h := range hs {
			_ = h.Close()
		}
		panic(violation("expected a single handle, reply carries %d", len(hs)))
	}
	return hs[0]
}

// Handles reads a handle group and takes ownership of every handle in it.
// Use it for handles the sender moved or duplicated for us.
func (t *TranslateReply) Handles() []*handle.Owned {
	raw := t.handleGroup()
	hs := make([]*handle.Owned, len(raw))
	for i, v := range raw {
		hs[i] = handle.New(t.client, v)
	}
	return hs
}

// BorrowedHandles reads a handle group without taking ownership.
func (t *TranslateReply) BorrowedHandles() []handle.Borrowed {
	raw := t.handleGroup()
	hs := make([]handle.Borrowed, len(raw))
	for i, v := range raw {
		hs[i] = handle.Borrowed(v)
	}
	return hs
}

// StaticBuffer reads a static buffer result and returns the bytes the
// kernel copied into the receive slot it names.
func (t *TranslateReply) StaticBuffer() (id int, data []byte) {
	desc := t.translate.read()
	if Kind(desc) != KindStaticBuffer {
		panic(violation("expected static buffer descriptor, found %s (%#08x)", Kind(desc), desc))
	}
	size, id := DecodeStaticBufferDescriptor(desc)
	v, ok := t.client.Thread().Resolve(t.translate.read())
	buf, isBytes := v.([]byte)
	if !ok || !isBytes || size > len(buf) {
		panic(violation("static buffer result for slot %d does not resolve", id))
	}
	return id, buf[:size]
}

// Word reads a raw translate word.
func (t *TranslateReply) Word() uint32 { return t.translate.read() }

// Remaining returns the number of unread translate words.
func (t *TranslateReply) Remaining() int { return t.translate.remaining() }
