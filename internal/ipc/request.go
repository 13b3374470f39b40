package ipc

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// Request builds a command in the calling thread's command buffer. Normal
// parameters can only be added before the first translate parameter; that
// is enforced by Translate returning a *TranslateRequest.
//
// A Request is bound to one thread and is not safe for concurrent use. It
// must be dispatched before that thread starts another request.
type Request struct {
	client    *svc.Client
	id        uint16
	enc       encoder
	normal    int
	translate int
}

// TranslateRequest is a Request in its translate-parameter stage.
type TranslateRequest struct {
	req *Request
}

// NewRequest starts command id. Word 0 is reserved for the header, which is
// written on dispatch.
func NewRequest(c *svc.Client, id uint16) *Request {
	thread := c.Thread()
	return &Request{
		client: c,
		id:     id,
		enc: encoder{
			w:      writer{buf: thread.CommandBuffer(), pos: 1},
			thread: thread,
		},
	}
}

// Param appends one normal parameter word.
func (r *Request) Param(v uint32) *Request {
	r.enc.w.write(v)
	r.normal++
	return r
}

// Params appends normal parameter words in order.
func (r *Request) Params(vs ...uint32) *Request {
	for _, v := range vs {
		r.Param(v)
	}
	return r
}

// Translate appends a translate parameter and moves to the translate stage.
func (r *Request) Translate(p TranslateParam) *TranslateRequest {
	start := r.enc.w.pos
	p.encode(&r.enc)
	r.translate += r.enc.w.pos - start
	return &TranslateRequest{req: r}
}

// Translate appends another translate parameter.
func (t *TranslateRequest) Translate(p TranslateParam) *TranslateRequest {
	return t.req.Translate(p)
}

// Dispatch sends the request to receiver and returns the reply when both
// the transport and the reply's own result code succeed.
func (t *TranslateRequest) Dispatch(receiver handle.Borrowed) (*Reply, error) {
	return t.req.Dispatch(receiver)
}

// DispatchNoFail is Request.DispatchNoFail.
func (t *TranslateRequest) DispatchNoFail(receiver handle.Borrowed) (result.Code, *Reply, error) {
	return t.req.DispatchNoFail(receiver)
}

// Header returns the header the request would be sent with.
func (r *Request) Header() Header {
	return NewHeader(r.id, r.normal, r.translate)
}

// Dispatch sends the request to receiver and returns the reply when both
// the transport and the reply's own result code succeed. An application
// failure is returned as the reply's result code and the reply is not
// exposed.
func (r *Request) Dispatch(receiver handle.Borrowed) (*Reply, error) {
	code, reply, err := r.DispatchNoFail(receiver)
	if err != nil {
		return nil, err
	}
	if !code.IsSuccess() {
		return nil, code.Err()
	}
	return reply, nil
}

// DispatchNoFail sends the request and returns the reply's result code
// separately. err is set only when the transport itself failed, in which
// case there is no reply. A reply with a failing code exposes no words.
func (r *Request) DispatchNoFail(receiver handle.Borrowed) (result.Code, *Reply, error) {
	if r.normal > MaxWords || r.translate > MaxWords {
		panic(violation("request %#x has %d normal and %d translate words, header holds at most %d",
			r.id, r.normal, r.translate, MaxWords))
	}
	defer r.enc.release()

	header := r.Header()
	r.enc.w.buf[0] = uint32(header)

	logger := r.client.Logger()
	logger.Debug("dispatching ipc request",
		zap.Stringer("receiver", receiver),
		zap.Uint16("command", header.CommandID()),
		zap.Int("normal_words", header.NormalWords()),
		zap.Int("translate_words", header.TranslateWords()))

	start := time.Now()
	if err := r.client.SendSyncRequest(receiver); err != nil {
		logger.Error("send sync request failed",
			zap.Stringer("receiver", receiver),
			zap.Uint16("command", r.id),
			zap.Error(err))
		r.observe(result.Code(0), err, time.Since(start))
		return result.Success, nil, err
	}

	reply := newReply(r.client, r.enc.w.buf)
	r.observe(reply.code, nil, time.Since(start))
	return reply.code, reply, nil
}

func (r *Request) observe(code result.Code, err error, elapsed time.Duration) {
	obs := r.client.Observer()
	if obs == nil {
		return
	}
	if err != nil {
		code, _ = result.CodeOf(err)
	}
	obs.ObserveRequest(r.id, code, elapsed)
}
