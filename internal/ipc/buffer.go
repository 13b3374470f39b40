package ipc

import "fmt"

// ProtocolViolation is the panic value raised when a request or reply would
// step outside the command buffer or the extent its header declares, or
// when a reply is malformed.
type ProtocolViolation struct {
	Op     string
	Index  int
	Limit  int
	Reason string
}

func (p *ProtocolViolation) Error() string {
	if p.Reason != "" {
		return "ipc: protocol violation: " + p.Reason
	}
	return fmt.Sprintf("ipc: protocol violation: %s at word %#x outside of %#x words", p.Op, p.Index, p.Limit)
}

func violation(reason string, args ...any) *ProtocolViolation {
	return &ProtocolViolation{Reason: fmt.Sprintf(reason, args...)}
}

// writer streams words into a command buffer.
type writer struct {
	buf []uint32
	pos int
}

func (w *writer) write(v uint32) {
	if w.pos < 0 || w.pos >= len(w.buf) {
		panic(&ProtocolViolation{Op: "write", Index: w.pos, Limit: len(w.buf)})
	}
	w.buf[w.pos] = v
	w.pos++
}

// reader reads words from [pos, end) of a command buffer.
type reader struct {
	buf []uint32
	pos int
	end int
}

func newReader(buf []uint32, start, n int) reader {
	end := start + n
	if end > len(buf) {
		panic(&ProtocolViolation{Op: "extent", Index: end, Limit: len(buf)})
	}
	return reader{buf: buf, pos: start, end: end}
}

func (r *reader) read() uint32 {
	if r.pos >= r.end {
		panic(&ProtocolViolation{Op: "read", Index: r.pos, Limit: r.end})
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) slice(n int) []uint32 {
	if n < 0 || r.pos+n > r.end {
		panic(&ProtocolViolation{Op: "read", Index: r.pos + n, Limit: r.end})
	}
	s := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return s
}

func (r *reader) remaining() int { return r.end - r.pos }
