// Package ipc encodes requests into and decodes replies from the per-thread
// command buffer.
//
// A request is streamed word by word: normal parameters first, then
// translate parameters, each a descriptor word followed by its payload. The
// header in word 0 is written last, once the word counts are known. Every
// access is bounds checked against the 0x80-word window; an out-of-bounds
// access panics with *ProtocolViolation because continuing would corrupt the
// rest of the thread's local storage.
package ipc

import "fmt"

const fieldMask = 0b11_1111

// MaxWords is the largest normal or translate word count a header can carry.
const MaxWords = fieldMask

// Header is word 0 of a request or reply.
type Header uint32

// NewHeader packs a header. Word counts are truncated to 6 bits.
func NewHeader(id uint16, normal, translate int) Header {
	return Header(uint32(id)<<16 |
		uint32(normal&fieldMask)<<6 |
		uint32(translate&fieldMask))
}

// CommandID returns the command id.
func (h Header) CommandID() uint16 { return uint16(h >> 16) }

// NormalWords returns the number of normal parameter words.
func (h Header) NormalWords() int { return int(h>>6) & fieldMask }

// TranslateWords returns the number of translate parameter words,
// descriptors included.
func (h Header) TranslateWords() int { return int(h) & fieldMask }

func (h Header) String() string {
	return fmt.Sprintf("header(%#08x id=%#x normal=%d translate=%d)",
		uint32(h), h.CommandID(), h.NormalWords(), h.TranslateWords())
}
