// Package tls models the per-thread local storage block the kernel shares
// with each thread: the IPC command buffer and the static-buffer receive
// descriptors live at fixed offsets inside it.
package tls

import (
	"fmt"
	"sync"
)

const (
	// Size is the size in bytes of one thread's local storage block.
	Size = 0x280

	// CommandBufferOffset is the byte offset of the IPC command buffer.
	CommandBufferOffset = 0x80
	// CommandBufferWords is the capacity of the command buffer in words.
	CommandBufferWords = 0x80

	// StaticBufferOffset is the byte offset of the static-buffer receive
	// descriptors: 16 (descriptor, address) pairs.
	StaticBufferOffset = 0x180
	// StaticBufferWords is the number of words in the receive descriptor table.
	StaticBufferWords = 0x20

	pinBase   = 0x0F000000
	pinStride = 0x10
)

// Storage is one thread's local storage block.
//
// The static-buffer receive table overlaps the upper half of the command
// buffer (words 0x40..0x5F); the kernel layout is the same. A request that
// uses more than 0x40 words must not also expect static-buffer replies.
//
// Word access is not synchronized: only the owning thread and the kernel
// acting on its behalf touch the block, never concurrently.
type Storage struct {
	words [Size / 4]uint32

	mu   sync.Mutex
	pins map[uint32]any
	next uint32
}

// New returns a zeroed storage block.
func New() *Storage {
	return &Storage{pins: make(map[uint32]any)}
}

// CommandBuffer returns the command buffer window.
func (s *Storage) CommandBuffer() []uint32 {
	const start = CommandBufferOffset / 4
	return s.words[start : start+CommandBufferWords : start+CommandBufferWords]
}

// StaticBuffers returns the static-buffer receive descriptor table.
func (s *Storage) StaticBuffers() []uint32 {
	const start = StaticBufferOffset / 4
	return s.words[start : start+StaticBufferWords : start+StaticBufferWords]
}

// SetStaticBuffer installs a receive buffer in slot id (0..15). The
// descriptor word and the pinned address are written to the table; the
// returned address stays valid until ClearStaticBuffer.
func (s *Storage) SetStaticBuffer(id int, buf []byte) uint32 {
	if id < 0 || id >= StaticBufferWords/2 {
		panic(fmt.Sprintf("tls: static buffer id %d out of range", id))
	}
	table := s.StaticBuffers()
	if old := table[2*id+1]; old != 0 {
		s.Unpin(old)
	}
	addr := s.Pin(buf)
	table[2*id] = uint32(len(buf))<<14 | uint32(id)<<10 | 0x2
	table[2*id+1] = addr
	return addr
}

// ClearStaticBuffer removes the receive buffer in slot id.
func (s *Storage) ClearStaticBuffer(id int) {
	if id < 0 || id >= StaticBufferWords/2 {
		return
	}
	table := s.StaticBuffers()
	if addr := table[2*id+1]; addr != 0 {
		s.Unpin(addr)
	}
	table[2*id] = 0
	table[2*id+1] = 0
}

// StaticBuffer returns the receive buffer installed in slot id.
func (s *Storage) StaticBuffer(id int) ([]byte, bool) {
	if id < 0 || id >= StaticBufferWords/2 {
		return nil, false
	}
	v, ok := s.Resolve(s.StaticBuffers()[2*id+1])
	if !ok {
		return nil, false
	}
	buf, ok := v.([]byte)
	return buf, ok
}

// Pin registers v and returns a non-zero address that refers to it in
// words written to this thread's buffers.
func (s *Storage) Pin(v any) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := pinBase + s.next*pinStride
	s.next++
	s.pins[addr] = v
	return addr
}

// Resolve returns the value pinned at addr.
func (s *Storage) Resolve(addr uint32) (any, bool) {
	if addr == 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.pins[addr]
	return v, ok
}

// Unpin forgets the value at addr.
func (s *Storage) Unpin(addr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pins, addr)
}

// Pinned reports the number of live pins.
func (s *Storage) Pinned() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pins)
}
