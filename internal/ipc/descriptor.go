package ipc

const (
	tagMask         = 0b1110
	tagHandle       = 0 << 1
	tagStaticBuffer = 1 << 1

	flagMoveHandle = 1 << 4
	flagReplacePID = 1 << 5

	// MaxStaticBufferID bounds the static buffer slot index.
	MaxStaticBufferID = 16
	// MaxStaticBufferSize bounds the size field of a static buffer descriptor.
	MaxStaticBufferSize = 0xFFFF
)

// DescriptorKind classifies a translate descriptor word.
type DescriptorKind int

const (
	KindUnknown DescriptorKind = iota
	KindHandles
	KindProcessID
	KindStaticBuffer
)

func (k DescriptorKind) String() string {
	switch k {
	case KindHandles:
		return "handles"
	case KindProcessID:
		return "process_id"
	case KindStaticBuffer:
		return "static_buffer"
	}
	return "unknown"
}

// Kind classifies a descriptor word.
func Kind(desc uint32) DescriptorKind {
	switch desc & tagMask {
	case tagHandle:
		if desc&flagReplacePID != 0 {
			return KindProcessID
		}
		return KindHandles
	case tagStaticBuffer:
		return KindStaticBuffer
	}
	return KindUnknown
}

// HandleDescriptor encodes a group of count handles (1..64). move transfers
// ownership to the receiver; otherwise the receiver gets a duplicate.
func HandleDescriptor(count int, move bool) uint32 {
	d := uint32(count-1)<<26 | tagHandle
	if move {
		d |= flagMoveHandle
	}
	return d
}

// DecodeHandleDescriptor is the inverse of HandleDescriptor.
func DecodeHandleDescriptor(desc uint32) (count int, move bool) {
	return int(desc>>26) + 1, desc&flagMoveHandle != 0
}

// ProcessIDDescriptor is the descriptor of a process id placeholder. The
// kernel overwrites the following word with the sender's process id.
func ProcessIDDescriptor() uint32 {
	return flagReplacePID | tagHandle
}

// StaticBufferDescriptor encodes a static buffer of size bytes targeting
// the receiver's slot id.
func StaticBufferDescriptor(size, id int) uint32 {
	return uint32(size)<<14 | uint32(id)<<10 | tagStaticBuffer
}

// DecodeStaticBufferDescriptor is the inverse of StaticBufferDescriptor.
func DecodeStaticBufferDescriptor(desc uint32) (size, id int) {
	return int(desc >> 14), int(desc>>10) & 0xF
}
