// Package errf is the client of the fatal error reporting port.
package errf

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// PortName is the name of the error reporting port.
const PortName = "err:f"

// CmdThrow is the command id of Throw.
const CmdThrow uint16 = 0x1

const (
	// InfoWords is the size of an encoded ErrorInfo in words.
	InfoWords = 32
	// MessageSize is the size of the failure message field in bytes.
	MessageSize = 0x60
)

// ErrorType classifies a reported error.
type ErrorType uint8

const (
	Generic ErrorType = iota
	SystemMemoryDamaged
	CardRemoved
	Exception
	Failure
	Logged
)

func (t ErrorType) String() string {
	switch t {
	case Generic:
		return "generic"
	case SystemMemoryDamaged:
		return "system_memory_damaged"
	case CardRemoved:
		return "card_removed"
	case Exception:
		return "exception"
	case Failure:
		return "failure"
	case Logged:
		return "logged"
	}
	return fmt.Sprintf("error_type(%d)", uint8(t))
}

// ErrorInfo is the report sent to the error port.
type ErrorInfo struct {
	Type               ErrorType
	RevisionHigh       uint8
	RevisionLow        uint8
	Result             result.Code
	PC                 uint32
	ProcessID          uint32
	TitleID            uint64
	ApplicationTitleID uint64
	Message            string
}

// FromResult builds a generic report for code.
func FromResult(c *svc.Client, code result.Code) ErrorInfo {
	return ErrorInfo{
		Type:      Generic,
		Result:    code,
		ProcessID: currentProcessID(c),
	}
}

// FromResultWithMessage builds a failure report with a message. The message
// is truncated to fit the field with its terminator.
func FromResultWithMessage(c *svc.Client, code result.Code, message string) ErrorInfo {
	return ErrorInfo{
		Type:      Failure,
		Result:    code,
		ProcessID: currentProcessID(c),
		Message:   message,
	}
}

func currentProcessID(c *svc.Client) uint32 {
	pid, err := c.GetProcessID(handle.CurrentProcess)
	if err != nil {
		return 0
	}
	return pid
}

// Words encodes the report in its wire layout.
func (e ErrorInfo) Words() [InfoWords]uint32 {
	var b [InfoWords * 4]byte
	b[0] = uint8(e.Type)
	b[1] = e.RevisionHigh
	b[2] = e.RevisionLow
	binary.LittleEndian.PutUint32(b[4:], uint32(e.Result))
	binary.LittleEndian.PutUint32(b[8:], e.PC)
	binary.LittleEndian.PutUint32(b[12:], e.ProcessID)
	binary.LittleEndian.PutUint64(b[16:], e.TitleID)
	binary.LittleEndian.PutUint64(b[24:], e.ApplicationTitleID)
	copy(b[32:32+MessageSize-1], e.Message)

	var w [InfoWords]uint32
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}

// DecodeErrorInfo is the inverse of Words.
func DecodeErrorInfo(w []uint32) (ErrorInfo, error) {
	if len(w) != InfoWords {
		return ErrorInfo{}, fmt.Errorf("errf: error info is %d words, want %d", len(w), InfoWords)
	}
	var b [InfoWords * 4]byte
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}

	msg := b[32 : 32+MessageSize]
	for i, c := range msg {
		if c == 0 {
			msg = msg[:i]
			break
		}
	}

	return ErrorInfo{
		Type:               ErrorType(b[0]),
		RevisionHigh:       b[1],
		RevisionLow:        b[2],
		Result:             result.Code(binary.LittleEndian.Uint32(b[4:])),
		PC:                 binary.LittleEndian.Uint32(b[8:]),
		ProcessID:          binary.LittleEndian.Uint32(b[12:]),
		TitleID:            binary.LittleEndian.Uint64(b[16:]),
		ApplicationTitleID: binary.LittleEndian.Uint64(b[24:]),
		Message:            string(msg),
	}, nil
}

// Client is a session with the error port.
type Client struct {
	c *svc.Client
	h *handle.Owned
}

// Connect opens the error port.
func Connect(c *svc.Client) (*Client, error) {
	h, err := c.ConnectToPort(PortName)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", PortName, err)
	}
	c.Logger().Debug("opened port", zap.String("port", PortName), zap.Stringer("handle", h.Borrow()))
	return &Client{c: c, h: h}, nil
}

// Throw sends a report.
func (e *Client) Throw(info ErrorInfo) error {
	w := info.Words()
	_, err := ipc.NewRequest(e.c, CmdThrow).Params(w[:]...).Dispatch(e.h.Borrow())
	return err
}

// Close closes the session.
func (e *Client) Close() error { return e.h.Close() }
