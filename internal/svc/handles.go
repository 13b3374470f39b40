package svc

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
)

// CloseHandle closes h (0x23).
func (c *Client) CloseHandle(h handle.Borrowed) error {
	c.logger.Debug("closing handle", zap.Stringer("handle", h))
	f := Frame{Regs: Registers{h.Raw()}}
	return c.call(NumCloseHandle, &f)
}

// DuplicateHandle returns a second owning handle to the object h refers to (0x27).
func (c *Client) DuplicateHandle(h handle.Borrowed) (*handle.Owned, error) {
	f := Frame{Regs: Registers{1: h.Raw()}}
	if err := c.call(NumDuplicateHandle, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}
