package svc

import "github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"

// ConnectToPort opens a session to the named global port (0x2D).
func (c *Client) ConnectToPort(name string) (*handle.Owned, error) {
	var f Frame
	f.Bind(1, name)
	if err := c.call(NumConnectToPort, &f); err != nil {
		return nil, err
	}
	return c.own(f.Regs[1]), nil
}

// SendSyncRequest sends the request in the calling thread's command buffer
// to session h and blocks until the reply has been written back (0x32).
func (c *Client) SendSyncRequest(h handle.Borrowed) error {
	f := Frame{Regs: Registers{h.Raw()}}
	return c.call(NumSendSyncRequest, &f)
}
