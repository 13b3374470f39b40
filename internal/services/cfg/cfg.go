// Package cfg is the client of the system configuration service.
package cfg

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/handle"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ipc"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/ports/srv"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/svc"
)

// ServiceNames lists the configuration service names from most to least
// privileged.
var ServiceNames = []string{"cfg:i", "cfg:s", "cfg:u"}

// Command ids.
const (
	CmdSecureInfoRegion          uint16 = 0x2
	CmdGenerateConsoleUniqueHash uint16 = 0x3
	CmdIsCanadaOrUSA             uint16 = 0x4
	CmdSystemModel               uint16 = 0x5
	CmdIs2DS                     uint16 = 0x6
)

// Region is the console's sales region.
type Region uint32

const (
	Japan Region = iota
	America
	Europe
	Australia
	China
	Korea
	Taiwan
)

var regionNames = [...]string{"japan", "america", "europe", "australia", "china", "korea", "taiwan"}

func (r Region) String() string {
	if int(r) < len(regionNames) {
		return regionNames[r]
	}
	return fmt.Sprintf("region(%d)", uint32(r))
}

// SystemModel is the console hardware model.
type SystemModel uint32

const (
	ModelCTR SystemModel = iota
	ModelSPR
	ModelKTR
	ModelFTR
	ModelRED
	ModelJAN
)

var modelNames = [...]string{"ctr", "spr", "ktr", "ftr", "red", "jan"}

func (m SystemModel) String() string {
	if int(m) < len(modelNames) {
		return modelNames[m]
	}
	return fmt.Sprintf("model(%d)", uint32(m))
}

// Client is a session with a configuration service.
type Client struct {
	c    *svc.Client
	h    *handle.Owned
	name string
}

// Open obtains a session to the most privileged configuration service
// available.
func Open(c *svc.Client, s *srv.Client) (*Client, error) {
	h, i, err := s.GetServiceHandleAlternatives(ServiceNames...)
	if err != nil {
		return nil, fmt.Errorf("open cfg: %w", err)
	}
	return &Client{c: c, h: h, name: ServiceNames[i]}, nil
}

// Name returns the service name the session was opened on.
func (cl *Client) Name() string { return cl.name }

// Close closes the session.
func (cl *Client) Close() error { return cl.h.Close() }

func (cl *Client) call(id uint16, params ...uint32) (*ipc.Reply, error) {
	return ipc.NewRequest(cl.c, id).Params(params...).Dispatch(cl.h.Borrow())
}

// SecureInfoRegion returns the region stored in secure info.
func (cl *Client) SecureInfoRegion() (Region, error) {
	reply, err := cl.call(CmdSecureInfoRegion)
	if err != nil {
		return 0, err
	}
	r := Region(reply.Word())
	if int(r) >= len(regionNames) {
		return 0, fmt.Errorf("cfg: unknown region %#x", uint32(r))
	}
	return r, nil
}

// GenerateConsoleUniqueHash returns a console-specific hash of salt.
func (cl *Client) GenerateConsoleUniqueHash(salt uint32) (uint64, error) {
	reply, err := cl.call(CmdGenerateConsoleUniqueHash, salt)
	if err != nil {
		return 0, err
	}
	low := reply.Word()
	high := reply.Word()
	return uint64(high)<<32 | uint64(low), nil
}

// IsCanadaOrUSA reports whether the console's subregion is Canada or USA.
func (cl *Client) IsCanadaOrUSA() (bool, error) {
	reply, err := cl.call(CmdIsCanadaOrUSA)
	if err != nil {
		return false, err
	}
	return reply.Word()&0xFF != 0, nil
}

// SystemModel returns the hardware model.
func (cl *Client) SystemModel() (SystemModel, error) {
	reply, err := cl.call(CmdSystemModel)
	if err != nil {
		return 0, err
	}
	m := SystemModel(reply.Word())
	if int(m) >= len(modelNames) {
		return 0, fmt.Errorf("cfg: unknown system model %#x", uint32(m))
	}
	return m, nil
}

// Is2DS reports whether the console is a 2DS.
func (cl *Client) Is2DS() (bool, error) {
	reply, err := cl.call(CmdIs2DS)
	if err != nil {
		return false, err
	}
	return reply.Word()&0xFF != 0, nil
}
