package svc

import "fmt"

// Entry documents the register signature of one syscall. Inputs and
// outputs are listed register by register from r0; "_" marks a register
// the call leaves unset. The output list always starts with the result code
// except for GetSystemTick, which has none.
type Entry struct {
	Name string
	In   []string
	Out  []string
}

// Syscall numbers.
const (
	NumControlMemory                 Number = 0x01
	NumQueryMemory                   Number = 0x02
	NumExitProcess                   Number = 0x03
	NumCreateThread                  Number = 0x08
	NumExitThread                    Number = 0x09
	NumSleepThread                   Number = 0x0A
	NumGetThreadPriority             Number = 0x0B
	NumCreateMutex                   Number = 0x13
	NumReleaseMutex                  Number = 0x14
	NumCreateEvent                   Number = 0x17
	NumSignalEvent                   Number = 0x18
	NumClearEvent                    Number = 0x19
	NumCreateMemoryBlock             Number = 0x1E
	NumMapMemoryBlock                Number = 0x1F
	NumUnmapMemoryBlock              Number = 0x20
	NumCreateAddressArbiter          Number = 0x21
	NumArbitrateAddress              Number = 0x22
	NumCloseHandle                   Number = 0x23
	NumWaitSynchronization           Number = 0x24
	NumWaitSynchronizationN          Number = 0x25
	NumDuplicateHandle               Number = 0x27
	NumGetSystemTick                 Number = 0x28
	NumGetSystemInfo                 Number = 0x2A
	NumConnectToPort                 Number = 0x2D
	NumSendSyncRequest               Number = 0x32
	NumGetProcessID                  Number = 0x35
	NumGetResourceLimit              Number = 0x38
	NumGetResourceLimitLimitValues   Number = 0x39
	NumGetResourceLimitCurrentValues Number = 0x3A
	NumBreak                         Number = 0x3C
	NumOutputDebugString             Number = 0x3D
	NumStopPoint                     Number = 0xFF
)

// Table is the register mapping of every bound syscall.
var Table = map[Number]Entry{
	NumControlMemory:                 {"ControlMemory", []string{"op", "addr0", "addr1", "size", "perm"}, []string{"result", "addr"}},
	NumQueryMemory:                   {"QueryMemory", []string{"_", "_", "addr"}, []string{"result", "base", "size", "perm", "state", "pageflags"}},
	NumExitProcess:                   {"ExitProcess", nil, nil},
	NumCreateThread:                  {"CreateThread", []string{"priority", "*entry", "*arg", "*stacktop", "processor"}, []string{"result", "handle"}},
	NumExitThread:                    {"ExitThread", nil, nil},
	NumSleepThread:                   {"SleepThread", []string{"ns_lo", "ns_hi"}, []string{"result"}},
	NumGetThreadPriority:             {"GetThreadPriority", []string{"_", "handle"}, []string{"result", "priority"}},
	NumCreateMutex:                   {"CreateMutex", []string{"locked"}, []string{"result", "handle"}},
	NumReleaseMutex:                  {"ReleaseMutex", []string{"handle"}, []string{"result"}},
	NumCreateEvent:                   {"CreateEvent", []string{"reset"}, []string{"result", "handle"}},
	NumSignalEvent:                   {"SignalEvent", []string{"handle"}, []string{"result"}},
	NumClearEvent:                    {"ClearEvent", []string{"handle"}, []string{"result"}},
	NumCreateMemoryBlock:             {"CreateMemoryBlock", []string{"other_perm", "addr", "size", "my_perm"}, []string{"result", "handle"}},
	NumMapMemoryBlock:                {"MapMemoryBlock", []string{"handle", "addr", "my_perm", "other_perm"}, []string{"result"}},
	NumUnmapMemoryBlock:              {"UnmapMemoryBlock", []string{"handle", "addr"}, []string{"result"}},
	NumCreateAddressArbiter:          {"CreateAddressArbiter", nil, []string{"result", "handle"}},
	NumArbitrateAddress:              {"ArbitrateAddress", []string{"handle", "*addr", "type", "value", "ns_lo", "ns_hi"}, []string{"result"}},
	NumCloseHandle:                   {"CloseHandle", []string{"handle"}, []string{"result"}},
	NumWaitSynchronization:           {"WaitSynchronization", []string{"handle", "_", "ns_hi", "ns_lo"}, []string{"result"}},
	NumWaitSynchronizationN:          {"WaitSynchronizationN", []string{"ns_lo", "*handles", "count", "wait_all", "ns_hi"}, []string{"result", "*signaled"}},
	NumDuplicateHandle:               {"DuplicateHandle", []string{"_", "handle"}, []string{"result", "handle"}},
	NumGetSystemTick:                 {"GetSystemTick", nil, []string{"tick_hi", "tick_lo"}},
	NumGetSystemInfo:                 {"GetSystemInfo", []string{"_", "type", "param"}, []string{"result", "out_lo", "out_hi"}},
	NumConnectToPort:                 {"ConnectToPort", []string{"_", "*name"}, []string{"result", "handle"}},
	NumSendSyncRequest:               {"SendSyncRequest", []string{"handle"}, []string{"result"}},
	NumGetProcessID:                  {"GetProcessId", []string{"_", "process"}, []string{"result", "pid"}},
	NumGetResourceLimit:              {"GetResourceLimit", []string{"*out", "process"}, []string{"result", "handle"}},
	NumGetResourceLimitLimitValues:   {"GetResourceLimitLimitValues", []string{"*values", "handle", "*types", "count"}, []string{"result"}},
	NumGetResourceLimitCurrentValues: {"GetResourceLimitCurrentValues", []string{"*values", "handle", "*types", "count"}, []string{"result"}},
	NumBreak:                         {"Break", []string{"reason"}, nil},
	NumOutputDebugString:             {"OutputDebugString", []string{"*bytes", "len"}, []string{"result"}},
	NumStopPoint:                     {"StopPoint", nil, nil},
}

func (n Number) String() string {
	if e, ok := Table[n]; ok {
		return e.Name
	}
	return fmt.Sprintf("svc(%#02x)", uint8(n))
}
