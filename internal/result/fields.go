package result

import "strconv"

// Level is the severity field of a result code.
type Level uint32

const (
	LevelSuccess      Level = 0
	LevelInfo         Level = 1
	LevelStatus       Level = 25
	LevelTemporary    Level = 26
	LevelPermanent    Level = 27
	LevelUsage        Level = 28
	LevelReinitialize Level = 29
	LevelReset        Level = 30
	LevelFatal        Level = 31
)

var levelNames = map[Level]string{
	LevelSuccess:      "success",
	LevelInfo:         "info",
	LevelStatus:       "status",
	LevelTemporary:    "temporary",
	LevelPermanent:    "permanent",
	LevelUsage:        "usage",
	LevelReinitialize: "reinitialize",
	LevelReset:        "reset",
	LevelFatal:        "fatal",
}

func (l Level) String() string { return lookup(levelNames, l) }

// Summary classifies the failure.
type Summary uint32

const (
	SummarySuccess            Summary = 0
	SummaryNop                Summary = 1
	SummaryWouldBlock         Summary = 2
	SummaryOutOfResource      Summary = 3
	SummaryNotFound           Summary = 4
	SummaryInvalidState       Summary = 5
	SummaryNotSupported       Summary = 6
	SummaryInvalidArgument    Summary = 7
	SummaryWrongArgument      Summary = 8
	SummaryCanceled           Summary = 9
	SummaryStatusChanged      Summary = 10
	SummaryInternal           Summary = 11
	SummaryInvalidResultValue Summary = 63
)

var summaryNames = map[Summary]string{
	SummarySuccess:            "success",
	SummaryNop:                "nop",
	SummaryWouldBlock:         "would_block",
	SummaryOutOfResource:      "out_of_resource",
	SummaryNotFound:           "not_found",
	SummaryInvalidState:       "invalid_state",
	SummaryNotSupported:       "not_supported",
	SummaryInvalidArgument:    "invalid_argument",
	SummaryWrongArgument:      "wrong_argument",
	SummaryCanceled:           "canceled",
	SummaryStatusChanged:      "status_changed",
	SummaryInternal:           "internal",
	SummaryInvalidResultValue: "invalid_result_value",
}

func (s Summary) String() string { return lookup(summaryNames, s) }

// Module identifies the system component that produced the code.
type Module uint32

const (
	ModuleCommon      Module = 0
	ModuleKernel      Module = 1
	ModuleUtil        Module = 2
	ModuleFileServer  Module = 3
	ModuleOS          Module = 6
	ModuleGSP         Module = 10
	ModuleFS          Module = 17
	ModuleHID         Module = 19
	ModuleSrv         Module = 25
	ModuleSoc         Module = 28
	ModuleAC          Module = 39
	ModuleApplet      Module = 51
	ModuleConfig      Module = 64
	ModuleApplication Module = 254
	ModuleInvalid     Module = 255
)

var moduleNames = map[Module]string{
	ModuleCommon:      "common",
	ModuleKernel:      "kernel",
	ModuleUtil:        "util",
	ModuleFileServer:  "file_server",
	ModuleOS:          "os",
	ModuleGSP:         "gsp",
	ModuleFS:          "fs",
	ModuleHID:         "hid",
	ModuleSrv:         "srv",
	ModuleSoc:         "soc",
	ModuleAC:          "ac",
	ModuleApplet:      "applet",
	ModuleConfig:      "config",
	ModuleApplication: "application",
	ModuleInvalid:     "invalid",
}

func (m Module) String() string { return lookup(moduleNames, m) }

// Description is the module-independent detail field.
type Description uint32

const (
	DescriptionSuccess            Description = 0
	DescriptionInvalidSection     Description = 1000
	DescriptionTooLarge           Description = 1001
	DescriptionNotAuthorized      Description = 1002
	DescriptionAlreadyDone        Description = 1003
	DescriptionInvalidSize        Description = 1004
	DescriptionInvalidEnumValue   Description = 1005
	DescriptionInvalidCombination Description = 1006
	DescriptionNoData             Description = 1007
	DescriptionBusy               Description = 1008
	DescriptionMisalignedAddress  Description = 1009
	DescriptionMisalignedSize     Description = 1010
	DescriptionOutOfMemory        Description = 1011
	DescriptionNotImplemented     Description = 1012
	DescriptionInvalidAddress     Description = 1013
	DescriptionInvalidPointer     Description = 1014
	DescriptionInvalidHandle      Description = 1015
	DescriptionNotInitialized     Description = 1016
	DescriptionAlreadyInitialized Description = 1017
	DescriptionNotFound           Description = 1018
	DescriptionCancelRequested    Description = 1019
	DescriptionAlreadyExists      Description = 1020
	DescriptionOutOfRange         Description = 1021
	DescriptionTimeout            Description = 1022
	DescriptionInvalidResultValue Description = 1023
)

var descriptionNames = map[Description]string{
	DescriptionSuccess:            "success",
	DescriptionInvalidSection:     "invalid_section",
	DescriptionTooLarge:           "too_large",
	DescriptionNotAuthorized:      "not_authorized",
	DescriptionAlreadyDone:        "already_done",
	DescriptionInvalidSize:        "invalid_size",
	DescriptionInvalidEnumValue:   "invalid_enum_value",
	DescriptionInvalidCombination: "invalid_combination",
	DescriptionNoData:             "no_data",
	DescriptionBusy:               "busy",
	DescriptionMisalignedAddress:  "misaligned_address",
	DescriptionMisalignedSize:     "misaligned_size",
	DescriptionOutOfMemory:        "out_of_memory",
	DescriptionNotImplemented:     "not_implemented",
	DescriptionInvalidAddress:     "invalid_address",
	DescriptionInvalidPointer:     "invalid_pointer",
	DescriptionInvalidHandle:      "invalid_handle",
	DescriptionNotInitialized:     "not_initialized",
	DescriptionAlreadyInitialized: "already_initialized",
	DescriptionNotFound:           "not_found",
	DescriptionCancelRequested:    "cancel_requested",
	DescriptionAlreadyExists:      "already_exists",
	DescriptionOutOfRange:         "out_of_range",
	DescriptionTimeout:            "timeout",
	DescriptionInvalidResultValue: "invalid_result_value",
}

func (d Description) String() string { return lookup(descriptionNames, d) }

func lookup[K ~uint32](names map[K]string, k K) string {
	if name, ok := names[k]; ok {
		return name
	}
	return strconv.FormatUint(uint64(k), 10)
}
