package simkernel

import "github.com/GriffinCanCode/AgentOS/ctrkit/internal/result"

// Result codes returned by the simulated kernel.
var (
	InvalidHandle        = result.New(result.LevelPermanent, result.SummaryInvalidArgument, result.ModuleKernel, result.DescriptionInvalidHandle)
	InvalidAddress       = result.New(result.LevelUsage, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionInvalidAddress)
	MisalignedAddress    = result.New(result.LevelUsage, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionMisalignedAddress)
	MisalignedSize       = result.New(result.LevelUsage, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionMisalignedSize)
	InvalidEnumValue     = result.New(result.LevelPermanent, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionInvalidEnumValue)
	OutOfRange           = result.New(result.LevelUsage, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionOutOfRange)
	OutOfMemory          = result.New(result.LevelPermanent, result.SummaryOutOfResource, result.ModuleKernel, result.DescriptionOutOfMemory)
	LimitReached         = result.New(result.LevelStatus, result.SummaryOutOfResource, result.ModuleOS, result.DescriptionOutOfRange)
	PortNotFound         = result.New(result.LevelPermanent, result.SummaryNotFound, result.ModuleKernel, result.DescriptionNotFound)
	NameTooLong          = result.New(result.LevelUsage, result.SummaryInvalidArgument, result.ModuleOS, result.DescriptionTooLarge)
	SessionClosed        = result.New(result.LevelStatus, result.SummaryCanceled, result.ModuleOS, result.DescriptionCancelRequested)
	NotOwner             = result.New(result.LevelPermanent, result.SummaryInvalidState, result.ModuleKernel, result.DescriptionNotAuthorized)
	NotImplemented       = result.New(result.LevelPermanent, result.SummaryNotSupported, result.ModuleKernel, result.DescriptionNotImplemented)
	InvalidMessage       = result.New(result.LevelPermanent, result.SummaryInvalidArgument, result.ModuleKernel, result.DescriptionInvalidCombination)
	StaticBufferTooSmall = result.New(result.LevelPermanent, result.SummaryInvalidArgument, result.ModuleKernel, result.DescriptionInvalidSize)
	UnknownCommand       = result.New(result.LevelPermanent, result.SummaryNotSupported, result.ModuleApplication, result.DescriptionNotImplemented)
)
