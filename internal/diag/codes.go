package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// translation units, join and finalisation
	TransInfo               Code = 1000
	TransDisposeFailed      Code = 1001
	TransSourceInvariant    Code = 1002
	TransUnitConsumed       Code = 1003
	TransSlotWrittenTwice   Code = 1004
	TransJoinBeforeComplete Code = 1005
	TransJoinedTwice        Code = 1006
	TransAssemblerFailed    Code = 1007
	TransRenameFailed       Code = 1008
	TransRemoveTempFailed   Code = 1009
	TransMissingMetadata    Code = 1010

	// work-product store
	WorkInfo          Code = 2000
	WorkLoadFailed    Code = 2001
	WorkStaleProduct  Code = 2002
	WorkSaveFailed    Code = 2003
	WorkMissingFile   Code = 2004
	WorkSchemaChanged Code = 2005
	WorkIncomplete    Code = 2006

	// concurrency tokens
	JobInfo          Code = 3000
	JobReleaseFailed Code = 3001
	JobDoubleRelease Code = 3002
)

var (
	codeDescription = map[Code]string{
		UnknownCode:             "Unknown error",
		TransInfo:               "Translation information",
		TransDisposeFailed:      "Failed to dispose native backend resources",
		TransSourceInvariant:    "Translation unit has no valid source",
		TransUnitConsumed:       "Translation unit converted more than once",
		TransSlotWrittenTwice:   "Crate translation result written more than once",
		TransJoinBeforeComplete: "Crate translation joined before all codegen units finished",
		TransJoinedTwice:        "Crate translation joined more than once",
		TransAssemblerFailed:    "External assembler failed",
		TransRenameFailed:       "Failed to rename assembled object file",
		TransRemoveTempFailed:   "Failed to remove assembly source",
		TransMissingMetadata:    "Crate translation result has no metadata module",
		WorkInfo:                "Work product information",
		WorkLoadFailed:          "Failed to load work product",
		WorkStaleProduct:        "Work product is stale",
		WorkSaveFailed:          "Failed to save work product",
		WorkMissingFile:         "Work product file missing from incremental directory",
		WorkSchemaChanged:       "Work product index schema changed",
		WorkIncomplete:          "Work product lacks a requested output",
		JobInfo:                 "Jobserver information",
		JobReleaseFailed:        "Failed to release concurrency token",
		JobDoubleRelease:        "Concurrency token released twice",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("TRN%04d", ic-1000)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("WRK%04d", ic-2000)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("JOB%04d", ic-3000)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
