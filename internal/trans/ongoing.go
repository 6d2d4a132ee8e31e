package trans

import (
	"context"
	"strconv"
	"sync/atomic"

	"forge/internal/diag"
	"forge/internal/outputs"
	"forge/internal/trace"
)

// CrateTranslation is the joined crate, ready for the linker.
type CrateTranslation struct {
	CrateName        string           `json:"crate_name"`
	Link             LinkMeta         `json:"link"`
	Metadata         EncodedMetadata  `json:"-"`
	ExportedSymbols  *ExportedSymbols `json:"exported_symbols"`
	NoBuiltins       bool             `json:"no_builtins"`
	WindowsSubsystem string           `json:"windows_subsystem,omitempty"`
	LinkerInfo       LinkerInfo       `json:"linker_info"`

	Modules         []CompiledModule `json:"modules"`
	MetadataModule  CompiledModule   `json:"metadata_module"`
	AllocatorModule *CompiledModule  `json:"allocator_module,omitempty"`

	// Object is the crate object produced by the external assembler, empty
	// when the integrated assembler was used.
	Object string `json:"object,omitempty"`
}

// Module returns the module whose symbol-name hash is h.
func (c *CrateTranslation) Module(h uint64) (CompiledModule, bool) {
	for _, m := range c.Modules {
		if m.SymbolNameHash == h {
			return m, true
		}
	}
	return CompiledModule{}, false
}

// OngoingCrateTranslation is the crate while its units are in flight. The
// crate-scoped fields are read-only once constructed; the result slot is
// written once by the scheduler and read once by Join.
type OngoingCrateTranslation struct {
	info           CrateInfo
	noIntegratedAs bool

	result    chan CompiledModules
	done      chan struct{}
	completed atomic.Bool
}

// NewOngoing starts tracking a crate. noIntegratedAs records that codegen
// emits assembly and Join must run the external assembler.
func NewOngoing(info CrateInfo, noIntegratedAs bool) *OngoingCrateTranslation {
	return &OngoingCrateTranslation{
		info:           info,
		noIntegratedAs: noIntegratedAs,
		result:         make(chan CompiledModules, 1),
		done:           make(chan struct{}),
	}
}

func (o *OngoingCrateTranslation) CrateName() string                 { return o.info.CrateName }
func (o *OngoingCrateTranslation) ExportedSymbols() *ExportedSymbols { return o.info.ExportedSymbols }
func (o *OngoingCrateTranslation) LinkerInfo() LinkerInfo            { return o.info.LinkerInfo }
func (o *OngoingCrateTranslation) Metadata() EncodedMetadata         { return o.info.Metadata }
func (o *OngoingCrateTranslation) NoIntegratedAs() bool              { return o.noIntegratedAs }

// Complete fills the result slot. A second call is fatal.
func (o *OngoingCrateTranslation) Complete(mods CompiledModules) {
	if mods.MetadataModule.Kind != ModuleKindMetadata {
		diag.Abort(diag.TransMissingMetadata, "crate %s completed without a metadata module", o.info.CrateName)
	}
	if !o.completed.CompareAndSwap(false, true) {
		diag.Abort(diag.TransSlotWrittenTwice, "crate %s result slot written twice", o.info.CrateName)
	}
	o.result <- mods
	close(o.done)
}

// Done is closed once the result slot is filled.
func (o *OngoingCrateTranslation) Done() <-chan struct{} { return o.done }

// JoinOptions locate the crate outputs for the finalisation step.
type JoinOptions struct {
	Outputs   outputs.Filenames
	SaveTemps bool
	Assembler Assembler
}

// Join consumes the crate. It never waits: calling it before Complete is
// fatal, and so is calling it after the result was taken.
func (o *OngoingCrateTranslation) Join(ctx context.Context, opts JoinOptions) *CrateTranslation {
	var mods CompiledModules
	select {
	case mods = <-o.result:
	default:
		select {
		case <-o.done:
			diag.Abort(diag.TransJoinedTwice, "crate %s joined twice", o.info.CrateName)
		default:
			diag.Abort(diag.TransJoinBeforeComplete, "crate %s joined before its codegen units completed", o.info.CrateName)
		}
	}

	ctx, span := trace.Start(ctx, trace.ScopePass, "join")
	defer span.End(o.info.CrateName)

	ct := &CrateTranslation{
		CrateName:        o.info.CrateName,
		Link:             o.info.Link,
		Metadata:         o.info.Metadata,
		ExportedSymbols:  o.info.ExportedSymbols,
		NoBuiltins:       o.info.NoBuiltins,
		WindowsSubsystem: o.info.WindowsSubsystem,
		LinkerInfo:       o.info.LinkerInfo,
		Modules:          mods.Modules,
		MetadataModule:   mods.MetadataModule,
		AllocatorModule:  mods.AllocatorModule,
	}
	span.WithExtra("modules", strconv.Itoa(len(ct.Modules)))

	if o.noIntegratedAs {
		ct.Object = FinalizeOutputs(ctx, FinalizeOptions{
			NeedsExternalAssembler: true,
			OutputIsExecutable:     opts.Outputs.Types.Contains(outputs.KindExe),
			RetainTemporaries:      opts.SaveTemps,
			AssemblyPath:           opts.Outputs.TempPath(outputs.KindAssembly, ""),
			ObjectPath:             opts.Outputs.Path(outputs.KindObject),
			Assembler:              opts.Assembler,
		})
	}
	return ct
}
