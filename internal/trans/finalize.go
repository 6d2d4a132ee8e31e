package trans

import (
	"context"
	"os"

	"forge/internal/diag"
	"forge/internal/outputs"
	"forge/internal/trace"
)

// Assembler turns an assembly file into an object file.
type Assembler interface {
	Assemble(ctx context.Context, src, dst string) error
}

// FinalizeOptions drives FinalizeOutputs. The flags are explicit so the step
// does not need a session to consult.
type FinalizeOptions struct {
	// NeedsExternalAssembler is set when codegen emitted assembly instead of
	// an object.
	NeedsExternalAssembler bool
	// OutputIsExecutable requests the <stem>.0.<ext> rename of the object.
	OutputIsExecutable bool
	// RetainTemporaries keeps the assembly source (save-temps).
	RetainTemporaries bool

	AssemblyPath string
	ObjectPath   string
	Assembler    Assembler
}

// FinalizeOutputs runs the post-codegen steps: assemble once, rename the
// object for executables, then remove the assembly source unless retained.
// Every failure is fatal. It returns the final object path.
func FinalizeOutputs(ctx context.Context, opts FinalizeOptions) string {
	if !opts.NeedsExternalAssembler {
		return opts.ObjectPath
	}
	if opts.Assembler == nil {
		diag.Abort(diag.TransAssemblerFailed, "no assembler configured for %s", opts.AssemblyPath)
	}

	_, span := trace.Start(ctx, trace.ScopePass, "assemble")
	err := opts.Assembler.Assemble(ctx, opts.AssemblyPath, opts.ObjectPath)
	span.End(opts.ObjectPath)
	if err != nil {
		diag.AbortErr(diag.TransAssemblerFailed, err, "assembling %s", opts.AssemblyPath)
	}

	object := opts.ObjectPath
	if opts.OutputIsExecutable {
		numbered := outputs.NumberedObjectPath(object)
		_, span := trace.Start(ctx, trace.ScopePass, "rename")
		err := outputs.RenameOrCopyRemove(object, numbered)
		span.End(numbered)
		if err != nil {
			diag.AbortErr(diag.TransRenameFailed, err, "renaming %s to %s", object, numbered)
		}
		object = numbered
	}

	if !opts.RetainTemporaries {
		_, span := trace.Start(ctx, trace.ScopePass, "remove-temps")
		err := os.Remove(opts.AssemblyPath)
		span.End(opts.AssemblyPath)
		if err != nil {
			diag.AbortErr(diag.TransRemoveTempFailed, err, "removing %s", opts.AssemblyPath)
		}
	}
	return object
}
