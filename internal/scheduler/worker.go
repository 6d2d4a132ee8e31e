package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"forge/internal/backend"
	"forge/internal/diag"
	"forge/internal/jobserver"
	"forge/internal/outputs"
	"forge/internal/trace"
	"forge/internal/trans"
	"forge/internal/workproduct"
)

// runUnit holds a token from before the unit's backend state is allocated
// until after it is disposed, so live contexts never exceed the token budget.
func (s *Scheduler) runUnit(ctx context.Context, limiter jobserver.Limiter, u trans.CodegenUnit) (trans.CompiledModule, error) {
	tok, err := limiter.Acquire(ctx)
	if err != nil {
		return trans.CompiledModule{}, fmt.Errorf("codegen unit %s: %w", u.Name, err)
	}
	defer tok.Release()

	ctx, span := trace.Start(ctx, trace.ScopeUnit, "cgu:"+u.Name)
	defer span.End("")
	span.WithExtra("kind", u.Kind.String())

	u.Requires = s.unitFiles(u)
	m, err := trans.BuildOrReuse(ctx, u, s.Store, s.Backend, s.Reporter)
	if err != nil {
		return trans.CompiledModule{}, err
	}
	defer m.Close()
	span.WithExtra("reused", strconv.FormatBool(m.PreExisting()))

	var emitObject, emitBitcode bool
	switch src := m.Source().(type) {
	case trans.Reused:
		emitObject, emitBitcode, err = s.reuse(u, src.WorkProduct)
	case trans.Built:
		emitObject, emitBitcode, err = s.build(ctx, u, src.Handle)
	default:
		diag.Abort(diag.TransSourceInvariant, "codegen unit %s has no source", u.Name)
	}
	if err != nil {
		return trans.CompiledModule{}, err
	}
	return m.IntoCompiledModule(emitObject, emitBitcode), nil
}

// externalAssembly reports whether u emits the crate-level assembly file
// that Join hands to the external assembler instead of an object.
func (s *Scheduler) externalAssembly(u trans.CodegenUnit) bool {
	return s.NoIntegratedAs && u.Kind == trans.ModuleKindRegular
}

// unitFiles lists the files a build of u emits and saves, in emission order.
// A reuse must restore every one of them.
func (s *Scheduler) unitFiles(u trans.CodegenUnit) []outputs.Kind {
	kinds := make([]outputs.Kind, 0, 4)
	if s.externalAssembly(u) {
		kinds = append(kinds, outputs.KindAssembly)
	} else {
		kinds = append(kinds, outputs.KindObject)
		if s.Outputs.Types.Contains(outputs.KindAssembly) {
			kinds = append(kinds, outputs.KindAssembly)
		}
	}
	if s.EmitBitcode {
		kinds = append(kinds, outputs.KindBitcode)
	}
	if s.Outputs.Types.Contains(outputs.KindLLVMIR) {
		kinds = append(kinds, outputs.KindLLVMIR)
	}
	return kinds
}

// destination maps each file kind of u to where this build wants it, or ""
// for kinds the build does not produce.
func (s *Scheduler) destination(u trans.CodegenUnit) func(outputs.Kind) string {
	return func(kind outputs.Kind) string {
		switch kind {
		case outputs.KindObject:
			return s.Outputs.TempPath(outputs.KindObject, u.Name)
		case outputs.KindBitcode:
			if s.EmitBitcode {
				return s.Outputs.TempPath(outputs.KindBitcode, u.Name)
			}
		case outputs.KindAssembly:
			if s.externalAssembly(u) {
				return s.Outputs.TempPath(outputs.KindAssembly, "")
			}
			if s.Outputs.Types.Contains(outputs.KindAssembly) {
				return s.Outputs.TempPath(outputs.KindAssembly, u.Name)
			}
		case outputs.KindLLVMIR:
			if s.Outputs.Types.Contains(outputs.KindLLVMIR) {
				return s.Outputs.TempPath(outputs.KindLLVMIR, u.Name)
			}
		}
		return ""
	}
}

// reuse restores the saved files of a work product. BuildOrReuse only hands
// out work products carrying every file in unitFiles.
func (s *Scheduler) reuse(u trans.CodegenUnit, wp workproduct.WorkProduct) (emitObject, emitBitcode bool, err error) {
	if mat, ok := s.Store.(Materializer); ok {
		if err := mat.Materialize(wp, s.destination(u)); err != nil {
			return false, false, fmt.Errorf("codegen unit %s: %w", u.Name, err)
		}
	}
	return true, s.EmitBitcode, nil
}

func (s *Scheduler) build(ctx context.Context, u trans.CodegenUnit, h *backend.Handle) (emitObject, emitBitcode bool, err error) {
	if err := s.IR.BuildIR(ctx, u, h); err != nil {
		return false, false, err
	}
	dest := s.destination(u)
	kinds := s.unitFiles(u)
	saved := make(map[outputs.Kind]string, len(kinds))
	for _, kind := range kinds {
		path := dest(kind)
		if err := emit(ctx, h, kind, path); err != nil {
			return false, false, fmt.Errorf("codegen unit %s: %w", u.Name, err)
		}
		saved[kind] = path
	}

	if saver, ok := s.Store.(Saver); ok {
		wp := workproduct.WorkProduct{Unit: u.Name, Key: u.Key, SymbolNameHash: u.SymbolNameHash()}
		if _, err := saver.Save(wp, saved); err != nil {
			diag.Warn(s.Reporter, diag.WorkSaveFailed, u.Name, "%v", err)
		}
	}
	return true, s.EmitBitcode, nil
}

func emit(ctx context.Context, h *backend.Handle, kind outputs.Kind, path string) error {
	switch kind {
	case outputs.KindObject:
		return h.EmitObject(ctx, path)
	case outputs.KindAssembly:
		return h.EmitAssembly(ctx, path)
	case outputs.KindBitcode:
		return h.EmitBitcode(ctx, path)
	case outputs.KindLLVMIR:
		return h.EmitIR(ctx, path)
	}
	return fmt.Errorf("no emitter for %s output", kind)
}
