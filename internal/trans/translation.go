package trans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"forge/internal/backend"
	"forge/internal/diag"
	"forge/internal/outputs"
	"forge/internal/workproduct"
)

type unitState uint32

const (
	unitLive unitState = iota
	unitConsumed
	unitAbandoned
)

// ModuleTranslation is one codegen unit in flight. Always handled by pointer;
// exactly one goroutine works on it at a time.
type ModuleTranslation struct {
	Name           string
	SymbolNameHash uint64
	Kind           ModuleKind

	source ModuleSource
	state  atomic.Uint32
}

// NewReused wraps a work product loaded from the store.
func NewReused(name string, kind ModuleKind, symbolNameHash uint64, wp workproduct.WorkProduct) *ModuleTranslation {
	return &ModuleTranslation{
		Name:           name,
		SymbolNameHash: symbolNameHash,
		Kind:           kind,
		source:         Reused{WorkProduct: wp},
	}
}

// NewBuilt takes ownership of h.
func NewBuilt(name string, kind ModuleKind, symbolNameHash uint64, h *backend.Handle) *ModuleTranslation {
	if h == nil || h.Disposed() {
		diag.Abort(diag.TransSourceInvariant, "codegen unit %s built without a live backend handle", name)
	}
	return &ModuleTranslation{
		Name:           name,
		SymbolNameHash: symbolNameHash,
		Kind:           kind,
		source:         Built{Handle: h},
	}
}

// BuildOrReuse produces the translation unit for u. A store hit saved under
// u.Key and carrying every file in u.Requires yields a Reused unit without
// touching the backend; anything else allocates a fresh context and module.
// Every reason not to reuse an existing entry is reported to r as a warning.
func BuildOrReuse(ctx context.Context, u CodegenUnit, store workproduct.Store, be backend.Backend, r diag.Reporter) (*ModuleTranslation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash := u.SymbolNameHash()
	if store != nil {
		wp, ok, err := store.Lookup(u.Name)
		switch {
		case errors.Is(err, workproduct.ErrSchemaChanged):
			diag.Warn(r, diag.WorkSchemaChanged, u.Name, "%v; rebuilding", err)
		case errors.Is(err, workproduct.ErrMissingFile):
			diag.Warn(r, diag.WorkMissingFile, u.Name, "%v; rebuilding", err)
		case err != nil:
			diag.Warn(r, diag.WorkLoadFailed, u.Name, "%v; rebuilding", err)
		case ok && wp.Key == u.Key:
			missing := missingFiles(wp, u.Requires)
			if len(missing) == 0 {
				return NewReused(u.Name, u.Kind, hash, wp), nil
			}
			diag.Warn(r, diag.WorkIncomplete, u.Name, "saved without %s output; rebuilding", strings.Join(missing, ", "))
		case ok:
			diag.Warn(r, diag.WorkStaleProduct, u.Name, "saved under key %s, current key %s", wp.Key.Short(), u.Key.Short())
		}
	}
	h, err := backend.Allocate(be, u.Name)
	if err != nil {
		return nil, fmt.Errorf("codegen unit %s: %w", u.Name, err)
	}
	return NewBuilt(u.Name, u.Kind, hash, h), nil
}

func missingFiles(wp workproduct.WorkProduct, kinds []outputs.Kind) []string {
	var missing []string
	for _, k := range kinds {
		if _, ok := wp.File(k); !ok {
			missing = append(missing, k.String())
		}
	}
	return missing
}

// Source returns the unit's source variant.
func (m *ModuleTranslation) Source() ModuleSource { return m.source }

// PreExisting reports whether the unit is reused from the store.
func (m *ModuleTranslation) PreExisting() bool {
	switch m.source.(type) {
	case Reused:
		return true
	case Built:
		return false
	default:
		diag.Abort(diag.TransSourceInvariant, "codegen unit %s has no source", m.Name)
		return false
	}
}

// Handle returns the owned backend handle of a Built unit.
func (m *ModuleTranslation) Handle() (*backend.Handle, bool) {
	b, ok := m.source.(Built)
	if !ok {
		return nil, false
	}
	return b.Handle, true
}

// WorkProduct returns the work product of a Reused unit.
func (m *ModuleTranslation) WorkProduct() (workproduct.WorkProduct, bool) {
	r, ok := m.source.(Reused)
	if !ok {
		return workproduct.WorkProduct{}, false
	}
	return r.WorkProduct, true
}

// IntoCompiledModule consumes the unit. emitObject and emitBitcode record
// which artifacts the caller made available on disk; nothing is written here.
// A Built unit's backend state is disposed before returning.
func (m *ModuleTranslation) IntoCompiledModule(emitObject, emitBitcode bool) CompiledModule {
	if !m.state.CompareAndSwap(uint32(unitLive), uint32(unitConsumed)) {
		diag.Abort(diag.TransUnitConsumed, "codegen unit %s converted after it was consumed or abandoned", m.Name)
	}
	var preExisting bool
	switch src := m.source.(type) {
	case Reused:
		preExisting = true
	case Built:
		src.Handle.Dispose()
	default:
		diag.Abort(diag.TransSourceInvariant, "codegen unit %s has no source", m.Name)
	}
	return CompiledModule{
		Name:           m.Name,
		Kind:           m.Kind,
		SymbolNameHash: m.SymbolNameHash,
		PreExisting:    preExisting,
		EmitObject:     emitObject,
		EmitBitcode:    emitBitcode,
	}
}

// Close abandons the unit if it was not converted, disposing any backend
// state it still owns. Safe to call any number of times; meant to be
// deferred right after the unit is created.
func (m *ModuleTranslation) Close() {
	if m == nil || !m.state.CompareAndSwap(uint32(unitLive), uint32(unitAbandoned)) {
		return
	}
	if b, ok := m.source.(Built); ok {
		b.Handle.Dispose()
	}
}
