package backend

import (
	"context"
	"fmt"
	"sync/atomic"

	"forge/internal/diag"
)

// noCopy makes go vet's copylocks check reject copies of a Handle.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle exclusively owns one backend context and the module built inside it.
// It is only ever passed by pointer; ownership moves, it is never shared.
// Dispose releases both exactly once.
type Handle struct {
	_ noCopy

	be    Backend
	name  string
	llcx  ContextRef
	llmod ModuleRef

	disposed atomic.Bool
}

// Allocate creates a fresh context and a module named name inside it.
func Allocate(be Backend, name string) (*Handle, error) {
	if be == nil {
		return nil, fmt.Errorf("allocate %s: no backend", name)
	}
	llcx, err := be.CreateContext()
	if err != nil {
		return nil, fmt.Errorf("allocate %s: create context: %w", name, err)
	}
	llmod, err := be.CreateModule(llcx, name)
	if err != nil {
		if disposeErr := be.DisposeContext(llcx); disposeErr != nil {
			diag.AbortErr(diag.TransDisposeFailed, disposeErr, "dispose context of %s after failed module creation", name)
		}
		return nil, fmt.Errorf("allocate %s: create module: %w", name, err)
	}
	return &Handle{be: be, name: name, llcx: llcx, llmod: llmod}, nil
}

func (h *Handle) Name() string        { return h.name }
func (h *Handle) Context() ContextRef { return h.llcx }
func (h *Handle) Module() ModuleRef   { return h.llmod }
func (h *Handle) Backend() Backend    { return h.be }
func (h *Handle) Disposed() bool      { return h.disposed.Load() }

// Dispose releases the module, then its context. Later calls are no-ops. A
// backend failure aborts: the native state can no longer be trusted.
func (h *Handle) Dispose() {
	if h == nil || !h.disposed.CompareAndSwap(false, true) {
		return
	}
	if err := h.be.DisposeModule(h.llmod); err != nil {
		diag.AbortErr(diag.TransDisposeFailed, err, "dispose module %s", h.name)
	}
	if err := h.be.DisposeContext(h.llcx); err != nil {
		diag.AbortErr(diag.TransDisposeFailed, err, "dispose context %s", h.name)
	}
}

func (h *Handle) live() {
	if h.disposed.Load() {
		diag.Abort(diag.TransSourceInvariant, "use of disposed backend handle %s", h.name)
	}
}

// EmitObject writes the module as a native object file.
func (h *Handle) EmitObject(ctx context.Context, path string) error {
	h.live()
	return h.be.EmitObject(ctx, h.llmod, path)
}

// EmitBitcode writes the module as IR bitcode.
func (h *Handle) EmitBitcode(ctx context.Context, path string) error {
	h.live()
	return h.be.EmitBitcode(ctx, h.llmod, path)
}

// EmitAssembly writes the module as textual assembly for an external assembler.
func (h *Handle) EmitAssembly(ctx context.Context, path string) error {
	h.live()
	return h.be.EmitAssembly(ctx, h.llmod, path)
}

// EmitIR writes the module's textual IR if the backend supports it.
func (h *Handle) EmitIR(ctx context.Context, path string) error {
	h.live()
	e, ok := h.be.(IREmitter)
	if !ok {
		return fmt.Errorf("%s: backend cannot emit textual IR", h.name)
	}
	return e.EmitIR(ctx, h.llmod, path)
}
