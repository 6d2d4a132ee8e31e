// Package backend defines the native code-generation backend as seen by the
// orchestration layer and the owned handle over one context/module pair.
package backend

import "context"

// ContextRef identifies a backend compilation context.
type ContextRef uint64

// ModuleRef identifies an IR module living inside a context.
type ModuleRef uint64

// Backend is the consumed native backend. Refs are opaque: only the backend
// that issued them may interpret them.
type Backend interface {
	CreateContext() (ContextRef, error)
	CreateModule(llcx ContextRef, name string) (ModuleRef, error)
	DisposeModule(llmod ModuleRef) error
	DisposeContext(llcx ContextRef) error

	EmitObject(ctx context.Context, llmod ModuleRef, path string) error
	EmitBitcode(ctx context.Context, llmod ModuleRef, path string) error
	EmitAssembly(ctx context.Context, llmod ModuleRef, path string) error
}

// IREmitter is implemented by backends that can write a module's textual IR.
type IREmitter interface {
	EmitIR(ctx context.Context, llmod ModuleRef, path string) error
}
