// Package llvm is a backend that keeps each module as textual LLVM IR in
// memory and hands it to clang (or llc) for emission.
package llvm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"forge/internal/backend"
)

type llContext struct {
	modules int
}

type llModule struct {
	name string
	llcx backend.ContextRef
	ir   string
}

// Backend implements backend.Backend. It is safe for concurrent use; each
// module is expected to be driven by one goroutine at a time.
type Backend struct {
	tc *Toolchain

	mu       sync.Mutex
	next     uint64
	contexts map[backend.ContextRef]*llContext
	modules  map[backend.ModuleRef]*llModule
}

var (
	_ backend.Backend   = (*Backend)(nil)
	_ backend.IREmitter = (*Backend)(nil)
)

func New(tc *Toolchain) *Backend {
	if tc == nil {
		tc = &Toolchain{}
	}
	return &Backend{
		tc:       tc,
		contexts: make(map[backend.ContextRef]*llContext),
		modules:  make(map[backend.ModuleRef]*llModule),
	}
}

// Toolchain returns the tools the backend emits with.
func (b *Backend) Toolchain() *Toolchain { return b.tc }

func (b *Backend) CreateContext() (backend.ContextRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	ref := backend.ContextRef(b.next)
	b.contexts[ref] = &llContext{}
	return ref, nil
}

func (b *Backend) CreateModule(llcx backend.ContextRef, name string) (backend.ModuleRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contexts[llcx]
	if !ok {
		return 0, fmt.Errorf("create module %s: unknown context %d", name, llcx)
	}
	b.next++
	ref := backend.ModuleRef(b.next)
	b.modules[ref] = &llModule{name: name, llcx: llcx}
	c.modules++
	return ref, nil
}

func (b *Backend) DisposeModule(llmod backend.ModuleRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.modules[llmod]
	if !ok {
		return fmt.Errorf("dispose module: unknown module %d", llmod)
	}
	delete(b.modules, llmod)
	if c, ok := b.contexts[m.llcx]; ok {
		c.modules--
	}
	return nil
}

func (b *Backend) DisposeContext(llcx backend.ContextRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contexts[llcx]
	if !ok {
		return fmt.Errorf("dispose context: unknown context %d", llcx)
	}
	if c.modules != 0 {
		return fmt.Errorf("dispose context %d: %d modules still live", llcx, c.modules)
	}
	delete(b.contexts, llcx)
	return nil
}

// Live returns the number of contexts and modules not yet disposed.
func (b *Backend) Live() (contexts, modules int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contexts), len(b.modules)
}

// SetIR replaces the module's IR.
func (b *Backend) SetIR(llmod backend.ModuleRef, ir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.modules[llmod]
	if !ok {
		return fmt.Errorf("set IR: unknown module %d", llmod)
	}
	m.ir = ir
	return nil
}

// IR returns the module's IR.
func (b *Backend) IR(llmod backend.ModuleRef) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.modules[llmod]
	if !ok {
		return "", fmt.Errorf("unknown module %d", llmod)
	}
	return m.ir, nil
}

func (b *Backend) EmitIR(_ context.Context, llmod backend.ModuleRef, path string) error {
	ir, err := b.IR(llmod)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(ir), 0o600)
}

func (b *Backend) EmitObject(ctx context.Context, llmod backend.ModuleRef, path string) error {
	return b.emitVia(ctx, llmod, path, b.tc.CompileObject)
}

func (b *Backend) EmitBitcode(ctx context.Context, llmod backend.ModuleRef, path string) error {
	return b.emitVia(ctx, llmod, path, b.tc.CompileBitcode)
}

func (b *Backend) EmitAssembly(ctx context.Context, llmod backend.ModuleRef, path string) error {
	return b.emitVia(ctx, llmod, path, b.tc.CompileAssembly)
}

// emitVia writes the IR next to path and runs compile on it.
func (b *Backend) emitVia(ctx context.Context, llmod backend.ModuleRef, path string, compile func(context.Context, string, string) error) error {
	ir, err := b.IR(llmod)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.ll")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(ir); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return compile(ctx, tmp.Name(), path)
}
