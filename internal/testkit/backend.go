// Package testkit provides instrumented collaborators for tests of the
// orchestration layer.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"forge/internal/backend"
)

// CountingBackend is an in-memory backend.Backend that records every
// allocation and disposal. Emission writes a small marker file so that
// downstream file handling has something real to move around.
type CountingBackend struct {
	// Hold delays module creation, widening the window in which concurrent
	// contexts overlap.
	Hold time.Duration
	// FailDispose makes DisposeModule report an error for modules with this name.
	FailDispose string
	// FailEmit makes emission fail for modules with this name.
	FailEmit string
	// FailEmitKind narrows FailEmit to one output ("obj", "bc", "asm", "ir").
	FailEmitKind string
	// Revision is written into every emitted file so tests can tell builds
	// apart.
	Revision string

	mu       sync.Mutex
	next     uint64
	contexts map[backend.ContextRef]*ctxRecord
	modules  map[backend.ModuleRef]*modRecord

	live    atomic.Int64
	maxLive atomic.Int64
}

type ctxRecord struct {
	disposals int
}

type modRecord struct {
	name      string
	llcx      backend.ContextRef
	disposals int
	emitted   []string
}

var (
	_ backend.Backend   = (*CountingBackend)(nil)
	_ backend.IREmitter = (*CountingBackend)(nil)
)

func NewCountingBackend() *CountingBackend {
	return &CountingBackend{
		contexts: make(map[backend.ContextRef]*ctxRecord),
		modules:  make(map[backend.ModuleRef]*modRecord),
	}
}

func (b *CountingBackend) CreateContext() (backend.ContextRef, error) {
	b.mu.Lock()
	b.next++
	ref := backend.ContextRef(b.next)
	b.contexts[ref] = &ctxRecord{}
	b.mu.Unlock()

	n := b.live.Add(1)
	for {
		cur := b.maxLive.Load()
		if n <= cur || b.maxLive.CompareAndSwap(cur, n) {
			break
		}
	}
	return ref, nil
}

func (b *CountingBackend) CreateModule(llcx backend.ContextRef, name string) (backend.ModuleRef, error) {
	if b.Hold > 0 {
		time.Sleep(b.Hold)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.contexts[llcx]; !ok {
		return 0, fmt.Errorf("unknown context %d", llcx)
	}
	b.next++
	ref := backend.ModuleRef(b.next)
	b.modules[ref] = &modRecord{name: name, llcx: llcx}
	return ref, nil
}

func (b *CountingBackend) DisposeModule(llmod backend.ModuleRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.modules[llmod]
	if !ok {
		return fmt.Errorf("unknown module %d", llmod)
	}
	rec.disposals++
	if b.FailDispose != "" && rec.name == b.FailDispose {
		return errors.New("injected dispose failure")
	}
	return nil
}

func (b *CountingBackend) DisposeContext(llcx backend.ContextRef) error {
	b.mu.Lock()
	rec, ok := b.contexts[llcx]
	if ok {
		rec.disposals++
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown context %d", llcx)
	}
	b.live.Add(-1)
	return nil
}

func (b *CountingBackend) EmitObject(_ context.Context, llmod backend.ModuleRef, path string) error {
	return b.emit(llmod, path, "obj")
}

func (b *CountingBackend) EmitBitcode(_ context.Context, llmod backend.ModuleRef, path string) error {
	return b.emit(llmod, path, "bc")
}

func (b *CountingBackend) EmitAssembly(_ context.Context, llmod backend.ModuleRef, path string) error {
	return b.emit(llmod, path, "asm")
}

func (b *CountingBackend) EmitIR(_ context.Context, llmod backend.ModuleRef, path string) error {
	return b.emit(llmod, path, "ir")
}

func (b *CountingBackend) emit(llmod backend.ModuleRef, path, what string) error {
	b.mu.Lock()
	rec, ok := b.modules[llmod]
	if ok {
		rec.emitted = append(rec.emitted, path)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("emit %s: unknown module %d", what, llmod)
	}
	if b.FailEmit != "" && rec.name == b.FailEmit && (b.FailEmitKind == "" || b.FailEmitKind == what) {
		return fmt.Errorf("emit %s: injected failure for %s", what, rec.name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	body := what + ":" + rec.name
	if b.Revision != "" {
		body += "@" + b.Revision
	}
	return os.WriteFile(path, []byte(body+"\n"), 0o600)
}

// Allocated is the number of contexts ever created.
func (b *CountingBackend) Allocated() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contexts)
}

// Live is the number of contexts created and not yet disposed.
func (b *CountingBackend) Live() int64 { return b.live.Load() }

// MaxLive is the high-water mark of simultaneously live contexts.
func (b *CountingBackend) MaxLive() int64 { return b.maxLive.Load() }

// Disposals returns how often the module named name was disposed.
func (b *CountingBackend) Disposals(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, rec := range b.modules {
		if rec.name == name {
			total += rec.disposals
		}
	}
	return total
}
