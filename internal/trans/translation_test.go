package trans_test

import (
	"context"
	"errors"
	"testing"

	"forge/internal/backend"
	"forge/internal/diag"
	"forge/internal/outputs"
	"forge/internal/project"
	"forge/internal/testkit"
	"forge/internal/trans"
	"forge/internal/workproduct"
)

func allocate(t *testing.T, be backend.Backend, name string) *backend.Handle {
	t.Helper()
	h, err := backend.Allocate(be, name)
	if err != nil {
		t.Fatalf("allocate %s: %v", name, err)
	}
	return h
}

func TestBuiltDisposedOnceOnConversion(t *testing.T) {
	be := testkit.NewCountingBackend()
	m := trans.NewBuilt("app.cgu0", trans.ModuleKindRegular, 0xBB, allocate(t, be, "app.cgu0"))

	cm := m.IntoCompiledModule(true, false)
	m.Close()
	m.Close()

	if cm.PreExisting {
		t.Fatalf("built unit reported as pre-existing")
	}
	if got := be.Disposals("app.cgu0"); got != 1 {
		t.Fatalf("expected one disposal, got %d", got)
	}
	if err := testkit.CheckExactlyOnceDisposal(be); err != nil {
		t.Fatal(err)
	}
}

func TestBuiltDisposedOnceOnAbandon(t *testing.T) {
	be := testkit.NewCountingBackend()
	m := trans.NewBuilt("app.cgu0", trans.ModuleKindRegular, 1, allocate(t, be, "app.cgu0"))
	m.Close()
	m.Close()
	if err := testkit.CheckExactlyOnceDisposal(be); err != nil {
		t.Fatal(err)
	}
	f := diag.Catch(func() { m.IntoCompiledModule(true, false) })
	if f == nil || f.Diagnostic.Code != diag.TransUnitConsumed {
		t.Fatalf("expected TransUnitConsumed after abandon, got %v", f)
	}
}

func TestDisposedDuringPanic(t *testing.T) {
	be := testkit.NewCountingBackend()
	func() {
		defer func() { _ = recover() }()
		m := trans.NewBuilt("app.cgu0", trans.ModuleKindRegular, 1, allocate(t, be, "app.cgu0"))
		defer m.Close()
		panic("ir builder blew up")
	}()
	if err := testkit.CheckExactlyOnceDisposal(be); err != nil {
		t.Fatal(err)
	}
}

func TestSecondConversionIsFatal(t *testing.T) {
	be := testkit.NewCountingBackend()
	m := trans.NewBuilt("app.cgu0", trans.ModuleKindRegular, 1, allocate(t, be, "app.cgu0"))
	m.IntoCompiledModule(true, false)
	f := diag.Catch(func() { m.IntoCompiledModule(true, false) })
	if f == nil || f.Diagnostic.Code != diag.TransUnitConsumed {
		t.Fatalf("expected TransUnitConsumed, got %v", f)
	}
	if got := be.Disposals("app.cgu0"); got != 1 {
		t.Fatalf("expected one disposal, got %d", got)
	}
}

func TestDisposeFailureIsFatal(t *testing.T) {
	be := testkit.NewCountingBackend()
	be.FailDispose = "app.cgu0"
	m := trans.NewBuilt("app.cgu0", trans.ModuleKindRegular, 1, allocate(t, be, "app.cgu0"))
	f := diag.Catch(func() { m.IntoCompiledModule(true, false) })
	if f == nil || f.Diagnostic.Code != diag.TransDisposeFailed {
		t.Fatalf("expected TransDisposeFailed, got %v", f)
	}
}

func TestNewBuiltRejectsMissingHandle(t *testing.T) {
	f := diag.Catch(func() { trans.NewBuilt("x", trans.ModuleKindRegular, 0, nil) })
	if f == nil || f.Diagnostic.Code != diag.TransSourceInvariant {
		t.Fatalf("expected TransSourceInvariant, got %v", f)
	}
}

func TestVariantExclusivity(t *testing.T) {
	be := testkit.NewCountingBackend()
	built := trans.NewBuilt("b", trans.ModuleKindRegular, 1, allocate(t, be, "b"))
	defer built.Close()
	reused := trans.NewReused("r", trans.ModuleKindRegular, 2, workproduct.WorkProduct{Unit: "r"})

	for _, m := range []*trans.ModuleTranslation{built, reused} {
		_, isBuilt := m.Handle()
		_, isReused := m.WorkProduct()
		if isBuilt == isReused {
			t.Fatalf("%s: built=%v reused=%v", m.Name, isBuilt, isReused)
		}
		switch m.Source().(type) {
		case trans.Built:
			if !isBuilt {
				t.Fatalf("%s: source is Built but no handle", m.Name)
			}
		case trans.Reused:
			if !isReused {
				t.Fatalf("%s: source is Reused but no work product", m.Name)
			}
		default:
			t.Fatalf("%s: unexpected source %T", m.Name, m.Source())
		}
	}
}

func TestConversionFidelity(t *testing.T) {
	be := testkit.NewCountingBackend()
	cases := []struct {
		m           *trans.ModuleTranslation
		obj, bc     bool
		preExisting bool
	}{
		{trans.NewReused("a", trans.ModuleKindRegular, 0xAA, workproduct.WorkProduct{Unit: "a"}), true, true, true},
		{trans.NewBuilt("b", trans.ModuleKindMetadata, 0xBB, allocate(t, be, "b")), false, true, false},
		{trans.NewBuilt("c", trans.ModuleKindAllocator, 0xCC, allocate(t, be, "c")), true, false, false},
	}
	for _, tc := range cases {
		name, kind, hash := tc.m.Name, tc.m.Kind, tc.m.SymbolNameHash
		cm := tc.m.IntoCompiledModule(tc.obj, tc.bc)
		want := trans.CompiledModule{
			Name:           name,
			Kind:           kind,
			SymbolNameHash: hash,
			PreExisting:    tc.preExisting,
			EmitObject:     tc.obj,
			EmitBitcode:    tc.bc,
		}
		if cm != want {
			t.Fatalf("got %+v, want %+v", cm, want)
		}
	}
}

func TestBuildOrReuse(t *testing.T) {
	key := project.DigestBytes([]byte("v1"))
	store := workproduct.NewMemoryStore(4)
	store.Put(workproduct.WorkProduct{Unit: "hit", Key: key})
	store.Put(workproduct.WorkProduct{Unit: "stale", Key: project.DigestBytes([]byte("v0"))})

	be := testkit.NewCountingBackend()
	bag := diag.NewBag(0)
	r := diag.BagReporter{Bag: bag}
	ctx := context.Background()

	hit, err := trans.BuildOrReuse(ctx, trans.CodegenUnit{Name: "hit", Key: key}, store, be, r)
	if err != nil {
		t.Fatal(err)
	}
	if !hit.PreExisting() || be.Allocated() != 0 {
		t.Fatalf("hit should reuse without allocating (allocated=%d)", be.Allocated())
	}

	stale, err := trans.BuildOrReuse(ctx, trans.CodegenUnit{Name: "stale", Key: key}, store, be, r)
	if err != nil {
		t.Fatal(err)
	}
	defer stale.Close()
	if stale.PreExisting() {
		t.Fatalf("stale work product must not be reused")
	}

	miss, err := trans.BuildOrReuse(ctx, trans.CodegenUnit{Name: "miss", Key: key}, nil, be, r)
	if err != nil {
		t.Fatal(err)
	}
	defer miss.Close()
	if miss.PreExisting() {
		t.Fatalf("nil store must build")
	}

	items := bag.Items()
	if len(items) != 1 || items[0].Code != diag.WorkStaleProduct || items[0].Unit != "stale" {
		t.Fatalf("unexpected diagnostics: %v", items)
	}
}

func TestBuildOrReuseRequiresSavedFiles(t *testing.T) {
	key := project.DigestBytes([]byte("v1"))
	store := workproduct.NewMemoryStore(1)
	store.Put(workproduct.WorkProduct{
		Unit:  "app.cgu0",
		Key:   key,
		Files: []workproduct.SavedFile{{Kind: outputs.KindObject, Name: "unit.o"}},
	})
	be := testkit.NewCountingBackend()
	bag := diag.NewBag(0)
	r := diag.BagReporter{Bag: bag}
	ctx := context.Background()

	objOnly := trans.CodegenUnit{Name: "app.cgu0", Key: key, Requires: []outputs.Kind{outputs.KindObject}}
	m, err := trans.BuildOrReuse(ctx, objOnly, store, be, r)
	if err != nil {
		t.Fatal(err)
	}
	if !m.PreExisting() {
		t.Fatalf("work product carrying every required file must be reused")
	}

	withAsm := objOnly
	withAsm.Requires = []outputs.Kind{outputs.KindObject, outputs.KindAssembly}
	m, err = trans.BuildOrReuse(ctx, withAsm, store, be, r)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if m.PreExisting() || be.Allocated() != 1 {
		t.Fatalf("work product without assembly reused (allocated=%d)", be.Allocated())
	}
	if items := bag.Items(); len(items) != 1 || items[0].Code != diag.WorkIncomplete || items[0].Unit != "app.cgu0" {
		t.Fatalf("unexpected diagnostics: %v", items)
	}
}

type failingStore struct{ err error }

func (s failingStore) Lookup(string) (workproduct.WorkProduct, bool, error) {
	return workproduct.WorkProduct{}, false, s.err
}

func TestBuildOrReuseReadErrorIsMiss(t *testing.T) {
	be := testkit.NewCountingBackend()
	bag := diag.NewBag(0)
	m, err := trans.BuildOrReuse(context.Background(), trans.CodegenUnit{Name: "u"},
		failingStore{errors.New("disk on fire")}, be, diag.BagReporter{Bag: bag})
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if m.PreExisting() {
		t.Fatalf("read error must fall back to a fresh build")
	}
	if items := bag.Items(); len(items) != 1 || items[0].Code != diag.WorkLoadFailed {
		t.Fatalf("unexpected diagnostics: %v", items)
	}
	if err := testkit.CheckExactlyOnceDisposal(be); err != nil {
		t.Fatal(err)
	}
}

func TestSymbolNameHashIgnoresOrder(t *testing.T) {
	a := trans.SymbolNameHash([]string{"main", "helper"})
	b := trans.SymbolNameHash([]string{"helper", "main"})
	if a != b {
		t.Fatalf("hash depends on order")
	}
	if trans.SymbolNameHash([]string{"ab", "c"}) == trans.SymbolNameHash([]string{"a", "bc"}) {
		t.Fatalf("hash does not separate symbols")
	}
}
