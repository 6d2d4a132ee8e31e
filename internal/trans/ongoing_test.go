package trans_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forge/internal/diag"
	"forge/internal/outputs"
	"forge/internal/testkit"
	"forge/internal/trans"
	"forge/internal/workproduct"
)

func crateInfo() trans.CrateInfo {
	md := trans.NewEncodedMetadata([]byte("meta"))
	return trans.CrateInfo{
		CrateName:       "app",
		Link:            trans.LinkMeta{CrateHash: trans.CrateHash(md)},
		Metadata:        md,
		ExportedSymbols: trans.NewExportedSymbols(map[string][]string{"app.cgu0": {"main"}}),
	}
}

func metadataModule() trans.CompiledModule {
	return trans.CompiledModule{Name: "app.metadata", Kind: trans.ModuleKindMetadata}
}

func TestJoinBeforeCompleteIsFatal(t *testing.T) {
	o := trans.NewOngoing(crateInfo(), false)
	f := diag.Catch(func() { o.Join(context.Background(), trans.JoinOptions{}) })
	if f == nil || f.Diagnostic.Code != diag.TransJoinBeforeComplete {
		t.Fatalf("expected TransJoinBeforeComplete, got %v", f)
	}

	// the failed join did not consume anything
	o.Complete(trans.CompiledModules{MetadataModule: metadataModule()})
	if ct := o.Join(context.Background(), trans.JoinOptions{}); ct == nil {
		t.Fatalf("join after completion returned nil")
	}
}

func TestJoinTwiceIsFatal(t *testing.T) {
	o := trans.NewOngoing(crateInfo(), false)
	o.Complete(trans.CompiledModules{MetadataModule: metadataModule()})
	o.Join(context.Background(), trans.JoinOptions{})
	f := diag.Catch(func() { o.Join(context.Background(), trans.JoinOptions{}) })
	if f == nil || f.Diagnostic.Code != diag.TransJoinedTwice {
		t.Fatalf("expected TransJoinedTwice, got %v", f)
	}
}

func TestCompleteTwiceIsFatal(t *testing.T) {
	o := trans.NewOngoing(crateInfo(), false)
	o.Complete(trans.CompiledModules{MetadataModule: metadataModule()})
	select {
	case <-o.Done():
	default:
		t.Fatalf("Done not closed after Complete")
	}
	f := diag.Catch(func() { o.Complete(trans.CompiledModules{MetadataModule: metadataModule()}) })
	if f == nil || f.Diagnostic.Code != diag.TransSlotWrittenTwice {
		t.Fatalf("expected TransSlotWrittenTwice, got %v", f)
	}
}

func TestCompleteRequiresMetadataModule(t *testing.T) {
	o := trans.NewOngoing(crateInfo(), false)
	f := diag.Catch(func() { o.Complete(trans.CompiledModules{}) })
	if f == nil || f.Diagnostic.Code != diag.TransMissingMetadata {
		t.Fatalf("expected TransMissingMetadata, got %v", f)
	}
}

func TestJoinReturnsSlotContents(t *testing.T) {
	info := crateInfo()
	info.NoBuiltins = true
	info.WindowsSubsystem = "console"
	o := trans.NewOngoing(info, false)

	alloc := trans.CompiledModule{Name: "app.allocator", Kind: trans.ModuleKindAllocator, SymbolNameHash: 7}
	mods := trans.CompiledModules{
		Modules:         []trans.CompiledModule{{Name: "app.cgu0", SymbolNameHash: 1, EmitObject: true}},
		MetadataModule:  metadataModule(),
		AllocatorModule: &alloc,
	}
	o.Complete(mods)
	ct := o.Join(context.Background(), trans.JoinOptions{})

	if len(ct.Modules) != 1 || ct.Modules[0] != mods.Modules[0] {
		t.Fatalf("modules = %+v", ct.Modules)
	}
	if ct.MetadataModule != mods.MetadataModule || ct.AllocatorModule == nil || *ct.AllocatorModule != alloc {
		t.Fatalf("metadata/allocator not carried over: %+v", ct)
	}
	if !ct.NoBuiltins || ct.WindowsSubsystem != "console" || ct.CrateName != "app" {
		t.Fatalf("crate fields not carried over: %+v", ct)
	}
	if !ct.ExportedSymbols.Contains("main") || ct.Link != info.Link {
		t.Fatalf("link data not carried over")
	}
	if ct.Object != "" {
		t.Fatalf("integrated assembler must not produce a crate object, got %s", ct.Object)
	}
}

// touchAssembler writes the object it is asked for and counts calls.
type touchAssembler struct {
	calls int
	err   error
}

func (a *touchAssembler) Assemble(_ context.Context, src, dst string) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("object"), 0o600)
}

func joinWithAssembler(t *testing.T, types []string, saveTemps bool, asm *touchAssembler) (*trans.CrateTranslation, outputs.Filenames) {
	t.Helper()
	set, err := outputs.ParseSet(types)
	if err != nil {
		t.Fatal(err)
	}
	fn := outputs.Filenames{OutDir: t.TempDir(), Stem: "foo", Types: set}
	if err := os.WriteFile(fn.TempPath(outputs.KindAssembly, ""), []byte("\t.text\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	o := trans.NewOngoing(crateInfo(), true)
	o.Complete(trans.CompiledModules{MetadataModule: metadataModule()})
	ct := o.Join(context.Background(), trans.JoinOptions{Outputs: fn, SaveTemps: saveTemps, Assembler: asm})
	return ct, fn
}

func TestJoinRenamesObjectForExecutable(t *testing.T) {
	asm := &touchAssembler{}
	ct, fn := joinWithAssembler(t, []string{"exe"}, false, asm)

	if asm.calls != 1 {
		t.Fatalf("assembler ran %d times", asm.calls)
	}
	numbered := filepath.Join(fn.OutDir, "foo.0.o")
	if ct.Object != numbered {
		t.Fatalf("object = %s, want %s", ct.Object, numbered)
	}
	if _, err := os.Stat(numbered); err != nil {
		t.Fatalf("foo.0.o missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fn.OutDir, "foo.o")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("foo.o still present: %v", err)
	}
}

func TestJoinKeepsObjectNameForLibraries(t *testing.T) {
	ct, fn := joinWithAssembler(t, []string{"obj"}, false, &touchAssembler{})
	if ct.Object != filepath.Join(fn.OutDir, "foo.o") {
		t.Fatalf("object = %s", ct.Object)
	}
}

func TestJoinTempCleanup(t *testing.T) {
	for _, saveTemps := range []bool{false, true} {
		_, fn := joinWithAssembler(t, []string{"exe"}, saveTemps, &touchAssembler{})
		_, err := os.Stat(fn.TempPath(outputs.KindAssembly, ""))
		if saveTemps && err != nil {
			t.Fatalf("save-temps: assembly removed: %v", err)
		}
		if !saveTemps && !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("assembly retained without save-temps: %v", err)
		}
	}
}

func TestFinalizeFailuresAreFatal(t *testing.T) {
	dir := t.TempDir()
	asmPath := filepath.Join(dir, "foo.s")
	objPath := filepath.Join(dir, "foo.o")

	f := diag.Catch(func() {
		trans.FinalizeOutputs(context.Background(), trans.FinalizeOptions{
			NeedsExternalAssembler: true,
			AssemblyPath:           asmPath,
			ObjectPath:             objPath,
			Assembler:              &touchAssembler{err: errors.New("as: not found")},
		})
	})
	if f == nil || f.Diagnostic.Code != diag.TransAssemblerFailed {
		t.Fatalf("expected TransAssemblerFailed, got %v", f)
	}

	// the assembler "succeeds" without writing the object, so the rename fails
	if err := os.WriteFile(asmPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	f = diag.Catch(func() {
		trans.FinalizeOutputs(context.Background(), trans.FinalizeOptions{
			NeedsExternalAssembler: true,
			OutputIsExecutable:     true,
			AssemblyPath:           asmPath,
			ObjectPath:             objPath,
			Assembler:              noopAssembler{},
		})
	})
	if f == nil || f.Diagnostic.Code != diag.TransRenameFailed {
		t.Fatalf("expected TransRenameFailed, got %v", f)
	}

	f = diag.Catch(func() {
		trans.FinalizeOutputs(context.Background(), trans.FinalizeOptions{
			NeedsExternalAssembler: true,
			AssemblyPath:           filepath.Join(dir, "gone.s"),
			ObjectPath:             objPath,
			Assembler:              noopAssembler{},
		})
	})
	if f == nil || f.Diagnostic.Code != diag.TransRemoveTempFailed {
		t.Fatalf("expected TransRemoveTempFailed, got %v", f)
	}
}

type noopAssembler struct{}

func (noopAssembler) Assemble(context.Context, string, string) error { return nil }

func TestFinalizeWithoutExternalAssemblerIsNoop(t *testing.T) {
	got := trans.FinalizeOutputs(context.Background(), trans.FinalizeOptions{ObjectPath: "x.o"})
	if got != "x.o" {
		t.Fatalf("got %s", got)
	}
}

// Three units: one reused (0xAA), two built (0xBB, 0xCC).
func TestEndToEndReusedAndBuilt(t *testing.T) {
	be := testkit.NewCountingBackend()
	units := []*trans.ModuleTranslation{
		trans.NewReused("app.cgu0", trans.ModuleKindRegular, 0xAA, workproduct.WorkProduct{Unit: "app.cgu0"}),
		trans.NewBuilt("app.cgu1", trans.ModuleKindRegular, 0xBB, allocate(t, be, "app.cgu1")),
		trans.NewBuilt("app.cgu2", trans.ModuleKindRegular, 0xCC, allocate(t, be, "app.cgu2")),
	}
	results := make([]trans.CompiledModule, len(units))
	done := make(chan int)
	for i, m := range units {
		go func() {
			defer m.Close()
			results[i] = m.IntoCompiledModule(true, false)
			done <- i
		}()
	}
	for range units {
		<-done
	}

	o := trans.NewOngoing(crateInfo(), false)
	o.Complete(trans.CompiledModules{Modules: results, MetadataModule: metadataModule()})
	ct := o.Join(context.Background(), trans.JoinOptions{})

	want := map[uint64]bool{0xAA: true, 0xBB: false, 0xCC: false}
	if len(ct.Modules) != len(want) {
		t.Fatalf("got %d modules", len(ct.Modules))
	}
	for h, pre := range want {
		m, ok := ct.Module(h)
		if !ok {
			t.Fatalf("module %#x missing", h)
		}
		if m.PreExisting != pre {
			t.Fatalf("module %#x pre_existing = %v, want %v", h, m.PreExisting, pre)
		}
	}
	if err := testkit.CheckExactlyOnceDisposal(be); err != nil {
		t.Fatal(err)
	}
}
