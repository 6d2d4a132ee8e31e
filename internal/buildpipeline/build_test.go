package buildpipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"forge/internal/backend"
	"forge/internal/project"
	"forge/internal/testkit"
	"forge/internal/trans"
)

type nopIR struct{}

func (nopIR) BuildIR(context.Context, trans.CodegenUnit, *backend.Handle) error { return nil }

type copyAssembler struct{}

func (copyAssembler) Assemble(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count(status Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Unit != "" && ev.Status == status {
			n++
		}
	}
	return n
}

func writeCrate(t *testing.T, manifest string, units map[string]string) *project.Manifest {
	t.Helper()
	dir := t.TempDir()
	for name, body := range units {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, project.ManifestName)
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := project.LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

const twoUnits = `
[crate]
name = "app"
output_types = ["obj"]

[codegen]
jobs = 2
allocator = true

[incremental]
dir = "incr"

[[unit]]
name = "cgu0"
ir = "cgu0.ll"
symbols = ["main"]

[[unit]]
name = "cgu1"
ir = "cgu1.ll"
symbols = ["helper"]
`

func TestBuildThenRebuildReuses(t *testing.T) {
	m := writeCrate(t, twoUnits, map[string]string{"cgu0.ll": "; main\n", "cgu1.ll": "; helper\n"})

	first := testkit.NewCountingBackend()
	res, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: first, IR: nopIR{}})
	if err != nil {
		t.Fatal(err)
	}
	if first.Allocated() != 4 {
		t.Fatalf("first build allocated %d, want 4", first.Allocated())
	}
	if err := testkit.CheckExactlyOnceDisposal(first); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(res.LinkPlan)
	if err != nil {
		t.Fatal(err)
	}
	var plan struct {
		CrateName       string `json:"crate_name"`
		Modules         []map[string]any
		ExportedSymbols map[string][]string `json:"exported_symbols"`
		AllocatorModule map[string]any      `json:"allocator_module"`
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatal(err)
	}
	if plan.CrateName != "app" || len(plan.Modules) != 2 || plan.AllocatorModule == nil {
		t.Fatalf("unexpected link plan:\n%s", data)
	}
	if got := plan.ExportedSymbols["app.cgu0"]; len(got) != 1 || got[0] != "main" {
		t.Fatalf("exported symbols = %v", plan.ExportedSymbols)
	}

	sink := &recordingSink{}
	second := testkit.NewCountingBackend()
	res, err = Build(context.Background(), &BuildRequest{Manifest: m, Backend: second, IR: nopIR{}, Progress: sink})
	if err != nil {
		t.Fatal(err)
	}
	if second.Allocated() != 0 {
		t.Fatalf("rebuild allocated %d contexts", second.Allocated())
	}
	if n := sink.count(StatusReused); n != 4 {
		t.Fatalf("reused events = %d, want 4", n)
	}
	if len(res.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Diagnostics)
	}
	for _, mod := range res.Crate.Modules {
		if !mod.PreExisting {
			t.Fatalf("%s rebuilt", mod.Name)
		}
	}
}

func TestChangedUnitIsRebuilt(t *testing.T) {
	m := writeCrate(t, twoUnits, map[string]string{"cgu0.ll": "; main\n", "cgu1.ll": "; helper\n"})
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: testkit.NewCountingBackend(), IR: nopIR{}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(m.Root, "cgu1.ll"), []byte("; helper v2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	be := testkit.NewCountingBackend()
	res, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: be, IR: nopIR{}})
	if err != nil {
		t.Fatal(err)
	}
	if be.Allocated() != 1 {
		t.Fatalf("allocated %d, want only the changed unit", be.Allocated())
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("expected one stale-product warning, got %v", res.Diagnostics)
	}
}

func TestBuildWithExternalAssembler(t *testing.T) {
	m := writeCrate(t, `
[crate]
name = "foo"
output_types = ["exe"]

[codegen]
no_integrated_as = true

[[unit]]
name = "main"
ir = "main.ll"
`, map[string]string{"main.ll": "; main\n"})

	res, err := Build(context.Background(), &BuildRequest{
		Manifest:  m,
		Backend:   testkit.NewCountingBackend(),
		IR:        nopIR{},
		Assembler: copyAssembler{},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(res.OutDir, "foo.0.o")
	if res.Crate.Object != want {
		t.Fatalf("object = %s, want %s", res.Crate.Object, want)
	}
	for path, exists := range map[string]bool{
		want:                               true,
		filepath.Join(res.OutDir, "foo.o"): false,
		filepath.Join(res.OutDir, "foo.s"): false,
	} {
		_, err := os.Stat(path)
		if (err == nil) != exists {
			t.Fatalf("%s: exists=%v, want %v", path, err == nil, exists)
		}
	}
	if !res.Timings.Has(StageJoin) {
		t.Fatalf("join timing missing")
	}
}

func TestOverrideRevalidated(t *testing.T) {
	m := writeCrate(t, twoUnits, map[string]string{"cgu0.ll": "; a\n", "cgu1.ll": "; b\n"})
	m.Config.Codegen.NoIntegratedAs = true
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: testkit.NewCountingBackend(), IR: nopIR{}}); err == nil {
		t.Fatalf("no_integrated_as with two units accepted")
	}
}

func TestUnitNamesMatchPlan(t *testing.T) {
	m := writeCrate(t, twoUnits, map[string]string{"cgu0.ll": "; main\n", "cgu1.ll": "; helper\n"})
	sink := &recordingSink{}
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: testkit.NewCountingBackend(), IR: nopIR{}, Progress: sink}); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{}
	for _, name := range UnitNames(m) {
		want[name] = true
	}
	if len(want) != 4 {
		t.Fatalf("UnitNames = %v", UnitNames(m))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, ev := range sink.events {
		if ev.Unit != "" && !want[ev.Unit] {
			t.Fatalf("event for unlisted unit %q", ev.Unit)
		}
	}
}

func TestAddedOutputTypeRebuildsUnits(t *testing.T) {
	m := writeCrate(t, twoUnits, map[string]string{"cgu0.ll": "; main\n", "cgu1.ll": "; helper\n"})
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: testkit.NewCountingBackend(), IR: nopIR{}}); err != nil {
		t.Fatal(err)
	}

	m.Config.Crate.OutputTypes = []string{"obj", "asm"}
	be := testkit.NewCountingBackend()
	res, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: be, IR: nopIR{}})
	if err != nil {
		t.Fatal(err)
	}
	if be.Allocated() != 4 {
		t.Fatalf("allocated %d, want every unit rebuilt for asm", be.Allocated())
	}
	asm := []string{
		filepath.Join(res.OutDir, "app.cgu0.s"),
		filepath.Join(res.OutDir, "app.cgu1.s"),
	}
	for _, path := range asm {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("requested assembly missing: %v", err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatal(err)
		}
	}

	again := testkit.NewCountingBackend()
	if _, err := Build(context.Background(), &BuildRequest{Manifest: m, Backend: again, IR: nopIR{}}); err != nil {
		t.Fatal(err)
	}
	if again.Allocated() != 0 {
		t.Fatalf("allocated %d, want full reuse", again.Allocated())
	}
	for _, path := range asm {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("reused unit did not restore its assembly: %v", err)
		}
	}
}
