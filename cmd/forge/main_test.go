package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"forge/internal/buildpipeline"
	"forge/internal/diag"
	"forge/internal/project"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestPrintFatal(t *testing.T) {
	withoutColor(t)
	f := diag.Catch(func() {
		diag.AbortErr(diag.TransRenameFailed, errors.New("cross-device link"), "rename foo.o")
	})
	if f == nil {
		t.Fatal("expected a fatal diagnostic")
	}
	f.Diagnostic.Unit = "app.cgu0"
	var buf bytes.Buffer
	printFatal(&buf, f)
	out := buf.String()
	for _, want := range []string{
		"error[TRN0008]: Failed to rename assembled object file",
		"--> cgu app.cgu0",
		"rename foo.o",
		"caused by: cross-device link",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunMapsFatalToExitCode(t *testing.T) {
	withoutColor(t)
	var stderr bytes.Buffer
	boom := &cobra.Command{
		Use: "boom",
		Run: func(*cobra.Command, []string) {
			diag.Abort(diag.TransJoinedTwice, "crate app joined twice")
		},
	}
	rootCmd.AddCommand(boom)
	rootCmd.SetErr(&stderr)
	t.Cleanup(func() {
		rootCmd.RemoveCommand(boom)
		rootCmd.SetErr(nil)
	})

	if code := run([]string{"boom"}); code != diag.ExitCodeFatal {
		t.Fatalf("exit code = %d, want %d", code, diag.ExitCodeFatal)
	}
	if !strings.Contains(stderr.String(), "error[TRN0006]") {
		t.Fatalf("unexpected stderr:\n%s", stderr.String())
	}
}

func TestPrintDiagnosticsLimit(t *testing.T) {
	withoutColor(t)
	items := []diag.Diagnostic{
		diag.New(diag.SevWarning, diag.WorkStaleProduct, "app.cgu0", "key changed"),
		diag.New(diag.SevWarning, diag.WorkMissingFile, "app.cgu1", "object gone"),
		diag.New(diag.SevWarning, diag.WorkLoadFailed, "app.cgu2", "bad index"),
	}
	var buf bytes.Buffer
	printDiagnostics(&buf, items, 2)
	out := buf.String()
	if !strings.Contains(out, "warning[WRK0002]: Work product is stale") {
		t.Fatalf("missing first diagnostic:\n%s", out)
	}
	if strings.Contains(out, "app.cgu2") || !strings.Contains(out, "... 1 more diagnostics") {
		t.Fatalf("limit not applied:\n%s", out)
	}
}

func TestPrintStageTimings(t *testing.T) {
	var timings buildpipeline.Timings
	timings.Set(buildpipeline.StagePlan, 2*time.Millisecond)
	timings.Set(buildpipeline.StageLink, 500*time.Microsecond)
	var buf bytes.Buffer
	printStageTimings(&buf, timings)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[0], "Plan") || !strings.HasPrefix(lines[1], "Link") || !strings.HasPrefix(lines[2], "Total") {
		t.Fatalf("unexpected labels:\n%s", buf.String())
	}
	if !strings.HasSuffix(lines[2], "2.5 ms") {
		t.Fatalf("total = %q", lines[2])
	}
}

func TestReadUIMode(t *testing.T) {
	cases := map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, "on": uiModeOn, " off ": uiModeOff}
	for in, want := range cases {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestOverridesApply(t *testing.T) {
	jobs, tokens, bc := 3, 2, true
	rel := "incr"
	o := buildOverrides{jobs: &jobs, tokens: &tokens, emitBitcode: &bc, incremental: &rel}
	var cfg project.Config
	cfg.Codegen.Jobs = 8
	if err := o.apply(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Codegen.Jobs != 3 || cfg.Jobserver.Tokens != 2 || !cfg.Codegen.EmitBitcode {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Incremental.Dir) {
		t.Fatalf("incremental dir %q is not absolute", cfg.Incremental.Dir)
	}

	zero := 0
	if err := (buildOverrides{tokens: &zero}).apply(&cfg); err == nil {
		t.Fatal("expected --tokens=0 to be rejected")
	}
}

func TestLoadManifestSearchesUpwards(t *testing.T) {
	root := t.TempDir()
	data := `[crate]
name = "demo"

[[unit]]
name = "main"
ir = "main.ll"
`
	if err := os.WriteFile(filepath.Join(root, project.ManifestName), []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}
	m, err := loadManifest(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m.Config.Crate.Name != "demo" || m.Config.Units[0].Name != "demo.main" {
		t.Fatalf("unexpected manifest: %+v", m.Config)
	}
	if _, err := loadManifest(t.TempDir()); err == nil {
		t.Fatal("expected an error without forge.toml")
	}
}

func TestVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := renderVersionJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"tool": "forge"`) {
		t.Fatalf("unexpected payload: %s", buf.String())
	}
}
