package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"forge/internal/buildpipeline"
	"forge/internal/project"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [path]",
	Short: "Translate a crate and write its link plan",
	Long:  "Translate every codegen unit declared in forge.toml, reuse unchanged units from the incremental directory and write <crate>.link.json next to the outputs.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  buildExecution,
}

func init() {
	f := buildCmd.Flags()
	f.Int("jobs", 0, "maximum concurrent codegen workers (default from forge.toml)")
	f.Bool("save-temps", false, "keep intermediate assembly files")
	f.Bool("emit-bc", false, "emit LLVM bitcode for every unit")
	f.Bool("no-integrated-as", false, "emit assembly and run the external assembler at join")
	f.String("incremental", "", "incremental directory holding reusable work products")
	f.String("jobserver-dir", "", "directory of token files shared with other forge processes")
	f.Int("tokens", 0, "concurrency tokens (live backend contexts) available to this build")
	f.String("ui", "auto", "progress UI (auto|on|off)")
	f.Bool("print-commands", false, "print toolchain commands as they run")
	f.Bool("release", false, "build the release profile")
	f.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
}

// buildOverrides are the command-line values that replace forge.toml settings.
type buildOverrides struct {
	jobs           *int
	saveTemps      *bool
	emitBitcode    *bool
	noIntegratedAs *bool
	incremental    *string
	jobserverDir   *string
	tokens         *int
}

func readOverrides(cmd *cobra.Command) (buildOverrides, error) {
	var o buildOverrides
	flags := cmd.Flags()
	intFlag := func(name string, dst **int) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
	boolFlag := func(name string, dst **bool) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
	stringFlag := func(name string, dst **string) error {
		if !flags.Changed(name) {
			return nil
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
	for _, err := range []error{
		intFlag("jobs", &o.jobs),
		boolFlag("save-temps", &o.saveTemps),
		boolFlag("emit-bc", &o.emitBitcode),
		boolFlag("no-integrated-as", &o.noIntegratedAs),
		stringFlag("incremental", &o.incremental),
		stringFlag("jobserver-dir", &o.jobserverDir),
		intFlag("tokens", &o.tokens),
	} {
		if err != nil {
			return o, err
		}
	}
	return o, nil
}

// apply writes the overrides into cfg. Paths given on the command line are
// relative to the working directory, so they are made absolute here.
func (o buildOverrides) apply(cfg *project.Config) error {
	if o.jobs != nil {
		if *o.jobs <= 0 {
			return fmt.Errorf("--jobs must be positive")
		}
		cfg.Codegen.Jobs = *o.jobs
	}
	if o.saveTemps != nil {
		cfg.Codegen.SaveTemps = *o.saveTemps
	}
	if o.emitBitcode != nil {
		cfg.Codegen.EmitBitcode = *o.emitBitcode
	}
	if o.noIntegratedAs != nil {
		cfg.Codegen.NoIntegratedAs = *o.noIntegratedAs
	}
	if o.incremental != nil {
		dir, err := absIfSet(*o.incremental)
		if err != nil {
			return err
		}
		cfg.Incremental.Dir = dir
	}
	if o.jobserverDir != nil {
		dir, err := absIfSet(*o.jobserverDir)
		if err != nil {
			return err
		}
		cfg.Jobserver.Dir = dir
	}
	if o.tokens != nil {
		if *o.tokens <= 0 {
			return fmt.Errorf("--tokens must be positive")
		}
		cfg.Jobserver.Tokens = *o.tokens
	}
	return nil
}

func absIfSet(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}

func buildExecution(cmd *cobra.Command, args []string) error {
	release, err := cmd.Flags().GetBool("release")
	if err != nil {
		return err
	}
	printCommands, err := cmd.Flags().GetBool("print-commands")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	maxDiagnostics, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	if err := applyColorMode(colorFlag); err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	overrides, err := readOverrides(cmd)
	if err != nil {
		return err
	}

	start := "."
	if len(args) > 0 {
		start = args[0]
	}
	manifest, err := loadManifest(start)
	if err != nil {
		return err
	}
	if err := overrides.apply(&manifest.Config); err != nil {
		return err
	}

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	failed := true
	defer func() { stopTrace(failed) }()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	profile := "debug"
	if release {
		profile = "release"
	}
	req := &buildpipeline.BuildRequest{
		Manifest:      manifest,
		Profile:       profile,
		PrintCommands: printCommands,
	}

	var result buildpipeline.BuildResult
	if !quiet && !printCommands && shouldUseTUI(mode) {
		title := fmt.Sprintf("forge build %s (%s)", manifest.Config.Crate.Name, profile)
		result, err = runBuildWithUI(cmd.Context(), title, buildpipeline.UnitNames(manifest), req)
	} else {
		result, err = buildpipeline.Build(cmd.Context(), req)
	}

	errOut := cmd.ErrOrStderr()
	printDiagnostics(errOut, result.Diagnostics, maxDiagnostics)
	if err != nil {
		return err
	}
	failed = false

	out := cmd.OutOrStdout()
	if !quiet {
		reused := 0
		for _, m := range result.Crate.Modules {
			if m.PreExisting {
				reused++
			}
		}
		fmt.Fprintf(out, "translated %s: %d units (%d reused)\n", result.Crate.CrateName, len(result.Crate.Modules), reused)
		if result.Crate.Object != "" {
			fmt.Fprintf(out, "object %s\n", relToCwd(result.Crate.Object))
		}
		fmt.Fprintf(out, "link plan %s\n", relToCwd(result.LinkPlan))
	}
	if showTimings {
		printStageTimings(out, result.Timings)
	}
	return nil
}

// loadManifest accepts a forge.toml path or a directory to search upwards
// from.
func loadManifest(start string) (*project.Manifest, error) {
	info, err := os.Stat(start)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", start, err)
	}
	if !info.IsDir() {
		return project.LoadManifest(start)
	}
	path, ok, err := project.FindManifest(start)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no %s found in %s or any parent directory", project.ManifestName, start)
	}
	return project.LoadManifest(path)
}

func relToCwd(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(cwd, path); err == nil && !filepath.IsAbs(rel) && len(rel) < len(path) {
		return rel
	}
	return path
}
