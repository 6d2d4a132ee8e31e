package project

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"forge/internal/outputs"
)

// Manifest is a loaded forge.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the forge.toml layout.
type Config struct {
	Crate       CrateConfig       `toml:"crate"`
	Codegen     CodegenConfig     `toml:"codegen"`
	Incremental IncrementalConfig `toml:"incremental"`
	Jobserver   JobserverConfig   `toml:"jobserver"`
	Units       []UnitConfig      `toml:"unit"`
}

type CrateConfig struct {
	Name             string   `toml:"name"`
	OutputTypes      []string `toml:"output_types"`
	OutDir           string   `toml:"out_dir"`
	NoBuiltins       bool     `toml:"no_builtins"`
	WindowsSubsystem string   `toml:"windows_subsystem"`
	Metadata         string   `toml:"metadata"`
}

type CodegenConfig struct {
	Jobs           int  `toml:"jobs"`
	EmitBitcode    bool `toml:"emit_bitcode"`
	NoIntegratedAs bool `toml:"no_integrated_as"`
	SaveTemps      bool `toml:"save_temps"`
	Allocator      bool `toml:"allocator"`
}

type IncrementalConfig struct {
	Dir string `toml:"dir"`
}

type JobserverConfig struct {
	Dir    string `toml:"dir"`
	Tokens int    `toml:"tokens"`
}

// UnitConfig declares one codegen unit: a name, the IR it is built from and
// the symbols it exports.
type UnitConfig struct {
	Name    string   `toml:"name"`
	IR      string   `toml:"ir"`
	Symbols []string `toml:"symbols"`
}

// LoadManifest parses and validates the manifest at path. Relative paths in
// the manifest are resolved against its directory.
func LoadManifest(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("crate") {
		return nil, fmt.Errorf("%s: missing [crate]", path)
	}
	if !meta.IsDefined("crate", "name") || strings.TrimSpace(cfg.Crate.Name) == "" {
		return nil, fmt.Errorf("%s: missing [crate].name", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0].String())
	}
	root := filepath.Dir(path)
	if abs, absErr := filepath.Abs(root); absErr == nil {
		root = abs
	}
	m := &Manifest{Path: path, Root: root, Config: cfg}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	c := &m.Config
	if len(c.Crate.OutputTypes) == 0 {
		c.Crate.OutputTypes = []string{"obj"}
	}
	if c.Crate.OutDir == "" {
		c.Crate.OutDir = "target"
	}
	if c.Codegen.Jobs <= 0 {
		c.Codegen.Jobs = runtime.GOMAXPROCS(0)
	}
	if c.Jobserver.Tokens <= 0 {
		c.Jobserver.Tokens = c.Codegen.Jobs
	}
	for i := range c.Units {
		c.Units[i].Name = QualifiedUnitName(c.Crate.Name, c.Units[i].Name)
	}
}

// Validate checks the configuration; call it again after applying overrides.
func (m *Manifest) Validate() error {
	c := m.Config
	if _, err := outputs.ParseSet(c.Crate.OutputTypes); err != nil {
		return err
	}
	if len(c.Units) == 0 {
		return fmt.Errorf("at least one [[unit]] is required")
	}
	generated := map[string]string{
		QualifiedUnitName(c.Crate.Name, "metadata"):  "metadata",
		QualifiedUnitName(c.Crate.Name, "allocator"): "allocator",
	}
	seen := make(map[string]struct{}, len(c.Units))
	for i, u := range c.Units {
		if strings.TrimSpace(u.IR) == "" {
			return fmt.Errorf("[[unit]] #%d (%s): missing ir", i, u.Name)
		}
		if kind, ok := generated[u.Name]; ok {
			return fmt.Errorf("[[unit]] #%d: name %q is reserved for the generated %s unit", i, u.Name, kind)
		}
		if _, dup := seen[u.Name]; dup {
			return fmt.Errorf("duplicate codegen unit %q", u.Name)
		}
		seen[u.Name] = struct{}{}
	}
	if c.Codegen.NoIntegratedAs && len(c.Units) > 1 {
		return fmt.Errorf("no_integrated_as requires exactly one codegen unit, got %d", len(c.Units))
	}
	return nil
}

// Resolve turns a manifest-relative path into an absolute one.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Root, filepath.FromSlash(p))
}

// QualifiedUnitName prefixes a unit name with its crate. Unit names key the
// incremental store, so they must be unique across every crate of a build.
func QualifiedUnitName(crate, unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		unit = "cgu"
	}
	if strings.HasPrefix(unit, crate+".") {
		return unit
	}
	return crate + "." + unit
}
