package buildpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"forge/internal/outputs"
	"forge/internal/project"
	"forge/internal/scheduler"
	"forge/internal/trans"
)

// crateplan is everything derived from the manifest before codegen starts.
type crateplan struct {
	info      trans.CrateInfo
	units     scheduler.Plan
	filenames outputs.Filenames
}

// planCrate reads every unit's IR to compute invalidation keys, builds the
// exported-symbol table and names the outputs.
func planCrate(m *project.Manifest, profile string) (*crateplan, error) {
	cfg := m.Config
	types, err := outputs.ParseSet(cfg.Crate.OutputTypes)
	if err != nil {
		return nil, err
	}
	outDir := filepath.Join(m.Resolve(cfg.Crate.OutDir), profile)

	metadata, err := readMetadata(m)
	if err != nil {
		return nil, err
	}

	// options that change which files a unit produces
	opts := project.DigestBytes([]byte(strings.Join([]string{
		"bc=" + strconv.FormatBool(cfg.Codegen.EmitBitcode),
		"noias=" + strconv.FormatBool(cfg.Codegen.NoIntegratedAs),
		"profile=" + profile,
		"asm=" + strconv.FormatBool(types.Contains(outputs.KindAssembly)),
		"llvm-ir=" + strconv.FormatBool(types.Contains(outputs.KindLLVMIR)),
	}, ";")))

	p := &crateplan{filenames: outputs.Filenames{OutDir: outDir, Stem: cfg.Crate.Name, Types: types}}
	symbolsByUnit := make(map[string][]string, len(cfg.Units))
	keys := make([]project.Digest, 0, len(cfg.Units)+2)
	for _, u := range cfg.Units {
		input := m.Resolve(u.IR)
		// #nosec G304 -- IR paths come from the crate manifest
		ir, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("codegen unit %s: %w", u.Name, err)
		}
		symbols := project.DigestBytes([]byte(strings.Join(u.Symbols, "\x00")))
		key := project.Combine(project.DigestBytes(ir), opts, symbols)
		p.units.Units = append(p.units.Units, trans.CodegenUnit{
			Name:    u.Name,
			Kind:    trans.ModuleKindRegular,
			Key:     key,
			Symbols: u.Symbols,
			Input:   input,
		})
		symbolsByUnit[u.Name] = u.Symbols
		keys = append(keys, key)
	}

	metaKey := project.Combine(metadata.Hash, opts)
	p.units.Units = append(p.units.Units, trans.CodegenUnit{
		Name: project.QualifiedUnitName(cfg.Crate.Name, "metadata"),
		Kind: trans.ModuleKindMetadata,
		Key:  metaKey,
	})
	keys = append(keys, metaKey)
	if cfg.Codegen.Allocator {
		allocKey := project.Combine(project.DigestBytes([]byte("allocator:"+cfg.Crate.Name)), opts)
		p.units.Units = append(p.units.Units, trans.CodegenUnit{
			Name:    project.QualifiedUnitName(cfg.Crate.Name, "allocator"),
			Kind:    trans.ModuleKindAllocator,
			Key:     allocKey,
			Symbols: []string{"__forge_alloc", "__forge_dealloc"},
		})
		keys = append(keys, allocKey)
	}

	exported := trans.NewExportedSymbols(symbolsByUnit)
	p.info = trans.CrateInfo{
		CrateName:        cfg.Crate.Name,
		Link:             trans.LinkMeta{CrateHash: trans.CrateHash(metadata, keys...)},
		Metadata:         metadata,
		ExportedSymbols:  exported,
		NoBuiltins:       cfg.Crate.NoBuiltins,
		WindowsSubsystem: cfg.Crate.WindowsSubsystem,
		LinkerInfo: trans.LinkerInfo{
			Linker:  "clang",
			Exports: exported.All(),
		},
	}
	if cfg.Crate.NoBuiltins {
		p.info.LinkerInfo.Args = append(p.info.LinkerInfo.Args, "-nostdlib")
	}
	return p, nil
}

// readMetadata loads [crate].metadata, or synthesises a blob naming the
// crate and its units.
func readMetadata(m *project.Manifest) (trans.EncodedMetadata, error) {
	cfg := m.Config
	if cfg.Crate.Metadata != "" {
		// #nosec G304 -- metadata path comes from the crate manifest
		raw, err := os.ReadFile(m.Resolve(cfg.Crate.Metadata))
		if err != nil {
			return trans.EncodedMetadata{}, fmt.Errorf("crate metadata: %w", err)
		}
		return trans.NewEncodedMetadata(raw), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "crate=%s\n", cfg.Crate.Name)
	for _, u := range cfg.Units {
		fmt.Fprintf(&sb, "unit=%s\n", u.Name)
	}
	return trans.NewEncodedMetadata([]byte(sb.String())), nil
}

// UnitNames lists the codegen units a build of m schedules, in plan order.
func UnitNames(m *project.Manifest) []string {
	cfg := m.Config
	names := make([]string, 0, len(cfg.Units)+2)
	for _, u := range cfg.Units {
		names = append(names, u.Name)
	}
	names = append(names, project.QualifiedUnitName(cfg.Crate.Name, "metadata"))
	if cfg.Codegen.Allocator {
		names = append(names, project.QualifiedUnitName(cfg.Crate.Name, "allocator"))
	}
	return names
}
