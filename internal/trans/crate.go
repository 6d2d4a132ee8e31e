package trans

import (
	"encoding/json"
	"sort"

	"forge/internal/project"
)

// LinkMeta identifies the crate to the linker.
type LinkMeta struct {
	CrateHash project.Digest
}

// EncodedMetadata is the crate metadata blob embedded in the metadata module.
type EncodedMetadata struct {
	Raw  []byte
	Hash project.Digest
}

// NewEncodedMetadata hashes raw.
func NewEncodedMetadata(raw []byte) EncodedMetadata {
	return EncodedMetadata{Raw: raw, Hash: project.DigestBytes(raw)}
}

// ExportedSymbols is the crate's exported-symbol table. It is frozen at
// construction and shared read-only by every worker.
type ExportedSymbols struct {
	byUnit map[string][]string
	all    []string
}

// NewExportedSymbols copies byUnit.
func NewExportedSymbols(byUnit map[string][]string) *ExportedSymbols {
	es := &ExportedSymbols{byUnit: make(map[string][]string, len(byUnit))}
	seen := make(map[string]struct{})
	for unit, syms := range byUnit {
		cp := append([]string(nil), syms...)
		sort.Strings(cp)
		es.byUnit[unit] = cp
		for _, s := range cp {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			es.all = append(es.all, s)
		}
	}
	sort.Strings(es.all)
	return es
}

// ForUnit returns the sorted symbols of unit. Callers must not modify it.
func (es *ExportedSymbols) ForUnit(unit string) []string {
	if es == nil {
		return nil
	}
	return es.byUnit[unit]
}

// All returns every exported symbol, sorted. Callers must not modify it.
func (es *ExportedSymbols) All() []string {
	if es == nil {
		return nil
	}
	return es.all
}

// Contains reports whether sym is exported by any unit.
func (es *ExportedSymbols) Contains(sym string) bool {
	if es == nil {
		return false
	}
	i := sort.SearchStrings(es.all, sym)
	return i < len(es.all) && es.all[i] == sym
}

// LinkerInfo is the linker configuration derived before codegen.
type LinkerInfo struct {
	Linker  string
	Args    []string
	Exports []string
}

// CrateInfo is everything crate-scoped known before any unit starts.
type CrateInfo struct {
	CrateName        string
	Link             LinkMeta
	Metadata         EncodedMetadata
	ExportedSymbols  *ExportedSymbols
	NoBuiltins       bool
	WindowsSubsystem string
	LinkerInfo       LinkerInfo
}

// CrateHash combines the unit keys (in the given order) with the metadata hash.
func CrateHash(metadata EncodedMetadata, unitKeys ...project.Digest) project.Digest {
	return project.Combine(metadata.Hash, unitKeys...)
}

// MarshalJSON writes the per-unit table.
func (es *ExportedSymbols) MarshalJSON() ([]byte, error) {
	if es == nil {
		return []byte("null"), nil
	}
	return json.Marshal(es.byUnit)
}
