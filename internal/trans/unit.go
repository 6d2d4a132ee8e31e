package trans

import (
	"hash/fnv"
	"sort"

	"forge/internal/outputs"
	"forge/internal/project"
)

// CodegenUnit is the scheduler's description of one unit before it has any
// backend state.
type CodegenUnit struct {
	// Name keys the incremental store and must be unique across all crates of
	// a build.
	Name string
	Kind ModuleKind
	// Key is the invalidation key: a saved work product is reused only if it
	// was saved under the same key.
	Key     project.Digest
	Symbols []string
	// Input locates the unit's IR for the IR builder.
	Input string
	// Requires lists the saved files a work product must carry to be reused
	// for this build; one lacking any of them is rebuilt.
	Requires []outputs.Kind
}

// SymbolNameHash hashes the unit's exported symbols, order-independent.
func (u CodegenUnit) SymbolNameHash() uint64 {
	return SymbolNameHash(u.Symbols)
}

// SymbolNameHash is FNV-1a over the sorted symbol names, each terminated by a
// zero byte.
func SymbolNameHash(symbols []string) uint64 {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	h := fnv.New64a()
	for _, s := range sorted {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
