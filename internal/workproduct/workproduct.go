// Package workproduct stores backend artifacts of codegen units between
// builds so that unchanged units can be reused instead of regenerated.
package workproduct

import (
	"errors"

	"forge/internal/outputs"
	"forge/internal/project"
)

// ErrSchemaChanged reports an index entry written by an incompatible version.
var ErrSchemaChanged = errors.New("work product schema changed")

// ErrMissingFile reports an index entry whose saved artifact is gone.
var ErrMissingFile = errors.New("work product file missing")

// SavedFile is one artifact kept for a unit. Name is relative to the store.
type SavedFile struct {
	Kind outputs.Kind
	Name string
}

// WorkProduct is a previously compiled unit. Key is the invalidation key the
// unit had when it was saved; a lookup only counts as a hit for reuse if it
// equals the unit's current key.
type WorkProduct struct {
	Unit           string
	Key            project.Digest
	SymbolNameHash uint64
	Files          []SavedFile
}

// File returns the saved artifact of the given kind.
func (w WorkProduct) File(kind outputs.Kind) (SavedFile, bool) {
	for _, f := range w.Files {
		if f.Kind == kind {
			return f, true
		}
	}
	return SavedFile{}, false
}

// Store is the lookup side of the incremental cache.
type Store interface {
	// Lookup returns the work product saved for unit. A miss is (_, false, nil).
	Lookup(unit string) (WorkProduct, bool, error)
}
