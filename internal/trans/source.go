package trans

import (
	"forge/internal/backend"
	"forge/internal/workproduct"
)

// ModuleSource says where a unit's artifacts come from. The only
// implementations are Reused and Built.
type ModuleSource interface {
	isModuleSource()
}

// Reused copies the unit's files from the incremental directory.
type Reused struct {
	WorkProduct workproduct.WorkProduct
}

// Built rebuilds the unit from the module owned by Handle.
type Built struct {
	Handle *backend.Handle
}

func (Reused) isModuleSource() {}
func (Built) isModuleSource()  {}
