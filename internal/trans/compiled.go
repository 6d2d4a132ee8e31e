package trans

// CompiledModule is the immutable summary of a finished unit. It holds no
// backend state and is safe to share between goroutines.
type CompiledModule struct {
	Name           string
	Kind           ModuleKind
	SymbolNameHash uint64
	PreExisting    bool
	EmitObject     bool
	EmitBitcode    bool
}

// CompiledModules is what the scheduler places in the crate result slot.
type CompiledModules struct {
	Modules         []CompiledModule
	MetadataModule  CompiledModule
	AllocatorModule *CompiledModule
}
