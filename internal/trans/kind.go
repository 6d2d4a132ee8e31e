package trans

// ModuleKind classifies a codegen unit.
type ModuleKind uint8

const (
	ModuleKindRegular ModuleKind = iota
	ModuleKindMetadata
	ModuleKindAllocator
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleKindRegular:
		return "regular"
	case ModuleKindMetadata:
		return "metadata"
	case ModuleKindAllocator:
		return "allocator"
	default:
		return "unknown"
	}
}

func (k ModuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
