package llvm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"forge/internal/backend"
	"forge/internal/trans"
)

// Loader fills freshly allocated modules: regular units read their IR from
// the unit's input file, the metadata and allocator units are generated.
type Loader struct {
	Backend  *Backend
	Crate    string
	Metadata []byte
}

func (l *Loader) BuildIR(ctx context.Context, u trans.CodegenUnit, h *backend.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ir string
	switch u.Kind {
	case trans.ModuleKindRegular:
		if u.Input == "" {
			return fmt.Errorf("codegen unit %s: no IR input", u.Name)
		}
		data, err := os.ReadFile(u.Input)
		if err != nil {
			return fmt.Errorf("codegen unit %s: %w", u.Name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return fmt.Errorf("codegen unit %s: %s is empty", u.Name, u.Input)
		}
		ir = string(data)
	case trans.ModuleKindMetadata:
		ir = MetadataModuleIR(l.Crate, l.Metadata)
	case trans.ModuleKindAllocator:
		ir = AllocatorShimIR(l.Crate)
	default:
		return fmt.Errorf("codegen unit %s: unknown kind %v", u.Name, u.Kind)
	}
	return l.Backend.SetIR(h.Module(), ir)
}
