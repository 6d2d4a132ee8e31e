package llvm

import (
	"fmt"
	"strings"
)

// MetadataSection is the object-file section holding the crate metadata.
const MetadataSection = ".forge_meta"

// MetadataModuleIR returns a module that embeds blob in MetadataSection and
// keeps it alive through llvm.used.
func MetadataModuleIR(crate string, blob []byte) string {
	sym := "__forge_metadata_" + symbolSafe(crate)
	var sb strings.Builder
	writeHeader(&sb, crate+".metadata")
	fmt.Fprintf(&sb, "@%s = constant [%d x i8] %s, section %q, align 1\n",
		sym, len(blob), formatLLVMBytes(blob, len(blob)), MetadataSection)
	fmt.Fprintf(&sb, "@llvm.used = appending global [1 x ptr] [ptr @%s], section \"llvm.metadata\"\n", sym)
	return sb.String()
}

// AllocatorShimIR returns the allocator shim: __forge_alloc and
// __forge_dealloc forwarding to the C allocator.
func AllocatorShimIR(crate string) string {
	var sb strings.Builder
	writeHeader(&sb, crate+".allocator")
	sb.WriteString("declare ptr @malloc(i64)\n")
	sb.WriteString("declare void @free(ptr)\n\n")
	sb.WriteString("define ptr @__forge_alloc(i64 %size) {\n")
	sb.WriteString("entry:\n")
	sb.WriteString("  %p = call ptr @malloc(i64 %size)\n")
	sb.WriteString("  ret ptr %p\n")
	sb.WriteString("}\n\n")
	sb.WriteString("define void @__forge_dealloc(ptr %p) {\n")
	sb.WriteString("entry:\n")
	sb.WriteString("  call void @free(ptr %p)\n")
	sb.WriteString("  ret void\n")
	sb.WriteString("}\n")
	return sb.String()
}

func writeHeader(sb *strings.Builder, module string) {
	fmt.Fprintf(sb, "; ModuleID = %q\n", module)
	fmt.Fprintf(sb, "source_filename = %q\n\n", module)
}

func formatLLVMBytes(data []byte, arrayLen int) string {
	var sb strings.Builder
	sb.WriteString("c\"")
	for i := range arrayLen {
		b := byte(0)
		if i < len(data) {
			b = data[i]
		}
		fmt.Fprintf(&sb, "\\%02X", b)
	}
	sb.WriteString("\"")
	return sb.String()
}

func symbolSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
