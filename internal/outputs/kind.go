// Package outputs names the files a crate build reads and writes.
package outputs

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Kind is one requested output artifact type.
type Kind uint8

const (
	KindObject Kind = iota + 1
	KindBitcode
	KindAssembly
	KindLLVMIR
	KindMetadata
	KindExe
)

var kindNames = map[Kind]string{
	KindObject:   "obj",
	KindBitcode:  "bc",
	KindAssembly: "asm",
	KindLLVMIR:   "llvm-ir",
	KindMetadata: "metadata",
	KindExe:      "exe",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Extension returns the file extension without the dot. Executables have none
// outside Windows.
func (k Kind) Extension() string {
	switch k {
	case KindObject:
		return "o"
	case KindBitcode:
		return "bc"
	case KindAssembly:
		return "s"
	case KindLLVMIR:
		return "ll"
	case KindMetadata:
		return "rmeta"
	case KindExe:
		if runtime.GOOS == "windows" {
			return "exe"
		}
		return ""
	}
	return ""
}

// ParseKind converts a manifest/CLI spelling into a Kind.
func ParseKind(s string) (Kind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	switch want {
	case "o", "object":
		return KindObject, nil
	case "link":
		return KindExe, nil
	}
	for k, name := range kindNames {
		if name == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown output type %q (expected obj|bc|asm|llvm-ir|metadata|exe)", s)
}

// Set is a requested set of output kinds.
type Set map[Kind]struct{}

// ParseSet parses a list of output type spellings.
func ParseSet(values []string) (Set, error) {
	set := make(Set, len(values))
	for _, v := range values {
		k, err := ParseKind(v)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}
	return set, nil
}

func (s Set) Contains(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Sorted returns the kinds in declaration order.
func (s Set) Sorted() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
