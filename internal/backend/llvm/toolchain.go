package llvm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Toolchain runs the external LLVM tools.
type Toolchain struct {
	// PrintCommands echoes every command line to Stdout before running it.
	PrintCommands bool
	Stdout        io.Writer

	tripleOnce sync.Once
	triple     string
}

// EnsureClang reports a helpful error when clang is not on PATH.
func EnsureClang() error {
	if _, err := exec.LookPath("clang"); err != nil {
		return fmt.Errorf("clang not found; install with: sudo apt-get update && sudo apt-get install -y clang llvm lld")
	}
	return nil
}

func (tc *Toolchain) stdout() io.Writer {
	if tc.Stdout == nil {
		return os.Stdout
	}
	return tc.Stdout
}

func (tc *Toolchain) run(ctx context.Context, name string, args ...string) error {
	if tc.PrintCommands {
		if _, err := fmt.Fprintf(tc.stdout(), "%s %s\n", name, strings.Join(args, " ")); err != nil {
			return fmt.Errorf("failed to print command: %w", err)
		}
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = tc.stdout()
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %s", name, msg)
	}
	return nil
}

// runWithFallback runs clang and, if that fails, the LLVM tool named by
// fallback with fallbackArgs.
func (tc *Toolchain) runWithFallback(ctx context.Context, clangArgs []string, fallback string, fallbackArgs []string) error {
	clangErr := tc.run(ctx, "clang", clangArgs...)
	if clangErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return clangErr
	}
	path, err := exec.LookPath(fallback)
	if err != nil {
		return fmt.Errorf("%w (and %s not found)", clangErr, fallback)
	}
	if err := tc.run(ctx, path, fallbackArgs...); err != nil {
		return fmt.Errorf("clang and %s failed: %w", fallback, err)
	}
	if tc.PrintCommands {
		_, _ = fmt.Fprintf(tc.stdout(), "note: clang failed; fell back to %s\n", fallback)
	}
	return nil
}

// hostTriple asks clang for the default target; empty when clang is missing.
func (tc *Toolchain) hostTriple() string {
	tc.tripleOnce.Do(func() {
		out, err := exec.Command("clang", "-dumpmachine").Output()
		if err == nil {
			tc.triple = strings.TrimSpace(string(out))
		}
	})
	return tc.triple
}

func (tc *Toolchain) llcArgs(filetype, src, dst string) []string {
	args := []string{"-filetype=" + filetype, src, "-o", dst}
	if triple := tc.hostTriple(); triple != "" {
		args = append([]string{"-mtriple=" + triple}, args...)
	}
	return args
}

// CompileObject compiles textual IR at src into an object file.
func (tc *Toolchain) CompileObject(ctx context.Context, src, dst string) error {
	return tc.runWithFallback(ctx,
		[]string{"-c", "-x", "ir", src, "-o", dst},
		"llc", tc.llcArgs("obj", src, dst))
}

// CompileAssembly compiles textual IR at src into target assembly.
func (tc *Toolchain) CompileAssembly(ctx context.Context, src, dst string) error {
	return tc.runWithFallback(ctx,
		[]string{"-S", "-x", "ir", src, "-o", dst},
		"llc", tc.llcArgs("asm", src, dst))
}

// CompileBitcode turns textual IR at src into bitcode.
func (tc *Toolchain) CompileBitcode(ctx context.Context, src, dst string) error {
	return tc.runWithFallback(ctx,
		[]string{"-c", "-emit-llvm", "-x", "ir", src, "-o", dst},
		"llvm-as", []string{src, "-o", dst})
}

// Assemble runs the external assembler on src.
func (tc *Toolchain) Assemble(ctx context.Context, src, dst string) error {
	return tc.runWithFallback(ctx,
		[]string{"-c", "-x", "assembler", src, "-o", dst},
		"as", []string{src, "-o", dst})
}
