// Package main implements the forge CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forge/internal/diag"
	"forge/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "forge",
	Short:         "Parallel codegen driver for crates of LLVM IR units",
	Long:          `forge translates the codegen units of a crate in parallel, reuses unchanged units from the incremental directory and joins the results into a link plan`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps a fatal diagnostic raised anywhere on the
// main goroutine to exit status 101.
func run(args []string) (code int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		f, ok := diag.AsFatal(r)
		if !ok {
			panic(r)
		}
		printFatal(rootCmd.ErrOrStderr(), f)
		code = diag.ExitCodeFatal
	}()

	rootCmd.Version = version.Version
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show timing information")

	pf.String("trace", "", "write trace events to file (\"-\" for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	pf.Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")

	pf.String("cpu-profile", "", "write a CPU profile to file")
	pf.String("mem-profile", "", "write a heap profile to file")
	pf.String("runtime-trace", "", "write a Go runtime trace to file")
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
