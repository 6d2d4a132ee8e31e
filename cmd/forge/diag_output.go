package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"forge/internal/diag"
)

var (
	errorHeader   = color.New(color.FgRed, color.Bold)
	warningHeader = color.New(color.FgYellow, color.Bold)
	infoHeader    = color.New(color.FgCyan, color.Bold)
	noteHeader    = color.New(color.FgBlue, color.Bold)
)

// printFatal renders a fatal diagnostic as
//
//	error[TRN0003]: translation unit converted more than once
//	  --> cgu foo.0
//	  = note: ...
func printFatal(out io.Writer, f *diag.Fatal) {
	d := f.Diagnostic
	errorHeader.Fprintf(out, "error[%s]", d.Code.ID())
	fmt.Fprintf(out, ": %s\n", d.Code.Title())
	printBody(out, d)
	if f.Err != nil {
		noteHeader.Fprint(out, "  = caused by")
		fmt.Fprintf(out, ": %v\n", f.Err)
	}
	fmt.Fprintln(out, "forge aborted; this is a bug or an environment failure, not a problem with the input")
}

func printError(out io.Writer, err error) {
	errorHeader.Fprint(out, "error")
	fmt.Fprintf(out, ": %v\n", err)
}

// printDiagnostics writes up to limit non-fatal diagnostics; limit <= 0
// prints them all.
func printDiagnostics(out io.Writer, items []diag.Diagnostic, limit int) {
	for i, d := range items {
		if limit > 0 && i == limit {
			fmt.Fprintf(out, "... %d more diagnostics\n", len(items)-limit)
			return
		}
		header := infoHeader
		label := "info"
		switch d.Severity {
		case diag.SevWarning:
			header, label = warningHeader, "warning"
		case diag.SevError, diag.SevFatal:
			header, label = errorHeader, "error"
		}
		header.Fprintf(out, "%s[%s]", label, d.Code.ID())
		fmt.Fprintf(out, ": %s\n", d.Code.Title())
		printBody(out, d)
	}
}

func printBody(out io.Writer, d diag.Diagnostic) {
	if d.Unit != "" {
		noteHeader.Fprint(out, "  -->")
		fmt.Fprintf(out, " cgu %s\n", d.Unit)
	}
	if d.Message != "" {
		fmt.Fprintf(out, "  %s\n", d.Message)
	}
	for _, n := range d.Notes {
		noteHeader.Fprint(out, "  = note")
		fmt.Fprintf(out, ": %s\n", n.Msg)
	}
}
