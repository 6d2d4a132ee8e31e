package diag

import "fmt"

// Reporter receives non-fatal diagnostics.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter writes into a *Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

// Warn reports a warning through r; a nil reporter is allowed.
func Warn(r Reporter, code Code, unit, format string, args ...any) {
	if r == nil {
		return
	}
	r.Report(New(SevWarning, code, unit, fmt.Sprintf(format, args...)))
}
