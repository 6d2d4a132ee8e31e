package diag

import "fmt"

type Note struct {
	Msg string
}

// Diagnostic is one reported finding. Unit names the codegen unit it concerns,
// empty for crate-level findings.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Unit     string
	Message  string
	Notes    []Note
}

func New(sev Severity, code Code, unit, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Unit:     unit,
		Message:  msg,
	}
}

func (d Diagnostic) WithNote(msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Msg: msg})
	return d
}

// String renders the diagnostic on one line, e.g.
// "warning[WRK0002] cgu=foo.0: work product is stale".
func (d Diagnostic) String() string {
	head := fmt.Sprintf("%s[%s]", lowerSeverity(d.Severity), d.Code.ID())
	if d.Unit != "" {
		head += " cgu=" + d.Unit
	}
	return head + ": " + d.Message
}

func lowerSeverity(s Severity) string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevFatal:
		return "fatal"
	default:
		return "error"
	}
}
