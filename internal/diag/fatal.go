package diag

import (
	"errors"
	"fmt"
)

// ExitCodeFatal is the process exit status after a fatal diagnostic.
const ExitCodeFatal = 101

// Fatal is the panic value raised by Abort.
type Fatal struct {
	Diagnostic Diagnostic
	Err        error
}

func (f *Fatal) Error() string {
	if f.Err != nil {
		return f.Diagnostic.String() + ": " + f.Err.Error()
	}
	return f.Diagnostic.String()
}

func (f *Fatal) Unwrap() error { return f.Err }

// Abort raises a fatal diagnostic. It never returns.
func Abort(code Code, format string, args ...any) {
	panic(&Fatal{Diagnostic: New(SevFatal, code, "", fmt.Sprintf(format, args...))})
}

// AbortErr raises a fatal diagnostic caused by err.
func AbortErr(code Code, err error, format string, args ...any) {
	panic(&Fatal{Diagnostic: New(SevFatal, code, "", fmt.Sprintf(format, args...)), Err: err})
}

// AsFatal extracts a *Fatal from a recovered panic value or an error chain.
func AsFatal(v any) (*Fatal, bool) {
	switch x := v.(type) {
	case *Fatal:
		return x, true
	case error:
		var f *Fatal
		if errors.As(x, &f) {
			return f, true
		}
	}
	return nil, false
}

// Catch runs fn and returns the fatal diagnostic it raised, if any. Other
// panics propagate.
func Catch(fn func()) (fatal *Fatal) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if f, ok := AsFatal(r); ok {
			fatal = f
			return
		}
		panic(r)
	}()
	fn()
	return nil
}
