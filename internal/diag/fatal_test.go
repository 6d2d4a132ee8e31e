package diag

import (
	"errors"
	"strings"
	"testing"
)

func TestCatchReturnsFatal(t *testing.T) {
	cause := errors.New("disk gone")
	f := Catch(func() {
		AbortErr(TransRenameFailed, cause, "rename %s", "foo.o")
	})
	if f == nil {
		t.Fatal("expected fatal diagnostic")
	}
	if f.Diagnostic.Code != TransRenameFailed {
		t.Fatalf("code = %v, want %v", f.Diagnostic.Code, TransRenameFailed)
	}
	if f.Diagnostic.Severity != SevFatal {
		t.Fatalf("severity = %v, want FATAL", f.Diagnostic.Severity)
	}
	if !errors.Is(f, cause) {
		t.Fatal("expected fatal to wrap its cause")
	}
	if !strings.Contains(f.Error(), "TRN0008") {
		t.Fatalf("error text %q misses code id", f.Error())
	}
}

func TestCatchNoPanic(t *testing.T) {
	if f := Catch(func() {}); f != nil {
		t.Fatalf("unexpected fatal: %v", f)
	}
}

func TestCatchPropagatesOtherPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("recovered %v, want boom", r)
		}
	}()
	Catch(func() { panic("boom") })
	t.Fatal("unreachable")
}

func TestCodeIDFamilies(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{TransDisposeFailed, "TRN0001"},
		{TransJoinBeforeComplete, "TRN0005"},
		{WorkStaleProduct, "WRK0002"},
		{JobDoubleRelease, "JOB0002"},
		{UnknownCode, "E0000"},
	}
	for _, tc := range cases {
		if got := tc.code.ID(); got != tc.want {
			t.Errorf("%d.ID() = %q, want %q", tc.code, got, tc.want)
		}
	}
	if Code(1999).Title() != "Unknown error" {
		t.Errorf("unregistered code should fall back to unknown title")
	}
}

func TestBagSortedAndLimited(t *testing.T) {
	b := NewBag(2)
	b.Add(New(SevWarning, WorkStaleProduct, "b", "stale"))
	b.Add(New(SevWarning, WorkLoadFailed, "a", "unreadable"))
	if b.Add(New(SevError, WorkSaveFailed, "c", "dropped")) {
		t.Fatal("bag accepted a diagnostic past its limit")
	}
	items := b.Items()
	if len(items) != 2 || items[0].Unit != "a" || items[1].Unit != "b" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if b.HasErrors() {
		t.Fatal("warnings only, HasErrors should be false")
	}
}
