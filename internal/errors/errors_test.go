package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := fmt.Errorf("open /tmp/x: no such file")
	e := New(IOError, "reading patch file", cause)

	want := "[IO_ERROR] reading patch file: open /tmp/x: no such file"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}

func TestErrorWithoutCause(t *testing.T) {
	e := New(IndexCollision, "duplicate qualified name", nil)
	want := "[INDEX_COLLISION] duplicate qualified name"
	if e.Error() != want {
		t.Errorf("expected %q, got %q", want, e.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := New(InternalError, "wrapped", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestSuggestedFixes(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected bool
	}{
		{IndexStale, true},
		{IndexMissing, true},
		{SeedNotFound, true},
		{PatchInvalid, false},
		{IOError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			fixes := GetSuggestedFixes(tt.code)
			if tt.expected && len(fixes) == 0 {
				t.Errorf("expected suggested fixes for %s", tt.code)
			}
			if !tt.expected && len(fixes) != 0 {
				t.Errorf("expected no suggested fixes for %s", tt.code)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	e := New(ParseFailed, "syntax error", nil).WithDetails(map[string]int{"line": 42})
	if e.Details == nil {
		t.Error("details not attached")
	}
}
