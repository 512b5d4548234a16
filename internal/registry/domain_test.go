package registry

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@Alice", "alice"},
		{"alice", "alice"},
		{"  @Bob_99  ", "bob_99"},
		{"CAROL", "carol"},
		{"@", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeHandle(tt.in); got != tt.want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateHandle(t *testing.T) {
	valid := []string{"@alice", "Bob_99", "x", "fifteen_chars_x"}
	for _, in := range valid {
		if _, err := ValidateHandle(in); err != nil {
			t.Errorf("ValidateHandle(%q) unexpected error: %v", in, err)
		}
	}

	invalid := []string{"", "@", "has space", "sixteen_chars_xx", "dash-ed", "émile", "dot.ted"}
	for _, in := range invalid {
		if _, err := ValidateHandle(in); !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("ValidateHandle(%q) expected ErrInvalidHandle, got %v", in, err)
		}
	}
}

// Normalization is idempotent and every accepted handle is already in
// normalized form, so lock keys and index lookups can never disagree on
// case or @-prefix.
func TestNormalizeHandleProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := rapid.String().Draw(rt, "handle")
		normalized := NormalizeHandle(in)
		if NormalizeHandle(normalized) != normalized {
			rt.Errorf("NormalizeHandle not idempotent for %q", in)
		}
		if h, err := ValidateHandle(in); err == nil && h != NormalizeHandle(in) {
			rt.Errorf("ValidateHandle(%q) returned non-normalized %q", in, h)
		}
	})
}
