package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
)

func TestConfigure_QuietBeatsVerbose(t *testing.T) {
	l := NewLogger(&bytes.Buffer{})
	Configure(l, Flags{Verbose: true, Quiet: true})

	if l.GetLevel() != log.ErrorLevel {
		t.Errorf("level = %v, want ErrorLevel", l.GetLevel())
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "ali***@exa***"},
		{"ab@example.com", "ab***@exa***"},
		{"alice@ex.io", "ali***@ex.***"},
		{"not-an-email", "not***"},
		{"ab", "ab***"},
	}
	for _, tt := range tests {
		if got := MaskEmail(tt.in); got != tt.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewTestContextCapturesOutput(t *testing.T) {
	ctx, buf := NewTestContext(Flags{Verbose: true})

	FromContext(ctx).Debug("rotating account", "email", MaskEmail("alice@example.com"))

	got := buf.String()
	if !bytes.Contains([]byte(got), []byte("rotating account")) {
		t.Errorf("log output missing message: %q", got)
	}
	if bytes.Contains([]byte(got), []byte("alice@example.com")) {
		t.Errorf("raw email leaked into logs: %q", got)
	}
}
