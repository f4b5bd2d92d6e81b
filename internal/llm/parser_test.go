package llm

import (
	"reflect"
	"testing"
)

func TestParseToolInvocations(t *testing.T) {
	content := "Let me check the open ports.\n" +
		"<function=terminal>\n" +
		"<parameter=command>nmap -sV 10.0.0.5</parameter>\n" +
		"<parameter=timeout>120</parameter>\n" +
		"</function>"

	invs := parseToolInvocations(content)
	if len(invs) != 1 {
		t.Fatalf("len(invs) = %d, want 1", len(invs))
	}
	if invs[0].Name != "terminal" {
		t.Errorf("Name = %q", invs[0].Name)
	}
	want := map[string]string{"command": "nmap -sV 10.0.0.5", "timeout": "120"}
	if !reflect.DeepEqual(invs[0].Parameters, want) {
		t.Errorf("Parameters = %v, want %v", invs[0].Parameters, want)
	}
}

func TestParseToolInvocationsNone(t *testing.T) {
	if got := parseToolInvocations("no tools here"); got != nil {
		t.Errorf("parseToolInvocations() = %v, want nil", got)
	}
}

func TestParseToolInvocationsMultilineValue(t *testing.T) {
	content := "<function=create_file><parameter=content>line one\nline two</parameter></function>"
	invs := parseToolInvocations(content)
	if len(invs) != 1 {
		t.Fatalf("len(invs) = %d, want 1", len(invs))
	}
	if got := invs[0].Parameters["content"]; got != "line one\nline two" {
		t.Errorf("content param = %q", got)
	}
}

func TestTruncateToFirstFunction(t *testing.T) {
	content := "before <function=terminal><parameter=command>ls -la</parameter></function> trailing junk"
	got := truncateToFirstFunction(content)
	want := "before <function=terminal><parameter=command>ls -la</parameter></function>"
	if got != want {
		t.Errorf("truncateToFirstFunction() = %q, want %q", got, want)
	}

	if got := truncateToFirstFunction("plain text"); got != "plain text" {
		t.Errorf("unmodified content changed: %q", got)
	}
}

func TestTruncateKeepsOnlyFirstBlock(t *testing.T) {
	content := "<function=a></function><function=b></function>"
	got := truncateToFirstFunction(content)
	if got != "<function=a></function>" {
		t.Errorf("truncateToFirstFunction() = %q", got)
	}
	invs := parseToolInvocations(got)
	if len(invs) != 1 || invs[0].Name != "a" {
		t.Errorf("invs = %v, want just a", invs)
	}
}

func TestFixIncompleteToolCall(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantInv bool
	}{
		{"dangling parameter", "<function=terminal><parameter=command>ls", true},
		{"unclosed function", "<function=terminal><parameter=command>ls</parameter>", true},
		{"complete untouched", "<function=terminal><parameter=command>ls</parameter></function>", true},
		{"no function", "just text", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed := fixIncompleteToolCall(tt.content)
			invs := parseToolInvocations(fixed)
			if tt.wantInv {
				if len(invs) != 1 {
					t.Fatalf("after repair, len(invs) = %d, want 1 (content %q)", len(invs), fixed)
				}
				if got := invs[0].Parameters["command"]; got != "ls" {
					t.Errorf("command = %q, want %q", got, "ls")
				}
			} else {
				if fixed != tt.content {
					t.Errorf("fixIncompleteToolCall() = %q, want unchanged", fixed)
				}
			}
		})
	}
}

func TestFixIncompleteDoesNotDoubleClose(t *testing.T) {
	content := "<function=terminal><parameter=command>ls</parameter></function>"
	if got := fixIncompleteToolCall(content); got != content {
		t.Errorf("complete call modified: %q", got)
	}
}
