package display

import (
	"strings"
	"testing"
)

func TestNewTableContainsHeadersAndRows(t *testing.T) {
	got := NewTableWithOptions(
		[]string{"Model", "Input"},
		[][]string{{"gpt-5", "$1.25"}, {"claude-sonnet-4-5", "$3.00"}},
		TableOptions{NoColor: true},
	)

	for _, want := range []string{"Model", "Input", "gpt-5", "$3.00"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}

func TestNewTableTitle(t *testing.T) {
	got := NewTableWithOptions(
		[]string{"A"},
		[][]string{{"1"}},
		TableOptions{Title: "Accounts", NoColor: true},
	)

	lines := strings.SplitN(got, "\n", 2)
	if lines[0] != "Accounts" {
		t.Errorf("first line = %q, want title", lines[0])
	}
}
