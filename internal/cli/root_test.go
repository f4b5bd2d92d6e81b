package cli

import (
	"strings"
	"testing"
)

func TestVersionFlag(t *testing.T) {
	buf := setupCLITest(t)

	if err := execute(t, "--version"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "esprit dev") {
		t.Errorf("output = %q, want version line", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"auth", "logout", "accounts", "models", "usage", "serve", "config"}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestProviderIDsSorted(t *testing.T) {
	ids := providerIDs()
	if len(ids) < 4 {
		t.Fatalf("expected at least 4 registered providers, got %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Errorf("ids not sorted: %v", ids)
		}
	}
}
