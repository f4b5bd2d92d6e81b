package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/esprit-sec/esprit/internal/config"
)

// setupCLITest points the config dir at a temp dir, resets the flag
// state shared across executions, and captures command output.
func setupCLITest(t *testing.T) *bytes.Buffer {
	t.Helper()
	t.Setenv("ESPRIT_CONFIG_DIR", t.TempDir())
	config.ResetForTesting()

	jsonOutput = false
	noColor = false
	verbose = false
	quiet = false

	buf := &bytes.Buffer{}
	orig := outWriter
	outWriter = buf
	t.Cleanup(func() { outWriter = orig })
	return buf
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs([]string{})
	return rootCmd.ExecuteContext(context.Background())
}
