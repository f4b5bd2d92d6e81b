package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ESPRIT_CONFIG_DIR", dir)
	ResetForTesting()
	t.Cleanup(ResetForTesting)
	return dir
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	if err := WriteFileAtomic(path, []byte(`{"version":1}`)); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("file mode = %o, want 600", got)
	}

	data, _ := os.ReadFile(path)
	if string(data) != `{"version":1}` {
		t.Errorf("content = %q", data)
	}

	// overwrite replaces, never appends
	if err := WriteFileAtomic(path, []byte("v2")); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "v2" {
		t.Errorf("content after overwrite = %q", data)
	}

	// no temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestReadFileIfExists(t *testing.T) {
	data, err := ReadFileIfExists(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("ReadFileIfExists() error = %v", err)
	}
	if data != nil {
		t.Errorf("data = %q, want nil", data)
	}
}

func TestSettingsDefaults(t *testing.T) {
	setupDir(t)

	s := Get()
	if s.Fetch.Timeout != 30.0 {
		t.Errorf("Fetch.Timeout = %v, want 30", s.Fetch.Timeout)
	}
	if s.Fetch.StreamTimeout != 120.0 {
		t.Errorf("Fetch.StreamTimeout = %v, want 120", s.Fetch.StreamTimeout)
	}
	if s.LLM.MaxRetries != 5 {
		t.Errorf("LLM.MaxRetries = %v, want 5", s.LLM.MaxRetries)
	}
	if !s.LLM.AutoFallback {
		t.Error("LLM.AutoFallback = false, want true")
	}
	if s.Dashboard.Port != 7860 {
		t.Errorf("Dashboard.Port = %v, want 7860", s.Dashboard.Port)
	}
	if s.Accounts.Strategy != "sticky" {
		t.Errorf("Accounts.Strategy = %q, want sticky", s.Accounts.Strategy)
	}
}

func TestSettingsPartialFile(t *testing.T) {
	dir := setupDir(t)

	content := "[llm]\nmax_retries = 2\n"
	if err := os.WriteFile(filepath.Join(dir, "settings.toml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := Get()
	if s.LLM.MaxRetries != 2 {
		t.Errorf("LLM.MaxRetries = %v, want 2", s.LLM.MaxRetries)
	}
	// unmentioned sections keep defaults
	if s.Dashboard.Port != 7860 {
		t.Errorf("Dashboard.Port = %v, want 7860", s.Dashboard.Port)
	}
}

func TestModelEnvOverride(t *testing.T) {
	setupDir(t)

	if err := SetModel("claude-sonnet-4-5"); err != nil {
		t.Fatalf("SetModel() error = %v", err)
	}
	if got := Model(); got != "claude-sonnet-4-5" {
		t.Errorf("Model() = %q, want claude-sonnet-4-5", got)
	}

	t.Setenv("ESPRIT_MODEL", "gpt-5.1")
	if got := Model(); got != "gpt-5.1" {
		t.Errorf("Model() with env = %q, want gpt-5.1", got)
	}
}

func TestMaxRetriesEnvOverride(t *testing.T) {
	setupDir(t)

	t.Setenv("ESPRIT_LLM_MAX_RETRIES", "9")
	if got := MaxRetries(); got != 9 {
		t.Errorf("MaxRetries() = %d, want 9", got)
	}

	t.Setenv("ESPRIT_LLM_MAX_RETRIES", "not-a-number")
	if got := MaxRetries(); got != 5 {
		t.Errorf("MaxRetries() with bad env = %d, want 5", got)
	}
}

func TestAutoFallbackDisable(t *testing.T) {
	setupDir(t)

	for _, v := range []string{"false", "0", "no"} {
		t.Setenv("ESPRIT_AUTO_FALLBACK", v)
		if AutoFallback() {
			t.Errorf("AutoFallback() with %q = true, want false", v)
		}
	}
	t.Setenv("ESPRIT_AUTO_FALLBACK", "")
	if !AutoFallback() {
		t.Error("AutoFallback() = false, want true")
	}
}

func TestLoadScanConfig(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("valid", func(t *testing.T) {
		path := write("ok.yaml", "targets:\n  - https://demo.test\nmode: deep\nwhitebox: true\n")
		sc, err := LoadScanConfig(path)
		if err != nil {
			t.Fatalf("LoadScanConfig() error = %v", err)
		}
		if sc.Mode != "deep" || !sc.Whitebox || len(sc.Targets) != 1 {
			t.Errorf("LoadScanConfig() = %+v", sc)
		}
	})

	t.Run("default mode", func(t *testing.T) {
		path := write("defaults.yaml", "targets:\n  - https://demo.test\n")
		sc, err := LoadScanConfig(path)
		if err != nil {
			t.Fatalf("LoadScanConfig() error = %v", err)
		}
		if sc.Mode != "standard" {
			t.Errorf("Mode = %q, want standard", sc.Mode)
		}
	})

	t.Run("no targets", func(t *testing.T) {
		path := write("empty.yaml", "mode: quick\n")
		if _, err := LoadScanConfig(path); err == nil {
			t.Error("LoadScanConfig() error = nil, want error")
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		path := write("bad.yaml", "targets: [x]\nmode: turbo\n")
		if _, err := LoadScanConfig(path); err == nil {
			t.Error("LoadScanConfig() error = nil, want error")
		}
	})
}
