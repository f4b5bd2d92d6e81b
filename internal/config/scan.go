package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScanConfig describes one penetration-test run. It is loaded from a YAML
// file handed to the scan entry point and mirrored into the tracer so the
// dashboard can display it.
type ScanConfig struct {
	Targets  []string `yaml:"targets" json:"targets"`
	Mode     string   `yaml:"mode" json:"mode"` // quick | standard | deep
	Whitebox bool     `yaml:"whitebox" json:"whitebox"`
	Model    string   `yaml:"model,omitempty" json:"model,omitempty"`
	RunName  string   `yaml:"run_name,omitempty" json:"run_name,omitempty"`
}

// LoadScanConfig reads and validates a scan config YAML file.
func LoadScanConfig(path string) (*ScanConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scan config: %w", err)
	}
	var sc ScanConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scan config: %w", err)
	}
	if len(sc.Targets) == 0 {
		return nil, fmt.Errorf("scan config %s: no targets", path)
	}
	switch sc.Mode {
	case "":
		sc.Mode = "standard"
	case "quick", "standard", "deep":
	default:
		return nil, fmt.Errorf("scan config %s: unknown mode %q", path, sc.Mode)
	}
	return &sc, nil
}
