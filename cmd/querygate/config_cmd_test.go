// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/querygate/internal/config"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "querygate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigValidate(t *testing.T) {
	valid := writeYAML(t, "warehouses:\n  - id: 1\n    name: etl\n    maxSlots: 8\n")
	invalid := writeYAML(t, "warehouses:\n  - id: 1\n    name: etl\n    maxSlotz: 8\n")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
		wantErr  string
	}{
		{"valid file", []string{"validate", "-f", valid}, 0, "is valid", ""},
		{"unknown key", []string{"validate", "--file", invalid}, 1, "", "unknown config field"},
		{"missing file flag", []string{"validate"}, 2, "", "--file is required"},
		{"unknown subcommand", []string{"frobnicate"}, 2, "", "Unknown subcommand"},
		{"help", []string{"help"}, 0, "", "Usage:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := runConfigCLI(tt.args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			if tt.wantOut != "" && !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout %q does not contain %q", stdout.String(), tt.wantOut)
			}
			if tt.wantErr != "" && !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr %q does not contain %q", stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestConfigDump_YAMLRoundTrips(t *testing.T) {
	path := writeYAML(t, "queryQueue:\n  strategy: fifo\n  pendingTimeout: 45s\n")

	var stdout, stderr bytes.Buffer
	if code := runConfigCLI([]string{"dump", "-f", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("dump failed: %d %s", code, stderr.String())
	}

	// The dump must itself be a loadable config file.
	dumped := writeYAML(t, stdout.String())
	cfg, err := config.NewLoader(dumped).Load()
	if err != nil {
		t.Fatalf("reload dumped config: %v\n%s", err, stdout.String())
	}
	if cfg.QueryQueue.Strategy != "fifo" {
		t.Errorf("strategy = %q, want fifo", cfg.QueryQueue.Strategy)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(stdout.Bytes(), &raw); err != nil {
		t.Fatalf("dump is not YAML: %v", err)
	}
	if _, ok := raw["queryQueue"]; !ok {
		t.Errorf("dump lacks queryQueue: %v", raw)
	}
}

func TestConfigDump_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runConfigCLI([]string{"dump", "--format=json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("dump failed: %d %s", code, stderr.String())
	}
	var cfg config.Config
	if err := json.Unmarshal(stdout.Bytes(), &cfg); err != nil {
		t.Fatalf("dump is not JSON: %v", err)
	}
	if len(cfg.Warehouses) != 1 {
		t.Errorf("expected the default warehouse, got %d", len(cfg.Warehouses))
	}
}

func TestConfigDump_UnsupportedFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runConfigCLI([]string{"dump", "--format=toml"}, &stdout, &stderr); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
