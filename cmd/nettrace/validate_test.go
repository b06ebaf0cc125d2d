package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/nettrace/pkg/cli"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		wantCode int
	}{
		{
			name:    "minimal",
			content: "capture:\n  enabled: true\n",
		},
		{
			name: "with probes and store",
			content: `store:
  enabled: true
  path: spans.db
probes:
  - name: api
    url: https://api.example.com/health
    schedule: "*/5 * * * *"
`,
		},
		{
			name:     "invalid exporter",
			content:  "telemetry:\n  tracing:\n    exporter: carrier-pigeon\n",
			wantErr:  true,
			wantCode: cli.ExitConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "nettrace.yaml", tt.content)
			buf := &bytes.Buffer{}

			err := validateConfig(buf, path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got := cli.ExitCode(err); got != tt.wantCode {
					t.Errorf("ExitCode() = %d, want %d", got, tt.wantCode)
				}
				return
			}
			if !strings.Contains(buf.String(), "Configuration valid") {
				t.Errorf("unexpected output: %s", buf.String())
			}
		})
	}
}

func TestLoadConfig_DefaultFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), defaultConfigFile)

	cfg, fromFile, err := loadConfig(missing, false)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if fromFile {
		t.Error("fromFile = true for a missing default file")
	}
	if cfg == nil || !cfg.Capture.IsEnabled() {
		t.Error("expected default configuration")
	}

	if _, _, err := loadConfig(missing, true); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}
