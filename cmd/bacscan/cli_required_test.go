package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestWhoIsFlagValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "bad output format",
			args:    []string{"--output", "xml"},
			wantErr: "invalid output format",
		},
		{
			name:    "min above max",
			args:    []string{"--min", "10", "--max", "5"},
			wantErr: "exceeds",
		},
		{
			name:    "max above instance limit",
			args:    []string{"--max", "4194304"},
			wantErr: "maximum",
		},
		{
			name:    "missing config file",
			args:    []string{"--config", filepath.Join(os.TempDir(), "does-not-exist-bacscan.yaml")},
			wantErr: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(newWhoIsCmd(), tt.args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bacscan.yaml")

	if err := execute(newInitConfigCmd(), "--path", path); err != nil {
		t.Fatalf("init-config failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if !strings.Contains(string(data), "device_id_max") {
		t.Errorf("config is missing discovery settings:\n%s", data)
	}

	// A second run must not clobber the file without --force.
	if err := execute(newInitConfigCmd(), "--path", path); err == nil {
		t.Error("expected an error for an existing file")
	}
	if err := execute(newInitConfigCmd(), "--path", path, "--force"); err != nil {
		t.Errorf("init-config --force failed: %v", err)
	}
}
