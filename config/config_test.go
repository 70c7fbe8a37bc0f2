package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "main" {
		t.Fatalf("expected default network 'main', got %q", cfg.Network)
	}
	if cfg.SignerConcurrency != 4 {
		t.Fatalf("expected default signer concurrency 4, got %d", cfg.SignerConcurrency)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "network: testnet3\nfee_rate_per_kb: 2000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "testnet3" {
		t.Fatalf("expected network 'testnet3' from file, got %q", cfg.Network)
	}
	if cfg.FeeRatePerKB != 2000 {
		t.Fatalf("expected fee rate 2000 from file, got %d", cfg.FeeRatePerKB)
	}
	// unset-in-file fields keep their default
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level to survive a partial override, got %q", cfg.LogLevel)
	}
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
