package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/riverline-labs/tenor/pkg/utils"
)

func resetViper() {
	viper.Reset()
}

func TestLoadDefaults(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project.Root != "main.tenor" {
		t.Fatalf("expected default root main.tenor, got %q", cfg.Project.Root)
	}
	if cfg.Rules.MaxStratumDepth != 64 {
		t.Fatalf("expected default stratum depth 64, got %d", cfg.Rules.MaxStratumDepth)
	}
	if cfg.Flows.MaxIterations != 10000 {
		t.Fatalf("expected default max iterations 10000, got %d", cfg.Flows.MaxIterations)
	}
	if cfg.Bundle.RejectedVersionPolicy != "major-match" {
		t.Fatalf("expected default version policy major-match, got %q", cfg.Bundle.RejectedVersionPolicy)
	}
}

func TestLoadManifestOverride(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	manifest := "project:\n  root: contracts/leasing.tenor\nrules:\n  max_stratum_depth: 8\n"
	if err := os.WriteFile(filepath.Join(dir, "tenor.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Project.Root != "contracts/leasing.tenor" {
		t.Fatalf("expected manifest root override, got %q", cfg.Project.Root)
	}
	if cfg.Rules.MaxStratumDepth != 8 {
		t.Fatalf("expected manifest stratum override 8, got %d", cfg.Rules.MaxStratumDepth)
	}
}

func TestLoadEnvOverridesManifest(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	manifest := "flows:\n  max_iterations: 50\nlogging:\n  level: warn\n"
	if err := os.WriteFile(filepath.Join(dir, "tenor.yaml"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	os.Setenv("TENOR_FLOWS_MAX_ITERATIONS", "123")
	os.Setenv("TENOR_LOGGING_LEVEL", "debug")
	utils.ClearEnvCache("TENOR_FLOWS_MAX_ITERATIONS")
	utils.ClearEnvCache("TENOR_LOGGING_LEVEL")
	defer func() {
		os.Unsetenv("TENOR_FLOWS_MAX_ITERATIONS")
		os.Unsetenv("TENOR_LOGGING_LEVEL")
		utils.ClearEnvCache("TENOR_FLOWS_MAX_ITERATIONS")
		utils.ClearEnvCache("TENOR_LOGGING_LEVEL")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Flows.MaxIterations != 123 {
		t.Fatalf("expected env override 123, got %d", cfg.Flows.MaxIterations)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env override debug, got %q", cfg.Logging.Level)
	}
}

func TestLoadFromEnv(t *testing.T) {
	resetViper()
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	os.Setenv("TENOR_ENV", "")
	defer os.Unsetenv("TENOR_ENV")

	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
}
