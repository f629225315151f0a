package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every bound variable. viper treats an empty variable as
// unset, so the host environment cannot leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range ValidKeys() {
		t.Setenv(EnvVar(key), "")
	}
}

func TestLoadReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.TerraformPath != "./terraform" {
		t.Errorf("TerraformPath = %q, want ./terraform", cfg.TerraformPath)
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("Region = %q, want us-east-1", cfg.Region)
	}
	if cfg.TerraformTimeout != 30*time.Minute {
		t.Errorf("TerraformTimeout = %s, want 30m", cfg.TerraformTimeout)
	}
	if cfg.AWSTimeout != 2*time.Minute {
		t.Errorf("AWSTimeout = %s, want 2m", cfg.AWSTimeout)
	}
	if cfg.DefaultEnvironment != "dev" {
		t.Errorf("DefaultEnvironment = %q, want dev", cfg.DefaultEnvironment)
	}
	if cfg.RegistryPath != "" || cfg.AuditLog != "" {
		t.Errorf("RegistryPath/AuditLog should default to empty, got %q/%q", cfg.RegistryPath, cfg.AuditLog)
	}
	if cfg.SweepConcurrency != 4 {
		t.Errorf("SweepConcurrency = %d, want 4", cfg.SweepConcurrency)
	}
	if cfg.DestroySweep != SweepAll {
		t.Errorf("DestroySweep = %q, want %q", cfg.DestroySweep, SweepAll)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("TERRAFORM_PATH", "/srv/project")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("TFAPI_TERRAFORM_TIMEOUT", "90s")
	t.Setenv("TFAPI_DESTROY_SWEEP", "template")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.TerraformPath != "/srv/project" {
		t.Errorf("TerraformPath = %q", cfg.TerraformPath)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("Region = %q", cfg.Region)
	}
	if cfg.TerraformTimeout != 90*time.Second {
		t.Errorf("TerraformTimeout = %s, want 1m30s", cfg.TerraformTimeout)
	}
	if cfg.DestroySweep != SweepTemplate {
		t.Errorf("DestroySweep = %q", cfg.DestroySweep)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tfapi.toml")
	content := "port = 9000\nregion = \"us-west-2\"\nregistry_path = \"/var/lib/tfapi/registry.db\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Port != 9000 || cfg.Region != "us-west-2" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RegistryPath != "/var/lib/tfapi/registry.db" {
		t.Errorf("RegistryPath = %q", cfg.RegistryPath)
	}

	// The environment beats the file.
	t.Setenv("PORT", "9100")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Port)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load() error = %v, want not found", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
		key   string
	}{
		{"bad region", "AWS_REGION", "mars-1", "region"},
		{"port out of range", "PORT", "70000", "port"},
		{"bad sweep scope", "TFAPI_DESTROY_SWEEP", "everything", "destroy_sweep"},
		{"zero concurrency", "TFAPI_SWEEP_CONCURRENCY", "0", "sweep_concurrency"},
		{"bad log format", "TFAPI_LOG_FORMAT", "xml", "log_format"},
		{"negative timeout", "TFAPI_TERRAFORM_TIMEOUT", "-1m", "terraform_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)
			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() with %s=%s should fail", tt.env, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name key %s", err, tt.key)
			}
		})
	}
}

func TestValidateRegionFormats(t *testing.T) {
	for _, region := range []string{"us-east-1", "eu-central-1", "ap-southeast-2", "us-gov-west-1"} {
		if err := validateRegion(region); err != nil {
			t.Errorf("validateRegion(%q) unexpected error: %v", region, err)
		}
	}
	for _, region := range []string{"", "US-EAST-1", "useast1", "us-east"} {
		if err := validateRegion(region); err == nil {
			t.Errorf("validateRegion(%q) should fail", region)
		}
	}
}

func TestValidKeysHaveEnvVars(t *testing.T) {
	keys := ValidKeys()
	if len(keys) != 13 {
		t.Fatalf("expected 13 keys, got %d: %v", len(keys), keys)
	}
	for _, k := range keys {
		if EnvVar(k) == "" {
			t.Errorf("key %s has no environment variable", k)
		}
	}
}
