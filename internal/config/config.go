// Package config loads tfapi settings from defaults, an optional config
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Destroy sweep scopes.
const (
	SweepAll      = "all"
	SweepTemplate = "template"
)

// Config holds every runtime setting. All fields use flat snake_case keys.
type Config struct {
	Port               int           `mapstructure:"port"`
	TerraformPath      string        `mapstructure:"terraform_path"`
	Region             string        `mapstructure:"region"`
	TerraformBin       string        `mapstructure:"terraform_bin"`
	TerraformTimeout   time.Duration `mapstructure:"terraform_timeout"`
	AWSTimeout         time.Duration `mapstructure:"aws_timeout"`
	DefaultEnvironment string        `mapstructure:"default_environment"`
	RegistryPath       string        `mapstructure:"registry_path"`
	AuditLog           string        `mapstructure:"audit_log"`
	SweepConcurrency   int           `mapstructure:"sweep_concurrency"`
	DestroySweep       string        `mapstructure:"destroy_sweep"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
}

// setting describes one config key: its default and the environment
// variable that overrides it.
type setting struct {
	def any
	env string
}

var settings = map[string]setting{
	"port":                {3000, "PORT"},
	"terraform_path":      {"./terraform", "TERRAFORM_PATH"},
	"region":              {"us-east-1", "AWS_REGION"},
	"terraform_bin":       {"terraform", "TFAPI_TERRAFORM_BIN"},
	"terraform_timeout":   {"30m", "TFAPI_TERRAFORM_TIMEOUT"},
	"aws_timeout":         {"2m", "TFAPI_AWS_TIMEOUT"},
	"default_environment": {"dev", "TFAPI_DEFAULT_ENVIRONMENT"},
	"registry_path":       {"", "TFAPI_REGISTRY_PATH"},
	"audit_log":           {"", "TFAPI_AUDIT_LOG"},
	"sweep_concurrency":   {4, "TFAPI_SWEEP_CONCURRENCY"},
	"destroy_sweep":       {SweepAll, "TFAPI_DESTROY_SWEEP"},
	"log_level":           {"info", "TFAPI_LOG_LEVEL"},
	"log_format":          {"auto", "TFAPI_LOG_FORMAT"},
}

// ValidKeys returns the sorted list of valid config key names.
func ValidKeys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvVar returns the environment variable bound to key, or "".
func EnvVar(key string) string {
	return settings[key].env
}

// Load builds a Config. path names an optional config file (any format
// viper understands, chosen by extension); an empty path skips the file.
// A named file that does not exist is an error. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, s := range settings {
		v.SetDefault(key, s.def)
		if err := v.BindEnv(key, s.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// regionPattern matches valid AWS region formats like us-west-2, eu-central-1.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]*)?-[a-z]+-\d+$`)

// Validate checks every setting and reports the first invalid one.
func (c *Config) Validate() error {
	checks := []struct {
		key string
		err error
	}{
		{"port", validatePort(c.Port)},
		{"terraform_path", validateNonEmpty(c.TerraformPath)},
		{"region", validateRegion(c.Region)},
		{"terraform_bin", validateNonEmpty(c.TerraformBin)},
		{"terraform_timeout", validateNonNegative(c.TerraformTimeout)},
		{"aws_timeout", validateNonNegative(c.AWSTimeout)},
		{"default_environment", validateNonEmpty(c.DefaultEnvironment)},
		{"sweep_concurrency", validateConcurrency(c.SweepConcurrency)},
		{"destroy_sweep", validateOneOf(c.DestroySweep, SweepAll, SweepTemplate)},
		{"log_level", validateOneOf(c.LogLevel, "debug", "info", "warn", "error")},
		{"log_format", validateOneOf(c.LogFormat, "auto", "console", "json")},
	}
	for _, ch := range checks {
		if ch.err != nil {
			return fmt.Errorf("invalid value for %s (%s): %w", ch.key, EnvVar(ch.key), ch.err)
		}
	}
	return nil
}

func validatePort(n int) error {
	if n < 1 || n > 65535 {
		return fmt.Errorf("must be between 1 and 65535 (got %d)", n)
	}
	return nil
}

func validateRegion(value string) error {
	if !regionPattern.MatchString(value) {
		return fmt.Errorf("%q does not match AWS region format (e.g., us-west-2)", value)
	}
	return nil
}

func validateNonEmpty(value string) error {
	if value == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

func validateNonNegative(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("must not be negative (got %s)", d)
	}
	return nil
}

func validateConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("must be >= 1 (got %d)", n)
	}
	return nil
}

func validateOneOf(value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of %v", value, allowed)
}
