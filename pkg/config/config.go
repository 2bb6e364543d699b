// Package config provides a reusable loader for Tenor project manifests
// and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/riverline-labs/tenor/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for the Tenor toolchain. It
// mirrors the structure of the tenor.yaml manifest that sits next to a
// contract's root source file.
type Config struct {
	Project struct {
		// Root is the logical path (relative to the manifest) of the root
		// .tenor file the elaborator bundles from.
		Root string `mapstructure:"root" json:"root"`
		// SourceProvider selects the I/O abstraction used to read .tenor
		// files: "fs" (host filesystem, default) or "memory" (tooling that
		// supplies sources in-process, e.g. an editor preview).
		SourceProvider string `mapstructure:"source_provider" json:"source_provider"`
	} `mapstructure:"project" json:"project"`

	Validate struct {
		// MaxErrors bounds how many diagnostics Pass 5 collects before it
		// halts.
		MaxErrors int `mapstructure:"max_errors" json:"max_errors"`
	} `mapstructure:"validate" json:"validate"`

	Rules struct {
		// MaxStratumDepth bounds the stratum numbers Pass 5 will accept,
		// guarding against pathological VerdictPresent recursion.
		MaxStratumDepth int `mapstructure:"max_stratum_depth" json:"max_stratum_depth"`
	} `mapstructure:"rules" json:"rules"`

	Flows struct {
		// MaxIterations bounds the number of steps a single flow execution
		// may take — a safety net against malformed cyclic flows,
		// not a wall-clock timeout.
		MaxIterations int `mapstructure:"max_iterations" json:"max_iterations"`
	} `mapstructure:"flows" json:"flows"`

	Bundle struct {
		// RejectedVersionPolicy controls how the contract loader treats a
		// bundle's tenor_version: "major-match" accepts any version whose
		// major component is 1, "exact" requires it to equal "1.0.0".
		RejectedVersionPolicy string `mapstructure:"rejected_version_policy" json:"rejected_version_policy"`
	} `mapstructure:"bundle" json:"bundle"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("project.root", "main.tenor")
	viper.SetDefault("project.source_provider", "fs")
	viper.SetDefault("validate.max_errors", 50)
	viper.SetDefault("rules.max_stratum_depth", 64)
	viper.SetDefault("flows.max_iterations", 10000)
	viper.SetDefault("bundle.rejected_version_policy", "major-match")
	viper.SetDefault("logging.level", "info")
}

// Load reads the tenor.yaml manifest (and any TENOR_ENV-specific overlay)
// from the given directories, merges environment-variable overrides, and
// stores the result in AppConfig.
//
// If env is empty only the default manifest is loaded. Missing manifest
// files are not an error — Load falls back to built-in defaults so the CLI
// works against a bare .tenor file with no manifest at all.
func Load(env string) (*Config, error) {
	setDefaults()

	viper.SetConfigName("tenor")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load tenor manifest")
		}
	}

	if env != "" {
		viper.SetConfigName("tenor." + env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, utils.Wrap(err, fmt.Sprintf("merge %s manifest", env))
			}
		}
	}

	viper.SetEnvPrefix("TENOR")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal tenor manifest")
	}
	applyEnvOverrides(&AppConfig)
	return &AppConfig, nil
}

// applyEnvOverrides layers TENOR_* variables over the manifest. Viper's
// AutomaticEnv does not surface nested keys through Unmarshal without an
// explicit binding per key, so the overrides are applied here with the
// cached env helpers.
func applyEnvOverrides(c *Config) {
	c.Project.Root = utils.EnvOrDefault("TENOR_PROJECT_ROOT", c.Project.Root)
	c.Project.SourceProvider = utils.EnvOrDefault("TENOR_PROJECT_SOURCE_PROVIDER", c.Project.SourceProvider)
	c.Validate.MaxErrors = utils.EnvOrDefaultInt("TENOR_VALIDATE_MAX_ERRORS", c.Validate.MaxErrors)
	c.Rules.MaxStratumDepth = utils.EnvOrDefaultInt("TENOR_RULES_MAX_STRATUM_DEPTH", c.Rules.MaxStratumDepth)
	c.Flows.MaxIterations = utils.EnvOrDefaultInt("TENOR_FLOWS_MAX_ITERATIONS", c.Flows.MaxIterations)
	c.Bundle.RejectedVersionPolicy = utils.EnvOrDefault("TENOR_BUNDLE_REJECTED_VERSION_POLICY", c.Bundle.RejectedVersionPolicy)
	c.Logging.Level = utils.EnvOrDefault("TENOR_LOGGING_LEVEL", c.Logging.Level)
}

// LoadFromEnv loads configuration using the TENOR_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TENOR_ENV", ""))
}
