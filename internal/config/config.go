// Package config implements the broker's two-tier configuration: a raw
// struct unmarshalled directly by viper and validated with struct tags,
// converted into a strongly-typed App for the rest of the broker to
// consume (spec.md §6 "Configuration (enumerated)").
//
// Grounded on pkg/config/config.go's Load[T Validatable] and
// pkg/config/server.go's mapstructure/toml/validate tag triad and
// ToAppConfig conversion method.
package config

import (
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ServerConfig configures the broker's own HTTP ingress.
type ServerConfig struct {
	Host string `mapstructure:"host" toml:"host" validate:"required"`
	Port uint   `mapstructure:"port" toml:"port" validate:"required,min=1,max=65535"`
}

// BuildLimitsConfig configures the fixed resource limits the build
// emitter writes into every common test.yaml (spec.md §4.6).
type BuildLimitsConfig struct {
	Image     string `mapstructure:"image" toml:"image" validate:"required"`
	Memory    string `mapstructure:"memory" toml:"memory" validate:"required"`
	Time      string `mapstructure:"time" toml:"time" validate:"required"`
	Swap      string `mapstructure:"swap" toml:"swap"`
	CPUs      int    `mapstructure:"cpus" toml:"cpus" validate:"required,min=1"`
	Network   bool   `mapstructure:"network" toml:"network"`
	Storage   string `mapstructure:"storage" toml:"storage"`
	Workspace string `mapstructure:"workspace" toml:"workspace"`
	Shortcut  bool   `mapstructure:"shortcut" toml:"shortcut"`
}

// RawConfig is the on-disk/env/flag shape of the broker's configuration.
type RawConfig struct {
	SubmitsDir           string `mapstructure:"submits_dir" toml:"submits_dir" validate:"required"`
	BuildNamespace       string `mapstructure:"build_namespace" toml:"build_namespace" validate:"required"`
	ClusterConf          string `mapstructure:"cluster_conf" toml:"cluster_conf" validate:"required"`
	CallbackURLPrefix    string `mapstructure:"callback_url_prefix" toml:"callback_url_prefix"`
	FrontEndSuccessURL   string `mapstructure:"front_end_success_url" toml:"front_end_success_url" validate:"required,url"`
	FrontEndErrorURL     string `mapstructure:"front_end_error_url" toml:"front_end_error_url" validate:"required,url"`
	SharedSecretFrontEnd string `mapstructure:"shared_secret_front_end" toml:"shared_secret_front_end" validate:"required"`
	SharedSecretBroker   string `mapstructure:"shared_secret_broker" toml:"shared_secret_broker" validate:"required"`
	TaskSubmitTimeout    string `mapstructure:"task_submit_timeout" toml:"task_submit_timeout" validate:"required"`
	JanitorInterval      string `mapstructure:"janitor_interval" toml:"janitor_interval" validate:"required"`
	ForceRebuildPackages bool   `mapstructure:"force_rebuild_packages" toml:"force_rebuild_packages"`
	ActiveWait           bool   `mapstructure:"active_wait" toml:"active_wait"`

	ClusterClientBinaryURL string `mapstructure:"cluster_client_binary_url" toml:"cluster_client_binary_url"`
	ClusterJudgeBinaryURL  string `mapstructure:"cluster_judge_binary_url" toml:"cluster_judge_binary_url"`

	Server      ServerConfig      `mapstructure:"server" toml:"server"`
	BuildLimits BuildLimitsConfig `mapstructure:"build_limits" toml:"build_limits"`

	// AuditDB is the sqlite file path for the optional, non-authoritative
	// audit log (spec.md §9 "Persistence"). Empty disables it.
	AuditDB string `mapstructure:"audit_db" toml:"audit_db"`
}

// Validate checks RawConfig's struct tags and the cross-field
// constraints spec.md §6 implies: a prefix is required unless running in
// active-wait mode, and the refresh URLs are required only when
// force-rebuild is enabled.
func (c RawConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if !c.ActiveWait && c.CallbackURLPrefix == "" {
		return fmt.Errorf("callback_url_prefix is required unless active_wait is set")
	}
	if c.ForceRebuildPackages && (c.ClusterClientBinaryURL == "" || c.ClusterJudgeBinaryURL == "") {
		return fmt.Errorf("cluster_client_binary_url and cluster_judge_binary_url are required when force_rebuild_packages is set")
	}
	return nil
}

// Load unmarshals and validates the configuration already populated into
// viper's global instance by the CLI layer (flags, env, config file).
func Load() (RawConfig, error) {
	var raw RawConfig
	if err := viper.Unmarshal(&raw); err != nil {
		return RawConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := raw.Validate(); err != nil {
		return RawConfig{}, fmt.Errorf("validating config: %w", err)
	}
	return raw, nil
}
