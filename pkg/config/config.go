package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents mfcd's static configuration.
//
// This structure is intentionally small: mfcd has exactly three tunables
// (the control socket path, the persisted state file path, and the group
// that may connect to the socket) plus logging, which every binary in this
// module carries.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MFCD_*) (highest priority)
//  2. Configuration file (INI)
//  3. Default values (lowest priority)
type Config struct {
	// SocketPath is the Unix domain socket the control plane server binds to.
	SocketPath string `mapstructure:"socket_path" validate:"required"`

	// StateFile is the path of the persisted rule-set JSON file.
	StateFile string `mapstructure:"state_file" validate:"required"`

	// SocketGroup is the Unix group granted read/write access to SocketPath.
	// Empty means the socket is left owned by the process's own group.
	SocketGroup string `mapstructure:"socket_group"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

var validate = validator.New()

// Load loads configuration from an INI file, the environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (MFCD_*)
//  2. Configuration file
//  3. Default values
//
// configPath may be empty, in which case only environment and defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", configPath)
			}
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// viper files INI keys written before any [section] header under
		// "default"; lift them to the top level where the struct expects them.
		if err := v.MergeConfigMap(v.GetStringMap("default")); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// setupViper configures viper for mfcd's INI config file and MFCD_* env vars.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MFCD")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("ini")
	}

	// Bind defaults so viper's Unmarshal sees them even without a file.
	d := Default()
	v.SetDefault("socket_path", d.SocketPath)
	v.SetDefault("state_file", d.StateFile)
	v.SetDefault("socket_group", d.SocketGroup)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
}

// DefaultConfigPath returns the conventional system location for mfcd's
// config file.
func DefaultConfigPath() string {
	return filepath.Join("/etc/mfcd", "mfcd.conf")
}
