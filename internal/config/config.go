// Package config resolves whlkit's settings from defaults, the config
// file, WHLKIT_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/frederic-klein/whlkit/internal/index"
)

const (
	AppName        = "whlkit"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "WHLKIT"
)

// Keys shared by the config file, the environment and flags.
const (
	KeyProfile = "profile"
	KeyBaseURL = "base_url"
	KeyVerbose = "verbose"
)

// Config holds the resolved settings.
type Config struct {
	// Profile is a path to a profile document; empty selects the built-in one.
	Profile string `mapstructure:"profile"`
	BaseURL string `mapstructure:"base_url"`
	Verbose bool   `mapstructure:"verbose"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() *Config {
	return &Config{BaseURL: index.DefaultBaseURL}
}

// Dir returns the directory holding the default config file.
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

// LoadOptions selects where settings come from.
type LoadOptions struct {
	// ConfigFilePath overrides the default config file. It must exist.
	ConfigFilePath string
	// Flags, when set, are bound by key name and win over every other source.
	Flags *pflag.FlagSet
}

// Load resolves the settings. It returns the config file it read, or "" when
// none was found at the default location.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault(KeyProfile, defaults.Profile)
	v.SetDefault(KeyBaseURL, defaults.BaseURL)
	v.SetDefault(KeyVerbose, defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path, err := configPath(opts.ConfigFilePath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if opts.Flags != nil {
		for key, flag := range map[string]string{KeyProfile: "profile", KeyBaseURL: "base-url", KeyVerbose: "verbose"} {
			if f := opts.Flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, path, nil
}

func configPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %w", err)
		}
		return explicit, nil
	}

	dir, err := Dir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return path, nil
}
