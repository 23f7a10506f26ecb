package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/whlkit/internal/index"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("WHLKIT_PROFILE", "")
	t.Setenv("WHLKIT_BASE_URL", "")
	t.Setenv("WHLKIT_VERBOSE", "")
	return dir
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, path, err := Load(LoadOptions{})

	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, index.DefaultBaseURL, cfg.BaseURL)
}

func TestLoad_DefaultFile(t *testing.T) {
	// Arrange
	dir := isolate(t)
	path := filepath.Join(dir, AppName, ConfigFileName)
	writeConfig(t, path, "profile: /etc/whlkit/lite.yaml\nverbose: true\n")

	// Act
	cfg, got, err := Load(LoadOptions{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "/etc/whlkit/lite.yaml", cfg.Profile)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, index.DefaultBaseURL, cfg.BaseURL)
}

func TestLoad_Precedence(t *testing.T) {
	// Arrange
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, path, "profile: from-file.yaml\nbase_url: https://file.example/\n")
	t.Setenv("WHLKIT_BASE_URL", "https://env.example/")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("profile", "", "")
	flags.String("base-url", "", "")
	flags.Bool("verbose", false, "")
	require.NoError(t, flags.Parse([]string{"--profile", "from-flag.yaml"}))

	// Act
	cfg, got, err := Load(LoadOptions{ConfigFilePath: path, Flags: flags})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, "from-flag.yaml", cfg.Profile)
	assert.Equal(t, "https://env.example/", cfg.BaseURL)
	assert.False(t, cfg.Verbose)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, _, err := Load(LoadOptions{ConfigFilePath: filepath.Join(t.TempDir(), "nope.yaml")})

	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeConfig(t, path, "profile: [unclosed\n")

	_, _, err := Load(LoadOptions{ConfigFilePath: path})

	assert.Error(t, err)
}
