package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/some/path"},
		Scheduler: SchedulerConfig{
			ParseInterval: time.Hour,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true},  // case insensitive
		{"trace", false}, // not supported
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_RequiresDataPath(t *testing.T) {
	cfg := validConfig()
	cfg.Data.BasePath = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresPositiveParseInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.ParseInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		fallback string
		want     string
	}{
		{"empty uses default", "", "/default", "/default"},
		{"absolute unchanged", "/abs/path", "/default", "/abs/path"},
		{"tilde expands", "~/data", "/default", filepath.Join(home, "data")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.path, tt.fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandDataPath_Default(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := &Config{}
	require.NoError(t, cfg.expandDataPath())
	assert.Equal(t, filepath.Join(home, "TeamFold", "data"), cfg.Data.BasePath)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_CONFIG_KEY", "from-env")

	assert.Equal(t, "from-flag", getConfigValue("from-flag", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "from-env", getConfigValue("", "TEST_CONFIG_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_CONFIG_MISSING", "default"))
}

func TestGetBoolConfigValue(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, getBoolConfigValue(tt.value, "TEST_BOOL_MISSING", false))
		})
	}

	// Empty everywhere falls back to the default.
	assert.True(t, getBoolConfigValue("", "TEST_BOOL_MISSING", true))
	assert.False(t, getBoolConfigValue("", "TEST_BOOL_MISSING", false))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := `
# Comment line
STATS_ENV_FILE_KEY=file-value
QUOTED_KEY="quoted value"
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	t.Setenv("STATS_ENV_FILE_KEY", "")
	t.Setenv("QUOTED_KEY", "")
	os.Unsetenv("STATS_ENV_FILE_KEY")
	os.Unsetenv("QUOTED_KEY")

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "file-value", os.Getenv("STATS_ENV_FILE_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("QUOTED_KEY"))
}

func TestLoadEnvFile_EnvVarsTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PRESET_KEY=file-value\n"), 0o600))

	t.Setenv("PRESET_KEY", "env-value")

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "env-value", os.Getenv("PRESET_KEY"))
}

func TestLoadEnvFile_MissingFile(t *testing.T) {
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("not a key value line\n"), 0o600))

	assert.Error(t, loadEnvFile(envFile))
}
