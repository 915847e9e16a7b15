package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: ":53740",
			AllowedOrigin: "*",
			MaxBodyKB:     512,
		},
		MCP: MCPConfig{
			Transport: MCPTransportDisabled,
			HTTPPort:  8080,
		},
		Sandbox: SandboxConfig{
			Backend:           "docker",
			TimeoutSec:        180,
			MemoryMB:          4096,
			CPUs:              1,
			MaxArtifactSizeMB: 100,
			MountPath:         "/playground/src/",
			ImageTemplate:     "learnbevy-{version}-{channel}:main",
			ClippyCommand:     []string{"cargo", "clippy"},
		},
		Cache: CacheConfig{Dir: "cache"},
		RateLimit: RateLimitConfig{
			SuccessWindow:    5 * time.Second,
			FailureWindow:    time.Second,
			InvalidWindow:    5 * time.Minute,
			OverloadCooldown: 10 * time.Second,
			SweepInterval:    time.Minute,
		},
		Format: FormatConfig{Command: []string{"rustfmt"}, TimeoutSec: 10},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"InvalidMCPTransport", func(c *Config) { c.MCP.Transport = "grpc" }, "invalid mcp.transport"},
		{"InvalidBackend", func(c *Config) { c.Sandbox.Backend = "local" }, "unsupported sandbox.backend"},
		{"InvalidSandboxTimeout", func(c *Config) { c.Sandbox.TimeoutSec = 0 }, "sandbox.timeout_sec must be positive"},
		{"InvalidSandboxMemory", func(c *Config) { c.Sandbox.MemoryMB = 0 }, "sandbox.memory_mb must be positive"},
		{"InvalidArtifactSize", func(c *Config) { c.Sandbox.MaxArtifactSizeMB = -1 }, "sandbox.max_artifact_size_mb must be positive"},
		{"ImageTemplateWithoutPlaceholders", func(c *Config) { c.Sandbox.ImageTemplate = "learnbevy:latest" }, "sandbox.image_template must contain"},
		{"EmptyClippyCommand", func(c *Config) { c.Sandbox.ClippyCommand = nil }, "sandbox.clippy_command must not be empty"},
		{"EmptyFormatCommand", func(c *Config) { c.Format.Command = nil }, "format.command must not be empty"},
		{"InvalidFormatTimeout", func(c *Config) { c.Format.TimeoutSec = 0 }, "format.timeout_sec must be positive"},
		{"EmptyCacheDir", func(c *Config) { c.Cache.Dir = "" }, "cache.dir must not be empty"},
		{"NegativeWindow", func(c *Config) { c.RateLimit.InvalidWindow = -time.Second }, "rate_limit windows must not be negative"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
		{"InvalidMetricsPath", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path must start with '/'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":53740", cfg.Server.ListenAddress)
	assert.Equal(t, "docker", cfg.Sandbox.Backend)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.SuccessWindow)
	assert.Equal(t, time.Second, cfg.RateLimit.FailureWindow)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.InvalidWindow)
	assert.Equal(t, DefaultDisallowedConstructs, cfg.Security.DisallowedConstructs)
	assert.Equal(t, "0.14", cfg.Toolchain.DefaultVersion)
	assert.Equal(t, "nightly", cfg.Toolchain.DefaultChannel)
	assert.Equal(t, 180*time.Second, cfg.GetTimeout())
	assert.Equal(t, []string{"cargo", "clippy", "--target", "wasm32-unknown-unknown"}, cfg.Sandbox.ClippyCommand)
	assert.Equal(t, []string{"rustfmt", "--edition", "2021"}, cfg.Format.Command)
	assert.Equal(t, 10*time.Second, cfg.GetFormatTimeout())
}

func TestLoadFromFile(t *testing.T) {
	doc := map[string]any{
		"sandbox": map[string]any{
			"backend":       "podman",
			"timeout_sec":   60,
			"build_command": []string{"sh", "build.sh"},
		},
		"rate_limit": map[string]any{
			"invalid_window": "2m",
		},
		"cache": map[string]any{
			"bypass_token": "s3cret",
		},
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.Equal(t, 60, cfg.Sandbox.TimeoutSec)
	assert.Equal(t, []string{"sh", "build.sh"}, cfg.Sandbox.BuildCommand)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.InvalidWindow)
	assert.Equal(t, "s3cret", cfg.Cache.BypassToken)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.RateLimit.SuccessWindow)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLAYBUILD_SANDBOX_BACKEND", "podman")
	t.Setenv("PLAYBUILD_CACHE_DIR", "/var/cache/playbuild")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.Equal(t, "/var/cache/playbuild", cfg.Cache.Dir)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  mode: verbose\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid logging.mode")
}

func TestLoadExplicitFileWinsOverSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sandbox:\n  backend: docker\n"), 0o600))

	explicit := filepath.Join(t.TempDir(), "playbuild.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("sandbox:\n  backend: podman\n  timeout_sec: 45\n"), 0o600))

	v := viper.New()
	v.SetConfigFile(explicit)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, explicit, v.ConfigFileUsed())
	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.Equal(t, 45, cfg.Sandbox.TimeoutSec)
}
