package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Toolchain ToolchainConfig `mapstructure:"toolchain"`
	Format    FormatConfig    `mapstructure:"format"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	ListenAddress   string        `mapstructure:"listen_address"`
	ClientIPHeader  string        `mapstructure:"client_ip_header"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
	MaxBodyKB       int           `mapstructure:"max_body_kb"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MCPConfig holds the optional MCP transport configuration
type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend           string   `mapstructure:"backend"`
	TimeoutSec        int      `mapstructure:"timeout_sec"`
	MemoryMB          int      `mapstructure:"memory_mb"`
	CPUs              float64  `mapstructure:"cpus"`
	MaxArtifactSizeMB int      `mapstructure:"max_artifact_size_mb"`
	NetworkEnabled    bool     `mapstructure:"network_enabled"`
	WorkRoot          string   `mapstructure:"work_root"`
	MountPath         string   `mapstructure:"mount_path"`
	BuildCommand      []string `mapstructure:"build_command"`
	ClippyCommand     []string `mapstructure:"clippy_command"`
	ImageTemplate     string   `mapstructure:"image_template"`
}

// CacheConfig holds build cache configuration
type CacheConfig struct {
	Dir         string `mapstructure:"dir"`
	BypassToken string `mapstructure:"bypass_token"`
}

// RateLimitConfig holds the admission windows per outcome class
type RateLimitConfig struct {
	SuccessWindow    time.Duration `mapstructure:"success_window"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
	InvalidWindow    time.Duration `mapstructure:"invalid_window"`
	OverloadCooldown time.Duration `mapstructure:"overload_cooldown"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// SecurityConfig holds the source denylist
type SecurityConfig struct {
	DisallowedConstructs []string `mapstructure:"disallowed_constructs"`
}

// ToolchainConfig holds the version/channel defaults applied when a request omits them
type ToolchainConfig struct {
	DefaultVersion string `mapstructure:"default_version"`
	DefaultChannel string `mapstructure:"default_channel"`
}

// FormatConfig holds the host rustfmt invocation used by the format endpoint
type FormatConfig struct {
	Command    []string `mapstructure:"command"`
	TimeoutSec int      `mapstructure:"timeout_sec"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// MetricsConfig holds the Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Transport names for the MCP surface
const (
	MCPTransportDisabled = "disabled"
	MCPTransportStdio    = "stdio"
	MCPTransportHTTP     = "http"
)

// DefaultDisallowedConstructs are compile-time file inclusion and asset embedding
// constructs that would let user code read the sandbox filesystem.
var DefaultDisallowedConstructs = []string{
	"include!",
	"include_str!",
	"include_bytes!",
	"embedded_asset!",
	"embedded_path",
	"load_internal_asset",
	"load_internal_binary_asset",
}

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load(viper.New())
}

// Load reads configuration through the given viper instance. A file set
// with SetConfigFile is used as is; otherwise config.yaml is searched for
// in . and ./config.
func Load(v *viper.Viper) (*Config, error) {
	// SetConfigName would discard a file set with SetConfigFile
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PLAYBUILD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_address", ":53740")
	v.SetDefault("server.client_ip_header", "")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.max_body_kb", 512)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 2*time.Minute)

	v.SetDefault("mcp.transport", MCPTransportDisabled)
	v.SetDefault("mcp.http_port", 8080)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.timeout_sec", 180)
	v.SetDefault("sandbox.memory_mb", 4096)
	v.SetDefault("sandbox.cpus", 1.0)
	v.SetDefault("sandbox.max_artifact_size_mb", 100)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.work_root", filepath.Join(os.TempDir(), "playbuild"))
	v.SetDefault("sandbox.mount_path", "/playground/src/")
	v.SetDefault("sandbox.build_command", []string{})
	v.SetDefault("sandbox.clippy_command", []string{"cargo", "clippy", "--target", "wasm32-unknown-unknown"})
	v.SetDefault("sandbox.image_template", "ghcr.io/liamgallagher737/learnbevy-{version}-{channel}:main")

	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.bypass_token", "")

	v.SetDefault("rate_limit.success_window", 5*time.Second)
	v.SetDefault("rate_limit.failure_window", 1*time.Second)
	v.SetDefault("rate_limit.invalid_window", 5*time.Minute)
	v.SetDefault("rate_limit.overload_cooldown", 10*time.Second)
	v.SetDefault("rate_limit.sweep_interval", time.Minute)

	v.SetDefault("security.disallowed_constructs", DefaultDisallowedConstructs)

	v.SetDefault("toolchain.default_version", "0.14")
	v.SetDefault("toolchain.default_channel", "nightly")

	v.SetDefault("format.command", []string{"rustfmt", "--edition", "2021"})
	v.SetDefault("format.timeout_sec", 10)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}

	if c.Server.MaxBodyKB <= 0 {
		return fmt.Errorf("server.max_body_kb must be positive, got: %d", c.Server.MaxBodyKB)
	}

	switch c.MCP.Transport {
	case MCPTransportDisabled, MCPTransportStdio, MCPTransportHTTP:
	default:
		return fmt.Errorf("invalid mcp.transport: %s, must be 'disabled', 'stdio' or 'http'", c.MCP.Transport)
	}

	if c.Sandbox.Backend != "docker" && c.Sandbox.Backend != "podman" {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxArtifactSizeMB <= 0 {
		return fmt.Errorf("sandbox.max_artifact_size_mb must be positive, got: %d", c.Sandbox.MaxArtifactSizeMB)
	}

	if c.Sandbox.MountPath == "" {
		return fmt.Errorf("sandbox.mount_path must not be empty")
	}

	if !strings.Contains(c.Sandbox.ImageTemplate, "{version}") || !strings.Contains(c.Sandbox.ImageTemplate, "{channel}") {
		return fmt.Errorf("sandbox.image_template must contain {version} and {channel}, got: %s", c.Sandbox.ImageTemplate)
	}

	if len(c.Sandbox.ClippyCommand) == 0 {
		return fmt.Errorf("sandbox.clippy_command must not be empty")
	}

	if len(c.Format.Command) == 0 {
		return fmt.Errorf("format.command must not be empty")
	}

	if c.Format.TimeoutSec <= 0 {
		return fmt.Errorf("format.timeout_sec must be positive, got: %d", c.Format.TimeoutSec)
	}

	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must not be empty")
	}

	if c.RateLimit.SuccessWindow < 0 || c.RateLimit.FailureWindow < 0 || c.RateLimit.InvalidWindow < 0 {
		return fmt.Errorf("rate_limit windows must not be negative")
	}

	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate_limit.sweep_interval must be positive, got: %s", c.RateLimit.SweepInterval)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got: %s", c.Metrics.Path)
	}

	return nil
}

// GetTimeout returns the sandbox execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// GetFormatTimeout returns the rustfmt timeout as a time.Duration
func (c *Config) GetFormatTimeout() time.Duration {
	return time.Duration(c.Format.TimeoutSec) * time.Second
}

// MaxArtifactBytes returns the largest wasm module the sandbox may return.
func (c *Config) MaxArtifactBytes() int {
	return c.Sandbox.MaxArtifactSizeMB * 1024 * 1024
}
