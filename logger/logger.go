// Package logger provides structured logging capabilities.
//
// The logger package sets up and configures the application's logging
// system using zap, providing structured, high-performance logging
// throughout the application.
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/playbuild/config"
)

// Canonical log field names shared by every component.
const (
	KeyRequestID   = "request_id"
	KeyPeerIP      = "peer_ip"
	KeyVersion     = "version"
	KeyChannel     = "channel"
	KeyCacheKey    = "cache_key"
	KeyContainer   = "container"
	KeyDuration    = "duration"
	KeyCacheStatus = "cache_status"
)

func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New creates a new logger instance based on configuration
func New(mode, level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch mode {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("invalid logging mode: %s, must be 'production' or 'development'", mode)
	}

	logLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %s, must be one of 'debug', 'info', 'warn', 'error', 'dpanic', 'panic', 'fatal'", level)
	}
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	return cfg.Build()
}

func RequestID(id string) zap.Field      { return zap.String(KeyRequestID, id) }
func PeerIP(ip string) zap.Field         { return zap.String(KeyPeerIP, ip) }
func Version(v string) zap.Field         { return zap.String(KeyVersion, v) }
func Channel(c string) zap.Field         { return zap.String(KeyChannel, c) }
func CacheKey(k string) zap.Field        { return zap.String(KeyCacheKey, k) }
func Container(name string) zap.Field    { return zap.String(KeyContainer, name) }
func Duration(d time.Duration) zap.Field { return zap.Duration(KeyDuration, d) }
func CacheStatus(s string) zap.Field     { return zap.String(KeyCacheStatus, s) }
