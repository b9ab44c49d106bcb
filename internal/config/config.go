// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrMaxConcurrentJobs is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrMaxConcurrentJobs = errors.New("config: MAX_CONCURRENT_JOBS must be at least 1")
	// ErrJobTimeoutTooShort is returned when JOB_TIMEOUT does not leave
	// room for fetches plus a transcode retry.
	ErrJobTimeoutTooShort = errors.New("config: JOB_TIMEOUT must exceed TRANSCODE_TIMEOUT")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/clipforge/work" json:"temp_dir"`
	OutputDir string `env:"OUTPUT_DIR, default=/tmp/clipforge/out" json:"output_dir"`

	// Processing settings
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=1" json:"max_concurrent_jobs"`
	TranscodeTimeout  time.Duration `env:"TRANSCODE_TIMEOUT, default=10m" json:"transcode_timeout"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT, default=30m" json:"job_timeout"`
	FallbackEnabled   bool          `env:"FALLBACK_ENABLED, default=true" json:"fallback_enabled"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL, default=15s" json:"heartbeat_interval"`

	// Engine settings. FFmpegThreads is the ceiling on per-job encoder
	// threads; submissions asking for more are capped to it.
	FFmpegPath    string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFmpegThreads int    `env:"FFMPEG_THREADS, default=2" json:"ffmpeg_threads"`

	// Asset fetch settings
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT, default=15s" json:"connect_timeout"`
	StallTimeout   time.Duration `env:"STALL_TIMEOUT, default=30s" json:"stall_timeout"`

	// Retention settings
	Retention      time.Duration `env:"RETENTION, default=1h" json:"retention"`
	ErrorRetention time.Duration `env:"ERROR_RETENTION, default=10m" json:"error_retention"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL, default=1m" json:"sweep_interval"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MaxConcurrentJobs < 1 {
		return ErrMaxConcurrentJobs
	}
	// A job may run the transcode twice (primary then fallback) plus the
	// fetches, so the job timeout must at least cover one transcode.
	if c.JobTimeout <= c.TranscodeTimeout {
		return ErrJobTimeoutTooShort
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, OutputDir: %s, MaxConcurrentJobs: %d, TranscodeTimeout: %s, JobTimeout: %s, FallbackEnabled: %t, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.OutputDir,
		c.MaxConcurrentJobs,
		c.TranscodeTimeout,
		c.JobTimeout,
		c.FallbackEnabled,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
