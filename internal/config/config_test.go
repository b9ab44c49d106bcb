package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/clipforge/work", cfg.TempDir)
	assert.Equal(t, "/tmp/clipforge/out", cfg.OutputDir)
	assert.Equal(t, 1, cfg.MaxConcurrentJobs)
	assert.Equal(t, 10*time.Minute, cfg.TranscodeTimeout)
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
	assert.True(t, cfg.FallbackEnabled)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 2, cfg.FFmpegThreads)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.StallTimeout)
	assert.Equal(t, time.Hour, cfg.Retention)
	assert.Equal(t, 10*time.Minute, cfg.ErrorRetention)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/work")
	t.Setenv("OUTPUT_DIR", "/custom/out")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("TRANSCODE_TIMEOUT", "5m")
	t.Setenv("JOB_TIMEOUT", "20m")
	t.Setenv("FALLBACK_ENABLED", "false")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("CONNECT_TIMEOUT", "5s")
	t.Setenv("STALL_TIMEOUT", "10s")
	t.Setenv("RETENTION", "2h")
	t.Setenv("ERROR_RETENTION", "5m")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/work", cfg.TempDir)
	assert.Equal(t, "/custom/out", cfg.OutputDir)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, 5*time.Minute, cfg.TranscodeTimeout)
	assert.Equal(t, 20*time.Minute, cfg.JobTimeout)
	assert.False(t, cfg.FallbackEnabled)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.StallTimeout)
	assert.Equal(t, 2*time.Hour, cfg.Retention)
	assert.Equal(t, 5*time.Minute, cfg.ErrorRetention)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("TRANSCODE_TIMEOUT", "ten minutes")

	_, err := Load()
	require.Error(t, err)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{
			MaxConcurrentJobs: 2,
			TranscodeTimeout:  10 * time.Minute,
			JobTimeout:        30 * time.Minute,
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := &Config{
			MaxConcurrentJobs: 0,
			TranscodeTimeout:  10 * time.Minute,
			JobTimeout:        30 * time.Minute,
		}
		assert.ErrorIs(t, cfg.Validate(), ErrMaxConcurrentJobs)
	})

	t.Run("job timeout below transcode timeout", func(t *testing.T) {
		cfg := &Config{
			MaxConcurrentJobs: 1,
			TranscodeTimeout:  10 * time.Minute,
			JobTimeout:        10 * time.Minute,
		}
		assert.ErrorIs(t, cfg.Validate(), ErrJobTimeoutTooShort)
	})
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		OutputDir:          "/tmp/out",
		MaxConcurrentJobs:  2,
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "access-key",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "access-key")
	assert.NotContains(t, str, "secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	// Just verify it returns a valid logger
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
