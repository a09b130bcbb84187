package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"EUTERPE_CONFIG", "APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR", "PORT",
	"EUTERPE_DATA_URL", "EUTERPE_SOURCE_ROOT", "EUTERPE_MAX_UPLOAD_BYTES", "EUTERPE_WORKERS",
	"EUTERPE_SKIP_PERCUSSION", "EUTERPE_ANALYSIS_TIMEOUT", "EUTERPE_TRACE_FILE", "EUTERPE_CORS_ORIGINS",
	"EUTERPE_SOURCE_SCHEMES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.True(t, cfg.SkipPercussion)
	assert.Equal(t, DefaultAnalysisTimeout, cfg.AnalysisTimeout)
	assert.Empty(t, cfg.AllowedOrigins())
	assert.Equal(t, []string{"file"}, cfg.Schemes())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("EUTERPE_DATA_URL", "mem://localhost/corpora")
	t.Setenv("EUTERPE_WORKERS", "8")
	t.Setenv("EUTERPE_SKIP_PERCUSSION", "off")
	t.Setenv("EUTERPE_ANALYSIS_TIMEOUT", "5s")
	t.Setenv("EUTERPE_MAX_UPLOAD_BYTES", "not-a-number")
	t.Setenv("EUTERPE_SOURCE_SCHEMES", "File, gs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "mem://localhost/corpora", cfg.DataURL)
	assert.Equal(t, 8, cfg.Workers)
	assert.False(t, cfg.SkipPercussion)
	assert.Equal(t, 5*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes, "unparsable values keep the default")
	assert.Equal(t, []string{"file", "gs"}, cfg.Schemes())

	t.Setenv("HTTP_ADDR", "127.0.0.1:7000")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.HTTPAddr, "HTTP_ADDR wins over PORT")
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "euterpe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":7070"
workers: 2
skip_percussion: false
analysis_timeout: 90s
cors_origins: "http://localhost:3000, https://example.com ,"
source_schemes: " , "
`), 0o600))
	t.Setenv("EUTERPE_CONFIG", path)
	t.Setenv("EUTERPE_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.Workers, "environment overrides the file")
	assert.False(t, cfg.SkipPercussion)
	assert.Equal(t, 90*time.Second, cfg.AnalysisTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "https://example.com"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"file"}, cfg.Schemes(), "an empty scheme list falls back to file")
}

func TestLoad_FileErrors(t *testing.T) {
	clearEnv(t)

	t.Setenv("EUTERPE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o600))
	t.Setenv("EUTERPE_CONFIG", path)
	_, err = Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"negative upload limit", func(c *Config) { c.MaxUploadBytes = -1 }},
		{"zero timeout", func(c *Config) { c.AnalysisTimeout = 0 }},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, defaults().Validate())
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"-4":      slog.LevelDebug,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, Config{Log: in}.LogLevel().Level(), "level %q", in)
	}
}
