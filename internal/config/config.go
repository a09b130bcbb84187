// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHTTPAddr        = ":8080"
	DefaultMaxUploadBytes  = 16 << 20
	DefaultWorkers         = 4
	DefaultAnalysisTimeout = 30 * time.Second
	DefaultSourceSchemes   = "file"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env      string `yaml:"env"`
	HTTPAddr string `yaml:"http_addr"`

	Log       string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// DataURL is the afs location where corpora are stored.
	DataURL string `yaml:"data_url"`
	// SourceRoot restricts corpus sources to one location. The server defaults it to
	// DataURL/sources.
	SourceRoot string `yaml:"source_root"`
	// SourceSchemes is a comma separated list of afs schemes sources may use.
	SourceSchemes string `yaml:"source_schemes"`

	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	Workers         int           `yaml:"workers"`
	SkipPercussion  bool          `yaml:"skip_percussion"`
	AnalysisTimeout time.Duration `yaml:"analysis_timeout"`

	TraceFile   string `yaml:"trace_file"`
	CORSOrigins string `yaml:"cors_origins"`
}

func defaults() Config {
	return Config{
		Env:             "dev",
		HTTPAddr:        DefaultHTTPAddr,
		Log:             "info",
		LogFormat:       "json",
		MaxUploadBytes:  DefaultMaxUploadBytes,
		Workers:         DefaultWorkers,
		SkipPercussion:  true,
		AnalysisTimeout: DefaultAnalysisTimeout,
		SourceSchemes:   DefaultSourceSchemes,
	}
}

// Load reads EUTERPE_CONFIG (when set) and then applies environment overrides.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("EUTERPE_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.Log = getEnv("LOG_LEVEL", cfg.Log)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	// Prefer HTTP_ADDR if provided, otherwise build it from PORT.
	if addr := os.Getenv("HTTP_ADDR"); strings.TrimSpace(addr) != "" {
		cfg.HTTPAddr = addr
	} else if port := os.Getenv("PORT"); strings.TrimSpace(port) != "" {
		cfg.HTTPAddr = ":" + strings.TrimSpace(port)
	}

	cfg.DataURL = getEnv("EUTERPE_DATA_URL", cfg.DataURL)
	cfg.SourceRoot = getEnv("EUTERPE_SOURCE_ROOT", cfg.SourceRoot)
	cfg.SourceSchemes = getEnv("EUTERPE_SOURCE_SCHEMES", cfg.SourceSchemes)
	cfg.MaxUploadBytes = getEnvInt64("EUTERPE_MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.Workers = int(getEnvInt64("EUTERPE_WORKERS", int64(cfg.Workers)))
	cfg.SkipPercussion = getEnvBool("EUTERPE_SKIP_PERCUSSION", cfg.SkipPercussion)
	cfg.AnalysisTimeout = getEnvDuration("EUTERPE_ANALYSIS_TIMEOUT", cfg.AnalysisTimeout)
	cfg.TraceFile = getEnv("EUTERPE_TRACE_FILE", cfg.TraceFile)
	cfg.CORSOrigins = getEnv("EUTERPE_CORS_ORIGINS", cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max upload bytes must be positive, got %d", ErrInvalidConfig, c.MaxUploadBytes)
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("%w: analysis timeout must be positive", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

func (c Config) LogLevel() slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(c.Log)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		// Numeric levels: -4 debug, 0 info, 4 warn, 8 error.
		if n, err := strconv.Atoi(c.Log); err == nil {
			return slog.Level(n)
		}
		return slog.LevelInfo
	}
}

// AllowedOrigins splits CORSOrigins into trimmed, non-empty entries.
func (c Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

// Schemes splits SourceSchemes into trimmed, lower-case entries.
func (c Config) Schemes() []string {
	out := splitList(strings.ToLower(c.SourceSchemes))
	if len(out) == 0 {
		return []string{DefaultSourceSchemes}
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
