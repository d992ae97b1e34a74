// Package config loads the YAML configuration of a harbor server and
// turns it into router options and a logger.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/harbor/mux"
	"github.com/vitalvas/harbor/upload"
)

// Log formats accepted in log_format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var (
	ErrEmptyListen        = errors.New("config: listen must not be empty")
	ErrEmptyUploadDir     = errors.New("config: upload_dir must not be empty")
	ErrInvalidConcurrency = errors.New("config: upload_concurrency must not be negative")
	ErrInvalidBodyLimit   = errors.New("config: max_body_bytes must not be negative")
	ErrInvalidLogLevel    = errors.New("config: invalid log_level")
	ErrInvalidLogFormat   = errors.New("config: log_format must be text or json")
	ErrInvalidRateLimit   = errors.New("config: rate_limit values must not be negative")
	ErrInvalidTimeout     = errors.New("config: timeouts must not be negative")
)

// RateLimit configures per-client request rate limiting. A zero
// RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the server configuration.
type Config struct {
	Listen                string        `yaml:"listen"`
	UploadDir             string        `yaml:"upload_dir"`
	UploadConcurrency     int           `yaml:"upload_concurrency"`
	MaxParts              int           `yaml:"max_parts"`
	MaxBodyBytes          int64         `yaml:"max_body_bytes"`
	PostAfterShortCircuit bool          `yaml:"post_after_short_circuit"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
	StaticDir             string        `yaml:"static_dir"`
	LogLevel              string        `yaml:"log_level"`
	LogFormat             string        `yaml:"log_format"`
	RateLimit             RateLimit     `yaml:"rate_limit"`
}

// Default returns the configuration used for keys absent from a file.
func Default() Config {
	return Config{
		Listen:            ":8080",
		UploadDir:         upload.DefaultDir,
		UploadConcurrency: upload.DefaultConcurrency,
		MaxBodyBytes:      32 << 20,
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          logrus.InfoLevel.String(),
		LogFormat:         LogFormatText,
	}
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("unmarshalling config file error: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return ErrEmptyListen
	}

	if c.UploadDir == "" {
		return ErrEmptyUploadDir
	}

	if c.UploadConcurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxBodyBytes < 0 {
		return ErrInvalidBodyLimit
	}

	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return ErrInvalidTimeout
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return ErrInvalidRateLimit
	}

	return nil
}

// NewLogger builds a logger writing to stderr at the configured level and
// format.
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	switch c.LogFormat {
	case LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case LogFormatText, "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	return logger, nil
}

// RouterOptions returns the mux options for the configured limits.
func (c Config) RouterOptions(logger logrus.FieldLogger) []mux.Option {
	return []mux.Option{
		mux.WithLogger(logger),
		mux.WithMaxBodyBytes(c.MaxBodyBytes),
		mux.WithMaxParts(c.MaxParts),
		mux.WithPostAfterShortCircuit(c.PostAfterShortCircuit),
	}
}
